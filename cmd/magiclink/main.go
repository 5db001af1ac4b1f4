package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"magiclink/internal/api"
	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/handlers"
	"magiclink/internal/middleware"
	"magiclink/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("Starting %s...\n", cfg.Site.Name)

	// Create data directory if needed
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize services
	markdownService := services.NewMarkdownService()
	authService := services.NewAuthService(db, cfg)
	geoResolver := services.NewGeoResolver(&cfg.Geo)
	postPassService := services.NewPostPassService(cfg)
	tokenService := services.NewTokenService(db)
	usageService := services.NewUsageService(db, geoResolver)
	auditService := services.NewAuditService(db, usageService)

	// Seed the initial admin account when configured
	if admin, err := authService.EnsureInitialAdmin(ctx); err != nil {
		return fmt.Errorf("failed to create initial admin: %w", err)
	} else if admin != nil {
		fmt.Printf("Created initial admin user %q\n", admin.Username)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = handlers.NewRenderer()

	// Session manager
	sessionManager := middleware.NewSessionManager(cfg, authService)

	// CSRF protection
	csrf := middleware.NewCSRF(sessionManager, cfg.Security.CSRFTokenLength)

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow,
	)

	// Global middleware (order matters!)
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoveryMiddleware())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.SecurityHeaders())
	e.Use(rateLimiter.Middleware())
	e.Use(sessionManager.AuthMiddleware())
	// Magic-link redemption runs before CSRF: it is a plain GET that
	// issues the gate cookie and redirects.
	e.Use(middleware.MagicToken(tokenService, postPassService, usageService))
	e.Use(csrf.Middleware())

	// Gzip compression
	e.Use(echoMiddleware.GzipWithConfig(echoMiddleware.GzipConfig{
		Level: 5,
	}))

	// Initialize handlers
	h := handlers.New(cfg, db, authService, tokenService, usageService,
		auditService, postPassService, markdownService, sessionManager)

	// Register routes
	h.RegisterRoutes(e)

	// Register API routes
	api.RegisterRoutes(e, db, cfg, authService, tokenService, usageService, auditService)

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler

	// Start server
	server := &http.Server{
		Addr:         cfg.Address(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		fmt.Printf("Server listening on http://%s\n", cfg.Address())
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// customErrorHandler handles HTTP errors.
func customErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "Internal Server Error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}

	// For API requests, return JSON
	if c.Request().Header.Get("Accept") == "application/json" {
		c.JSON(code, map[string]interface{}{
			"error": message,
			"code":  code,
		})
		return
	}

	errorHTML := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%d - %s</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #f8fafc; }
        .container { text-align: center; padding: 2rem; }
        .code { font-size: 6rem; font-weight: bold; color: #3b82f6; margin: 0; }
        .message { font-size: 1.5rem; color: #475569; margin: 1rem 0; }
        .link { color: #3b82f6; text-decoration: none; }
        .link:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <div class="container">
        <p class="code">%d</p>
        <p class="message">%s</p>
        <a href="/" class="link">Back to Home</a>
    </div>
</body>
</html>
`, code, message, code, message)

	c.HTML(code, errorHTML)
}
