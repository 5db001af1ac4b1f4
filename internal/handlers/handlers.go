package handlers

import (
	"github.com/labstack/echo/v4"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/middleware"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	config         *config.Config
	db             *database.DB
	authService    *services.AuthService
	tokenService   *services.TokenService
	usageService   *services.UsageService
	auditService   *services.AuditService
	postPass       *services.PostPassService
	markdown       *services.MarkdownService
	sessionManager *middleware.SessionManager
	loginLimiter   *middleware.LoginRateLimiter
}

// New creates a new Handlers instance.
func New(
	cfg *config.Config,
	db *database.DB,
	authService *services.AuthService,
	tokenService *services.TokenService,
	usageService *services.UsageService,
	auditService *services.AuditService,
	postPass *services.PostPassService,
	markdown *services.MarkdownService,
	sessionManager *middleware.SessionManager,
) *Handlers {
	return &Handlers{
		config:         cfg,
		db:             db,
		authService:    authService,
		tokenService:   tokenService,
		usageService:   usageService,
		auditService:   auditService,
		postPass:       postPass,
		markdown:       markdown,
		sessionManager: sessionManager,
		loginLimiter:   middleware.NewLoginRateLimiter(cfg.Security.LoginMaxAttempts, cfg.Security.LoginLockoutTime),
	}
}

// FlashMessages groups flash messages by severity for display.
type FlashMessages struct {
	Success []string
	Error   []string
	Info    []string
}

// PageData is the common data passed to every template.
type PageData struct {
	Title     string
	SiteName  string
	User      *models.User
	CSRFToken string
	Flash     FlashMessages
}

// basePageData creates the common page data structure.
func (h *Handlers) basePageData(c echo.Context, title string) PageData {
	return PageData{
		Title:     title,
		SiteName:  h.config.Site.Name,
		User:      middleware.GetUser(c),
		CSRFToken: middleware.GetCSRFToken(c),
		Flash: FlashMessages{
			Success: h.sessionManager.GetFlash(c, "success"),
			Error:   h.sessionManager.GetFlash(c, "error"),
			Info:    h.sessionManager.GetFlash(c, "info"),
		},
	}
}

// setFlash sets a flash message.
func (h *Handlers) setFlash(c echo.Context, key, message string) {
	h.sessionManager.SetFlash(c, key, message)
}

// RegisterRoutes registers all HTTP routes.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	// Health check (always public)
	e.GET("/health", h.HealthCheck)

	// Public routes
	e.GET("/", h.Home)
	e.GET("/p/:slug", h.ViewPage)
	e.POST("/p/:slug/password", h.SubmitPassword)

	// Auth routes (no auth required)
	authGroup := e.Group("")
	authGroup.Use(middleware.RequireNoAuth())
	authGroup.GET("/login", h.LoginForm)
	authGroup.POST("/login", h.Login)

	// Logout (requires auth)
	e.POST("/logout", h.Logout, middleware.RequireAuth())

	// Editor routes (page management)
	editorGroup := e.Group("")
	editorGroup.Use(middleware.RequireRole(models.RoleEditor))
	editorGroup.GET("/pages", h.ListPages)
	editorGroup.GET("/new", h.NewPageForm)
	editorGroup.POST("/pages", h.CreatePage)
	editorGroup.GET("/edit/:id", h.EditPageForm)
	editorGroup.POST("/pages/:id", h.UpdatePage)
	editorGroup.POST("/pages/:id/delete", h.DeletePage)

	// Admin routes (magic links and usage log)
	adminGroup := e.Group("/admin")
	adminGroup.Use(middleware.RequireRole(models.RoleAdmin))
	adminGroup.GET("", h.MagicLinksPage)
	adminGroup.POST("/tokens", h.CreateToken)
	adminGroup.POST("/tokens/revoke", h.RevokeToken)
}
