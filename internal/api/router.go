package api

import (
	"github.com/labstack/echo/v4"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

// RegisterRoutes registers all API routes.
func RegisterRoutes(
	e *echo.Echo,
	db *database.DB,
	cfg *config.Config,
	authService *services.AuthService,
	tokenService *services.TokenService,
	usageService *services.UsageService,
	auditService *services.AuditService,
) {
	h := NewHandlers(db, cfg, authService, tokenService, usageService, auditService)
	jwtMiddleware := NewJWTMiddleware(db, cfg)

	api := e.Group("/api/v1")

	// Public routes (no auth required)
	api.POST("/auth/login", h.Login)

	// Protected routes (auth required)
	protected := api.Group("")
	protected.Use(jwtMiddleware.Middleware())

	protected.POST("/auth/refresh", h.RefreshToken)

	// Admin routes
	admin := protected.Group("")
	admin.Use(RequireRole(models.RoleAdmin))
	admin.GET("/items", h.ListItems)
	admin.POST("/items/:id/tokens", h.CreateToken)
	admin.POST("/items/:id/tokens/revoke", h.RevokeToken)
	admin.GET("/items/:id/usage", h.ListItemUsage)
	admin.GET("/logs", h.ListLogs)
	admin.GET("/logs/facets", h.GetLogFacets)
}
