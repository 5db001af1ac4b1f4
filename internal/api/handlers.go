package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

// Handlers contains all API request handlers.
type Handlers struct {
	db           *database.DB
	config       *config.Config
	authService  *services.AuthService
	tokenService *services.TokenService
	usageService *services.UsageService
	auditService *services.AuditService
}

// NewHandlers creates a new API handlers instance.
func NewHandlers(
	db *database.DB,
	cfg *config.Config,
	authService *services.AuthService,
	tokenService *services.TokenService,
	usageService *services.UsageService,
	auditService *services.AuditService,
) *Handlers {
	return &Handlers{
		db:           db,
		config:       cfg,
		authService:  authService,
		tokenService: tokenService,
		usageService: usageService,
		auditService: auditService,
	}
}

// Response helpers

type successResponse struct {
	Data interface{} `json:"data"`
}

func success(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, successResponse{Data: data})
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, successResponse{Data: data})
}

// Auth handlers

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse represents the response with access and refresh tokens.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Login authenticates a user and returns JWT tokens.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	user, err := h.authService.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTAccessExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}

	refreshToken, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTRefreshExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate refresh token")
	}

	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(h.config.Security.JWTAccessExpiry),
	})
}

// RefreshToken refreshes an access token using a refresh token.
func (h *Handlers) RefreshToken(c echo.Context) error {
	user := GetAPIUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	accessToken, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTAccessExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(h.config.Security.JWTAccessExpiry),
	})
}

// Item handlers

// ItemResponse is a page with its token lists for the API.
type ItemResponse struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Slug      string         `json:"slug"`
	Protected bool           `json:"protected"`
	Tokens    []models.Token `json:"tokens"`
}

// ListItems returns all password-protected pages with their tokens.
func (h *Handlers) ListItems(c echo.Context) error {
	ctx := c.Request().Context()

	pages, err := h.db.ListProtectedPages(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list pages")
	}

	items := make([]ItemResponse, 0, len(pages))
	for i := range pages {
		tokens, err := h.tokenService.List(ctx, pages[i].ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tokens")
		}
		if tokens == nil {
			tokens = []models.Token{}
		}
		items = append(items, ItemResponse{
			ID:        pages[i].ID,
			Title:     pages[i].Title,
			Slug:      pages[i].Slug,
			Protected: true,
			Tokens:    tokens,
		})
	}

	return success(c, items)
}

// CreateTokenRequest is the body for token creation.
type CreateTokenRequest struct {
	Name string `json:"name"`
}

// CreateToken generates a new magic link token for a page.
func (h *Handlers) CreateToken(c echo.Context) error {
	pageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid page ID")
	}

	var req CreateTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, err := h.tokenService.Create(c.Request().Context(), pageID, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrPageNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "page not found")
		}
		if errors.Is(err, database.ErrMetaConflict) {
			return echo.NewHTTPError(http.StatusConflict, "token list changed concurrently, retry")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create token")
	}

	return created(c, token)
}

// RevokeTokenRequest is the body for token revocation.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}

// RevokeToken permanently deactivates a token.
func (h *Handlers) RevokeToken(c echo.Context) error {
	pageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid page ID")
	}

	var req RevokeTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	if err := h.tokenService.Revoke(c.Request().Context(), pageID, req.Token); err != nil {
		if errors.Is(err, database.ErrMetaConflict) {
			return echo.NewHTTPError(http.StatusConflict, "token list changed concurrently, retry")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
	}

	return success(c, map[string]string{"status": "revoked"})
}

// ListItemUsage returns the raw usage entries for one page, optionally
// narrowed to a single token via the token query parameter.
func (h *Handlers) ListItemUsage(c echo.Context) error {
	pageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid page ID")
	}

	ctx := c.Request().Context()
	page, err := h.db.GetPageByID(ctx, pageID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get page")
	}
	if page == nil {
		return echo.NewHTTPError(http.StatusNotFound, "page not found")
	}

	var entries []models.UsageEntry
	if token := c.QueryParam("token"); token != "" {
		entries, err = h.usageService.ListForToken(ctx, pageID, token)
	} else {
		entries, err = h.usageService.List(ctx, pageID)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list usage")
	}
	if entries == nil {
		entries = []models.UsageEntry{}
	}

	return success(c, entries)
}

// Log handlers

// LogsResponse carries the filtered records and optionally the facets.
type LogsResponse struct {
	Records []models.LogRecord `json:"records"`
	Total   int                `json:"total"`
}

// ListLogs returns the unified usage log, filtered by query parameters.
func (h *Handlers) ListLogs(c echo.Context) error {
	records, err := h.auditService.AggregateAllLogs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to aggregate logs")
	}

	filter := models.LogFilter{
		PageID:    c.QueryParam("page_id"),
		PageTitle: c.QueryParam("page_title"),
		Token:     c.QueryParam("token"),
		TokenName: c.QueryParam("token_name"),
		IP:        c.QueryParam("ip"),
		Location:  c.QueryParam("location"),
		DateFrom:  c.QueryParam("date_from"),
		DateTo:    c.QueryParam("date_to"),
	}
	records = services.ApplyFilter(records, filter)

	if c.QueryParam("sort") == "time" {
		services.SortByTime(records)
	}

	if records == nil {
		records = []models.LogRecord{}
	}

	return success(c, LogsResponse{Records: records, Total: len(records)})
}

// GetLogFacets returns the distinct filterable values across the full log.
func (h *Handlers) GetLogFacets(c echo.Context) error {
	records, err := h.auditService.AggregateAllLogs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to aggregate logs")
	}

	return success(c, services.DeriveFacets(records))
}
