package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/middleware"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

func newTestHandlers(t *testing.T) (*Handlers, *database.DB, *echo.Echo) {
	t.Helper()

	dbCfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
	db, err := database.New(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	cfg := &config.Config{}
	cfg.Site.Name = "Test Site"
	cfg.Site.URL = "http://localhost:8080"
	cfg.Security.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Security.SessionName = "test_session"
	cfg.Security.SessionMaxAge = 3600
	cfg.Security.BcryptCost = 10
	cfg.Security.LoginMaxAttempts = 5
	cfg.Security.LoginLockoutTime = 15 * time.Minute
	cfg.Security.PostPassCookieTTL = 10 * 24 * time.Hour
	cfg.Geo.Endpoint = "http://127.0.0.1:1"
	cfg.Geo.Timeout = 200 * time.Millisecond

	authService := services.NewAuthService(db, cfg)
	tokenService := services.NewTokenService(db)
	usageService := services.NewUsageService(db, services.NewGeoResolver(&cfg.Geo))
	auditService := services.NewAuditService(db, usageService)

	h := New(cfg, db, authService, tokenService, usageService, auditService,
		services.NewPostPassService(cfg), services.NewMarkdownService(),
		middleware.NewSessionManager(cfg, authService))

	e := echo.New()
	e.Renderer = NewRenderer()
	return h, db, e
}

func createHandlerPage(t *testing.T, db *database.DB, slug, password string) *models.Page {
	t.Helper()

	page := &models.Page{Title: slug, Slug: slug, Password: password}
	require.NoError(t, db.CreatePage(context.Background(), page))
	return page
}

func postForm(e *echo.Echo, target string, form url.Values) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateTokenEmptyNameAllowed(t *testing.T) {
	t.Parallel()

	h, db, e := newTestHandlers(t)
	page := createHandlerPage(t, db, "secret", "letmein")

	c, rec := postForm(e, "/admin/tokens", url.Values{
		"page_id": {strconv.FormatInt(page.ID, 10)},
		"name":    {""},
	})
	require.NoError(t, h.CreateToken(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	tokens, err := services.NewTokenService(db).List(context.Background(), page.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Empty(t, tokens[0].Name)
	assert.True(t, tokens[0].IsActive())
}

func TestCreateTokenInvalidPageID(t *testing.T) {
	t.Parallel()

	h, _, e := newTestHandlers(t)

	c, rec := postForm(e, "/admin/tokens", url.Values{
		"page_id": {"not-a-number"},
		"name":    {"x"},
	})
	require.NoError(t, h.CreateToken(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))
}

func TestCreateTokenMissingPage(t *testing.T) {
	t.Parallel()

	h, _, e := newTestHandlers(t)

	c, rec := postForm(e, "/admin/tokens", url.Values{
		"page_id": {"999"},
		"name":    {"orphan"},
	})
	require.NoError(t, h.CreateToken(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRevokeTokenMissingValue(t *testing.T) {
	t.Parallel()

	h, db, e := newTestHandlers(t)
	page := createHandlerPage(t, db, "secret", "letmein")

	svc := services.NewTokenService(db)
	token, err := svc.Create(context.Background(), page.ID, "keep")
	require.NoError(t, err)

	c, rec := postForm(e, "/admin/tokens/revoke", url.Values{
		"page_id": {strconv.FormatInt(page.ID, 10)},
	})
	require.NoError(t, h.RevokeToken(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	// The planted token is untouched
	tokens, err := svc.List(context.Background(), page.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].IsActive())
	assert.Equal(t, token.Value, tokens[0].Value)
}

func TestSubmitPassword(t *testing.T) {
	t.Parallel()

	h, db, e := newTestHandlers(t)
	createHandlerPage(t, db, "secret", "letmein")

	serve := func(password string) (echo.Context, *httptest.ResponseRecorder) {
		c, rec := postForm(e, "/p/secret/password", url.Values{"password": {password}})
		c.SetParamNames("slug")
		c.SetParamValues("secret")
		return c, rec
	}

	t.Run("wrong password re-renders the prompt", func(t *testing.T) {
		c, rec := serve("wrong")
		require.NoError(t, h.SubmitPassword(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Incorrect password")
	})

	t.Run("correct password issues the gate cookie", func(t *testing.T) {
		c, rec := serve("letmein")
		require.NoError(t, h.SubmitPassword(c))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/p/secret", rec.Header().Get("Location"))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, h.postPass.CookieName(), cookies[0].Name)
		assert.Equal(t, h.postPass.Hash("letmein"), cookies[0].Value)
	})
}

func TestMagicLinksPageShowsPerTokenUsage(t *testing.T) {
	t.Parallel()

	h, db, e := newTestHandlers(t)
	page := createHandlerPage(t, db, "secret", "letmein")

	token, err := services.NewTokenService(db).Create(context.Background(), page.ID, "newsletter")
	require.NoError(t, err)

	encoded, err := models.EncodeUsage([]models.UsageEntry{{
		Token:     token.Value,
		TokenName: "newsletter",
		IP:        "203.0.113.9",
		Location:  "Lisbon, Lisboa, Portugal",
		Timestamp: "2026-08-15 10:30:00",
	}})
	require.NoError(t, err)
	require.NoError(t, db.SetMeta(context.Background(), page.ID, "magic_token_usage", encoded, 0))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.MagicLinksPage(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, token.Value)

	// The redemption shows up twice: once under its token, once in the
	// unified usage log.
	assert.Equal(t, 2, strings.Count(body, "203.0.113.9"))
	assert.Equal(t, 2, strings.Count(body, "Lisbon, Lisboa, Portugal"))
}
