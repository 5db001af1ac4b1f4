package api

import (
	"context"
	"net/http"
	"net/http/httptest"
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
	"magiclink/internal/models"
	"magiclink/internal/services"
)

func newTestHandlers(t *testing.T) (*Handlers, *database.DB) {
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
	cfg.Security.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Security.BcryptCost = 10
	cfg.Geo.Endpoint = "http://127.0.0.1:1"
	cfg.Geo.Timeout = 200 * time.Millisecond

	tokenService := services.NewTokenService(db)
	usageService := services.NewUsageService(db, services.NewGeoResolver(&cfg.Geo))
	auditService := services.NewAuditService(db, usageService)

	return NewHandlers(db, cfg, services.NewAuthService(db, cfg),
		tokenService, usageService, auditService), db
}

func postJSON(target, body string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	return c, rec
}

func TestAPICreateToken(t *testing.T) {
	t.Parallel()

	h, db := newTestHandlers(t)
	ctx := context.Background()

	page := &models.Page{Title: "secret", Slug: "secret", Password: "pw"}
	require.NoError(t, db.CreatePage(ctx, page))
	pageID := strconv.FormatInt(page.ID, 10)

	t.Run("empty name is allowed", func(t *testing.T) {
		c, rec := postJSON("/api/v1/items/"+pageID+"/tokens", `{"name":""}`,
			map[string]string{"id": pageID})
		require.NoError(t, h.CreateToken(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		tokens, err := services.NewTokenService(db).List(ctx, page.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Empty(t, tokens[0].Name)
		assert.True(t, tokens[0].IsActive())
	})

	t.Run("unknown page is 404", func(t *testing.T) {
		c, _ := postJSON("/api/v1/items/999/tokens", `{"name":"x"}`,
			map[string]string{"id": "999"})
		err := h.CreateToken(c)
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusNotFound, he.Code)
	})

	t.Run("malformed page id is 400", func(t *testing.T) {
		c, _ := postJSON("/api/v1/items/abc/tokens", `{"name":"x"}`,
			map[string]string{"id": "abc"})
		err := h.CreateToken(c)
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})
}
