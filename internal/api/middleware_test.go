package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/models"
)

func newTestJWT(t *testing.T) (*JWTMiddleware, *models.User, *config.Config) {
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

	now := time.Now().UTC()
	user := &models.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "irrelevant",
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.CreateUser(context.Background(), user))

	cfg := &config.Config{}
	cfg.Security.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Security.JWTAccessExpiry = 15 * time.Minute

	return NewJWTMiddleware(db, cfg), user, cfg
}

func invoke(t *testing.T, mw *JWTMiddleware, authHeader string) (echo.Context, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	handler := mw.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, handler(c)
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()

	mw, user, cfg := newTestJWT(t)

	t.Run("valid token authenticates", func(t *testing.T) {
		token, err := GenerateJWT(user, cfg.Security.SecretKey, cfg.Security.JWTAccessExpiry)
		require.NoError(t, err)

		c, err := invoke(t, mw, "Bearer "+token)
		require.NoError(t, err)

		got := GetAPIUser(c)
		require.NotNil(t, got)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		_, err := invoke(t, mw, "")
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		_, err := invoke(t, mw, "Token abc")
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := invoke(t, mw, "Bearer not.a.jwt")
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT(user, cfg.Security.SecretKey, -time.Minute)
		require.NoError(t, err)

		_, err = invoke(t, mw, "Bearer "+token)
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("wrong signing key is rejected", func(t *testing.T) {
		token, err := GenerateJWT(user, "another-secret-key-entirely-here!", time.Minute)
		require.NoError(t, err)

		_, err = invoke(t, mw, "Bearer "+token)
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	e := echo.New()

	run := func(user *models.User) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if user != nil {
			ctx := context.WithValue(c.Request().Context(), userContextKey, user)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return RequireRole(models.RoleAdmin)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})(c)
	}

	t.Run("no user", func(t *testing.T) {
		err := run(nil)
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("insufficient role", func(t *testing.T) {
		err := run(&models.User{Role: models.RoleEditor})
		he := &echo.HTTPError{}
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusForbidden, he.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		assert.NoError(t, run(&models.User{Role: models.RoleAdmin}))
	})
}
