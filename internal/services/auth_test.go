package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/internal/config"
	"magiclink/internal/models"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()

	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.Security.BcryptCost = 10
	return NewAuthService(db, cfg)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, models.UserCreate{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody", "whatever")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	svc := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, models.UserCreate{Username: "ab", Email: "a@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.CreateUser(ctx, models.UserCreate{Username: "alice", Email: "not-an-email", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.CreateUser(ctx, models.UserCreate{Username: "alice", Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.CreateUser(ctx, models.UserCreate{Username: "alice", Email: "a@example.com", Password: "longenough"})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, models.UserCreate{Username: "alice", Email: "b@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestEnsureInitialAdmin(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.Security.BcryptCost = 10
	cfg.Admin.Username = "root"
	cfg.Admin.Email = "root@example.com"
	cfg.Admin.Password = "bootstrapped"
	svc := NewAuthService(db, cfg)
	ctx := context.Background()

	admin, err := svc.EnsureInitialAdmin(ctx)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	// Second call is a no-op once users exist
	again, err := svc.EnsureInitialAdmin(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEnsureInitialAdminUnconfigured(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.Security.BcryptCost = 10
	svc := NewAuthService(db, cfg)

	admin, err := svc.EnsureInitialAdmin(context.Background())
	require.NoError(t, err)
	assert.Nil(t, admin)
}
