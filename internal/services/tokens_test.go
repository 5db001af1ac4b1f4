package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func createTestPage(t *testing.T, db *database.DB, slug, password string) *models.Page {
	t.Helper()

	page := &models.Page{Title: slug, Slug: slug, Password: password}
	require.NoError(t, db.CreatePage(context.Background(), page))
	return page
}

func TestTokenServiceCreateAndList(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewTokenService(db)
	ctx := context.Background()

	page := createTestPage(t, db, "guide", "pw")

	first, err := svc.Create(ctx, page.ID, "newsletter")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Value)
	assert.Equal(t, "newsletter", first.Name)
	assert.True(t, first.IsActive())

	second, err := svc.Create(ctx, page.ID, "twitter")
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)

	tokens, err := svc.List(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	// Creation order is preserved
	assert.Equal(t, "newsletter", tokens[0].Name)
	assert.Equal(t, "twitter", tokens[1].Name)
}

func TestTokenServiceCreateMissingPage(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewTokenService(db)

	_, err := svc.Create(context.Background(), 999, "orphan")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestTokenServiceRevoke(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewTokenService(db)
	ctx := context.Background()

	page := createTestPage(t, db, "guide", "pw")
	token, err := svc.Create(ctx, page.ID, "newsletter")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, page.ID, token.Value))

	tokens, err := svc.List(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, models.TokenRevoked, tokens[0].Status)

	// Revoking again, or revoking an unknown value, is a no-op
	require.NoError(t, svc.Revoke(ctx, page.ID, token.Value))
	require.NoError(t, svc.Revoke(ctx, page.ID, "does-not-exist"))

	tokens, err = svc.List(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
}

func TestFindOwningItem(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewTokenService(db)
	ctx := context.Background()

	pageA := createTestPage(t, db, "alpha", "pw-a")
	pageB := createTestPage(t, db, "beta", "pw-b")

	tokenA, err := svc.Create(ctx, pageA.ID, "a-link")
	require.NoError(t, err)
	tokenB, err := svc.Create(ctx, pageB.ID, "b-link")
	require.NoError(t, err)

	t.Run("finds the owning page", func(t *testing.T) {
		page, token, err := svc.FindOwningItem(ctx, tokenB.Value)
		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, pageB.ID, page.ID)
		assert.Equal(t, "b-link", token.Name)
	})

	t.Run("unknown value finds nothing", func(t *testing.T) {
		page, token, err := svc.FindOwningItem(ctx, "unknown-value")
		require.NoError(t, err)
		assert.Nil(t, page)
		assert.Nil(t, token)
	})

	t.Run("empty value finds nothing", func(t *testing.T) {
		page, token, err := svc.FindOwningItem(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, page)
		assert.Nil(t, token)
	})

	t.Run("revoked token never matches", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, pageA.ID, tokenA.Value))

		page, token, err := svc.FindOwningItem(ctx, tokenA.Value)
		require.NoError(t, err)
		assert.Nil(t, page)
		assert.Nil(t, token)
	})
}

func TestFindOwningItemDuplicateValueFirstPageWins(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewTokenService(db)
	ctx := context.Background()

	pageA := createTestPage(t, db, "first", "pw")
	pageB := createTestPage(t, db, "second", "pw")

	// Plant the same value on both pages directly in metadata
	encoded, err := models.EncodeTokens([]models.Token{{Value: "dup", Name: "x", Status: models.TokenActive}})
	require.NoError(t, err)
	require.NoError(t, db.SetMeta(ctx, pageA.ID, "magic_tokens", encoded, 0))
	require.NoError(t, db.SetMeta(ctx, pageB.ID, "magic_tokens", encoded, 0))

	page, _, err := svc.FindOwningItem(ctx, "dup")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, pageA.ID, page.ID)
}
