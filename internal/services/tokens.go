package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"magiclink/internal/database"
	"magiclink/internal/models"
)

// Metadata keys for the per-page lists.
const (
	tokensMetaKey = "magic_tokens"
	usageMetaKey  = "magic_token_usage"
)

// ErrPageNotFound is returned when a token operation targets a page that
// does not exist.
var ErrPageNotFound = errors.New("page not found")

// TokenService manages the magic-link tokens attached to pages.
type TokenService struct {
	db *database.DB
}

// NewTokenService creates a new token service.
func NewTokenService(db *database.DB) *TokenService {
	return &TokenService{db: db}
}

// generateTokenValue creates a cryptographically secure token value.
func generateTokenValue() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// List returns the full token list for a page, active and revoked alike, in
// creation order.
func (s *TokenService) List(ctx context.Context, pageID int64) ([]models.Token, error) {
	raw, _, err := s.db.GetMeta(ctx, pageID, tokensMetaKey)
	if err != nil {
		return nil, err
	}
	tokens, err := models.DecodeTokens(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}
	return tokens, nil
}

// Create generates a fresh active token with the given label and appends it
// to the page's token list. The label needs no uniqueness; it is a display
// name only.
func (s *TokenService) Create(ctx context.Context, pageID int64, name string) (*models.Token, error) {
	page, err := s.db.GetPageByID(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrPageNotFound
	}

	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	token := models.Token{
		Value:  value,
		Name:   name,
		Status: models.TokenActive,
	}

	raw, version, err := s.db.GetMeta(ctx, pageID, tokensMetaKey)
	if err != nil {
		return nil, err
	}
	tokens, err := models.DecodeTokens(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}

	tokens = append(tokens, token)
	encoded, err := models.EncodeTokens(tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token list: %w", err)
	}

	if err := s.db.SetMeta(ctx, pageID, tokensMetaKey, encoded, version); err != nil {
		return nil, err
	}
	return &token, nil
}

// Revoke marks a token revoked. The token stays in the list so past usage
// remains attributable. Revoking an already-revoked or unknown token is a
// no-op.
func (s *TokenService) Revoke(ctx context.Context, pageID int64, value string) error {
	raw, version, err := s.db.GetMeta(ctx, pageID, tokensMetaKey)
	if err != nil {
		return err
	}
	tokens, err := models.DecodeTokens(raw)
	if err != nil {
		return fmt.Errorf("failed to decode token list: %w", err)
	}

	changed := false
	for i := range tokens {
		if tokens[i].Value == value && tokens[i].Status == models.TokenActive {
			tokens[i].Status = models.TokenRevoked
			changed = true
		}
	}
	if !changed {
		return nil
	}

	encoded, err := models.EncodeTokens(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode token list: %w", err)
	}
	return s.db.SetMeta(ctx, pageID, tokensMetaKey, encoded, version)
}

// FindOwningItem scans all pages in enumeration order and returns the first
// page holding an active token with the given value, along with the token
// itself. Revoked tokens never match. Returns nil, nil, nil when no page
// owns the value.
func (s *TokenService) FindOwningItem(ctx context.Context, value string) (*models.Page, *models.Token, error) {
	if value == "" {
		return nil, nil, nil
	}

	pages, err := s.db.ListPages(ctx)
	if err != nil {
		return nil, nil, err
	}

	for i := range pages {
		tokens, err := s.List(ctx, pages[i].ID)
		if err != nil {
			return nil, nil, err
		}
		for j := range tokens {
			if tokens[j].Value == value && tokens[j].IsActive() {
				return &pages[i], &tokens[j], nil
			}
		}
	}
	return nil, nil, nil
}
