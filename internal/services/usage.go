package services

import (
	"context"
	"fmt"
	"time"

	"magiclink/internal/database"
	"magiclink/internal/models"
)

// UsageService records and reads the per-page redemption history.
type UsageService struct {
	db  *database.DB
	geo *GeoResolver
}

// NewUsageService creates a new usage service.
func NewUsageService(db *database.DB, geo *GeoResolver) *UsageService {
	return &UsageService{db: db, geo: geo}
}

// Record appends a usage entry for a successful redemption. The token name
// is snapshotted into the entry and the location is resolved best-effort;
// neither a failed lookup nor a later revocation changes what was recorded.
func (s *UsageService) Record(ctx context.Context, page *models.Page, token *models.Token, ip string) (*models.UsageEntry, error) {
	entry := models.UsageEntry{
		Token:     token.Value,
		TokenName: token.Name,
		IP:        ip,
		Location:  s.geo.Resolve(ctx, ip),
		Timestamp: time.Now().Format(models.TimestampLayout),
	}

	raw, version, err := s.db.GetMeta(ctx, page.ID, usageMetaKey)
	if err != nil {
		return nil, err
	}
	entries, err := models.DecodeUsage(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode usage list: %w", err)
	}

	entries = append(entries, entry)
	encoded, err := models.EncodeUsage(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode usage list: %w", err)
	}

	if err := s.db.SetMeta(ctx, page.ID, usageMetaKey, encoded, version); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns a page's usage entries in insertion order.
func (s *UsageService) List(ctx context.Context, pageID int64) ([]models.UsageEntry, error) {
	raw, _, err := s.db.GetMeta(ctx, pageID, usageMetaKey)
	if err != nil {
		return nil, err
	}
	entries, err := models.DecodeUsage(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode usage list: %w", err)
	}
	return entries, nil
}

// ListForToken returns the usage entries for one token on a page.
func (s *UsageService) ListForToken(ctx context.Context, pageID int64, tokenValue string) ([]models.UsageEntry, error) {
	entries, err := s.List(ctx, pageID)
	if err != nil {
		return nil, err
	}
	var out []models.UsageEntry
	for _, e := range entries {
		if e.Token == tokenValue {
			out = append(out, e)
		}
	}
	return out, nil
}
