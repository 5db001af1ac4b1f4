package services

import (
	"context"
	"sort"
	"strconv"

	"magiclink/internal/database"
	"magiclink/internal/models"
)

// AuditService assembles the unified redemption log across all pages.
type AuditService struct {
	db    *database.DB
	usage *UsageService
}

// NewAuditService creates a new audit service.
func NewAuditService(db *database.DB, usage *UsageService) *AuditService {
	return &AuditService{db: db, usage: usage}
}

// AggregateAllLogs collects every page's usage entries into one flat list of
// records tagged with the owning page. Records appear grouped by page in
// enumeration order, with each page's entries in insertion order; callers
// wanting a global time order apply SortByTime.
func (s *AuditService) AggregateAllLogs(ctx context.Context) ([]models.LogRecord, error) {
	pages, err := s.db.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	var records []models.LogRecord
	for i := range pages {
		entries, err := s.usage.List(ctx, pages[i].ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			records = append(records, models.LogRecord{
				PageID:     pages[i].ID,
				PageTitle:  pages[i].Title,
				UsageEntry: e,
			})
		}
	}
	return records, nil
}

// DeriveFacets extracts the sorted distinct values per field from a record
// set. Facets derived from an already-filtered set reflect only that set.
func DeriveFacets(records []models.LogRecord) models.LogFacets {
	pageIDs := make(map[string]struct{})
	pageTitles := make(map[string]struct{})
	tokens := make(map[string]struct{})
	tokenNames := make(map[string]struct{})
	ips := make(map[string]struct{})
	locations := make(map[string]struct{})
	dates := make(map[string]struct{})

	for i := range records {
		r := &records[i]
		pageIDs[strconv.FormatInt(r.PageID, 10)] = struct{}{}
		pageTitles[r.PageTitle] = struct{}{}
		tokens[r.Token] = struct{}{}
		tokenNames[r.TokenName] = struct{}{}
		ips[r.IP] = struct{}{}
		locations[r.Location] = struct{}{}
		dates[r.Date()] = struct{}{}
	}

	return models.LogFacets{
		PageIDs:    sortedKeys(pageIDs),
		PageTitles: sortedKeys(pageTitles),
		Tokens:     sortedKeys(tokens),
		TokenNames: sortedKeys(tokenNames),
		IPs:        sortedKeys(ips),
		Locations:  sortedKeys(locations),
		Dates:      sortedKeys(dates),
	}
}

// ApplyFilter returns the records matching every constraint in the filter,
// preserving their order.
func ApplyFilter(records []models.LogRecord, f models.LogFilter) []models.LogRecord {
	var out []models.LogRecord
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortByTime orders records by timestamp ascending, keeping the aggregate
// order for equal timestamps.
func SortByTime(records []models.LogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
