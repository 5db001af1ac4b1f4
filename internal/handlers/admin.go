package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"magiclink/internal/database"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

// TokenRow pairs a token with its owning page and its redemption history for
// the admin view.
type TokenRow struct {
	PageID int64
	Token  models.Token
	Usage  []models.UsageEntry
}

// AdminItem groups a protected page with its tokens.
type AdminItem struct {
	Page    models.Page
	Active  []TokenRow
	Revoked []TokenRow
}

// AdminLinksData is the template data for the magic links dashboard.
type AdminLinksData struct {
	PageData
	SiteURL    string
	Items      []AdminItem
	Records    []models.LogRecord
	Facets     models.LogFacets
	Filter     models.LogFilter
	SortByTime bool
}

// MagicLinksPage renders the admin dashboard: per-page token management and
// the unified usage log with filters.
func (h *Handlers) MagicLinksPage(c echo.Context) error {
	ctx := c.Request().Context()

	pages, err := h.db.ListProtectedPages(ctx)
	if err != nil {
		return err
	}

	items := make([]AdminItem, 0, len(pages))
	for i := range pages {
		tokens, err := h.tokenService.List(ctx, pages[i].ID)
		if err != nil {
			return err
		}

		entries, err := h.usageService.List(ctx, pages[i].ID)
		if err != nil {
			return err
		}
		byToken := make(map[string][]models.UsageEntry)
		for _, e := range entries {
			byToken[e.Token] = append(byToken[e.Token], e)
		}

		item := AdminItem{Page: pages[i]}
		for _, t := range tokens {
			row := TokenRow{PageID: pages[i].ID, Token: t, Usage: byToken[t.Value]}
			if t.IsActive() {
				item.Active = append(item.Active, row)
			} else {
				item.Revoked = append(item.Revoked, row)
			}
		}
		items = append(items, item)
	}

	records, err := h.auditService.AggregateAllLogs(ctx)
	if err != nil {
		return err
	}

	// Facets reflect the full log so the dropdowns keep every choice
	// visible while a filter is applied.
	facets := services.DeriveFacets(records)

	filter := logFilterFromQuery(c)
	records = services.ApplyFilter(records, filter)

	sortByTime := c.QueryParam("sort") == "time"
	if sortByTime {
		services.SortByTime(records)
	}

	return c.Render(http.StatusOK, "admin_links", AdminLinksData{
		PageData:   h.basePageData(c, "Magic Links"),
		SiteURL:    strings.TrimRight(h.config.Site.URL, "/"),
		Items:      items,
		Records:    records,
		Facets:     facets,
		Filter:     filter,
		SortByTime: sortByTime,
	})
}

// CreateToken generates a new magic link for a page.
func (h *Handlers) CreateToken(c echo.Context) error {
	pageID, err := strconv.ParseInt(c.FormValue("page_id"), 10, 64)
	if err != nil {
		h.setFlash(c, "error", "Invalid page ID.")
		return c.Redirect(http.StatusSeeOther, "/admin")
	}

	// The label is optional display metadata; only the page id is required.
	name := strings.TrimSpace(c.FormValue("name"))

	token, err := h.tokenService.Create(c.Request().Context(), pageID, name)
	if err != nil {
		if errors.Is(err, services.ErrPageNotFound) {
			h.setFlash(c, "error", "Page not found.")
			return c.Redirect(http.StatusSeeOther, "/admin")
		}
		if errors.Is(err, database.ErrMetaConflict) {
			h.setFlash(c, "error", "The link list changed while saving. Please try again.")
			return c.Redirect(http.StatusSeeOther, "/admin")
		}
		return err
	}

	h.logAdminAction(c, "token.create", &pageID, name)
	msg := "Magic link created."
	if token.Name != "" {
		msg = "Magic link created: " + token.Name
	}
	h.setFlash(c, "success", msg)
	return c.Redirect(http.StatusSeeOther, "/admin")
}

// RevokeToken permanently deactivates a magic link.
func (h *Handlers) RevokeToken(c echo.Context) error {
	pageID, err := strconv.ParseInt(c.FormValue("page_id"), 10, 64)
	if err != nil {
		h.setFlash(c, "error", "Invalid page ID.")
		return c.Redirect(http.StatusSeeOther, "/admin")
	}

	value := c.FormValue("token")
	if value == "" {
		h.setFlash(c, "error", "Missing token value.")
		return c.Redirect(http.StatusSeeOther, "/admin")
	}

	if err := h.tokenService.Revoke(c.Request().Context(), pageID, value); err != nil {
		if errors.Is(err, database.ErrMetaConflict) {
			h.setFlash(c, "error", "The link list changed while saving. Please try again.")
			return c.Redirect(http.StatusSeeOther, "/admin")
		}
		return err
	}

	h.logAdminAction(c, "token.revoke", &pageID, value)
	h.setFlash(c, "success", "Magic link revoked.")
	return c.Redirect(http.StatusSeeOther, "/admin")
}

// logFilterFromQuery builds a log filter from the dashboard query string.
func logFilterFromQuery(c echo.Context) models.LogFilter {
	return models.LogFilter{
		PageID:    c.QueryParam("page_id"),
		PageTitle: c.QueryParam("page_title"),
		Token:     c.QueryParam("token"),
		TokenName: c.QueryParam("token_name"),
		IP:        c.QueryParam("ip"),
		Location:  c.QueryParam("location"),
		DateFrom:  c.QueryParam("date_from"),
		DateTo:    c.QueryParam("date_to"),
	}
}
