package handlers

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"magiclink/internal/middleware"
	"magiclink/internal/models"
	"magiclink/internal/services"
)

// HomeData is the template data for the page index.
type HomeData struct {
	PageData
	Pages []models.PageSummary
}

// PageViewData is the template data for rendered page content.
type PageViewData struct {
	PageData
	Page        *models.Page
	ContentHTML template.HTML
}

// PagePasswordData is the template data for the password prompt.
type PagePasswordData struct {
	PageData
	Page  *models.Page
	Error string
}

// PageFormData is the template data for the page create/edit form.
type PageFormData struct {
	PageData
	Page *models.Page
}

// Home renders the page index.
func (h *Handlers) Home(c echo.Context) error {
	pages, err := h.db.ListPageSummaries(c.Request().Context())
	if err != nil {
		return err
	}

	return c.Render(http.StatusOK, "home", HomeData{
		PageData: h.basePageData(c, "Home"),
		Pages:    pages,
	})
}

// ViewPage renders a page, or the password prompt when the page is protected
// and the visitor does not carry the password-gate cookie.
func (h *Handlers) ViewPage(c echo.Context) error {
	page, err := h.db.GetPageBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if page == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Page not found")
	}

	cookie, _ := c.Cookie(h.postPass.CookieName())
	if !h.postPass.CheckCookie(page, cookie) {
		return c.Render(http.StatusOK, "page_password", PagePasswordData{
			PageData: h.basePageData(c, page.Title),
			Page:     page,
		})
	}

	return c.Render(http.StatusOK, "page_view", PageViewData{
		PageData:    h.basePageData(c, page.Title),
		Page:        page,
		ContentHTML: template.HTML(page.ContentHTML),
	})
}

// SubmitPassword handles the password prompt form. A correct password issues
// the same gate cookie a magic-link redemption would.
func (h *Handlers) SubmitPassword(c echo.Context) error {
	page, err := h.db.GetPageBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if page == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Page not found")
	}
	if !page.HasPassword() {
		return c.Redirect(http.StatusSeeOther, page.Permalink())
	}

	submitted := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(page.Password)) != 1 {
		return c.Render(http.StatusUnauthorized, "page_password", PagePasswordData{
			PageData: h.basePageData(c, page.Title),
			Page:     page,
			Error:    "Incorrect password.",
		})
	}

	c.SetCookie(h.postPass.NewCookie(page.Password, c.Scheme() == "https"))
	return c.Redirect(http.StatusSeeOther, page.Permalink())
}

// ListPages renders the page management listing.
func (h *Handlers) ListPages(c echo.Context) error {
	pages, err := h.db.ListPageSummaries(c.Request().Context())
	if err != nil {
		return err
	}

	return c.Render(http.StatusOK, "pages_list", HomeData{
		PageData: h.basePageData(c, "Pages"),
		Pages:    pages,
	})
}

// NewPageForm renders the page creation form.
func (h *Handlers) NewPageForm(c echo.Context) error {
	return c.Render(http.StatusOK, "page_form", PageFormData{
		PageData: h.basePageData(c, "New Page"),
		Page:     &models.Page{},
	})
}

// CreatePage handles the page creation form submission.
func (h *Handlers) CreatePage(c echo.Context) error {
	page, err := h.pageFromForm(c, &models.Page{})
	if err != nil {
		h.setFlash(c, "error", err.Error())
		return c.Redirect(http.StatusSeeOther, "/new")
	}

	ctx := c.Request().Context()
	if err := h.db.CreatePage(ctx, page); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			h.setFlash(c, "error", "A page with that slug already exists.")
			return c.Redirect(http.StatusSeeOther, "/new")
		}
		return err
	}

	h.logAdminAction(c, "page.create", &page.ID, page.Title)
	h.setFlash(c, "success", "Page created.")
	return c.Redirect(http.StatusSeeOther, "/pages")
}

// EditPageForm renders the page edit form.
func (h *Handlers) EditPageForm(c echo.Context) error {
	page, err := h.pageFromParam(c)
	if err != nil {
		return err
	}

	return c.Render(http.StatusOK, "page_form", PageFormData{
		PageData: h.basePageData(c, "Edit Page"),
		Page:     page,
	})
}

// UpdatePage handles the page edit form submission.
func (h *Handlers) UpdatePage(c echo.Context) error {
	page, err := h.pageFromParam(c)
	if err != nil {
		return err
	}

	if _, err := h.pageFromForm(c, page); err != nil {
		h.setFlash(c, "error", err.Error())
		return c.Redirect(http.StatusSeeOther, "/edit/"+strconv.FormatInt(page.ID, 10))
	}

	ctx := c.Request().Context()
	if err := h.db.UpdatePage(ctx, page); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			h.setFlash(c, "error", "A page with that slug already exists.")
			return c.Redirect(http.StatusSeeOther, "/edit/"+strconv.FormatInt(page.ID, 10))
		}
		return err
	}

	h.logAdminAction(c, "page.update", &page.ID, page.Title)
	h.setFlash(c, "success", "Page updated.")
	return c.Redirect(http.StatusSeeOther, "/pages")
}

// DeletePage removes a page along with its tokens and usage history.
func (h *Handlers) DeletePage(c echo.Context) error {
	page, err := h.pageFromParam(c)
	if err != nil {
		return err
	}

	if err := h.db.DeletePage(c.Request().Context(), page.ID); err != nil {
		return err
	}

	h.logAdminAction(c, "page.delete", &page.ID, page.Title)
	h.setFlash(c, "success", "Page deleted.")
	return c.Redirect(http.StatusSeeOther, "/pages")
}

// HealthCheck returns server health status.
func (h *Handlers) HealthCheck(c echo.Context) error {
	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// pageFromParam loads the page addressed by the :id route parameter.
func (h *Handlers) pageFromParam(c echo.Context) (*models.Page, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid page ID")
	}

	page, err := h.db.GetPageByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Page not found")
	}
	return page, nil
}

// pageFromForm fills a page from form values and renders its content.
func (h *Handlers) pageFromForm(c echo.Context, page *models.Page) (*models.Page, error) {
	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}

	slug := strings.TrimSpace(c.FormValue("slug"))
	if slug == "" {
		slug = services.Slugify(title)
	} else {
		slug = services.Slugify(slug)
	}
	if slug == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Slug is required")
	}

	content := c.FormValue("content")
	html, err := h.markdown.Render(content)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to render content")
	}

	page.Title = title
	page.Slug = slug
	page.Content = content
	page.ContentHTML = html
	page.Password = c.FormValue("password")

	return page, nil
}

// logAdminAction records an admin action, best-effort.
func (h *Handlers) logAdminAction(c echo.Context, action string, pageID *int64, details string) {
	var userID *int64
	if user := middleware.GetUser(c); user != nil {
		userID = &user.ID
	}
	if err := h.db.LogAdminAction(c.Request().Context(), userID, action, pageID, details, c.RealIP()); err != nil {
		c.Logger().Errorf("failed to log admin action: %v", err)
	}
}
