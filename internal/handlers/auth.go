package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"magiclink/internal/services"
)

// LoginData is the template data for the login page.
type LoginData struct {
	PageData
	Error    string
	Next     string
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, "login", LoginData{
		PageData: h.basePageData(c, "Login"),
		Next:     c.QueryParam("next"),
	})
}

// Login handles the login form submission.
func (h *Handlers) Login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	next := c.FormValue("next")

	clientIP := c.RealIP()
	allowed, remaining := h.loginLimiter.Check(clientIP)
	if !allowed {
		return c.Render(http.StatusTooManyRequests, "login", LoginData{
			PageData: h.basePageData(c, "Login"),
			Error:    "Too many login attempts. Please try again in " + formatDuration(remaining) + ".",
			Next:     next,
			Username: username,
		})
	}

	if username == "" || password == "" {
		return c.Render(http.StatusBadRequest, "login", LoginData{
			PageData: h.basePageData(c, "Login"),
			Error:    "Username and password are required.",
			Next:     next,
			Username: username,
		})
	}

	user, err := h.authService.Authenticate(c.Request().Context(), username, password)
	if err != nil {
		h.loginLimiter.RecordFailure(clientIP)

		errorMsg := "Invalid username or password."
		if errors.Is(err, services.ErrUserInactive) {
			errorMsg = "Your account has been deactivated."
		}

		return c.Render(http.StatusUnauthorized, "login", LoginData{
			PageData: h.basePageData(c, "Login"),
			Error:    errorMsg,
			Next:     next,
			Username: username,
		})
	}

	h.loginLimiter.RecordSuccess(clientIP)

	if err := h.sessionManager.SetUserID(c, user.ID); err != nil {
		return c.Render(http.StatusInternalServerError, "login", LoginData{
			PageData: h.basePageData(c, "Login"),
			Error:    "Failed to create session. Please try again.",
			Next:     next,
			Username: username,
		})
	}

	redirectURL := "/"
	if next != "" && isValidRedirect(next) {
		redirectURL = next
	}

	return c.Redirect(http.StatusSeeOther, redirectURL)
}

// Logout handles user logout.
func (h *Handlers) Logout(c echo.Context) error {
	h.sessionManager.ClearSession(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

// isValidRedirect checks if a redirect URL is safe.
func isValidRedirect(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "/") {
		return false
	}
	if strings.HasPrefix(rawURL, "//") {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return false
	}
	if strings.Contains(rawURL, "\\") {
		return false
	}
	if parsed.Path == "/login" || parsed.Path == "/logout" {
		return false
	}

	return true
}

// formatDuration formats a lockout duration for display.
func formatDuration(d time.Duration) string {
	minutes := int(d.Round(time.Minute).Minutes())
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
