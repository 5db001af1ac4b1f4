package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"magiclink/internal/services"
)

// Query parameter carrying the magic-link token.
const magicTokenParam = "magic_token"

// MagicToken intercepts requests carrying a magic-link token. When the token
// resolves to an active credential on a password-protected page, the visitor
// receives the same password-gate cookie the password form would issue, the
// redemption is recorded, and the request is redirected to the owning page.
// Every other case falls through to normal handling: a missing, unknown, or
// revoked token and a page whose password was since cleared all look
// identical to having no token at all.
func MagicToken(tokens *services.TokenService, postpass *services.PostPassService, usage *services.UsageService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value := c.QueryParam(magicTokenParam)
			if value == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			page, token, err := tokens.FindOwningItem(ctx, value)
			if err != nil {
				c.Logger().Errorf("magic token lookup error: %v", err)
				return next(c)
			}
			if page == nil {
				return next(c)
			}

			// A token on a page that no longer has a password grants
			// nothing; the page is open anyway.
			if !page.HasPassword() {
				return next(c)
			}

			cookie := postpass.NewCookie(page.Password, c.Scheme() == "https")
			c.SetCookie(cookie)

			// Usage recording is best-effort; the visitor already has
			// the cookie.
			if _, err := usage.Record(ctx, page, token, ClientIP(c)); err != nil {
				c.Logger().Errorf("failed to record magic token usage: %v", err)
			}

			return c.Redirect(http.StatusFound, page.Permalink())
		}
	}
}

// ClientIP extracts the client address for the usage log. Proxy headers are
// consulted first and are spoofable; the log treats the result as
// best-effort data, not an identity.
func ClientIP(c echo.Context) string {
	r := c.Request()

	if ip := strings.TrimSpace(r.Header.Get("Client-IP")); ip != "" {
		return ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
