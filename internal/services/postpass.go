package services

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"magiclink/internal/config"
	"magiclink/internal/models"
)

// PostPassService manages the password-gate cookie that marks a visitor as
// having satisfied a page's password prompt. The cookie value is a keyed
// hash of the page password, so it carries no plaintext and the same
// password always produces the same cookie. A magic-link redemption issues
// the identical cookie the password form would, which is what lets tokens
// bypass the prompt without a parallel access path.
type PostPassService struct {
	secret     []byte
	cookieName string
	domain     string
	ttl        time.Duration
}

// NewPostPassService creates the service. The cookie name is derived from
// the site URL so two instances on the same host do not clobber each other.
func NewPostPassService(cfg *config.Config) *PostPassService {
	siteHash := md5.Sum([]byte(cfg.Site.URL))
	return &PostPassService{
		secret:     []byte(cfg.Security.SecretKey),
		cookieName: "postpass_" + hex.EncodeToString(siteHash[:]),
		domain:     cfg.Security.PostPassCookieDomain,
		ttl:        cfg.Security.PostPassCookieTTL,
	}
}

// CookieName returns the name of the password-gate cookie.
func (s *PostPassService) CookieName() string {
	return s.cookieName
}

// Hash computes the keyed hash of a page password. The result is
// deterministic for a given secret, which the cookie scheme depends on.
func (s *PostPassService) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a submitted plaintext password against a stored hash in
// constant time.
func (s *PostPassService) Verify(plaintext, hash string) bool {
	computed := s.Hash(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// NewCookie builds the password-gate cookie for a page password.
func (s *PostPassService) NewCookie(password string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    s.Hash(password),
		Path:     "/",
		Domain:   s.domain,
		Expires:  time.Now().Add(s.ttl),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// CheckCookie reports whether the given cookie unlocks the page. A page
// without a password is always unlocked; a nil cookie never unlocks a
// protected one.
func (s *PostPassService) CheckCookie(page *models.Page, cookie *http.Cookie) bool {
	if page == nil {
		return false
	}
	if !page.HasPassword() {
		return true
	}
	if cookie == nil {
		return false
	}
	expected := s.Hash(page.Password)
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(expected)) == 1
}
