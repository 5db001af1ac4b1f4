package models

import "time"

// Page represents a content page. A page with a non-empty Password is gated
// behind the password prompt; visitors need the password cookie (set either
// by the prompt form or by redeeming a magic link) to see its content.
type Page struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Content     string    `json:"-"`
	ContentHTML string    `json:"-"`
	Password    string    `json:"-"` // Plaintext gate password, '' = unprotected
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPassword reports whether the page is password protected.
func (p *Page) HasPassword() bool {
	return p.Password != ""
}

// Permalink returns the token-free canonical URL path for the page.
func (p *Page) Permalink() string {
	return "/p/" + p.Slug
}

// PageSummary is a lightweight page row for listings.
type PageSummary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	HasPassword bool      `json:"has_password"`
	UpdatedAt   time.Time `json:"updated_at"`
}
