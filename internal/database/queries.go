package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"magiclink/internal/models"
)

// ErrMetaConflict is returned when a metadata write's version precondition
// is stale, i.e. another writer updated the same list first.
var ErrMetaConflict = errors.New("metadata version conflict")

// User queries

// CreateUser inserts a new user.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}

	user.ID = id
	return nil
}

// GetUserByID retrieves a user by ID, or nil if not found.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username, or nil if not found.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, is_active, created_at, updated_at, last_login_at
		FROM users WHERE username = ? COLLATE NOCASE
	`, username).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUserLastLogin records the time of a successful login.
func (db *DB) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE users SET last_login_at = ? WHERE id = ?",
		time.Now().UTC(), userID)
	return err
}

// CountUsers returns the total number of users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// Page queries

// CreatePage inserts a new page.
func (db *DB) CreatePage(ctx context.Context, page *models.Page) error {
	now := time.Now().UTC()
	page.CreatedAt = now
	page.UpdatedAt = now

	result, err := db.ExecContext(ctx, `
		INSERT INTO pages (slug, title, content, content_html, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, page.Slug, page.Title, page.Content, page.ContentHTML, page.Password, page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get page ID: %w", err)
	}

	page.ID = id
	return nil
}

// GetPageByID retrieves a page by ID, or nil if not found.
func (db *DB) GetPageByID(ctx context.Context, id int64) (*models.Page, error) {
	page := &models.Page{}
	err := db.QueryRowContext(ctx, `
		SELECT id, slug, title, content, content_html, password, created_at, updated_at
		FROM pages WHERE id = ?
	`, id).Scan(
		&page.ID, &page.Slug, &page.Title, &page.Content, &page.ContentHTML,
		&page.Password, &page.CreatedAt, &page.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return page, nil
}

// GetPageBySlug retrieves a page by slug, or nil if not found.
func (db *DB) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	page := &models.Page{}
	err := db.QueryRowContext(ctx, `
		SELECT id, slug, title, content, content_html, password, created_at, updated_at
		FROM pages WHERE slug = ? COLLATE NOCASE
	`, slug).Scan(
		&page.ID, &page.Slug, &page.Title, &page.Content, &page.ContentHTML,
		&page.Password, &page.CreatedAt, &page.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return page, nil
}

// UpdatePage updates an existing page.
func (db *DB) UpdatePage(ctx context.Context, page *models.Page) error {
	page.UpdatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		UPDATE pages SET slug = ?, title = ?, content = ?, content_html = ?, password = ?, updated_at = ?
		WHERE id = ?
	`, page.Slug, page.Title, page.Content, page.ContentHTML, page.Password, page.UpdatedAt, page.ID)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	return nil
}

// DeletePage removes a page. Its metadata rows go with it via cascade.
func (db *DB) DeletePage(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	return err
}

// ListPages returns all pages in enumeration order (ascending id). The
// token-ownership scan and the aggregate audit log both rely on this order
// being stable.
func (db *DB) ListPages(ctx context.Context) ([]models.Page, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, slug, title, content, content_html, password, created_at, updated_at
		FROM pages ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	return scanPages(rows)
}

// ListProtectedPages returns pages that currently carry a password, in
// enumeration order.
func (db *DB) ListProtectedPages(ctx context.Context) ([]models.Page, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, slug, title, content, content_html, password, created_at, updated_at
		FROM pages WHERE password != '' ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list protected pages: %w", err)
	}
	defer rows.Close()

	return scanPages(rows)
}

// ListPageSummaries returns lightweight page rows for listings.
func (db *DB) ListPageSummaries(ctx context.Context) ([]models.PageSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, slug, password != '', updated_at
		FROM pages ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list page summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.PageSummary
	for rows.Next() {
		var s models.PageSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Slug, &s.HasPassword, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanPages(rows *sql.Rows) ([]models.Page, error) {
	var pages []models.Page
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.Title, &p.Content, &p.ContentHTML,
			&p.Password, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Page metadata queries
//
// Token lists and usage lists live here as JSON blobs keyed by a fixed
// meta_key. Every row carries a version stamp; writers pass the version
// they read and a stale precondition is rejected with ErrMetaConflict, so
// two concurrent read-modify-write cycles on the same list cannot silently
// lose an update.

// GetMeta retrieves a metadata value and its version. A missing row returns
// a nil value and version 0.
func (db *DB) GetMeta(ctx context.Context, pageID int64, key string) ([]byte, int64, error) {
	var value string
	var version int64
	err := db.QueryRowContext(ctx, `
		SELECT meta_value, version FROM page_meta WHERE page_id = ? AND meta_key = ?
	`, pageID, key).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get metadata: %w", err)
	}
	return []byte(value), version, nil
}

// SetMeta writes a metadata value, guarded by the version read alongside the
// previous value. Pass version 0 when the row did not exist.
func (db *DB) SetMeta(ctx context.Context, pageID int64, key string, value []byte, version int64) error {
	if version == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO page_meta (page_id, meta_key, meta_value, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
		`, pageID, key, string(value), time.Now().UTC())
		if err != nil {
			// A concurrent writer inserted the row first.
			if isUniqueViolation(err) {
				return ErrMetaConflict
			}
			return fmt.Errorf("failed to insert metadata: %w", err)
		}
		return nil
	}

	result, err := db.ExecContext(ctx, `
		UPDATE page_meta SET meta_value = ?, version = version + 1, updated_at = ?
		WHERE page_id = ? AND meta_key = ? AND version = ?
	`, string(value), time.Now().UTC(), pageID, key, version)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check metadata update: %w", err)
	}
	if affected == 0 {
		return ErrMetaConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// Admin audit queries

// LogAdminAction records an admin action for the audit trail. Failures are
// reported but callers treat them as non-fatal.
func (db *DB) LogAdminAction(ctx context.Context, userID *int64, action string, pageID *int64, details, ipAddress string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO admin_audit (user_id, action, page_id, details, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`, userID, action, pageID, details, ipAddress)
	return err
}
