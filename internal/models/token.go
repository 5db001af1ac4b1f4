package models

import (
	"encoding/json"
	"strconv"
)

// TokenStatus is the lifecycle state of a magic-link token. The only legal
// transition is active -> revoked; there is no un-revoke.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
)

// IsValid checks if the status is a known value.
func (s TokenStatus) IsValid() bool {
	return s == TokenActive || s == TokenRevoked
}

// Token is a magic-link credential attached to exactly one page. Tokens are
// never deleted from the list; revocation flips the status and is permanent.
type Token struct {
	Value  string      `json:"value"`
	Name   string      `json:"name"`
	Status TokenStatus `json:"status"`
}

// IsActive reports whether the token can still be redeemed.
func (t *Token) IsActive() bool {
	return t.Status == TokenActive
}

// TimestampLayout is the wire format for usage timestamps: local time at
// second precision, zero-padded so the date prefix compares correctly as a
// string.
const TimestampLayout = "2006-01-02 15:04:05"

// UsageEntry records one successful magic-link redemption. TokenName is a
// snapshot taken at redemption time, so history stays attributed after the
// token is revoked.
type UsageEntry struct {
	Token     string `json:"token"`
	TokenName string `json:"token_name"`
	IP        string `json:"ip"`
	Location  string `json:"location"`
	Timestamp string `json:"datetime"`
}

// Date returns the YYYY-MM-DD portion of the timestamp.
func (u *UsageEntry) Date() string {
	if len(u.Timestamp) < 10 {
		return u.Timestamp
	}
	return u.Timestamp[:10]
}

// DecodeTokens parses a stored token list. Elements without a value are
// dropped; an unrecognized status is repaired to revoked, which is the safe
// reading for a credential of unknown state. A nil or empty blob is an empty
// list.
func DecodeTokens(raw []byte) ([]Token, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tokens []Token
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, err
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t.Value == "" {
			continue
		}
		if !t.Status.IsValid() {
			t.Status = TokenRevoked
		}
		out = append(out, t)
	}
	return out, nil
}

// EncodeTokens serializes a token list for metadata storage.
func EncodeTokens(tokens []Token) ([]byte, error) {
	if tokens == nil {
		tokens = []Token{}
	}
	return json.Marshal(tokens)
}

// DecodeUsage parses a stored usage list, dropping elements without a token
// value or timestamp.
func DecodeUsage(raw []byte) ([]UsageEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []UsageEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Token == "" || e.Timestamp == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// EncodeUsage serializes a usage list for metadata storage.
func EncodeUsage(entries []UsageEntry) ([]byte, error) {
	if entries == nil {
		entries = []UsageEntry{}
	}
	return json.Marshal(entries)
}

// LogRecord is a usage entry denormalized with its owning page for the
// unified audit view.
type LogRecord struct {
	PageID    int64  `json:"page_id"`
	PageTitle string `json:"page_title"`
	UsageEntry
}

// LogFilter is an AND-conjunction of optional constraints on log records.
// Empty fields impose no restriction. The date range is inclusive on both
// ends and compares lexicographically on the YYYY-MM-DD prefix.
type LogFilter struct {
	PageID    string
	PageTitle string
	Token     string
	TokenName string
	IP        string
	Location  string
	DateFrom  string
	DateTo    string
}

// Matches reports whether the record satisfies every set constraint.
func (f LogFilter) Matches(r LogRecord) bool {
	if f.PageID != "" && strconv.FormatInt(r.PageID, 10) != f.PageID {
		return false
	}
	if f.PageTitle != "" && r.PageTitle != f.PageTitle {
		return false
	}
	if f.Token != "" && r.Token != f.Token {
		return false
	}
	if f.TokenName != "" && r.TokenName != f.TokenName {
		return false
	}
	if f.IP != "" && r.IP != f.IP {
		return false
	}
	if f.Location != "" && r.Location != f.Location {
		return false
	}
	date := r.Date()
	if f.DateFrom != "" && date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && date > f.DateTo {
		return false
	}
	return true
}

// LogFacets holds the sorted distinct values present in a log set, used to
// populate the filter dropdowns.
type LogFacets struct {
	PageIDs    []string `json:"page_ids"`
	PageTitles []string `json:"page_titles"`
	Tokens     []string `json:"tokens"`
	TokenNames []string `json:"token_names"`
	IPs        []string `json:"ips"`
	Locations  []string `json:"locations"`
	Dates      []string `json:"dates"`
}
