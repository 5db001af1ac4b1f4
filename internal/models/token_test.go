package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTokens(t *testing.T) {
	t.Parallel()

	t.Run("empty blob is empty list", func(t *testing.T) {
		t.Parallel()
		tokens, err := DecodeTokens(nil)
		require.NoError(t, err)
		assert.Empty(t, tokens)

		tokens, err = DecodeTokens([]byte(`[]`))
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("drops elements without a value", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`[{"value":"","name":"ghost","status":"active"},{"value":"abc","name":"kept","status":"active"}]`)
		tokens, err := DecodeTokens(raw)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "abc", tokens[0].Value)
	})

	t.Run("repairs unknown status to revoked", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`[{"value":"abc","name":"odd","status":"paused"}]`)
		tokens, err := DecodeTokens(raw)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, TokenRevoked, tokens[0].Status)
		assert.False(t, tokens[0].IsActive())
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeTokens([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestEncodeTokensNilIsEmptyArray(t *testing.T) {
	t.Parallel()

	encoded, err := EncodeTokens(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(encoded))
}

func TestDecodeUsageDropsIncompleteEntries(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{"token":"","token_name":"a","ip":"1.2.3.4","location":"x","datetime":"2026-01-02 03:04:05"},
		{"token":"t1","token_name":"b","ip":"1.2.3.4","location":"x","datetime":""},
		{"token":"t2","token_name":"c","ip":"1.2.3.4","location":"x","datetime":"2026-01-02 03:04:05"}
	]`)
	entries, err := DecodeUsage(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t2", entries[0].Token)
}

func TestUsageEntryDate(t *testing.T) {
	t.Parallel()

	e := UsageEntry{Timestamp: "2026-08-31 23:59:59"}
	assert.Equal(t, "2026-08-31", e.Date())

	short := UsageEntry{Timestamp: "bad"}
	assert.Equal(t, "bad", short.Date())
}

func TestLogFilterMatches(t *testing.T) {
	t.Parallel()

	record := LogRecord{
		PageID:    42,
		PageTitle: "Secret Plans",
		UsageEntry: UsageEntry{
			Token:     "tok-1",
			TokenName: "newsletter",
			IP:        "203.0.113.9",
			Location:  "Lisbon, Lisboa, Portugal",
			Timestamp: "2026-08-15 10:30:00",
		},
	}

	t.Run("empty filter matches everything", func(t *testing.T) {
		t.Parallel()
		assert.True(t, LogFilter{}.Matches(record))
	})

	t.Run("page id compares against decimal form", func(t *testing.T) {
		t.Parallel()
		assert.True(t, LogFilter{PageID: "42"}.Matches(record))
		assert.False(t, LogFilter{PageID: "7"}.Matches(record))
	})

	t.Run("all constraints are ANDed", func(t *testing.T) {
		t.Parallel()
		f := LogFilter{TokenName: "newsletter", IP: "203.0.113.9"}
		assert.True(t, f.Matches(record))

		f.IP = "198.51.100.1"
		assert.False(t, f.Matches(record))
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		t.Parallel()
		assert.True(t, LogFilter{DateFrom: "2026-08-15", DateTo: "2026-08-15"}.Matches(record))
		assert.True(t, LogFilter{DateFrom: "2026-08-01", DateTo: "2026-08-31"}.Matches(record))
		assert.False(t, LogFilter{DateFrom: "2026-08-16"}.Matches(record))
		assert.False(t, LogFilter{DateTo: "2026-08-14"}.Matches(record))
	})
}
