// Package pagination provides opaque keyset cursors for walking append-only
// feeds newest first. Cursors encode the last seen row ID so a page boundary
// stays stable while new rows are appended above it.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Encode returns an opaque cursor pointing just below the given row ID.
func Encode(id int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// Decode parses an opaque cursor. An empty cursor decodes to 0, meaning
// "start at the newest row".
func Decode(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cursor")
	}
	return id, nil
}

// Page trims a slice fetched with limit+1 rows down to the requested page.
// It returns the page, the cursor for the next page, and whether more rows
// remain. lastID extracts the row ID used as the next page boundary.
func Page[T any](items []T, limit int, lastID func(T) int64) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, Encode(lastID(items[len(items)-1])), true
}
