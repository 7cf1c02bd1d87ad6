// Package journal keeps a write-only audit trail of session lifecycle
// outcomes. Sessions are never restored from it; the coordinator stays
// in-memory and the journal exists so an operator can answer "what happened
// to session X" after the session itself is gone.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Entry event kinds.
const (
	EventSessionCreated   = "session_created"
	EventTransactionReady = "transaction_ready"
	EventThresholdMet     = "threshold_met"
	EventExecuted         = "executed"
	EventExpired          = "expired"
	EventCancelled        = "cancelled"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded lifecycle outcome.
type Entry struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"sessionId"`
	Event         string          `json:"event"`
	TxType        string          `json:"txType,omitempty"`
	Checksum      string          `json:"checksum,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ErrBadCursor reports a cursor that does not decode.
var ErrBadCursor = errors.New("invalid cursor")

// Store persists and queries journal entries. Queries return newest first.
// Recent pages through the coordinator-wide feed with an opaque cursor; an
// empty cursor starts at the newest entry and an empty next cursor means the
// feed is exhausted.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	BySession(ctx context.Context, sessionID string, limit int) ([]*Entry, error)
	Recent(ctx context.Context, limit int, cursor string) (entries []*Entry, next string, err error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
