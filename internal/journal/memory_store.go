package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/pagination"
)

// MemoryStore implements Store with a bounded in-memory ring. The default
// store in development; older entries fall off once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []*Entry // oldest first
	nextID   atomic.Int64
	capacity int
}

// NewMemoryStore creates an in-memory store keeping the last capacity
// entries. Non-positive capacity falls back to 1000.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	cp.ID = s.nextID.Add(1)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, &cp)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return nil
}

func (s *MemoryStore) BySession(_ context.Context, sessionID string, limit int) ([]*Entry, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].SessionID == sessionID {
			cp := *s.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int, cursor string) ([]*Entry, string, error) {
	limit = clampLimit(limit)
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", ErrBadCursor
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Fetch one past the page to learn whether more entries remain.
	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit+1; i-- {
		if before > 0 && s.entries[i].ID >= before {
			continue
		}
		cp := *s.entries[i]
		result = append(result, &cp)
	}
	page, next, _ := pagination.Page(result, limit, func(e *Entry) int64 { return e.ID })
	return page, next, nil
}
