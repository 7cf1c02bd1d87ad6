package session

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
)

// ErrParticipantNotFound is returned by participant mutators for unknown
// participant IDs.
var ErrParticipantNotFound = &Error{Code: CodeInvalidRequest, Message: "participant not found"}

// InsertResult is the outcome of InsertSignature.
type InsertResult int

const (
	// SignatureInserted means the signature is new and was stored.
	SignatureInserted InsertResult = iota
	// SignatureIdentical means the key already submitted these exact bytes.
	SignatureIdentical
	// SignatureConflict means the key already submitted different bytes.
	SignatureConflict
	// SignatureAtThreshold means the threshold was already reached; the
	// signature was not stored.
	SignatureAtThreshold
)

// entry owns one live session. Writers serialize on mu and publish a fresh
// deep-copied snapshot; readers load the snapshot without locking.
type entry struct {
	mu   sync.Mutex
	live *Session
	snap atomic.Pointer[Session]
}

func (e *entry) publish() *Session {
	s := e.live.Clone()
	e.snap.Store(s)
	return s
}

// Store is the authoritative in-memory session map. Every mutator is atomic
// and returns the canonical post-mutation snapshot, so callers never need a
// second lookup to build a broadcast. Snapshots are deep copies: treat them
// as immutable.
//
// The store is pure state. It runs no timers and emits no events.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create inserts a new session. The session is copied in; the caller's
// pointer stays the caller's.
func (st *Store) Create(s *Session) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.entries[s.ID]; exists {
		return nil, Errf(CodeInternal, "session %s already exists", s.ID)
	}

	e := &entry{live: s.Clone()}
	if e.live.Participants == nil {
		e.live.Participants = make(map[string]*Participant)
	}
	if e.live.Signatures == nil {
		e.live.Signatures = make(map[string][]byte)
	}
	if e.live.Rejections == nil {
		e.live.Rejections = make(map[string]string)
	}
	st.entries[s.ID] = e
	return e.publish(), nil
}

// Get returns the latest snapshot without taking the write lock.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.snap.Load(), true
}

// List returns a snapshot of every session.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.entries))
	for _, e := range st.entries {
		out = append(out, e.snap.Load())
	}
	return out
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

// ExpiredIDs returns the IDs of sessions whose coarse deadline has passed,
// regardless of status. The cleanup sweep feeds these to the manager.
func (st *Store) ExpiredIDs(now time.Time) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []string
	for id, e := range st.entries {
		if s := e.snap.Load(); s != nil && s.ExpiresAt.Before(now) {
			out = append(out, id)
		}
	}
	return out
}

// Delete removes a session. Reports whether it existed.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.entries[id]
	delete(st.entries, id)
	return ok
}

// mutate runs fn on the live session under the per-entry lock and publishes
// the new snapshot.
func (st *Store) mutate(id string, fn func(*Session) error) (*Session, error) {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.live); err != nil {
		return nil, err
	}
	return e.publish(), nil
}

// PutParticipant inserts or replaces a participant record.
func (st *Store) PutParticipant(id string, p *Participant) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		pc := *p
		pc.Warnings = append([]string(nil), p.Warnings...)
		s.Participants[pc.ID] = &pc
		return nil
	})
}

// SetParticipantReady records the public key and marks the participant
// ready, replacing any prior warnings.
func (st *Store) SetParticipantReady(id, participantID, publicKey string, warnings []string) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		p, ok := s.Participants[participantID]
		if !ok {
			return ErrParticipantNotFound
		}
		p.PublicKey = publicKey
		p.Status = ParticipantReady
		p.Warnings = append([]string(nil), warnings...)
		p.LastSeen = time.Now()
		return nil
	})
}

// SetParticipantStatus moves a participant to the given status.
func (st *Store) SetParticipantStatus(id, participantID string, status ParticipantStatus) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		p, ok := s.Participants[participantID]
		if !ok {
			return ErrParticipantNotFound
		}
		p.Status = status
		p.LastSeen = time.Now()
		return nil
	})
}

// RemoveParticipant drops a participant record. Removing an absent
// participant is a no-op, which makes the disconnect reaper idempotent.
func (st *Store) RemoveParticipant(id, participantID string) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		delete(s.Participants, participantID)
		return nil
	})
}

// TransactionRecord carries everything InjectTransaction derives from the
// frozen bytes.
type TransactionRecord struct {
	Frozen         []byte
	Details        *decoder.Details
	Metadata       map[string]string
	MetadataReport *decoder.MetadataReport
	ContractABI    string
	TxExpiresAt    *time.Time
}

// SetTransaction stores the frozen payload and its decoded artifacts. The
// frozen bytes are immutable: a second call fails.
func (st *Store) SetTransaction(id string, rec TransactionRecord) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		if len(s.Frozen) > 0 {
			return Errf(CodeInvalidRequest, "session %s already has a transaction", id)
		}
		s.Frozen = append([]byte(nil), rec.Frozen...)
		s.Details = rec.Details
		s.Metadata = rec.Metadata
		s.MetadataReport = rec.MetadataReport
		s.ContractABI = rec.ContractABI
		if rec.TxExpiresAt != nil {
			t := *rec.TxExpiresAt
			s.TxExpiresAt = &t
		}
		return nil
	})
}

// InsertSignature stores a signature for a public key if the key has not
// signed and the threshold is not yet reached. The returned snapshot always
// reflects the post-call state; the result says what happened.
func (st *Store) InsertSignature(id, publicKey string, signature []byte) (*Session, InsertResult, error) {
	result := SignatureInserted
	snap, err := st.mutate(id, func(s *Session) error {
		if existing, ok := s.Signatures[publicKey]; ok {
			if bytes.Equal(existing, signature) {
				result = SignatureIdentical
			} else {
				result = SignatureConflict
			}
			return nil
		}
		if len(s.Signatures) >= s.Threshold {
			result = SignatureAtThreshold
			return nil
		}
		s.Signatures[publicKey] = append([]byte(nil), signature...)
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	return snap, result, nil
}

// AddRejection records a participant's refusal to sign, keyed by public key.
func (st *Store) AddRejection(id, publicKey, reason string) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		s.Rejections[publicKey] = reason
		return nil
	})
}

// Transition moves the session status. When from statuses are given the
// current status must be one of them; the move must also follow the state
// machine. Terminal states never transition.
func (st *Store) Transition(id string, to Status, from ...Status) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		cur := s.Status
		if len(from) > 0 {
			ok := false
			for _, f := range from {
				if cur == f {
					ok = true
					break
				}
			}
			if !ok {
				return Errf(CodeInternal, "session %s is %s, not %v", id, cur, from)
			}
		}
		if !cur.CanTransition(to) {
			return Errf(CodeInternal, "session %s cannot transition %s to %s", id, cur, to)
		}
		s.Status = to
		return nil
	})
}

// SetReceipt stores the execution receipt.
func (st *Store) SetReceipt(id string, receipt *chain.Receipt) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		s.Receipt = receipt
		return nil
	})
}

// SetCancelReason records why a session was cancelled.
func (st *Store) SetCancelReason(id, reason string) (*Session, error) {
	return st.mutate(id, func(s *Session) error {
		s.CancelReason = reason
		return nil
	})
}
