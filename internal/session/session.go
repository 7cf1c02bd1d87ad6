// Package session owns multi-party signing sessions end to end: the session
// and participant state machines, the authoritative in-memory store, and the
// manager that mediates every mutation and emits the resulting events.
//
// Flow:
//  1. Coordinator creates a session (threshold, eligible keys, PIN)
//  2. Participants authenticate and mark themselves ready with a public key
//  3. Coordinator injects the frozen transaction → decoded and broadcast
//  4. Participants submit signatures; each is verified against the frozen bytes
//  5. Threshold met → the transaction is submitted to the network
//  6. Receipt stored, session completed and destroyed
package session

import (
	"encoding/base64"
	"sort"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
)

// Status is the session state.
type Status string

const (
	StatusWaiting             Status = "waiting"              // created, no transaction yet
	StatusTransactionReceived Status = "transaction-received" // frozen tx injected
	StatusSigning             Status = "signing"              // at least one signature accepted
	StatusExecuting           Status = "executing"            // threshold met, submitting
	StatusCompleted           Status = "completed"            // receipt received
	StatusExpired             Status = "expired"              // deadline passed
	StatusCancelled           Status = "cancelled"            // coordinator or policy cancel
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to next follows the state machine.
// Executing is deliberately not preempted by expiry: a transaction already
// on its way to the network must resolve to completed or cancelled.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusTransactionReceived || next == StatusExpired || next == StatusCancelled
	case StatusTransactionReceived:
		return next == StatusSigning || next == StatusExpired || next == StatusCancelled
	case StatusSigning:
		return next == StatusExecuting || next == StatusExpired || next == StatusCancelled
	case StatusExecuting:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// ParticipantStatus is the per-participant state.
type ParticipantStatus string

const (
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantReady        ParticipantStatus = "ready"
	ParticipantReviewing    ParticipantStatus = "reviewing"
	ParticipantSigning      ParticipantStatus = "signing"
	ParticipantSigned       ParticipantStatus = "signed"
	ParticipantRejected     ParticipantStatus = "rejected"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// Roles carried on AUTH. Coordinators observe; participants count toward
// readiness and sign.
const (
	RoleParticipant = "participant"
	RoleCoordinator = "coordinator"
)

// Participant is one authenticated connection bound to a session.
type Participant struct {
	ID          string            `json:"participantId"`
	Role        string            `json:"role"`
	Label       string            `json:"label,omitempty"`
	Status      ParticipantStatus `json:"status"`
	PublicKey   string            `json:"publicKey,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	ConnectedAt time.Time         `json:"connectedAt"`
	LastSeen    time.Time         `json:"lastSeen"`
}

// Session is the authoritative record. Mutated only through Store mutators
// driven by the Manager; everything handed out is a snapshot.
type Session struct {
	ID                   string
	PINHash              []byte // SHA-256; empty slice for PIN-less sessions
	Label                string
	Status               Status
	Threshold            int
	EligibleKeys         []string // normalized, deduplicated
	ExpectedParticipants int

	CreatedAt   time.Time
	ExpiresAt   time.Time
	TxExpiresAt *time.Time

	Frozen         []byte
	Details        *decoder.Details
	Metadata       map[string]string
	MetadataReport *decoder.MetadataReport
	ContractABI    string

	Participants map[string]*Participant // by participant ID
	Signatures   map[string][]byte       // by normalized public key
	Rejections   map[string]string       // normalized public key → reason

	Receipt      *chain.Receipt
	CancelReason string
}

// Stats is the participant/signature summary carried on broadcasts.
type Stats struct {
	Connected           int `json:"connected"`
	Ready               int `json:"ready"`
	Expected            int `json:"expected"`
	SignaturesCollected int `json:"signaturesCollected"`
	SignaturesRequired  int `json:"signaturesRequired"`
}

// Stats summarizes the session. Only participant-role records count; a
// participant stays "ready" through the later signing phases.
func (s *Session) Stats() Stats {
	st := Stats{
		Expected:            s.ExpectedParticipants,
		SignaturesCollected: len(s.Signatures),
		SignaturesRequired:  s.Threshold,
	}
	for _, p := range s.Participants {
		if p.Role != RoleParticipant {
			continue
		}
		if p.Status != ParticipantDisconnected {
			st.Connected++
		}
		switch p.Status {
		case ParticipantReady, ParticipantReviewing, ParticipantSigning, ParticipantSigned:
			st.Ready++
		}
	}
	return st
}

// AllReady reports whether enough participants have marked ready.
func (s *Session) AllReady() bool {
	return s.Stats().Ready >= s.ExpectedParticipants
}

// Eligible reports whether a normalized public key may sign.
func (s *Session) Eligible(key string) bool {
	for _, k := range s.EligibleKeys {
		if k == key {
			return true
		}
	}
	return false
}

// PotentialSigners counts collected signatures plus eligible keys that have
// neither signed nor rejected. When it drops below the threshold the session
// can no longer execute.
func (s *Session) PotentialSigners() int {
	n := len(s.Signatures)
	for _, k := range s.EligibleKeys {
		if _, signed := s.Signatures[k]; signed {
			continue
		}
		if _, rejected := s.Rejections[k]; rejected {
			continue
		}
		n++
	}
	return n
}

// Clone deep-copies the session. Details, MetadataReport and Receipt are
// immutable once set and are shared, not copied.
func (s *Session) Clone() *Session {
	cp := *s

	cp.PINHash = append([]byte(nil), s.PINHash...)
	cp.EligibleKeys = append([]string(nil), s.EligibleKeys...)
	cp.Frozen = append([]byte(nil), s.Frozen...)

	if s.TxExpiresAt != nil {
		t := *s.TxExpiresAt
		cp.TxExpiresAt = &t
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}

	cp.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		pc := *p
		pc.Warnings = append([]string(nil), p.Warnings...)
		cp.Participants[id] = &pc
	}

	cp.Signatures = make(map[string][]byte, len(s.Signatures))
	for k, v := range s.Signatures {
		cp.Signatures[k] = append([]byte(nil), v...)
	}

	cp.Rejections = make(map[string]string, len(s.Rejections))
	for k, v := range s.Rejections {
		cp.Rejections[k] = v
	}

	return &cp
}

// ParticipantView is the participant summary inside SessionInfo.
type ParticipantView struct {
	ParticipantID string            `json:"participantId"`
	Role          string            `json:"role"`
	Label         string            `json:"label,omitempty"`
	Status        ParticipantStatus `json:"status"`
	PublicKey     string            `json:"publicKey,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// FrozenTransaction wraps the base64 payload on the wire.
type FrozenTransaction struct {
	Base64 string `json:"base64"`
}

// SessionInfo is the wire-facing snapshot sent on AUTH_SUCCESS and returned
// by the admin API. The PIN hash never leaves the store.
type SessionInfo struct {
	SessionID            string                  `json:"sessionId"`
	Status               Status                  `json:"status"`
	Label                string                  `json:"label,omitempty"`
	Threshold            int                     `json:"threshold"`
	EligiblePublicKeys   []string                `json:"eligiblePublicKeys"`
	ExpectedParticipants int                     `json:"expectedParticipants"`
	CreatedAt            time.Time               `json:"createdAt"`
	ExpiresAt            time.Time               `json:"expiresAt"`
	TxExpiresAt          *time.Time              `json:"txExpiresAt,omitempty"`
	Stats                Stats                   `json:"stats"`
	Participants         []ParticipantView       `json:"participants"`
	TxDetails            *decoder.Details        `json:"txDetails,omitempty"`
	FrozenTransaction    *FrozenTransaction      `json:"frozenTransaction,omitempty"`
	Metadata             map[string]string       `json:"metadata,omitempty"`
	MetadataReport       *decoder.MetadataReport `json:"metadataReport,omitempty"`
	ContractInterface    string                  `json:"contractInterface,omitempty"`
	Receipt              *chain.Receipt          `json:"receipt,omitempty"`
}

// Info projects a snapshot into its wire form. Participants are ordered by
// connection time so repeated reads render stably.
func (s *Session) Info() *SessionInfo {
	info := &SessionInfo{
		SessionID:            s.ID,
		Status:               s.Status,
		Label:                s.Label,
		Threshold:            s.Threshold,
		EligiblePublicKeys:   append([]string(nil), s.EligibleKeys...),
		ExpectedParticipants: s.ExpectedParticipants,
		CreatedAt:            s.CreatedAt,
		ExpiresAt:            s.ExpiresAt,
		TxExpiresAt:          s.TxExpiresAt,
		Stats:                s.Stats(),
		Participants:         make([]ParticipantView, 0, len(s.Participants)),
		TxDetails:            s.Details,
		Metadata:             s.Metadata,
		MetadataReport:       s.MetadataReport,
		ContractInterface:    s.ContractABI,
		Receipt:              s.Receipt,
	}
	if len(s.Frozen) > 0 {
		info.FrozenTransaction = &FrozenTransaction{
			Base64: base64.StdEncoding.EncodeToString(s.Frozen),
		}
	}
	for _, p := range s.Participants {
		info.Participants = append(info.Participants, ParticipantView{
			ParticipantID: p.ID,
			Role:          p.Role,
			Label:         p.Label,
			Status:        p.Status,
			PublicKey:     p.PublicKey,
			Warnings:      p.Warnings,
		})
	}
	sort.Slice(info.Participants, func(i, j int) bool {
		a := s.Participants[info.Participants[i].ParticipantID]
		b := s.Participants[info.Participants[j].ParticipantID]
		if !a.ConnectedAt.Equal(b.ConnectedAt) {
			return a.ConnectedAt.Before(b.ConnectedAt)
		}
		return info.Participants[i].ParticipantID < info.Participants[j].ParticipantID
	})
	return info
}
