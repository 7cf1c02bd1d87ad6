package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/idgen"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/retry"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/syncutil"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/traces"
)

// Defaults for Policy fields left zero.
const (
	DefaultSessionTimeout  = 15 * time.Minute
	DefaultMaxSessions     = 1000
	DefaultReconnectWindow = 60 * time.Second
)

var defaultRetryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Policy holds the manager's operational knobs. The zero value is usable;
// zero fields take the defaults above.
type Policy struct {
	// SessionTimeout is the default lifetime for sessions created without
	// an explicit timeout.
	SessionTimeout time.Duration
	// MaxSessions caps concurrently live sessions.
	MaxSessions int
	// ReconnectWindow is how long a disconnected participant's record is
	// retained before it is reaped.
	ReconnectWindow time.Duration
	// RetryBackoff is the wait before each execution retry. Total attempts
	// is len(RetryBackoff)+1.
	RetryBackoff []time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.SessionTimeout <= 0 {
		p.SessionTimeout = DefaultSessionTimeout
	}
	if p.MaxSessions <= 0 {
		p.MaxSessions = DefaultMaxSessions
	}
	if p.ReconnectWindow <= 0 {
		p.ReconnectWindow = DefaultReconnectWindow
	}
	if len(p.RetryBackoff) == 0 {
		p.RetryBackoff = defaultRetryBackoff
	}
	return p
}

// TimerService is the slice of the timer controller the manager needs.
type TimerService interface {
	ScheduleOnce(name string, delay time.Duration, fn func()) string
	ScheduleInterval(name string, period time.Duration, fn func()) string
	Cancel(name string) bool
	CancelByPrefix(prefix string) int
	CancelAll() int
}

// Manager drives the session lifecycle: creation, participant auth,
// transaction injection, signature collection, execution, and teardown.
// All state lives in the Store; all timing goes through the TimerService;
// everything observable is announced through the Sink.
//
// Operations on the same session are serialized by a keyed lock, so
// mutators see a consistent session and events are emitted in order.
type Manager struct {
	store    *Store
	decoder  *decoder.Decoder
	timers   TimerService
	verifier chain.Verifier
	network  chain.Network
	sink     Sink
	logger   *slog.Logger
	policy   Policy

	locks     syncutil.CtxKeyedMutex
	quit      chan struct{}
	closeOnce sync.Once
}

// NewManager wires a manager from its collaborators.
func NewManager(store *Store, dec *decoder.Decoder, timers TimerService, verifier chain.Verifier, network chain.Network, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		decoder:  dec,
		timers:   timers,
		verifier: verifier,
		network:  network,
		logger:   logger,
		policy:   Policy{}.withDefaults(),
		quit:     make(chan struct{}),
	}
}

// WithSink sets the event sink. Use a MultiSink to fan out.
func (m *Manager) WithSink(s Sink) *Manager {
	m.sink = s
	return m
}

// WithPolicy overrides the operational policy.
func (m *Manager) WithPolicy(p Policy) *Manager {
	m.policy = p.withDefaults()
	return m
}

// Timer naming scheme. Every per-session timer shares the
// "session:<id>:" prefix so teardown can cancel them in one call.
func expiryTimerName(id string) string   { return "session:" + id + ":expiry" }
func txExpiryTimerName(id string) string { return "session:" + id + ":tx-expiry" }
func reapTimerName(id, pid string) string {
	return "session:" + id + ":reap:" + pid
}
func sessionTimerPrefix(id string) string { return "session:" + id + ":" }

const cleanupTimerName = "store:cleanup"

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if m.sink != nil {
		m.sink.OnSessionEvent(ev)
	}
}

func hashPIN(pin string) []byte {
	h := sha256.Sum256([]byte(pin))
	return h[:]
}

// pinMatches compares in constant time so response timing does not leak
// how much of the PIN was right.
func pinMatches(hash []byte, pin string) bool {
	h := sha256.Sum256([]byte(pin))
	return subtle.ConstantTimeCompare(hash, h[:]) == 1
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		n := chain.NormalizeKey(k)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// statusError maps a session's state to the wire error a caller should see
// when the method they attempted is no longer valid.
func statusError(s *Session) *Error {
	switch s.Status {
	case StatusExpired:
		return Errf(CodeSessionExpired, "session %s has expired", s.ID)
	case StatusCancelled:
		return Errf(CodeSessionCancelled, "session %s was cancelled", s.ID)
	default:
		return Errf(CodeNotAccepting, "session %s is %s", s.ID, s.Status)
	}
}

// CreateParams are the inputs for a new signing session.
type CreateParams struct {
	PIN                  string
	Label                string
	Threshold            int
	EligibleKeys         []string
	ExpectedParticipants int
	Timeout              time.Duration
}

// Create validates params, stores the session, and arms its expiry timer.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*SessionInfo, error) {
	_, span := traces.StartSpan(ctx, "session.create")
	defer span.End()

	keys := normalizeKeys(p.EligibleKeys)
	if len(keys) == 0 {
		return nil, Errf(CodeInvalidRequest, "at least one eligible public key is required")
	}
	if p.Threshold < 1 {
		return nil, Errf(CodeInvalidRequest, "threshold must be at least 1")
	}
	if p.Threshold > len(keys) {
		return nil, Errf(CodeInvalidRequest, "threshold %d exceeds %d eligible keys", p.Threshold, len(keys))
	}
	expected := p.ExpectedParticipants
	if expected == 0 {
		expected = p.Threshold
	}
	if expected < 1 || expected > len(keys) {
		return nil, Errf(CodeInvalidRequest, "expected participants must be between 1 and %d", len(keys))
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = m.policy.SessionTimeout
	}
	if m.store.Count() >= m.policy.MaxSessions {
		return nil, Errf(CodeSessionLimit, "session limit of %d reached", m.policy.MaxSessions)
	}

	now := time.Now()
	s := &Session{
		ID:                   idgen.NewSessionID(),
		PINHash:              hashPIN(p.PIN),
		Label:                p.Label,
		Status:               StatusWaiting,
		Threshold:            p.Threshold,
		EligibleKeys:         keys,
		ExpectedParticipants: expected,
		CreatedAt:            now,
		ExpiresAt:            now.Add(timeout),
	}
	snap, err := m.store.Create(s)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.SessionID(s.ID))

	id := s.ID
	m.timers.ScheduleOnce(expiryTimerName(id), timeout, func() {
		m.ExpireSession(id, "session deadline reached")
	})

	m.logger.Info("session created",
		"session_id", id,
		"threshold", p.Threshold,
		"eligible_keys", len(keys),
		"expected", expected,
		"expires_at", snap.ExpiresAt.Format(time.RFC3339))
	m.emit(Event{Type: EventSessionCreated, SessionID: id, Session: snap})
	return snap.Info(), nil
}

// AuthResult is what a successful Authenticate hands back to the transport.
type AuthResult struct {
	ParticipantID string
	Role          string
	Info          *SessionInfo
}

// Authenticate admits a connection into a session. Unknown session, wrong
// PIN, and non-joinable state all return ErrAuthFailed so a prober learns
// nothing. Every connection gets a fresh participant ID; identity across
// reconnects is the public key presented at ready time.
func (m *Manager) Authenticate(ctx context.Context, sessionID, pin, role, label string) (*AuthResult, error) {
	ctx, span := traces.StartSpan(ctx, "session.authenticate", traces.SessionID(sessionID))
	defer span.End()

	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil, ErrAuthFailed
	}
	switch snap.Status {
	case StatusWaiting, StatusTransactionReceived, StatusSigning:
	default:
		return nil, ErrAuthFailed
	}
	if !pinMatches(snap.PINHash, pin) {
		m.logger.Warn("authentication rejected", "session_id", sessionID)
		return nil, ErrAuthFailed
	}
	if role != RoleCoordinator {
		role = RoleParticipant
	}

	now := time.Now()
	p := &Participant{
		ID:          idgen.NewParticipantID(),
		Role:        role,
		Label:       label,
		Status:      ParticipantConnected,
		ConnectedAt: now,
		LastSeen:    now,
	}
	snap2, err := m.store.PutParticipant(sessionID, p)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.ParticipantID(p.ID))
	m.logger.Info("participant authenticated",
		"session_id", sessionID, "participant_id", p.ID, "role", role)
	m.emit(Event{
		Type:        EventParticipantConnected,
		SessionID:   sessionID,
		Session:     snap2,
		Participant: snap2.Participants[p.ID],
	})
	return &AuthResult{ParticipantID: p.ID, Role: role, Info: snap2.Info()}, nil
}

// SetReady records a participant's public key and marks them ready. A key
// outside the eligible list is admitted with a warning; it just can never
// contribute a signature. If a disconnected record holds the same key, it
// is dropped and its reap timer cancelled, so a reconnect under a new
// participant ID does not double-count.
func (m *Manager) SetReady(ctx context.Context, sessionID, participantID, publicKey string) (*SessionInfo, error) {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if snap.Status.Terminal() {
		return nil, statusError(snap)
	}
	if _, ok := snap.Participants[participantID]; !ok {
		return nil, ErrParticipantNotFound
	}
	key := chain.NormalizeKey(publicKey)
	if key == "" {
		return nil, Errf(CodeInvalidRequest, "public key is required")
	}
	if _, err := chain.DecodeKey(key); err != nil {
		return nil, Errf(CodeInvalidRequest, "malformed public key: %v", err)
	}

	var warnings []string
	if !snap.Eligible(key) {
		warnings = append(warnings, "public key is not in the eligible signer list")
	}
	for pid, q := range snap.Participants {
		if pid == participantID || q.PublicKey != key || q.Status != ParticipantDisconnected {
			continue
		}
		if _, err := m.store.RemoveParticipant(sessionID, pid); err == nil {
			m.timers.Cancel(reapTimerName(sessionID, pid))
		}
	}

	snap2, err := m.store.SetParticipantReady(sessionID, participantID, key, warnings)
	if err != nil {
		return nil, err
	}
	m.logger.Info("participant ready",
		"session_id", sessionID,
		"participant_id", participantID,
		"eligible", snap2.Eligible(key),
		"all_ready", snap2.AllReady())
	m.emit(Event{
		Type:        EventParticipantReady,
		SessionID:   sessionID,
		Session:     snap2,
		Participant: snap2.Participants[participantID],
		PublicKey:   key,
		AllReady:    snap2.AllReady(),
	})
	return snap2.Info(), nil
}

// InjectTransaction decodes a frozen transaction envelope, validates any
// coordinator-supplied metadata against what was actually decoded, stores
// the result, and moves the session to transaction-received. Only valid
// while the session is waiting; a decode failure leaves the session
// untouched so the coordinator can fix and resubmit.
func (m *Manager) InjectTransaction(ctx context.Context, sessionID string, raw []byte, metadata map[string]string, contractABI string) (*SessionInfo, error) {
	ctx, span := traces.StartSpan(ctx, "session.inject_transaction", traces.SessionID(sessionID))
	defer span.End()

	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if snap.Status.Terminal() {
		return nil, statusError(snap)
	}
	if snap.Status != StatusWaiting {
		return nil, Errf(CodeNotAccepting, "transaction already injected, session is %s", snap.Status)
	}

	decoded, err := m.decoder.Decode(raw, contractABI)
	if err != nil {
		var derr *decoder.Error
		if !errors.As(err, &derr) || derr.Code != decoder.CodeUnknownType || decoded == nil {
			return nil, err
		}
		// Unrecognized family: carry the payload as opaque. Participants
		// get the checksum and common fields and sign at their own judgment.
		m.logger.Warn("injecting opaque transaction",
			"session_id", sessionID, "checksum", decoded.ShortChecksum)
	}
	details := decoded.Details
	span.SetAttributes(traces.TxType(details.Type), traces.TxChecksum(details.ShortChecksum))

	report := decoder.ValidateMetadata(details, metadata)
	if !report.Valid {
		m.logger.Warn("metadata mismatches decoded transaction",
			"session_id", sessionID, "mismatches", len(report.Mismatches))
	}

	var txExp *time.Time
	if details.ExpiresAtMs > 0 {
		t := time.UnixMilli(details.ExpiresAtMs)
		if !t.After(time.Now()) {
			return nil, &decoder.Error{
				Code:    decoder.CodeDecodeFail,
				Message: fmt.Sprintf("transaction validity window ended at %s", t.Format(time.RFC3339)),
			}
		}
		txExp = &t
	}

	cur, err := m.store.SetTransaction(sessionID, TransactionRecord{
		Frozen:         raw,
		Details:        details,
		Metadata:       metadata,
		MetadataReport: report,
		ContractABI:    contractABI,
		TxExpiresAt:    txExp,
	})
	if err != nil {
		return nil, err
	}
	cur, err = m.store.Transition(sessionID, StatusTransactionReceived, StatusWaiting)
	if err != nil {
		return nil, err
	}
	for pid, p := range cur.Participants {
		if p.Role != RoleParticipant {
			continue
		}
		if p.Status == ParticipantConnected || p.Status == ParticipantReady {
			if next, err := m.store.SetParticipantStatus(sessionID, pid, ParticipantReviewing); err == nil {
				cur = next
			}
		}
	}

	if txExp != nil {
		m.timers.ScheduleOnce(txExpiryTimerName(sessionID), time.Until(*txExp), func() {
			m.ExpireSession(sessionID, "transaction validity window passed")
		})
	}

	m.logger.Info("transaction injected",
		"session_id", sessionID,
		"type", details.Type,
		"checksum", details.ShortChecksum,
		"metadata_valid", report.Valid)
	m.emit(Event{Type: EventTransactionReady, SessionID: sessionID, Session: cur})
	return cur.Info(), nil
}

// SubmitResult reports the outcome of a signature submission.
type SubmitResult struct {
	PublicKey    string
	Collected    int
	Required     int
	ThresholdMet bool
	// Recorded is set when the signature was freshly stored and announced.
	// Unset means the submission was acknowledged without changing state:
	// an identical replay or a straggler arriving after the threshold.
	Recorded bool
	// Duplicate is set when the same key re-submitted its identical
	// signature.
	Duplicate bool
}

// SubmitSignature verifies a signature against the frozen transaction bytes
// and records it. The first accepted signature moves the session to signing;
// the one that meets the threshold moves it to executing and starts
// submission in the background. A byte-identical re-submission is
// acknowledged without events; the same key with different bytes is an
// error.
func (m *Manager) SubmitSignature(ctx context.Context, sessionID, participantID, publicKey string, signature []byte) (*SubmitResult, error) {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if snap.Status.Terminal() {
		return nil, statusError(snap)
	}
	if snap.Status != StatusTransactionReceived && snap.Status != StatusSigning {
		return nil, statusError(snap)
	}
	if _, ok := snap.Participants[participantID]; !ok {
		return nil, ErrParticipantNotFound
	}
	key := chain.NormalizeKey(publicKey)
	if !snap.Eligible(key) {
		return nil, Errf(CodeNotEligible, "public key is not in the eligible signer list")
	}

	if err := m.verifier.Verify(key, snap.Frozen, signature); err != nil {
		m.logger.Warn("signature rejected",
			"session_id", sessionID, "participant_id", participantID, "error", err)
		return nil, Errf(CodeInvalidSignature, "signature does not verify against the frozen transaction")
	}

	cur, result, err := m.store.InsertSignature(sessionID, key, signature)
	if err != nil {
		return nil, err
	}
	switch result {
	case SignatureConflict:
		return nil, Errf(CodeDuplicateSignature, "public key already submitted a different signature")
	case SignatureIdentical, SignatureAtThreshold:
		// Identical replays and post-threshold stragglers are acknowledged
		// without changing state or re-announcing.
		if next, err := m.store.SetParticipantStatus(sessionID, participantID, ParticipantSigned); err == nil {
			cur = next
		}
		return &SubmitResult{
			PublicKey:    key,
			Collected:    len(cur.Signatures),
			Required:     cur.Threshold,
			ThresholdMet: len(cur.Signatures) >= cur.Threshold,
			Duplicate:    result == SignatureIdentical,
		}, nil
	}

	if next, err := m.store.SetParticipantStatus(sessionID, participantID, ParticipantSigned); err == nil {
		cur = next
	}
	if cur.Status == StatusTransactionReceived {
		if next, err := m.store.Transition(sessionID, StatusSigning, StatusTransactionReceived); err == nil {
			cur = next
		}
	}

	collected := len(cur.Signatures)
	met := collected >= cur.Threshold
	m.logger.Info("signature accepted",
		"session_id", sessionID,
		"participant_id", participantID,
		"collected", collected,
		"required", cur.Threshold)
	m.emit(Event{
		Type:         EventSignatureAccepted,
		SessionID:    sessionID,
		Session:      cur,
		Participant:  cur.Participants[participantID],
		PublicKey:    key,
		Collected:    collected,
		Required:     cur.Threshold,
		ThresholdMet: met,
	})

	if met {
		exec, err := m.store.Transition(sessionID, StatusExecuting, StatusSigning)
		if err != nil {
			return nil, err
		}
		m.logger.Info("threshold met, executing",
			"session_id", sessionID, "collected", collected, "required", exec.Threshold)
		m.emit(Event{
			Type:      EventThresholdMet,
			SessionID: sessionID,
			Session:   exec,
			Collected: collected,
			Required:  exec.Threshold,
		})
		go m.execute(exec)
	}

	return &SubmitResult{
		PublicKey:    key,
		Collected:    collected,
		Required:     cur.Threshold,
		ThresholdMet: met,
		Recorded:     true,
	}, nil
}

// execute submits the signed transaction, retrying transient failures with
// fixed backoff. It runs outside the session lock; each attempt re-reads
// the session and stops if it is no longer executing (cancelled meanwhile).
func (m *Manager) execute(snap *Session) {
	id := snap.ID
	ctx, span := traces.StartSpan(context.Background(), "session.execute",
		traces.SessionID(id), traces.TxType(snap.Details.Type))
	defer span.End()

	start := time.Now()
	attempts := len(m.policy.RetryBackoff) + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(m.policy.RetryBackoff[attempt-2]):
			case <-m.quit:
				return
			}
		}
		cur, ok := m.store.Get(id)
		if !ok || cur.Status != StatusExecuting {
			return
		}
		span.SetAttributes(traces.Attempt(attempt))
		receipt, err := m.network.Submit(ctx, cur.Frozen, cur.Signatures)
		if err == nil {
			m.finishExecution(id, receipt, time.Since(start))
			return
		}
		lastErr = err
		m.logger.Error("transaction submission failed",
			"session_id", id, "attempt", attempt, "of", attempts, "error", err)
		m.emit(Event{
			Type:      EventExecutionFailed,
			SessionID: id,
			Session:   cur,
			Code:      CodeNetworkError,
			Attempt:   attempt,
			Reason:    err.Error(),
		})
		if retry.IsPermanent(err) {
			break
		}
	}

	unlock, err := m.locks.Lock(context.Background(), id)
	if err != nil {
		return
	}
	defer unlock()
	m.cancelLocked(id, fmt.Sprintf("execution failed: %v", lastErr))
}

func (m *Manager) finishExecution(id string, receipt *chain.Receipt, elapsed time.Duration) {
	unlock, err := m.locks.Lock(context.Background(), id)
	if err != nil {
		return
	}
	defer unlock()

	cur, ok := m.store.Get(id)
	if !ok || cur.Status != StatusExecuting {
		return
	}
	if receipt.TransactionID == "" && cur.Details != nil {
		receipt.TransactionID = cur.Details.TransactionID
	}
	if _, err := m.store.SetReceipt(id, receipt); err != nil {
		m.logger.Error("storing receipt failed", "session_id", id, "error", err)
	}
	snap, err := m.store.Transition(id, StatusCompleted, StatusExecuting)
	if err != nil {
		m.logger.Error("completion transition failed", "session_id", id, "error", err)
		return
	}
	m.logger.Info("session completed",
		"session_id", id,
		"transaction_id", receipt.TransactionID,
		"status", receipt.Status,
		"elapsed", elapsed.Round(time.Millisecond))
	m.finalizeLocked(id, Event{
		Type:      EventTransactionExecuted,
		SessionID: id,
		Session:   snap,
		Receipt:   receipt,
		Elapsed:   elapsed,
	})
}

// finalizeLocked tears a session down: cancel its timers, announce the
// terminal event (transports close their sockets off it), then drop the
// state. Caller holds the session lock.
func (m *Manager) finalizeLocked(id string, ev Event) {
	m.timers.CancelByPrefix(sessionTimerPrefix(id))
	m.emit(ev)
	m.store.Delete(id)
}

func (m *Manager) cancelLocked(id, reason string) {
	snap, ok := m.store.Get(id)
	if !ok || snap.Status.Terminal() {
		return
	}
	if _, err := m.store.SetCancelReason(id, reason); err != nil {
		return
	}
	snap2, err := m.store.Transition(id, StatusCancelled)
	if err != nil {
		m.logger.Error("cancel transition failed", "session_id", id, "error", err)
		return
	}
	m.logger.Info("session cancelled", "session_id", id, "reason", reason)
	m.finalizeLocked(id, Event{
		Type:      EventSessionCancelled,
		SessionID: id,
		Session:   snap2,
		Code:      CodeSessionCancelled,
		Reason:    reason,
	})
}

// Cancel terminates a session with a reason. Cancelling an already-terminal
// session is a no-op.
func (m *Manager) Cancel(ctx context.Context, sessionID, reason string) error {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.store.Get(sessionID); !ok {
		return ErrNotFound
	}
	m.cancelLocked(sessionID, reason)
	return nil
}

// ExpireSession is the expiry-timer callback. Expiry never preempts an
// in-flight execution: once the network submission started, the outcome
// (receipt or cancel) supersedes the deadline.
func (m *Manager) ExpireSession(sessionID, cause string) {
	unlock, err := m.locks.Lock(context.Background(), sessionID)
	if err != nil {
		return
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok || snap.Status.Terminal() {
		return
	}
	if snap.Status == StatusExecuting {
		m.logger.Debug("expiry skipped, session executing", "session_id", sessionID)
		return
	}
	snap2, err := m.store.Transition(sessionID, StatusExpired)
	if err != nil {
		m.logger.Error("expiry transition failed", "session_id", sessionID, "error", err)
		return
	}
	m.logger.Info("session expired", "session_id", sessionID, "cause", cause)
	m.finalizeLocked(sessionID, Event{
		Type:      EventSessionExpired,
		SessionID: sessionID,
		Session:   snap2,
		Code:      CodeSessionExpired,
		Reason:    cause,
	})
}

// RejectTransaction records a participant's refusal to sign. If the
// remaining eligible keys can no longer reach the threshold, the session
// is cancelled immediately rather than left to time out.
func (m *Manager) RejectTransaction(ctx context.Context, sessionID, participantID, reason string) error {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return ErrNotFound
	}
	if snap.Status.Terminal() {
		return statusError(snap)
	}
	p, ok := snap.Participants[participantID]
	if !ok {
		return ErrParticipantNotFound
	}

	cur, err := m.store.SetParticipantStatus(sessionID, participantID, ParticipantRejected)
	if err != nil {
		return err
	}
	if p.PublicKey != "" {
		if next, err := m.store.AddRejection(sessionID, p.PublicKey, reason); err == nil {
			cur = next
		}
	}
	m.logger.Info("transaction rejected",
		"session_id", sessionID, "participant_id", participantID, "reason", reason)
	m.emit(Event{
		Type:        EventParticipantRejected,
		SessionID:   sessionID,
		Session:     cur,
		Participant: cur.Participants[participantID],
		PublicKey:   p.PublicKey,
		Reason:      reason,
	})

	if cur.PotentialSigners() < cur.Threshold {
		m.logger.Info("threshold unreachable after rejection",
			"session_id", sessionID,
			"potential", cur.PotentialSigners(),
			"required", cur.Threshold)
		m.cancelLocked(sessionID, "threshold can no longer be met")
	}
	return nil
}

// Disconnect marks a participant disconnected and arms a reap timer. The
// record survives the reconnect window so a returning device can resume
// under its public key without losing collected signatures.
func (m *Manager) Disconnect(ctx context.Context, sessionID, participantID string) error {
	unlock, err := m.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil
	}
	p, ok := snap.Participants[participantID]
	if !ok || p.Status == ParticipantDisconnected {
		return nil
	}
	cur, err := m.store.SetParticipantStatus(sessionID, participantID, ParticipantDisconnected)
	if err != nil {
		return err
	}
	m.logger.Info("participant disconnected",
		"session_id", sessionID, "participant_id", participantID)
	m.emit(Event{
		Type:        EventParticipantDisconnected,
		SessionID:   sessionID,
		Session:     cur,
		Participant: cur.Participants[participantID],
	})
	m.timers.ScheduleOnce(reapTimerName(sessionID, participantID), m.policy.ReconnectWindow, func() {
		m.reapParticipant(sessionID, participantID)
	})
	return nil
}

// reapParticipant drops a participant record whose reconnect window lapsed.
func (m *Manager) reapParticipant(sessionID, participantID string) {
	unlock, err := m.locks.Lock(context.Background(), sessionID)
	if err != nil {
		return
	}
	defer unlock()

	snap, ok := m.store.Get(sessionID)
	if !ok {
		return
	}
	p, ok := snap.Participants[participantID]
	if !ok || p.Status != ParticipantDisconnected {
		return
	}
	if _, err := m.store.RemoveParticipant(sessionID, participantID); err == nil {
		m.logger.Debug("participant reaped",
			"session_id", sessionID, "participant_id", participantID)
	}
}

// Info returns the client-facing view of one session.
func (m *Manager) Info(sessionID string) (*SessionInfo, error) {
	snap, ok := m.store.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Info(), nil
}

// List returns client-facing views of all live sessions, oldest first.
func (m *Manager) List() []*SessionInfo {
	snaps := m.store.List()
	infos := make([]*SessionInfo, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, s.Info())
	}
	return infos
}

// SweepExpired expires every session whose deadline has passed. Timers
// normally fire first; the sweep is the safety net behind them.
func (m *Manager) SweepExpired() int {
	ids := m.store.ExpiredIDs(time.Now())
	for _, id := range ids {
		m.ExpireSession(id, "cleanup sweep")
	}
	return len(ids)
}

// StartCleanup arms the periodic expiry sweep.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.timers.ScheduleInterval(cleanupTimerName, interval, func() {
		if n := m.SweepExpired(); n > 0 {
			m.logger.Info("expired sessions swept", "count", n)
		}
	})
}

// Shutdown stops retries in flight and all timers. Live sessions stay in
// the store; the transport layer is responsible for telling clients the
// service is going away.
func (m *Manager) Shutdown() {
	m.closeOnce.Do(func() { close(m.quit) })
	n := m.timers.CancelAll()
	m.logger.Info("session manager stopped", "timers_cancelled", n, "sessions_live", m.store.Count())
}
