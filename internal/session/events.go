package session

import (
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
)

// EventType enumerates everything that can happen to a session. The set is
// fixed: consumers switch over it rather than registering string-keyed
// handlers.
type EventType string

const (
	EventSessionCreated          EventType = "session_created"
	EventParticipantConnected    EventType = "participant_connected"
	EventParticipantReady        EventType = "participant_ready"
	EventParticipantDisconnected EventType = "participant_disconnected"
	EventParticipantRejected     EventType = "participant_rejected"
	EventTransactionReady        EventType = "transaction_ready"
	EventSignatureAccepted       EventType = "signature_accepted"
	EventThresholdMet            EventType = "threshold_met"
	EventTransactionExecuted     EventType = "transaction_executed"
	EventExecutionFailed         EventType = "execution_failed"
	EventSessionExpired          EventType = "session_expired"
	EventSessionCancelled        EventType = "session_cancelled"
)

// Event is one session occurrence plus the snapshot it produced. Session is
// the post-mutation state; consumers must treat it as immutable.
type Event struct {
	Type      EventType
	SessionID string
	Session   *Session
	At        time.Time

	Participant *Participant // the participant the event is about, if any
	PublicKey   string
	Reason      string
	Code        string

	Attempt      int // execution attempt number, starting at 1
	Collected    int
	Required     int
	ThresholdMet bool
	AllReady     bool
	Duplicate    bool

	Receipt *chain.Receipt
	Elapsed time.Duration // execution wall time on TransactionExecuted
}

// Sink receives session events. Dispatch is synchronous on the emitting
// goroutine, so sinks must be fast and must not call back into the manager.
type Sink interface {
	OnSessionEvent(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// OnSessionEvent implements Sink.
func (f SinkFunc) OnSessionEvent(ev Event) { f(ev) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// OnSessionEvent implements Sink.
func (m MultiSink) OnSessionEvent(ev Event) {
	for _, s := range m {
		if s != nil {
			s.OnSessionEvent(ev)
		}
	}
}
