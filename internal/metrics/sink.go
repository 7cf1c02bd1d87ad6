package metrics

import (
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
)

// SessionSink translates session events into metric updates. Register it on
// the manager alongside the other sinks; it keeps no state of its own.
type SessionSink struct{}

// OnSessionEvent implements session.Sink.
func (SessionSink) OnSessionEvent(ev session.Event) {
	switch ev.Type {
	case session.EventSessionCreated:
		SessionsCreatedTotal.Inc()
		ActiveSessions.Inc()

	case session.EventSignatureAccepted:
		if ev.Duplicate {
			SignaturesSubmittedTotal.WithLabelValues("duplicate").Inc()
		} else {
			SignaturesSubmittedTotal.WithLabelValues("accepted").Inc()
		}

	case session.EventTransactionExecuted:
		ExecutionAttemptsTotal.WithLabelValues("success").Inc()
		if ev.Elapsed > 0 {
			ExecutionDuration.Observe(ev.Elapsed.Seconds())
		}
		closeSession(ev, "completed")

	case session.EventExecutionFailed:
		ExecutionAttemptsTotal.WithLabelValues("failure").Inc()

	case session.EventSessionExpired:
		closeSession(ev, "expired")

	case session.EventSessionCancelled:
		closeSession(ev, "cancelled")
	}
}

func closeSession(ev session.Event, outcome string) {
	SessionsClosedTotal.WithLabelValues(outcome).Inc()
	ActiveSessions.Dec()
	if ev.Session != nil && !ev.Session.CreatedAt.IsZero() {
		SessionDuration.Observe(time.Since(ev.Session.CreatedAt).Seconds())
	}
}
