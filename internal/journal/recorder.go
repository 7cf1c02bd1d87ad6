package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
)

const (
	queueSize    = 256
	appendWindow = 5 * time.Second
)

// Recorder translates session events into journal entries. Entries flow
// through a single writer goroutine so they land in event order without the
// session path ever waiting on the database; a full queue drops the entry
// with a warning. Append failures are logged, never fatal.
type Recorder struct {
	store  Store
	logger *slog.Logger
	queue  chan *Entry
	done   chan struct{}
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Close drains pending entries and stops the writer. Call only after the
// event source has shut down.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendWindow)
		if err := r.store.Append(ctx, e); err != nil {
			r.logger.Error("journal append failed",
				"session_id", e.SessionID, "event", e.Event, "error", err)
		}
		cancel()
	}
}

// OnSessionEvent implements session.Sink. Only lifecycle outcomes are
// journaled; per-participant churn stays out of the audit trail.
func (r *Recorder) OnSessionEvent(ev session.Event) {
	var e *Entry
	switch ev.Type {
	case session.EventSessionCreated:
		e = r.entry(ev, EventSessionCreated, map[string]any{
			"threshold":            ev.Session.Threshold,
			"eligibleKeys":         len(ev.Session.EligibleKeys),
			"expectedParticipants": ev.Session.ExpectedParticipants,
			"expiresAt":            ev.Session.ExpiresAt,
		})
	case session.EventTransactionReady:
		detail := map[string]any{}
		if d := ev.Session.Details; d != nil {
			detail["payerAccountId"] = d.PayerAccountID
			detail["memo"] = d.Memo
			if d.ExpiresAtMs > 0 {
				detail["expiresAtMs"] = d.ExpiresAtMs
			}
		}
		e = r.entry(ev, EventTransactionReady, detail)
	case session.EventThresholdMet:
		e = r.entry(ev, EventThresholdMet, map[string]any{
			"collected": ev.Collected,
			"required":  ev.Required,
		})
	case session.EventTransactionExecuted:
		detail := map[string]any{}
		if ev.Receipt != nil {
			detail["status"] = ev.Receipt.Status
			if ev.Receipt.ConsensusTimestamp != "" {
				detail["consensusTimestamp"] = ev.Receipt.ConsensusTimestamp
			}
		}
		e = r.entry(ev, EventExecuted, detail)
		if ev.Receipt != nil {
			e.TransactionID = ev.Receipt.TransactionID
		}
	case session.EventSessionExpired:
		e = r.entry(ev, EventExpired, map[string]any{"reason": ev.Reason})
	case session.EventSessionCancelled:
		e = r.entry(ev, EventCancelled, map[string]any{"reason": ev.Reason})
	default:
		return
	}

	select {
	case r.queue <- e:
	default:
		r.logger.Warn("journal queue full, dropping entry",
			"session_id", e.SessionID, "event", e.Event)
	}
}

func (r *Recorder) entry(ev session.Event, kind string, detail map[string]any) *Entry {
	e := &Entry{
		SessionID: ev.SessionID,
		Event:     kind,
		CreatedAt: ev.At,
	}
	if s := ev.Session; s != nil && s.Details != nil {
		e.TxType = s.Details.Type
		e.Checksum = s.Details.Checksum
		e.TransactionID = s.Details.TransactionID
	}
	if len(detail) > 0 {
		if raw, err := json.Marshal(detail); err == nil {
			e.Detail = raw
		}
	}
	return e
}
