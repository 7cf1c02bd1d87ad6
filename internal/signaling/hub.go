// Package signaling carries the coordinator's WebSocket protocol: one frame
// per text message, AUTH first, then participant intents inbound and session
// broadcasts outbound.
//
// The hub owns every connection. It routes intents to the session manager
// and, as an event sink, translates manager events back into frames. A
// session's terminal event broadcasts a final frame and closes its sockets
// with the matching close code.
package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/idgen"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/metrics"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
)

// normalCloseCodes are close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Coordinator is the slice of the session manager the hub dispatches
// participant intents to.
type Coordinator interface {
	Authenticate(ctx context.Context, sessionID, pin, role, label string) (*session.AuthResult, error)
	SetReady(ctx context.Context, sessionID, participantID, publicKey string) (*session.SessionInfo, error)
	SubmitSignature(ctx context.Context, sessionID, participantID, publicKey string, signature []byte) (*session.SubmitResult, error)
	RejectTransaction(ctx context.Context, sessionID, participantID, reason string) error
	Disconnect(ctx context.Context, sessionID, participantID string) error
}

// TimerScheduler is the slice of the timer controller the hub uses for
// per-connection auth deadlines.
type TimerScheduler interface {
	ScheduleOnce(name string, delay time.Duration, fn func()) string
	Cancel(name string) bool
}

// Stats is a point-in-time summary of hub activity.
type Stats struct {
	ActiveConnections int   `json:"activeConnections"`
	TotalConnections  int64 `json:"totalConnections"`
	MessagesSent      int64 `json:"messagesSent"`
	MessagesDropped   int64 `json:"messagesDropped"`
}

// Hub manages all WebSocket connections and their session bindings.
type Hub struct {
	coordinator Coordinator
	timers      TimerScheduler
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	maxClients  int

	mu       sync.RWMutex
	clients  map[string]*client            // by connection id
	sessions map[string]map[string]*client // session id → participant id → client
	done     chan struct{}                 // closed when Run exits; prevents upgrade race

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a hub dispatching to the given coordinator. allowedOrigins
// empty means any origin (non-browser clients send none anyway).
func NewHub(coordinator Coordinator, timers TimerScheduler, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		coordinator: coordinator,
		timers:      timers,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		maxClients: MaxClients,
		clients:    make(map[string]*client),
		sessions:   make(map[string]map[string]*client),
		done:       make(chan struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}

func authTimerName(connID string) string { return "conn:" + connID + ":auth" }

// Run keeps the hub alive until ctx is cancelled, then refuses further
// upgrades, tells every session its coordinator is going away, and closes
// every connection with 1001.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("signaling hub started")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.notifyShutdown()
			h.CloseAll(websocket.CloseGoingAway, "server shutting down")
			h.logger.Info("signaling hub stopped",
				"total_connections", h.totalConnections.Load(),
				"messages_sent", h.messagesSent.Load())
			return
		case <-ticker.C:
			h.mu.RLock()
			n, s := len(h.clients), len(h.sessions)
			h.mu.RUnlock()
			h.logger.Debug("hub housekeeping", "connections", n, "sessions", s)
		}
	}
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		ActiveConnections: n,
		TotalConnections:  h.totalConnections.Load(),
		MessagesSent:      h.messagesSent.Load(),
		MessagesDropped:   h.messagesDropped.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and starts the client pumps.
// The client has authTimeout to present a valid AUTH frame.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   idgen.NewConnectionID(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	active := len(h.clients)
	h.mu.Unlock()

	h.totalConnections.Add(1)
	metrics.WSConnectionsTotal.Inc()
	metrics.ActiveConnections.Set(float64(active))
	h.logger.Debug("connection accepted", "conn_id", c.id, "active", active)

	connID := c.id
	h.timers.ScheduleOnce(authTimerName(connID), authTimeout, func() {
		h.authTimeout(connID)
	})

	go c.writePump()
	go c.readPump()
}

// authTimeout fires when a connection never completed AUTH.
func (h *Hub) authTimeout(connID string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	bound := ok && c.sessionID != ""
	h.mu.RUnlock()
	if !ok || bound {
		return
	}
	h.logger.Debug("authentication timeout", "conn_id", connID)
	h.drop(c, CloseAuthFailure, "authentication timeout")
}

// drop removes a client from the registry and closes its send queue with
// the given close code. Dropping an already-removed client is a no-op, so
// every failure path can call it safely.
func (h *Hub) drop(c *client, code int, text string) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	if c.sessionID != "" {
		if members, ok := h.sessions[c.sessionID]; ok {
			delete(members, c.participantID)
			if len(members) == 0 {
				delete(h.sessions, c.sessionID)
			}
		}
	}
	active := len(h.clients)
	h.mu.Unlock()

	c.setCloseStatus(code, text)
	close(c.send)
	metrics.ActiveConnections.Set(float64(active))
}

// handleDisconnect runs when a client's readPump exits for any reason. If
// the client was bound to a session the manager is told; for sessions the
// hub itself tore down the record is already gone and Disconnect is a no-op.
func (h *Hub) handleDisconnect(c *client) {
	h.timers.Cancel(authTimerName(c.id))
	h.drop(c, websocket.CloseNormalClosure, "")

	h.mu.RLock()
	sid, pid := c.sessionID, c.participantID
	h.mu.RUnlock()
	if sid != "" {
		_ = h.coordinator.Disconnect(context.Background(), sid, pid)
	}
}

// handleFrame parses and dispatches one inbound frame. Before AUTH the only
// acceptable frame is AUTH; anything else closes the connection.
func (h *Hub) handleFrame(ctx context.Context, c *client, data []byte) {
	h.mu.RLock()
	authed := c.sessionID != ""
	h.mu.RUnlock()

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		if !authed {
			h.drop(c, CloseAuthFailure, "authentication required")
			return
		}
		h.sendError(c, session.CodeUnknownMessage, "malformed frame")
		return
	}
	metrics.WSMessagesTotal.WithLabelValues("in", f.Type).Inc()

	if !authed && f.Type != TypeAuth {
		h.drop(c, CloseAuthFailure, "authentication required")
		return
	}

	switch f.Type {
	case TypeAuth:
		if authed {
			h.sendError(c, session.CodeInvalidRequest, "already authenticated")
			return
		}
		h.handleAuth(ctx, c, f.Payload)
	case TypeParticipantReady:
		h.handleReady(ctx, c, f.Payload)
	case TypeSignatureSubmit:
		h.handleSubmit(ctx, c, f.Payload)
	case TypeTransactionRejected:
		h.handleReject(ctx, c, f.Payload)
	case TypePing:
		h.sendDirect(c, NewFrame(TypePong, nil))
	default:
		h.sendError(c, session.CodeUnknownMessage, fmt.Sprintf("unknown frame type %q", f.Type))
	}
}

func (h *Hub) handleAuth(ctx context.Context, c *client, payload json.RawMessage) {
	var req AuthRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" {
		h.sendDirect(c, NewFrame(TypeAuthFailed, AuthFailed{Message: "authentication failed"}))
		h.drop(c, CloseAuthFailure, "authentication failed")
		return
	}

	res, err := h.coordinator.Authenticate(ctx, req.SessionID, req.PIN, req.Role, req.Label)
	h.timers.Cancel(authTimerName(c.id))
	if err != nil {
		h.sendDirect(c, NewFrame(TypeAuthFailed, AuthFailed{Message: "authentication failed"}))
		h.drop(c, CloseAuthFailure, "authentication failed")
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		// Lost a race with shutdown or the auth timer; the manager already
		// admitted the participant, so it has to hear about the loss too.
		h.mu.Unlock()
		_ = h.coordinator.Disconnect(ctx, req.SessionID, res.ParticipantID)
		return
	}
	c.sessionID = req.SessionID
	c.participantID = res.ParticipantID
	members, ok := h.sessions[req.SessionID]
	if !ok {
		members = make(map[string]*client)
		h.sessions[req.SessionID] = members
	}
	members[res.ParticipantID] = c
	h.mu.Unlock()

	h.logger.Info("connection authenticated",
		"conn_id", c.id,
		"session_id", req.SessionID,
		"participant_id", res.ParticipantID,
		"role", res.Role)
	h.sendDirect(c, NewFrame(TypeAuthSuccess, AuthSuccess{
		ParticipantID: res.ParticipantID,
		SessionInfo:   res.Info,
	}))
}

func (h *Hub) handleReady(ctx context.Context, c *client, payload json.RawMessage) {
	var req ReadyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, session.CodeInvalidRequest, "malformed PARTICIPANT_READY payload")
		return
	}
	if _, err := h.coordinator.SetReady(ctx, c.sessionID, c.participantID, req.PublicKey); err != nil {
		h.sendError(c, session.CodeOf(err), err.Error())
	}
	// The ready broadcast, including this participant's own view with any
	// warnings, rides on the manager event.
}

func (h *Hub) handleSubmit(ctx context.Context, c *client, payload json.RawMessage) {
	var req SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, session.CodeInvalidRequest, "malformed SIGNATURE_SUBMIT payload")
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		h.sendDirect(c, NewFrame(TypeSignatureRejected, SignatureRejected{
			Message:   "signature is not valid base64",
			Code:      session.CodeInvalidRequest,
			PublicKey: req.PublicKey,
		}))
		return
	}

	res, err := h.coordinator.SubmitSignature(ctx, c.sessionID, c.participantID, req.PublicKey, sig)
	if err != nil {
		h.sendDirect(c, NewFrame(TypeSignatureRejected, SignatureRejected{
			Message:   err.Error(),
			Code:      session.CodeOf(err),
			PublicKey: req.PublicKey,
		}))
		return
	}
	if !res.Recorded {
		// Replays and post-threshold stragglers never reach the event
		// stream; acknowledge the submitter directly.
		h.sendDirect(c, NewFrame(TypeSignatureAccepted, SignatureAccepted{
			Success:             true,
			PublicKey:           res.PublicKey,
			SignaturesCollected: res.Collected,
			SignaturesRequired:  res.Required,
			ThresholdMet:        res.ThresholdMet,
		}))
	}
}

func (h *Hub) handleReject(ctx context.Context, c *client, payload json.RawMessage) {
	var req RejectRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(c, session.CodeInvalidRequest, "malformed TRANSACTION_REJECTED payload")
			return
		}
	}
	if err := h.coordinator.RejectTransaction(ctx, c.sessionID, c.participantID, req.Reason); err != nil {
		h.sendError(c, session.CodeOf(err), err.Error())
	}
}

func (h *Hub) sendError(c *client, code, message string) {
	h.sendDirect(c, NewFrame(TypeError, ErrorNotice{Message: message, Code: code}))
}

// sendDirect enqueues a frame for one client. A full queue evicts, the same
// as on the broadcast path.
func (h *Hub) sendDirect(c *client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	metrics.WSMessagesTotal.WithLabelValues("out", f.Type).Inc()

	h.mu.RLock()
	_, ok := h.clients[c.id]
	slow := false
	if ok {
		select {
		case c.send <- data:
		default:
			slow = true
		}
	}
	h.mu.RUnlock()

	if slow {
		h.evictSlow(c)
	}
}

// Broadcast fans a frame out to every connection bound to the session,
// skipping exceptConn when non-empty. Slow consumers are evicted rather
// than waited on.
func (h *Hub) Broadcast(sessionID string, f Frame, exceptConn string) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}

	var slow []*client
	h.mu.RLock()
	members := h.sessions[sessionID]
	for _, cl := range members {
		if cl.id == exceptConn {
			continue
		}
		select {
		case cl.send <- data:
			metrics.BroadcastFramesTotal.Inc()
			metrics.WSMessagesTotal.WithLabelValues("out", f.Type).Inc()
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.evictSlow(cl)
	}
}

func (h *Hub) evictSlow(c *client) {
	h.messagesDropped.Add(1)
	metrics.FramesDroppedTotal.Inc()
	h.logger.Warn("evicting slow consumer",
		"conn_id", c.id, "session_id", c.sessionID)
	h.drop(c, CloseSlowConsumer, "send queue overflow")
}

// CloseSession tears down every connection bound to a session with the
// given close code. Queued frames flush before the close frame goes out.
func (h *Hub) CloseSession(sessionID string, code int, reason string) {
	h.mu.Lock()
	members := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	for _, cl := range members {
		delete(h.clients, cl.id)
		cl.setCloseStatus(code, reason)
		close(cl.send)
	}
	active := len(h.clients)
	h.mu.Unlock()

	if len(members) > 0 {
		metrics.ActiveConnections.Set(float64(active))
		h.logger.Info("session connections closed",
			"session_id", sessionID, "connections", len(members), "code", code)
	}
}

// notifyShutdown queues a SESSION_EXPIRED frame to every bound session.
// The frames flush ahead of the close frame CloseAll records, so clients
// see the notice before the socket drops.
func (h *Hub) notifyShutdown() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Broadcast(id, NewFrame(TypeSessionExpired, nil), "")
	}
}

// CloseAll tears down every connection; used on shutdown.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.sessions = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, cl := range clients {
		cl.setCloseStatus(code, reason)
		close(cl.send)
	}
	metrics.ActiveConnections.Set(0)
	if len(clients) > 0 {
		h.logger.Info("all connections closed", "connections", len(clients), "code", code)
	}
}

// OnSessionEvent implements session.Sink: manager events become frames.
// Dispatch is synchronous on the emitting goroutine and must never block;
// enqueueing is select/default all the way down.
func (h *Hub) OnSessionEvent(ev session.Event) {
	switch ev.Type {
	case session.EventParticipantConnected:
		if ev.Participant == nil || ev.Session == nil {
			return
		}
		// The new connection is not indexed yet, so the broadcast reaches
		// everyone else; the newcomer got AUTH_SUCCESS instead.
		h.Broadcast(ev.SessionID, NewFrame(TypeParticipantConnected, ParticipantConnected{
			ParticipantID: ev.Participant.ID,
			Label:         ev.Participant.Label,
			Stats:         ev.Session.Stats(),
		}), "")

	case session.EventParticipantReady:
		if ev.Participant == nil || ev.Session == nil {
			return
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeParticipantReady, ParticipantReadyNotice{
			ParticipantID: ev.Participant.ID,
			PublicKey:     ev.PublicKey,
			Warnings:      ev.Participant.Warnings,
			Stats:         ev.Session.Stats(),
			AllReady:      ev.AllReady,
		}), "")

	case session.EventParticipantDisconnected:
		if ev.Participant == nil || ev.Session == nil {
			return
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeParticipantDisconnected, ParticipantDisconnected{
			ParticipantID: ev.Participant.ID,
			Stats:         ev.Session.Stats(),
		}), "")

	case session.EventParticipantRejected:
		if ev.Participant == nil || ev.Session == nil {
			return
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeTransactionRejected, RejectionNotice{
			ParticipantID: ev.Participant.ID,
			Reason:        ev.Reason,
			Stats:         ev.Session.Stats(),
		}), "")

	case session.EventTransactionReady:
		s := ev.Session
		if s == nil {
			return
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeTransactionReceived, TransactionReceived{
			FrozenTransaction: &session.FrozenTransaction{
				Base64: base64.StdEncoding.EncodeToString(s.Frozen),
			},
			TxDetails:         s.Details,
			Metadata:          s.Metadata,
			MetadataReport:    s.MetadataReport,
			ContractInterface: s.ContractABI,
		}), "")

	case session.EventSignatureAccepted:
		h.Broadcast(ev.SessionID, NewFrame(TypeSignatureAccepted, SignatureAccepted{
			Success:             true,
			PublicKey:           ev.PublicKey,
			SignaturesCollected: ev.Collected,
			SignaturesRequired:  ev.Required,
			ThresholdMet:        ev.ThresholdMet,
		}), "")

	case session.EventThresholdMet:
		h.Broadcast(ev.SessionID, NewFrame(TypeThresholdMet, ThresholdMet{
			SignaturesCollected: ev.Collected,
			SignaturesRequired:  ev.Required,
		}), "")

	case session.EventExecutionFailed:
		h.Broadcast(ev.SessionID, NewFrame(TypeError, ErrorNotice{
			Message: fmt.Sprintf("execution attempt %d failed: %s", ev.Attempt, ev.Reason),
			Code:    ev.Code,
		}), "")

	case session.EventTransactionExecuted:
		payload := TransactionExecuted{Receipt: ev.Receipt}
		if ev.Receipt != nil {
			payload.TransactionID = ev.Receipt.TransactionID
			payload.Status = ev.Receipt.Status
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeTransactionExecuted, payload), "")
		h.CloseSession(ev.SessionID, websocket.CloseNormalClosure, "session complete")

	case session.EventSessionExpired:
		h.Broadcast(ev.SessionID, NewFrame(TypeSessionExpired, nil), "")
		h.CloseSession(ev.SessionID, CloseSessionExpired, "session expired")

	case session.EventSessionCancelled:
		msg := "session cancelled"
		if ev.Reason != "" {
			msg = msg + ": " + ev.Reason
		}
		h.Broadcast(ev.SessionID, NewFrame(TypeError, ErrorNotice{
			Message: msg,
			Code:    session.CodeSessionCancelled,
		}), "")
		h.CloseSession(ev.SessionID, CloseSessionCancelled, "session cancelled")
	}
}
