package signaling

import (
	"encoding/json"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/chain"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
)

// Frame is one WebSocket message: a type tag plus a type-specific payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server frame types. AUTH must be the first frame on every
// connection. PARTICIPANT_READY and TRANSACTION_REJECTED double as server
// broadcasts with different payloads.
const (
	TypeAuth                = "AUTH"
	TypeParticipantReady    = "PARTICIPANT_READY"
	TypeSignatureSubmit     = "SIGNATURE_SUBMIT"
	TypeTransactionRejected = "TRANSACTION_REJECTED"
	TypePing                = "PING"
)

// Server → client frame types.
const (
	TypeAuthSuccess             = "AUTH_SUCCESS"
	TypeAuthFailed              = "AUTH_FAILED"
	TypeTransactionReceived     = "TRANSACTION_RECEIVED"
	TypeSignatureAccepted       = "SIGNATURE_ACCEPTED"
	TypeSignatureRejected       = "SIGNATURE_REJECTED"
	TypeThresholdMet            = "THRESHOLD_MET"
	TypeTransactionExecuted     = "TRANSACTION_EXECUTED"
	TypeParticipantConnected    = "PARTICIPANT_CONNECTED"
	TypeParticipantDisconnected = "PARTICIPANT_DISCONNECTED"
	TypeSessionExpired          = "SESSION_EXPIRED"
	TypeError                   = "ERROR"
	TypePong                    = "PONG"
)

// Session-scoped close codes, alongside the standard 1000/1001.
const (
	CloseSessionExpired   = 4000
	CloseAuthFailure      = 4001
	CloseKeepAliveTimeout = 4002
	CloseSlowConsumer     = 4003
	CloseSessionCancelled = 4010
)

// NewFrame wraps a payload struct into a Frame. Payloads are our own types;
// a marshal failure here is a programming error and yields an empty payload.
func NewFrame(frameType string, payload any) Frame {
	f := Frame{Type: frameType}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			f.Payload = data
		}
	}
	return f
}

// AuthRequest is the payload of a client AUTH frame.
type AuthRequest struct {
	SessionID string `json:"sessionId"`
	PIN       string `json:"pin"`
	Role      string `json:"role,omitempty"`
	Label     string `json:"label,omitempty"`
}

// ReadyRequest is the payload of a client PARTICIPANT_READY frame.
type ReadyRequest struct {
	PublicKey string `json:"publicKey"`
}

// SubmitRequest is the payload of a client SIGNATURE_SUBMIT frame.
type SubmitRequest struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"` // base64
}

// RejectRequest is the payload of a client TRANSACTION_REJECTED frame.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AuthSuccess answers a successful AUTH.
type AuthSuccess struct {
	ParticipantID string               `json:"participantId"`
	SessionInfo   *session.SessionInfo `json:"sessionInfo"`
}

// AuthFailed answers a failed AUTH; the connection closes right after.
type AuthFailed struct {
	Message string `json:"message"`
}

// TransactionReceived carries the injected transaction to every participant.
type TransactionReceived struct {
	FrozenTransaction *session.FrozenTransaction `json:"frozenTransaction"`
	TxDetails         *decoder.Details           `json:"txDetails"`
	Metadata          map[string]string          `json:"metadata,omitempty"`
	MetadataReport    *decoder.MetadataReport    `json:"metadataReport,omitempty"`
	ContractInterface string                     `json:"contractInterface,omitempty"`
}

// SignatureAccepted acknowledges and announces an accepted signature.
type SignatureAccepted struct {
	Success             bool   `json:"success"`
	PublicKey           string `json:"publicKey"`
	SignaturesCollected int    `json:"signaturesCollected"`
	SignaturesRequired  int    `json:"signaturesRequired"`
	ThresholdMet        bool   `json:"thresholdMet"`
}

// SignatureRejected tells the submitter why their signature was refused.
type SignatureRejected struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	PublicKey string `json:"publicKey,omitempty"`
}

// ThresholdMet announces that signing is over and execution has started.
type ThresholdMet struct {
	SignaturesCollected int `json:"signaturesCollected"`
	SignaturesRequired  int `json:"signaturesRequired"`
}

// TransactionExecuted announces the execution receipt.
type TransactionExecuted struct {
	TransactionID string         `json:"transactionId"`
	Status        string         `json:"status"`
	Receipt       *chain.Receipt `json:"receipt,omitempty"`
}

// ParticipantConnected announces a new authenticated participant.
type ParticipantConnected struct {
	ParticipantID string        `json:"participantId"`
	Label         string        `json:"label,omitempty"`
	Stats         session.Stats `json:"stats"`
}

// ParticipantReadyNotice announces a participant going ready.
type ParticipantReadyNotice struct {
	ParticipantID string        `json:"participantId"`
	PublicKey     string        `json:"publicKey"`
	Warnings      []string      `json:"warnings,omitempty"`
	Stats         session.Stats `json:"stats"`
	AllReady      bool          `json:"allReady"`
}

// ParticipantDisconnected announces a dropped participant.
type ParticipantDisconnected struct {
	ParticipantID string        `json:"participantId"`
	Stats         session.Stats `json:"stats"`
}

// RejectionNotice relays one participant's refusal to the rest.
type RejectionNotice struct {
	ParticipantID string        `json:"participantId"`
	Reason        string        `json:"reason,omitempty"`
	Stats         session.Stats `json:"stats"`
}

// ErrorNotice is the generic error frame.
type ErrorNotice struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
