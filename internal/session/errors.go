package session

import (
	"errors"
	"fmt"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
)

// Stable error codes, surfaced verbatim on the wire. Decoder codes
// (DECODE_FAIL, SELECTOR_MISMATCH, UNKNOWN_TYPE) pass through unchanged.
const (
	CodeAuthFailed         = "AUTH_FAILED"
	CodeNotEligible        = "NOT_ELIGIBLE"
	CodeDuplicateSignature = "DUPLICATE_SIGNATURE"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeNotAccepting       = "SESSION_NOT_ACCEPTING_SIGNATURES"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionCancelled   = "SESSION_CANCELLED"
	CodeSessionLimit       = "SESSION_LIMIT"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeUnknownMessage     = "UNKNOWN_MESSAGE"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternal           = "INTERNAL"
)

// Error is a session failure with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Errf builds an Error with a formatted message.
func Errf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound is returned by store lookups for unknown session IDs.
var ErrNotFound = &Error{Code: CodeSessionNotFound, Message: "session not found"}

// ErrAuthFailed is the single authentication failure: unknown session, wrong
// PIN, and non-authenticatable status are indistinguishable to the caller.
var ErrAuthFailed = &Error{Code: CodeAuthFailed, Message: "authentication failed"}

// CodeOf extracts the stable code from any error in the stack. Decoder
// errors keep their own codes; everything unrecognized is INTERNAL.
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	var de *decoder.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
