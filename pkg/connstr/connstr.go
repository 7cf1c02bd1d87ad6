// Package connstr builds and parses the portable connection strings that
// invite a signer into a session. A connection string is the "hmsc:" scheme
// followed by base64 JSON, compact enough for a QR code and safe to paste
// into chat. This is the foundation client SDKs build on.
package connstr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Scheme prefixes every connection string.
const Scheme = "hmsc:"

// Details is the decoded content of a connection string.
type Details struct {
	ServerURL string `json:"s"`
	SessionID string `json:"i"`
	PIN       string `json:"p,omitempty"`
}

// Build encodes a connection string for the given session.
func Build(serverURL, sessionID, pin string) string {
	payload, _ := json.Marshal(Details{ServerURL: serverURL, SessionID: sessionID, PIN: pin})
	return Scheme + base64.StdEncoding.EncodeToString(payload)
}

// Parse decodes a connection string. The scheme match is case-insensitive
// and both standard and raw (unpadded) base64 are accepted. A missing PIN is
// tolerated; the participant will be prompted for one. An empty server URL
// or session ID is not.
func Parse(s string) (*Details, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(Scheme) || !strings.EqualFold(s[:len(Scheme)], Scheme) {
		return nil, fmt.Errorf("connstr: missing %q scheme", Scheme)
	}
	encoded := s[len(Scheme):]

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("connstr: decode payload: %w", err)
	}

	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("connstr: parse payload: %w", err)
	}
	if d.ServerURL == "" {
		return nil, fmt.Errorf("connstr: missing server url")
	}
	if d.SessionID == "" {
		return nil, fmt.Errorf("connstr: missing session id")
	}
	return &d, nil
}
