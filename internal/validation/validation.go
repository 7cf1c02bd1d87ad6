// Package validation provides input validation middleware and helpers for
// the signing coordinator API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size. Frozen transaction bytes
// cap at 512KB and base64 inflates them by a third, so 1MB leaves headroom.
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-form string fields
const MaxStringLength = 10000

var (
	// sessionIDRegex validates coordinator-issued session IDs
	sessionIDRegex = regexp.MustCompile(`^sess_[a-f0-9]{16}$`)
	// pinRegex validates session PINs: 4 to 10 digits
	pinRegex = regexp.MustCompile(`^[0-9]{4,10}$`)
	// hexRegex validates hex strings (public keys, signatures)
	hexRegex = regexp.MustCompile(`^(0x)?[a-fA-F0-9]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidSessionID checks if a string has the coordinator session ID shape
func IsValidSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// IsValidPIN checks if a string is an acceptable session PIN
func IsValidPIN(pin string) bool {
	return pinRegex.MatchString(pin)
}

// IsValidHex checks if a string is valid hex
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}

// IsValidPublicKey checks if a string looks like a hex-encoded signer key.
// Raw ed25519 keys are 64 hex chars, DER-wrapped ones 88, compressed and
// uncompressed secp256k1 keys 66 and 130. Curve-level checks happen when
// the key is actually used; this only rejects obvious garbage early.
func IsValidPublicKey(key string) bool {
	key = strings.TrimPrefix(strings.TrimSpace(key), "0x")
	if !IsValidHex(key) {
		return false
	}
	n := len(key)
	return n%2 == 0 && n >= 64 && n <= 130
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidPublicKey checks if a field is a plausible hex public key
func ValidPublicKey(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidPublicKey(value) {
			return &ValidationError{Field: field, Message: "must be a hex-encoded public key"}
		}
		return nil
	}
}

// ValidPIN checks if a field is an acceptable PIN
func ValidPIN(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // PIN-less sessions are allowed
		}
		if !IsValidPIN(value) {
			return &ValidationError{Field: field, Message: "must be 4 to 10 digits"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// SessionParamMiddleware validates the :id URL parameter on routes that use
// it, rejecting malformed session IDs before they reach a handler.
func SessionParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidSessionID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "INVALID_REQUEST",
				"message": "session id is malformed",
			})
			return
		}
		c.Next()
	}
}
