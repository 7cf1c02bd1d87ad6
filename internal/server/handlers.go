package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/decoder"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/journal"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/logging"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/metrics"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/session"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/validation"
	"github.com/lazysuperheroes/hedera-multisig-sub003/pkg/connstr"
)

const maxLabelLength = 200

// -----------------------------------------------------------------------------
// Coordinator auth
// -----------------------------------------------------------------------------

// coordinatorAuth guards the mutating routes with a constant-time bearer
// check against the coordinator key. Runs open only in development with no
// key configured; production refuses to boot without one.
func (s *Server) coordinatorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := s.cfg.CoordinatorKey
		if key == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   session.CodeAuthFailed,
				"message": "coordinator key is not configured",
			})
			return
		}

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   session.CodeAuthFailed,
				"message": "coordinator key required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Error rendering
// -----------------------------------------------------------------------------

// httpStatus maps a stable error code to an HTTP status.
func httpStatus(code string) int {
	switch code {
	case session.CodeAuthFailed:
		return http.StatusUnauthorized
	case session.CodeSessionNotFound:
		return http.StatusNotFound
	case session.CodeNotEligible, session.CodeNotAccepting, session.CodeDuplicateSignature,
		session.CodeSessionExpired, session.CodeSessionCancelled:
		return http.StatusConflict
	case session.CodeSessionLimit:
		return http.StatusTooManyRequests
	case session.CodeNetworkError:
		return http.StatusBadGateway
	case session.CodeInvalidRequest, session.CodeInvalidSignature, session.CodeUnknownMessage:
		return http.StatusBadRequest
	case decoder.CodeDecodeFail, decoder.CodeSelectorMismatch, decoder.CodeUnknownType:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// apiError renders err with its stable code; the code picks the HTTP status.
func apiError(c *gin.Context, err error) {
	code := session.CodeOf(err)
	c.JSON(httpStatus(code), gin.H{"error": code, "message": bareMessage(err)})
}

// bareMessage strips the code prefix typed errors carry in Error().
func bareMessage(err error) string {
	var se *session.Error
	if errors.As(err, &se) {
		return se.Message
	}
	var de *decoder.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   session.CodeInvalidRequest,
		"message": fmt.Sprintf(format, args...),
	})
}

// -----------------------------------------------------------------------------
// Session handlers
// -----------------------------------------------------------------------------

type createSessionRequest struct {
	PIN                  string   `json:"pin"`
	Label                string   `json:"label"`
	Threshold            int      `json:"threshold"`
	EligiblePublicKeys   []string `json:"eligiblePublicKeys"`
	ExpectedParticipants int      `json:"expectedParticipants"`
	TimeoutSeconds       int      `json:"timeoutSeconds"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body does not parse: %v", err)
		return
	}

	if errs := validation.Validate(
		validation.ValidPIN("pin", req.PIN),
		validation.MaxLength("label", req.Label, maxLabelLength),
	); len(errs) > 0 {
		badRequest(c, "%s", errs.Error())
		return
	}
	// The manager silently drops keys it cannot normalize, which would turn
	// a typo into a weaker threshold. Refuse them at the boundary instead.
	for _, key := range req.EligiblePublicKeys {
		if !validation.IsValidPublicKey(key) {
			badRequest(c, "eligible public key %q is not valid hex", key)
			return
		}
	}

	info, err := s.manager.Create(c.Request.Context(), session.CreateParams{
		PIN:                  req.PIN,
		Label:                validation.SanitizeString(req.Label, maxLabelLength),
		Threshold:            req.Threshold,
		EligibleKeys:         req.EligiblePublicKeys,
		ExpectedParticipants: req.ExpectedParticipants,
		Timeout:              time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		apiError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("session created",
		"session_id", info.SessionID,
		"threshold", info.Threshold,
		"eligible_keys", len(info.EligiblePublicKeys))

	c.JSON(http.StatusCreated, gin.H{
		"session":    info,
		"connection": connstr.Build(s.signalURL(c), info.SessionID, req.PIN),
	})
}

// signalURL is the server URL participants dial: the configured public URL,
// or the request host in development.
func (s *Server) signalURL(c *gin.Context) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "ws"
	if c.Request.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) listSessions(c *gin.Context) {
	sessions := s.manager.List()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) getSession(c *gin.Context) {
	info, err := s.manager.Info(c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": info})
}

type injectTransactionRequest struct {
	TransactionBase64 string            `json:"transactionBase64"`
	Metadata          map[string]string `json:"metadata"`
	ContractABI       string            `json:"contractAbi"`
}

func (s *Server) injectTransaction(c *gin.Context) {
	var req injectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body does not parse: %v", err)
		return
	}
	if req.TransactionBase64 == "" {
		badRequest(c, "transactionBase64 is required")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.TransactionBase64)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(req.TransactionBase64)
	}
	if err != nil {
		badRequest(c, "transactionBase64 is not valid base64")
		return
	}

	info, err := s.manager.InjectTransaction(c.Request.Context(), c.Param("id"), raw, req.Metadata, req.ContractABI)
	if err != nil {
		// Only decode errors count as decode attempts; session-layer
		// refusals happen before any bytes are parsed.
		var derr *decoder.Error
		if errors.As(err, &derr) {
			metrics.TransactionsDecodedTotal.WithLabelValues("fail").Inc()
		}
		apiError(c, err)
		return
	}
	result := "ok"
	if info.TxDetails != nil && info.TxDetails.Type == decoder.TagUnknown {
		result = "opaque"
	}
	metrics.TransactionsDecodedTotal.WithLabelValues(result).Inc()

	c.JSON(http.StatusOK, gin.H{"session": info})
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelSession(c *gin.Context) {
	var req cancelSessionRequest
	// Body is optional; an empty reason gets a default.
	_ = c.ShouldBindJSON(&req)
	reason := validation.SanitizeString(req.Reason, validation.MaxStringLength)
	if reason == "" {
		reason = "cancelled by coordinator"
	}

	if err := s.manager.Cancel(c.Request.Context(), c.Param("id"), reason); err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "sessionId": c.Param("id")})
}

// -----------------------------------------------------------------------------
// Journal handlers
// -----------------------------------------------------------------------------

func (s *Server) recentJournal(c *gin.Context) {
	entries, next, err := s.journal.Recent(c.Request.Context(), queryLimit(c), c.Query("cursor"))
	if err != nil {
		if errors.Is(err, journal.ErrBadCursor) {
			badRequest(c, "cursor is not valid")
			return
		}
		s.journalError(c, err)
		return
	}
	resp := gin.H{"entries": presentEntries(entries), "count": len(entries)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) sessionJournal(c *gin.Context) {
	entries, err := s.journal.BySession(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		s.journalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": presentEntries(entries), "count": len(entries)})
}

func (s *Server) journalError(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("journal query failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   session.CodeInternal,
		"message": "journal is unavailable",
	})
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return limit
}

// presentEntries keeps an empty result rendering as [] instead of null.
func presentEntries(entries []*journal.Entry) []*journal.Entry {
	if entries == nil {
		return []*journal.Entry{}
	}
	return entries
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
