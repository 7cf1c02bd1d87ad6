package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:         ts.URL,
		CoordinatorKey: "test-coordinator-key",
	}
	client := NewCoordinatorClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// signingSessionJSON is a mid-flight session the way the coordinator returns
// it: two participants, one signature collected, a decoded transfer.
const signingSessionJSON = `{
	"sessionId": "sess_9f3ab1c2d4e5f607",
	"status": "signing",
	"label": "Treasury payout",
	"threshold": 2,
	"eligiblePublicKeys": ["aaaa1111", "bbbb2222"],
	"expectedParticipants": 2,
	"createdAt": "2026-08-24T10:00:00Z",
	"expiresAt": "2026-08-24T10:15:00Z",
	"stats": {"connected": 2, "ready": 2, "expected": 2, "signaturesCollected": 1, "signaturesRequired": 2},
	"participants": [
		{"participantId": "part_01", "role": "participant", "label": "alice-phone", "status": "signed", "publicKey": "aaaa1111"},
		{"participantId": "part_02", "role": "participant", "status": "ready", "publicKey": "bbbb2222"}
	],
	"txDetails": {
		"type": "TransferTransaction",
		"transactionId": "0.0.1001@1724490000.123456789",
		"payerAccountId": "0.0.1001",
		"memo": "payout",
		"maxFee": "1",
		"checksum": "a1b2c3d4e5f6a7b8",
		"shortChecksum": "a1b2c3",
		"selectorVerified": false,
		"transfers": [
			{"accountId": "0.0.1001", "amount": "-10"},
			{"accountId": "0.0.2002", "amount": "10"}
		]
	}
}`

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"sessions":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "sekrit123"})
	_, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekrit123", gotAuth)
}

func TestClient_DoRequest_NoKeyNoAuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"sessions":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL})
	_, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth, "no coordinator key should mean no Authorization header")
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "AUTH_FAILED",
			"message": "coordinator key required",
		})
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "bad"})
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "coordinator key required")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewCoordinatorClient(Config{APIURL: "http://127.0.0.1:1", CoordinatorKey: "k"})
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	_, err := client.ListSessions(ctx)
	require.Error(t, err)
}

func TestClient_CreateSession_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, float64(2), m["threshold"])
		assert.Equal(t, []any{"aaaa1111", "bbbb2222"}, m["eligiblePublicKeys"])
		assert.Equal(t, "483921", m["pin"])
		assert.Equal(t, float64(90), m["timeoutSeconds"])

		_, _ = w.Write([]byte(`{"session": ` + signingSessionJSON + `, "connection": "hmsc:abc"}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.CreateSession(context.Background(), CreateSessionRequest{
		PIN:                "483921",
		Threshold:          2,
		EligiblePublicKeys: []string{"aaaa1111", "bbbb2222"},
		TimeoutSeconds:     90,
	})
	require.NoError(t, err)
}

func TestClient_CreateSession_OmitsEmptyOptionals(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		_, hasPIN := m["pin"]
		assert.False(t, hasPIN, "empty pin should be omitted")
		_, hasLabel := m["label"]
		assert.False(t, hasLabel, "empty label should be omitted")

		_, _ = w.Write([]byte(`{"session": ` + signingSessionJSON + `, "connection": "hmsc:abc"}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.CreateSession(context.Background(), CreateSessionRequest{
		Threshold:          1,
		EligiblePublicKeys: []string{"aaaa1111"},
	})
	require.NoError(t, err)
}

func TestClient_InjectTransaction_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions/sess_9f3ab1c2d4e5f607/transaction", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "dGVzdA==", m["transactionBase64"])
		md, _ := m["metadata"].(map[string]any)
		assert.Equal(t, "10", md["amount"])
		_, hasABI := m["contractAbi"]
		assert.False(t, hasABI, "empty ABI should be omitted")

		_, _ = w.Write([]byte(`{"session": ` + signingSessionJSON + `}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.InjectTransaction(context.Background(),
		"sess_9f3ab1c2d4e5f607", "dGVzdA==", map[string]string{"amount": "10"}, "")
	require.NoError(t, err)
}

func TestClient_CancelSession_EmptyReasonSendsNoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		_, _ = w.Write([]byte(`{"status":"cancelled","sessionId":"sess_x"}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.CancelSession(context.Background(), "sess_x", "")
	require.NoError(t, err)
}

func TestClient_SessionJournal_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/sess_x/journal", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"entries":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.SessionJournal(context.Background(), "sess_x", 7)
	require.NoError(t, err)
}

func TestClient_RecentJournal_ZeroLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/journal", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`{"entries":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewCoordinatorClient(Config{APIURL: ts.URL, CoordinatorKey: "k"})
	_, err := client.RecentJournal(context.Background(), 0)
	require.NoError(t, err)
}

// ============================================================
// Handler: create_session
// ============================================================

func TestHandleCreateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-coordinator-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, float64(2), m["threshold"])
		assert.Equal(t, []any{"aaaa1111", "bbbb2222"}, m["eligiblePublicKeys"])
		assert.Equal(t, "Treasury payout", m["label"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"session": {
				"sessionId": "sess_9f3ab1c2d4e5f607",
				"status": "waiting",
				"label": "Treasury payout",
				"threshold": 2,
				"eligiblePublicKeys": ["aaaa1111", "bbbb2222"],
				"expectedParticipants": 2,
				"expiresAt": "2026-08-24T10:15:00Z",
				"stats": {"connected": 0, "ready": 0, "expected": 2, "signaturesCollected": 0, "signaturesRequired": 2},
				"participants": []
			},
			"connection": "hmsc:eyJzZXJ2ZXJVcmwiOiJ3czovL2xvY2FsaG9zdDo4MDgwL3dzIn0"
		}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateSession(context.Background(), makeRequest(map[string]any{
		"threshold":            float64(2), // JSON numbers come as float64
		"eligible_public_keys": "aaaa1111, bbbb2222",
		"pin":                  "483921",
		"label":                "Treasury payout",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Session ID: sess_9f3ab1c2d4e5f607")
	assert.Contains(t, text, "Threshold: 2 of 2 eligible key(s)")
	assert.Contains(t, text, "PIN: 483921")
	assert.Contains(t, text, "Connection string")
	assert.Contains(t, text, "hmsc:eyJzZXJ2ZXJVcmwi")
}

func TestHandleCreateSession_MissingThreshold(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleCreateSession(context.Background(), makeRequest(map[string]any{
		"eligible_public_keys": "aaaa1111",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "threshold is required")
}

func TestHandleCreateSession_MissingKeys(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleCreateSession(context.Background(), makeRequest(map[string]any{
		"threshold": float64(1),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "eligible_public_keys is required")
}

func TestHandleCreateSession_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "SESSION_LIMIT",
			"message": "session limit reached, try again later",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateSession(context.Background(), makeRequest(map[string]any{
		"threshold":            float64(1),
		"eligible_public_keys": "aaaa1111",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session limit reached")
}

// ============================================================
// Handler: get_session
// ============================================================

func TestHandleGetSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_9f3ab1c2d4e5f607", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"session": ` + signingSessionJSON + `}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_9f3ab1c2d4e5f607",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Session sess_9f3ab1c2d4e5f607")
	assert.Contains(t, text, "Status: signing")
	assert.Contains(t, text, "Signatures: 1 of 2")
	assert.Contains(t, text, "2 connected, 2 ready (2 expected)")
	assert.Contains(t, text, "TransferTransaction (checksum a1b2c3)")
	assert.Contains(t, text, "alice-phone [participant] signed")
	assert.Contains(t, text, "part_02 [participant] ready")
}

func TestHandleGetSession_MissingID(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleGetSession(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session_id is required")
}

func TestHandleGetSession_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "SESSION_NOT_FOUND",
			"message": "session sess_gone not found",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_gone",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session sess_gone not found")
}

func TestHandleGetSession_NoTransactionYet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session": {
			"sessionId": "sess_empty",
			"status": "waiting",
			"threshold": 1,
			"eligiblePublicKeys": ["aaaa1111"],
			"expectedParticipants": 1,
			"stats": {"connected": 0, "ready": 0, "expected": 1, "signaturesCollected": 0, "signaturesRequired": 1},
			"participants": []
		}}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_empty",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "none injected yet")
}

// ============================================================
// Handler: list_sessions
// ============================================================

func TestHandleListSessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessions": [` + signingSessionJSON + `, {
			"sessionId": "sess_0000aaaa1111bbbb",
			"status": "waiting",
			"threshold": 1,
			"eligiblePublicKeys": ["cccc3333"],
			"expectedParticipants": 1,
			"stats": {"connected": 0, "ready": 0, "expected": 1, "signaturesCollected": 0, "signaturesRequired": 1},
			"participants": []
		}], "count": 2}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListSessions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 session(s)")
	assert.Contains(t, text, "sess_9f3ab1c2d4e5f607")
	assert.Contains(t, text, "Status: signing | Signatures: 1/2 | Connected: 2")
	assert.Contains(t, text, "sess_0000aaaa1111bbbb")
	assert.Contains(t, text, "Status: waiting | Signatures: 0/1 | Connected: 0")
}

func TestHandleListSessions_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessions": [], "count": 0}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListSessions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No live signing sessions.")
}

func TestHandleListSessions_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "AUTH_FAILED",
			"message": "invalid coordinator key",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListSessions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid coordinator key")
}

// ============================================================
// Handler: inject_transaction
// ============================================================

func TestHandleInjectTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_9f3ab1c2d4e5f607/transaction", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "dGVzdA==", m["transactionBase64"])
		md, _ := m["metadata"].(map[string]any)
		assert.Equal(t, "10", md["amount"], "numeric metadata should arrive stringified")

		_, _ = w.Write([]byte(`{"session": ` + signingSessionJSON + `}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleInjectTransaction(context.Background(), makeRequest(map[string]any{
		"session_id":         "sess_9f3ab1c2d4e5f607",
		"transaction_base64": "dGVzdA==",
		"metadata":           map[string]any{"amount": float64(10)},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Transaction injected into sess_9f3ab1c2d4e5f607")
	assert.Contains(t, text, "Transaction: TransferTransaction")
	assert.Contains(t, text, "HBAR transfers:")
	assert.Contains(t, text, "0.0.1001: -10 HBAR")
	assert.Contains(t, text, "0.0.2002: 10 HBAR")
}

func TestHandleInjectTransaction_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleInjectTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_base64": "dGVzdA==",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session_id is required")

	result, err = h.HandleInjectTransaction(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "transaction_base64 is required")
}

func TestHandleInjectTransaction_AlreadyHasTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_x/transaction", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "NOT_ACCEPTING",
			"message": "session already has a transaction",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleInjectTransaction(context.Background(), makeRequest(map[string]any{
		"session_id":         "sess_x",
		"transaction_base64": "dGVzdA==",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already has a transaction")
}

// ============================================================
// Handler: cancel_session
// ============================================================

func TestHandleCancelSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_x/cancel", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "superseded by a new payout", m["reason"])

		_, _ = w.Write([]byte(`{"status":"cancelled","sessionId":"sess_x"}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCancelSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_x",
		"reason":     "superseded by a new payout",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Session sess_x cancelled.")
	assert.Contains(t, text, "superseded by a new payout")
}

func TestHandleCancelSession_DefaultReason(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_x/cancel", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"cancelled","sessionId":"sess_x"}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCancelSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_x",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "cancelled by coordinator")
}

func TestHandleCancelSession_MissingID(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleCancelSession(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session_id is required")
}

func TestHandleCancelSession_AlreadyGone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_x/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "SESSION_NOT_FOUND",
			"message": "session sess_x not found",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCancelSession(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

// ============================================================
// Handler: get_transaction_summary
// ============================================================

func TestHandleGetTransactionSummary_ContractCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_call", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session": {
			"sessionId": "sess_call",
			"status": "transaction-received",
			"threshold": 2,
			"eligiblePublicKeys": ["aaaa1111", "bbbb2222"],
			"expectedParticipants": 2,
			"stats": {"connected": 2, "ready": 0, "expected": 2, "signaturesCollected": 0, "signaturesRequired": 2},
			"participants": [],
			"metadata": {"amount": "5"},
			"metadataReport": {
				"valid": false,
				"warnings": ["metadata is coordinator-supplied and unverified; review the decoded transaction"],
				"mismatches": {
					"amount": {"expected": "10 HBAR payable", "actual": "5"}
				}
			},
			"txDetails": {
				"type": "ContractExecuteTransaction",
				"transactionId": "0.0.1001@1724490000.555",
				"payerAccountId": "0.0.1001",
				"maxFee": "2",
				"checksum": "deadbeefcafe0123",
				"shortChecksum": "deadbe",
				"contractId": "0.0.4242",
				"gas": 200000,
				"payableAmount": "10",
				"functionName": "transfer",
				"functionSignature": "transfer(address,uint256)",
				"selector": "0xa9059cbb",
				"selectorVerified": true,
				"parameters": [
					{"name": "to", "type": "address", "value": "0x1111111111111111111111111111111111111111"},
					{"name": "amount", "type": "uint256", "value": "1000000"}
				]
			}
		}}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetTransactionSummary(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_call",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Transaction: ContractExecuteTransaction")
	assert.Contains(t, text, "Contract: 0.0.4242")
	assert.Contains(t, text, "Function: transfer(address,uint256)")
	assert.Contains(t, text, "Selector: 0xa9059cbb (verified against the provided ABI)")
	assert.Contains(t, text, "Gas: 200000")
	assert.Contains(t, text, "Payable: 10 HBAR")
	assert.Contains(t, text, "uint256 amount = 1000000")
	assert.Contains(t, text, "Metadata check: FAILED")
	assert.Contains(t, text, `metadata claims "5" but the transaction says "10 HBAR payable"`)
	assert.Contains(t, text, "Warning: metadata is coordinator-supplied")
}

func TestHandleGetTransactionSummary_UnverifiedSelector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_call", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session": {
			"sessionId": "sess_call",
			"status": "transaction-received",
			"threshold": 1,
			"eligiblePublicKeys": ["aaaa1111"],
			"expectedParticipants": 1,
			"stats": {"connected": 0, "ready": 0, "expected": 1, "signaturesCollected": 0, "signaturesRequired": 1},
			"participants": [],
			"txDetails": {
				"type": "ContractExecuteTransaction",
				"checksum": "deadbeefcafe0123",
				"shortChecksum": "deadbe",
				"contractId": "0.0.4242",
				"gas": 100000,
				"selector": "0xcafebabe",
				"selectorVerified": false
			}
		}}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetTransactionSummary(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_call",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Selector: 0xcafebabe (not verified: no contract ABI was provided)")
}

func TestHandleGetTransactionSummary_NoTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session": {
			"sessionId": "sess_empty",
			"status": "waiting",
			"threshold": 1,
			"eligiblePublicKeys": ["aaaa1111"],
			"expectedParticipants": 1,
			"stats": {"connected": 0, "ready": 0, "expected": 1, "signaturesCollected": 0, "signaturesRequired": 1},
			"participants": []
		}}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetTransactionSummary(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_empty",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "no transaction yet")
	assert.Contains(t, text, "inject_transaction")
}

func TestHandleGetTransactionSummary_MissingID(t *testing.T) {
	h, cleanup := newTestSetup(http.NewServeMux())
	defer cleanup()

	result, err := h.HandleGetTransactionSummary(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "session_id is required")
}

// ============================================================
// Handler: get_journal
// ============================================================

func TestHandleGetJournal_ForSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess_x/journal", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"entries": [
			{"id": 2, "sessionId": "sess_x", "event": "cancelled", "createdAt": "2026-08-24T10:05:00Z"},
			{"id": 1, "sessionId": "sess_x", "event": "session_created", "createdAt": "2026-08-24T10:00:00Z"}
		], "count": 2}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetJournal(context.Background(), makeRequest(map[string]any{
		"session_id": "sess_x",
		"limit":      float64(5), // JSON numbers come as float64
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 journal record(s)")
	assert.Contains(t, text, "sess_x: cancelled")
	assert.Contains(t, text, "sess_x: session_created")
}

func TestHandleGetJournal_Recent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"), "default limit should be sent")
		_, _ = w.Write([]byte(`{"entries": [
			{"id": 7, "sessionId": "sess_a", "event": "executed", "txType": "TransferTransaction",
			 "transactionId": "0.0.1001@1724490000.123456789", "createdAt": "2026-08-24T10:10:00Z"}
		], "count": 1}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetJournal(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "sess_a: executed")
	assert.Contains(t, text, "(TransferTransaction)")
	assert.Contains(t, text, "tx 0.0.1001@1724490000.123456789")
}

func TestHandleGetJournal_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entries": [], "count": 0}`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetJournal(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No journal entries.")
}

func TestHandleGetJournal_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "INTERNAL",
			"message": "journal store unavailable",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetJournal(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "journal store unavailable")
}

// ============================================================
// Formatting helpers
// ============================================================

func TestParseSessionEnvelope_Wrapped(t *testing.T) {
	v, err := parseSessionEnvelope(json.RawMessage(`{"session": ` + signingSessionJSON + `}`))
	require.NoError(t, err)
	assert.Equal(t, "sess_9f3ab1c2d4e5f607", v.SessionID)
	assert.Equal(t, "signing", v.Status)
	assert.Equal(t, 1, v.Stats.SignaturesCollected)
}

func TestParseSessionEnvelope_Bare(t *testing.T) {
	v, err := parseSessionEnvelope(json.RawMessage(signingSessionJSON))
	require.NoError(t, err)
	assert.Equal(t, "sess_9f3ab1c2d4e5f607", v.SessionID)
}

func TestParseSessionEnvelope_Malformed(t *testing.T) {
	_, err := parseSessionEnvelope(json.RawMessage(`not json`))
	assert.Error(t, err)

	_, err = parseSessionEnvelope(json.RawMessage(`{"unrelated": true}`))
	assert.Error(t, err)
}

func TestFormatSessionList_MalformedJSON(t *testing.T) {
	_, err := formatSessionList(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestFormatJournal_MalformedJSON(t *testing.T) {
	_, err := formatJournal(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestFormatTransactionDetails_TokenMint(t *testing.T) {
	v := sessionView{
		SessionID: "sess_mint",
		Status:    "signing",
		TxDetails: &txView{
			Type:          "TokenMintTransaction",
			Checksum:      "0011223344556677",
			ShortChecksum: "001122",
			TokenID:       "0.0.5005",
			TokenSymbol:   "PIX",
			Amount:        "250000",
		},
	}
	text := formatTransactionDetails(v)
	assert.Contains(t, text, "Transaction: TokenMintTransaction")
	assert.Contains(t, text, "Token: 0.0.5005 (PIX)")
	assert.Contains(t, text, "Amount: 250000")
	assert.NotContains(t, text, "Contract call")
	assert.NotContains(t, text, "Metadata check")
}

func TestSplitKeys(t *testing.T) {
	assert.Equal(t, []string{"aa", "bb", "cc"}, splitKeys("aa, bb,cc"))
	assert.Equal(t, []string{"aa", "bb"}, splitKeys("aa\nbb"))
	assert.Empty(t, splitKeys("  ,  "))
}

func TestShortKey(t *testing.T) {
	assert.Equal(t, "deadbeef", shortKey("deadbeef"))
	long := "302a300506032b6570032100aabbccddeeff00112233445566778899"
	short := shortKey(long)
	assert.Contains(t, short, "...")
	assert.Less(t, len(short), len(long))
}
