package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/circuitbreaker"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/retry"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/traces"
)

// Receipt is the executor's acknowledgement of a submitted transaction.
type Receipt struct {
	TransactionID      string          `json:"transactionId"`
	Status             string          `json:"status"`
	ConsensusTimestamp string          `json:"consensusTimestamp,omitempty"`
	Raw                json.RawMessage `json:"raw,omitempty"`
}

// Network submits a fully signed frozen transaction. Signatures are keyed by
// normalized public key.
type Network interface {
	Submit(ctx context.Context, frozen []byte, signatures map[string][]byte) (*Receipt, error)
}

type submitRequest struct {
	Network           string            `json:"network"`
	TransactionBase64 string            `json:"transactionBase64"`
	Signatures        map[string]string `json:"signatures"` // public key hex → base64 signature
}

// RelayNetwork submits through an HTTP executor service that holds the node
// connection. Client errors from the executor are permanent: resubmitting
// the same bytes will not change its mind. A circuit breaker sheds
// submissions while the executor itself is down.
type RelayNetwork struct {
	url     string
	token   string
	network string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewRelayNetwork creates a relay submitter for the executor at url.
func NewRelayNetwork(url, token, networkName string, logger *slog.Logger) *RelayNetwork {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(0, 0)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("executor circuit state changed",
			"network", key, "from", from.String(), "to", to.String())
	})
	return &RelayNetwork{
		url:     url,
		token:   token,
		network: networkName,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

// Submit implements Network.
func (r *RelayNetwork) Submit(ctx context.Context, frozen []byte, signatures map[string][]byte) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "chain.submit", traces.Network(r.network))
	defer span.End()

	// Retryable so the execution loop keeps probing: the circuit half-opens
	// once its cooldown elapses.
	if !r.breaker.Allow(r.network) {
		return nil, fmt.Errorf("executor circuit open for %s", r.network)
	}

	payload := submitRequest{
		Network:           r.network,
		TransactionBase64: base64.StdEncoding.EncodeToString(frozen),
		Signatures:        make(map[string]string, len(signatures)),
	}
	for key, sig := range signatures {
		payload.Signatures[key] = base64.StdEncoding.EncodeToString(sig)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode submission: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build submission request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.breaker.RecordFailure(r.network)
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		r.breaker.RecordFailure(r.network)
		return nil, fmt.Errorf("read executor response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		r.breaker.RecordSuccess(r.network)
		rec := &Receipt{}
		if json.Valid(respBody) {
			if err := json.Unmarshal(respBody, rec); err == nil {
				rec.Raw = respBody
			}
		}
		if rec.Status == "" {
			rec.Status = "SUCCESS"
		}
		r.logger.Info("transaction submitted",
			"network", r.network, "status", rec.Status, "transaction_id", rec.TransactionID)
		return rec, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// A 4xx proves the executor is up; only transport failures and 5xx
		// count against the circuit.
		r.breaker.RecordSuccess(r.network)
		return nil, retry.Permanent(fmt.Errorf("executor rejected submission: %s: %s",
			resp.Status, snippet(respBody)))

	default:
		r.breaker.RecordFailure(r.network)
		return nil, fmt.Errorf("executor error: %s: %s", resp.Status, snippet(respBody))
	}
}

// SimulatedNetwork acknowledges every submission without touching a ledger.
// It backs development mode when no executor is configured, the same way the
// in-memory stores back it when no database is.
type SimulatedNetwork struct {
	network string
}

// NewSimulatedNetwork creates the development-mode network.
func NewSimulatedNetwork(networkName string) *SimulatedNetwork {
	return &SimulatedNetwork{network: networkName}
}

// Submit implements Network. Always succeeds with a deterministic
// transaction ID derived from the frozen bytes.
func (s *SimulatedNetwork) Submit(_ context.Context, frozen []byte, _ map[string][]byte) (*Receipt, error) {
	sum := sha256.Sum256(frozen)
	return &Receipt{
		TransactionID:      "sim-" + hex.EncodeToString(sum[:8]),
		Status:             "SUCCESS",
		ConsensusTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
