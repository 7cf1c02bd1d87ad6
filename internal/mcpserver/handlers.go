package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *CoordinatorClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *CoordinatorClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCreateSession opens a new signing session.
func (h *Handlers) HandleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threshold := req.GetInt("threshold", 0)
	if threshold < 1 {
		return mcp.NewToolResultError("threshold is required and must be at least 1"), nil
	}
	keys := splitKeys(req.GetString("eligible_public_keys", ""))
	if len(keys) == 0 {
		return mcp.NewToolResultError("eligible_public_keys is required"), nil
	}
	pin := req.GetString("pin", "")

	raw, err := h.client.CreateSession(ctx, CreateSessionRequest{
		PIN:                  pin,
		Label:                req.GetString("label", ""),
		Threshold:            threshold,
		EligiblePublicKeys:   keys,
		ExpectedParticipants: req.GetInt("expected_participants", 0),
		TimeoutSeconds:       req.GetInt("timeout_seconds", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create session: %v", err)), nil
	}

	text, err := formatSessionCreated(raw, pin)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetSession returns the current state of one session.
func (h *Handlers) HandleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get session: %v", err)), nil
	}

	v, err := parseSessionEnvelope(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	return mcp.NewToolResultText(formatSession(v)), nil
}

// HandleListSessions lists all live sessions.
func (h *Handlers) HandleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sessions: %v", err)), nil
	}

	text, err := formatSessionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse sessions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleInjectTransaction hands a frozen transaction to a session.
func (h *Handlers) HandleInjectTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	txBase64 := req.GetString("transaction_base64", "")
	if txBase64 == "" {
		return mcp.NewToolResultError("transaction_base64 is required"), nil
	}
	contractABI := req.GetString("contract_abi", "")

	// Metadata values arrive as arbitrary JSON; the coordinator wants strings.
	metadata := make(map[string]string)
	if raw := req.GetArguments()["metadata"]; raw != nil {
		if m, ok := raw.(map[string]any); ok {
			for k, val := range m {
				if s, ok := val.(string); ok {
					metadata[k] = s
				} else {
					metadata[k] = fmt.Sprintf("%v", val)
				}
			}
		}
	}

	raw, err := h.client.InjectTransaction(ctx, sessionID, txBase64, metadata, contractABI)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to inject transaction: %v", err)), nil
	}

	v, err := parseSessionEnvelope(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction injected into %s. Connected participants have been notified.\n\n", v.SessionID)
	sb.WriteString(formatTransactionDetails(v))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCancelSession terminates a session.
func (h *Handlers) HandleCancelSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	reason := req.GetString("reason", "")

	if _, err := h.client.CancelSession(ctx, sessionID, reason); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel session: %v", err)), nil
	}

	if reason == "" {
		reason = "cancelled by coordinator"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Session %s cancelled.\n"+
			"Reason: %s\n"+
			"All participants have been notified and disconnected; collected signatures are discarded.",
		sessionID, reason)), nil
}

// HandleGetTransactionSummary renders the decoded transaction for review.
func (h *Handlers) HandleGetTransactionSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get session: %v", err)), nil
	}

	v, err := parseSessionEnvelope(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	if v.TxDetails == nil {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Session %s has no transaction yet (status: %s). Use inject_transaction first.",
			v.SessionID, v.Status)), nil
	}

	return mcp.NewToolResultText(formatTransactionDetails(v)), nil
}

// HandleGetJournal reads the audit trail.
func (h *Handlers) HandleGetJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	limit := req.GetInt("limit", 20)

	var (
		raw json.RawMessage
		err error
	)
	if sessionID != "" {
		raw, err = h.client.SessionJournal(ctx, sessionID, limit)
	} else {
		raw, err = h.client.RecentJournal(ctx, limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read journal: %v", err)), nil
	}

	text, err := formatJournal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse journal: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

// sessionView mirrors the coordinator's session snapshot, keeping only what
// the text reports render.
type sessionView struct {
	SessionID            string              `json:"sessionId"`
	Status               string              `json:"status"`
	Label                string              `json:"label"`
	Threshold            int                 `json:"threshold"`
	EligiblePublicKeys   []string            `json:"eligiblePublicKeys"`
	ExpectedParticipants int                 `json:"expectedParticipants"`
	CreatedAt            time.Time           `json:"createdAt"`
	ExpiresAt            time.Time           `json:"expiresAt"`
	Stats                statsView           `json:"stats"`
	Participants         []participantView   `json:"participants"`
	TxDetails            *txView             `json:"txDetails"`
	Metadata             map[string]string   `json:"metadata"`
	MetadataReport       *metadataReportView `json:"metadataReport"`
}

type statsView struct {
	Connected           int `json:"connected"`
	Ready               int `json:"ready"`
	Expected            int `json:"expected"`
	SignaturesCollected int `json:"signaturesCollected"`
	SignaturesRequired  int `json:"signaturesRequired"`
}

type participantView struct {
	ParticipantID string `json:"participantId"`
	Role          string `json:"role"`
	Label         string `json:"label"`
	Status        string `json:"status"`
	PublicKey     string `json:"publicKey"`
}

type txView struct {
	Type           string `json:"type"`
	TransactionID  string `json:"transactionId"`
	PayerAccountID string `json:"payerAccountId"`
	Memo           string `json:"memo"`
	MaxFee         string `json:"maxFee"`
	Checksum       string `json:"checksum"`
	ShortChecksum  string `json:"shortChecksum"`

	Transfers      []transferView      `json:"transfers"`
	TokenTransfers []tokenTransferView `json:"tokenTransfers"`

	AccountID  string   `json:"accountId"`
	TokenID    string   `json:"tokenId"`
	TokenIDs   []string `json:"tokenIds"`
	ContractID string   `json:"contractId"`
	TopicID    string   `json:"topicId"`
	FileID     string   `json:"fileId"`
	ScheduleID string   `json:"scheduleId"`

	TokenName      string `json:"tokenName"`
	TokenSymbol    string `json:"tokenSymbol"`
	InitialSupply  string `json:"initialSupply"`
	Amount         string `json:"amount"`
	InitialBalance string `json:"initialBalance"`

	Gas               int64       `json:"gas"`
	PayableAmount     string      `json:"payableAmount"`
	FunctionName      string      `json:"functionName"`
	FunctionSignature string      `json:"functionSignature"`
	Selector          string      `json:"selector"`
	SelectorVerified  bool        `json:"selectorVerified"`
	Parameters        []paramView `json:"parameters"`

	MessageBytes  int    `json:"messageBytes"`
	ContentsBytes int    `json:"contentsBytes"`
	ScheduledType string `json:"scheduledType"`
}

type transferView struct {
	AccountID string `json:"accountId"`
	Amount    string `json:"amount"`
}

type tokenTransferView struct {
	TokenID   string `json:"tokenId"`
	AccountID string `json:"accountId"`
	Amount    string `json:"amount"`
}

type paramView struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type metadataReportView struct {
	Valid      bool                    `json:"valid"`
	Warnings   []string                `json:"warnings"`
	Mismatches map[string]mismatchView `json:"mismatches"`
}

type mismatchView struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// parseSessionEnvelope accepts both {"session": {...}} and a bare snapshot.
func parseSessionEnvelope(raw json.RawMessage) (sessionView, error) {
	var wrapper struct {
		Session *sessionView `json:"session"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Session != nil && wrapper.Session.SessionID != "" {
		return *wrapper.Session, nil
	}

	var v sessionView
	if err := json.Unmarshal(raw, &v); err == nil && v.SessionID != "" {
		return v, nil
	}

	return sessionView{}, fmt.Errorf("unexpected session response format")
}

func formatSessionCreated(raw json.RawMessage, pin string) (string, error) {
	var resp struct {
		Session    *sessionView `json:"session"`
		Connection string       `json:"connection"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Session == nil || resp.Session.SessionID == "" {
		return "", fmt.Errorf("unexpected session response format")
	}
	v := *resp.Session

	var sb strings.Builder
	sb.WriteString("Signing session created.\n\n")
	fmt.Fprintf(&sb, "Session ID: %s\n", v.SessionID)
	fmt.Fprintf(&sb, "Status: %s\n", v.Status)
	if v.Label != "" {
		fmt.Fprintf(&sb, "Label: %s\n", v.Label)
	}
	fmt.Fprintf(&sb, "Threshold: %d of %d eligible key(s)\n", v.Threshold, len(v.EligiblePublicKeys))
	fmt.Fprintf(&sb, "Expected participants: %d\n", v.ExpectedParticipants)
	if !v.ExpiresAt.IsZero() {
		fmt.Fprintf(&sb, "Expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	if pin != "" {
		fmt.Fprintf(&sb, "PIN: %s (already embedded in the connection string)\n", pin)
	}
	if resp.Connection != "" {
		sb.WriteString("\nConnection string (give one to each signer):\n")
		sb.WriteString(resp.Connection)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatSession(v sessionView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s:\n", v.SessionID)
	fmt.Fprintf(&sb, "  Status: %s\n", v.Status)
	if v.Label != "" {
		fmt.Fprintf(&sb, "  Label: %s\n", v.Label)
	}
	fmt.Fprintf(&sb, "  Signatures: %d of %d\n", v.Stats.SignaturesCollected, v.Stats.SignaturesRequired)
	fmt.Fprintf(&sb, "  Participants: %d connected, %d ready (%d expected)\n",
		v.Stats.Connected, v.Stats.Ready, v.Stats.Expected)
	fmt.Fprintf(&sb, "  Eligible keys: %d\n", len(v.EligiblePublicKeys))
	if !v.ExpiresAt.IsZero() {
		fmt.Fprintf(&sb, "  Expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	if v.TxDetails != nil {
		fmt.Fprintf(&sb, "  Transaction: %s (checksum %s)\n", v.TxDetails.Type, v.TxDetails.ShortChecksum)
	} else {
		sb.WriteString("  Transaction: none injected yet\n")
	}

	if len(v.Participants) > 0 {
		sb.WriteString("\nParticipants:\n")
		for i, p := range v.Participants {
			name := p.Label
			if name == "" {
				name = p.ParticipantID
			}
			fmt.Fprintf(&sb, "  %d. %s [%s] %s", i+1, name, p.Role, p.Status)
			if p.PublicKey != "" {
				fmt.Fprintf(&sb, " key %s", shortKey(p.PublicKey))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatSessionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Sessions []sessionView `json:"sessions"`
		Count    int           `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected sessions response format")
	}
	if len(resp.Sessions) == 0 {
		return "No live signing sessions.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d session(s):\n\n", len(resp.Sessions))
	for i, v := range resp.Sessions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, v.SessionID)
		if v.Label != "" {
			fmt.Fprintf(&sb, "   Label: %s\n", v.Label)
		}
		fmt.Fprintf(&sb, "   Status: %s | Signatures: %d/%d | Connected: %d\n",
			v.Status, v.Stats.SignaturesCollected, v.Stats.SignaturesRequired, v.Stats.Connected)
		if v.TxDetails != nil {
			fmt.Fprintf(&sb, "   Transaction: %s\n", v.TxDetails.Type)
		}
		if i < len(resp.Sessions)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// formatTransactionDetails renders the decoded transaction the way a signer
// should review it: what moves where, what gets called, and whether the
// claimed metadata survived the cross-check.
func formatTransactionDetails(v sessionView) string {
	d := v.TxDetails
	if d == nil {
		return "No decoded transaction details available."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction: %s\n", d.Type)
	fmt.Fprintf(&sb, "Session: %s (%s)\n", v.SessionID, v.Status)
	if d.TransactionID != "" {
		fmt.Fprintf(&sb, "Transaction ID: %s\n", d.TransactionID)
	}
	if d.PayerAccountID != "" {
		fmt.Fprintf(&sb, "Payer: %s\n", d.PayerAccountID)
	}
	if d.Memo != "" {
		fmt.Fprintf(&sb, "Memo: %s\n", d.Memo)
	}
	if d.MaxFee != "" {
		fmt.Fprintf(&sb, "Max fee: %s HBAR\n", d.MaxFee)
	}
	if d.Checksum != "" {
		fmt.Fprintf(&sb, "Checksum: %s (short %s)\n", d.Checksum, d.ShortChecksum)
	}

	switch {
	case d.TokenID != "" && d.TokenSymbol != "":
		fmt.Fprintf(&sb, "Token: %s (%s)\n", d.TokenID, d.TokenSymbol)
	case d.TokenID != "":
		fmt.Fprintf(&sb, "Token: %s\n", d.TokenID)
	case d.TokenName != "" && d.TokenSymbol != "":
		fmt.Fprintf(&sb, "Token: %s (%s)\n", d.TokenName, d.TokenSymbol)
	case d.TokenName != "":
		fmt.Fprintf(&sb, "Token: %s\n", d.TokenName)
	}
	if len(d.TokenIDs) > 0 {
		fmt.Fprintf(&sb, "Tokens: %s\n", strings.Join(d.TokenIDs, ", "))
	}
	if d.InitialSupply != "" {
		fmt.Fprintf(&sb, "Initial supply: %s\n", d.InitialSupply)
	}
	if d.Amount != "" {
		fmt.Fprintf(&sb, "Amount: %s\n", d.Amount)
	}
	if d.InitialBalance != "" {
		fmt.Fprintf(&sb, "Initial balance: %s HBAR\n", d.InitialBalance)
	}
	if d.AccountID != "" {
		fmt.Fprintf(&sb, "Account: %s\n", d.AccountID)
	}
	if d.TopicID != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", d.TopicID)
	}
	if d.FileID != "" {
		fmt.Fprintf(&sb, "File: %s\n", d.FileID)
	}
	if d.ScheduleID != "" {
		fmt.Fprintf(&sb, "Schedule: %s\n", d.ScheduleID)
	}
	if d.ScheduledType != "" {
		fmt.Fprintf(&sb, "Scheduled transaction: %s\n", d.ScheduledType)
	}
	if d.MessageBytes > 0 {
		fmt.Fprintf(&sb, "Message size: %d bytes\n", d.MessageBytes)
	}
	if d.ContentsBytes > 0 {
		fmt.Fprintf(&sb, "Contents size: %d bytes\n", d.ContentsBytes)
	}

	if len(d.Transfers) > 0 {
		sb.WriteString("\nHBAR transfers:\n")
		for _, t := range d.Transfers {
			fmt.Fprintf(&sb, "  %s: %s HBAR\n", t.AccountID, t.Amount)
		}
	}
	if len(d.TokenTransfers) > 0 {
		sb.WriteString("\nToken transfers:\n")
		for _, t := range d.TokenTransfers {
			fmt.Fprintf(&sb, "  %s: %s (token %s)\n", t.AccountID, t.Amount, t.TokenID)
		}
	}

	if d.ContractID != "" {
		sb.WriteString("\nContract call:\n")
		fmt.Fprintf(&sb, "  Contract: %s\n", d.ContractID)
		if d.FunctionSignature != "" {
			fmt.Fprintf(&sb, "  Function: %s\n", d.FunctionSignature)
		} else if d.FunctionName != "" {
			fmt.Fprintf(&sb, "  Function: %s\n", d.FunctionName)
		}
		if d.Selector != "" {
			if d.SelectorVerified {
				fmt.Fprintf(&sb, "  Selector: %s (verified against the provided ABI)\n", d.Selector)
			} else {
				fmt.Fprintf(&sb, "  Selector: %s (not verified: no contract ABI was provided)\n", d.Selector)
			}
		}
		if d.Gas > 0 {
			fmt.Fprintf(&sb, "  Gas: %d\n", d.Gas)
		}
		if d.PayableAmount != "" {
			fmt.Fprintf(&sb, "  Payable: %s HBAR\n", d.PayableAmount)
		}
		if len(d.Parameters) > 0 {
			sb.WriteString("  Parameters:\n")
			for _, p := range d.Parameters {
				if p.Name != "" {
					fmt.Fprintf(&sb, "    %s %s = %s\n", p.Type, p.Name, p.Value)
				} else {
					fmt.Fprintf(&sb, "    %s = %s\n", p.Type, p.Value)
				}
			}
		}
	}

	if v.MetadataReport != nil && len(v.Metadata) > 0 {
		sb.WriteString("\n")
		if v.MetadataReport.Valid {
			sb.WriteString("Metadata check: passed\n")
		} else {
			sb.WriteString("Metadata check: FAILED\n")
		}
		for field, m := range v.MetadataReport.Mismatches {
			fmt.Fprintf(&sb, "  %s: metadata claims %q but the transaction says %q\n",
				field, m.Actual, m.Expected)
		}
		for _, w := range v.MetadataReport.Warnings {
			fmt.Fprintf(&sb, "  Warning: %s\n", w)
		}
	}

	return sb.String()
}

type journalEntryView struct {
	SessionID     string    `json:"sessionId"`
	Event         string    `json:"event"`
	TxType        string    `json:"txType"`
	Checksum      string    `json:"checksum"`
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

func formatJournal(raw json.RawMessage) (string, error) {
	var resp struct {
		Entries []journalEntryView `json:"entries"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected journal response format")
	}
	if len(resp.Entries) == 0 {
		return "No journal entries.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d journal record(s), newest first:\n\n", len(resp.Entries))
	for i, e := range resp.Entries {
		fmt.Fprintf(&sb, "%d. [%s] %s: %s", i+1, e.CreatedAt.Format(time.RFC3339), e.SessionID, e.Event)
		if e.TxType != "" {
			fmt.Fprintf(&sb, " (%s)", e.TxType)
		}
		if e.TransactionID != "" {
			fmt.Fprintf(&sb, " tx %s", e.TransactionID)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// splitKeys breaks a comma- or whitespace-separated key list into fields.
func splitKeys(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// shortKey abbreviates a hex public key for display.
func shortKey(k string) string {
	if len(k) <= 16 {
		return k
	}
	return k[:12] + "..." + k[len(k)-4:]
}
