package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the signing coordinator MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCreateSession = mcp.NewTool("create_session",
	mcp.WithDescription(
		"Create a new multi-party signing session on the Hedera signing coordinator. "+
			"Returns the session ID and a connection string to hand to each signer. "+
			"Use this first, before injecting a transaction."),
	mcp.WithNumber("threshold",
		mcp.Required(),
		mcp.Description("Number of valid signatures required before the transaction executes (1 or more, at most the number of eligible keys)")),
	mcp.WithString("eligible_public_keys",
		mcp.Required(),
		mcp.Description("Comma-separated hex public keys allowed to sign (ed25519 or ECDSA secp256k1)")),
	mcp.WithString("pin",
		mcp.Description("Optional numeric PIN (4-10 digits) participants must present when connecting. Omit for a PIN-less session.")),
	mcp.WithString("label",
		mcp.Description("Human-readable label shown to participants (e.g. 'Treasury payout March')")),
	mcp.WithNumber("expected_participants",
		mcp.Description("How many participants must mark ready before signing starts. Defaults to the threshold.")),
	mcp.WithNumber("timeout_seconds",
		mcp.Description("Session lifetime in seconds. The session expires and disconnects everyone when it elapses.")),
)

var ToolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription(
		"Get the current state of a signing session: status, connected participants, "+
			"signature progress, and the decoded transaction if one has been injected."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session ID (e.g. 'sess_a1b2c3d4e5f6a7b8')")),
)

var ToolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription(
		"List all live signing sessions on the coordinator with their status and "+
			"signature progress. Completed, expired and cancelled sessions are not listed."),
)

var ToolInjectTransaction = mcp.NewTool("inject_transaction",
	mcp.WithDescription(
		"Inject a frozen Hedera transaction into a waiting session. The coordinator "+
			"decodes it, verifies it against any claimed metadata, and broadcasts it to "+
			"every connected participant for review and signing. "+
			"A session accepts exactly one transaction."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session to inject into; it must not have a transaction yet")),
	mcp.WithString("transaction_base64",
		mcp.Required(),
		mcp.Description("The frozen transaction bytes, base64-encoded")),
	mcp.WithObject("metadata",
		mcp.Description("Optional claimed facts about the transaction (e.g. {\"amount\": \"100\", \"memo\": \"payroll\"}). The coordinator cross-checks them against the decoded bytes and rejects contradictions.")),
	mcp.WithString("contract_abi",
		mcp.Description("Optional contract ABI JSON for contract-call transactions. Enables decoding the called function and its parameters, and rejects calldata whose selector does not appear in the ABI.")),
)

var ToolCancelSession = mcp.NewTool("cancel_session",
	mcp.WithDescription(
		"Cancel a signing session before it completes. All connected participants are "+
			"notified and disconnected, and the session is destroyed. "+
			"Cannot be undone; collected signatures are discarded."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session to cancel")),
	mcp.WithString("reason",
		mcp.Description("Why the session is being cancelled; shown to participants")),
)

var ToolGetTransactionSummary = mcp.NewTool("get_transaction_summary",
	mcp.WithDescription(
		"Get a human-readable summary of the transaction in a session: type, transfer "+
			"amounts and accounts, contract call details with selector verification, "+
			"integrity checksum, and the outcome of the metadata cross-check. "+
			"Use this to review what participants are being asked to sign."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session holding the transaction")),
)

var ToolGetJournal = mcp.NewTool("get_journal",
	mcp.WithDescription(
		"Read the audit journal. With a session_id, returns that session's lifecycle "+
			"entries (created, transaction ready, threshold met, executed, expired, "+
			"cancelled); without one, returns the most recent entries across all sessions. "+
			"The journal outlives sessions, so this also works for sessions already destroyed."),
	mcp.WithString("session_id",
		mcp.Description("Limit entries to one session. Omit for the coordinator-wide view.")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 20)")),
)
