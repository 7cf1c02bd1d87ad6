package journal

import (
	"context"
	"database/sql"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/pagination"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed journal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the journal table if needed. The goose migration in
// migrations/ carries the same DDL for managed deployments.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signing_journal (
			id             BIGSERIAL PRIMARY KEY,
			session_id     VARCHAR(64) NOT NULL,
			event          VARCHAR(32) NOT NULL,
			tx_type        VARCHAR(64),
			checksum       VARCHAR(64),
			transaction_id VARCHAR(128),
			detail         JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_signing_journal_session ON signing_journal(session_id, id DESC);
	`)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO signing_journal (session_id, event, tx_type, checksum, transaction_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::JSONB, '{}'), NOW())
	`, entry.SessionID, entry.Event, entry.TxType, entry.Checksum, entry.TransactionID, nullableJSON(entry.Detail))
	return err
}

func (p *PostgresStore) BySession(ctx context.Context, sessionID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, event, COALESCE(tx_type, ''), COALESCE(checksum, ''), COALESCE(transaction_id, ''), COALESCE(detail::TEXT, '{}'), created_at
		FROM signing_journal
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (p *PostgresStore) Recent(ctx context.Context, limit int, cursor string) ([]*Entry, string, error) {
	limit = clampLimit(limit)
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", ErrBadCursor
	}

	// Fetch one past the page to learn whether more entries remain.
	var rows *sql.Rows
	if before > 0 {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, session_id, event, COALESCE(tx_type, ''), COALESCE(checksum, ''), COALESCE(transaction_id, ''), COALESCE(detail::TEXT, '{}'), created_at
			FROM signing_journal
			WHERE id < $1
			ORDER BY id DESC
			LIMIT $2
		`, before, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, session_id, event, COALESCE(tx_type, ''), COALESCE(checksum, ''), COALESCE(transaction_id, ''), COALESCE(detail::TEXT, '{}'), created_at
			FROM signing_journal
			ORDER BY id DESC
			LIMIT $1
		`, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, "", err
	}
	page, next, _ := pagination.Page(entries, limit, func(e *Entry) int64 { return e.ID })
	return page, next, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var detail string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.TxType, &e.Checksum, &e.TransactionID, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Detail = []byte(detail)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
