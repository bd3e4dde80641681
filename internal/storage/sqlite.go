package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/granafin/ofxingest/internal/domain"
)

// SQLite is a Store backed by a local SQLite database, used by
// self-hosted deployments. The unique index on the idempotency triple
// narrows the documented check-then-write race of concurrent identical
// uploads: the second insert fails cleanly instead of duplicating the
// import record.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ofx_imports (
	id                TEXT PRIMARY KEY,
	client_id         TEXT NOT NULL,
	bank_account_id   TEXT NOT NULL,
	file_hash         TEXT NOT NULL,
	imported_at       TEXT NOT NULL,
	transaction_count INTEGER NOT NULL,
	statement_start   TEXT,
	statement_end     TEXT,
	reconciliation    TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ofx_imports_triple
	ON ofx_imports (client_id, bank_account_id, file_hash);

CREATE TABLE IF NOT EXISTS bank_transactions (
	client_id       TEXT NOT NULL,
	bank_account_id TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	posted_date     TEXT NOT NULL,
	description     TEXT NOT NULL,
	amount          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bank_transactions_account
	ON bank_transactions (client_id, bank_account_id);
`

// NewSQLite opens (and if needed initializes) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetOFXImport implements Store.
func (s *SQLite) GetOFXImport(ctx context.Context, clientID, bankAccountID, fileHash string) (*domain.OFXImportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, bank_account_id, file_hash, imported_at,
		       transaction_count, statement_start, statement_end, reconciliation
		FROM ofx_imports
		WHERE client_id = ? AND bank_account_id = ? AND file_hash = ?`,
		clientID, bankAccountID, fileHash)

	var record domain.OFXImportRecord
	var importedAt string
	var start, end, recon sql.NullString
	err := row.Scan(&record.ID, &record.ClientID, &record.BankAccountID, &record.FileHash,
		&importedAt, &record.TransactionCount, &start, &end, &recon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query import record: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, importedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored import time %q: %w", importedAt, err)
	}
	record.ImportedAt = ts
	record.StatementStart = start.String
	record.StatementEnd = end.String
	if recon.Valid && recon.String != "" {
		var summary domain.ReconciliationSummary
		if err := json.Unmarshal([]byte(recon.String), &summary); err != nil {
			return nil, fmt.Errorf("failed to decode reconciliation summary: %w", err)
		}
		record.Reconciliation = &summary
	}

	return &record, nil
}

// AddOFXImport implements Store.
func (s *SQLite) AddOFXImport(ctx context.Context, record *domain.OFXImportRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid import record: %w", err)
	}

	var recon any
	if record.Reconciliation != nil {
		data, err := json.Marshal(record.Reconciliation)
		if err != nil {
			return fmt.Errorf("failed to encode reconciliation summary: %w", err)
		}
		recon = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ofx_imports
			(id, client_id, bank_account_id, file_hash, imported_at,
			 transaction_count, statement_start, statement_end, reconciliation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ClientID, record.BankAccountID, record.FileHash,
		record.ImportedAt.Format(time.RFC3339), record.TransactionCount,
		record.StatementStart, record.StatementEnd, recon)
	if err != nil {
		return fmt.Errorf("failed to insert import record: %w", err)
	}
	return nil
}

// GetBankTransactions implements Store.
func (s *SQLite) GetBankTransactions(ctx context.Context, clientID, bankAccountID string) ([]domain.TransactionRecord, error) {
	query := `
		SELECT external_id, bank_account_id, posted_date, description, amount
		FROM bank_transactions
		WHERE client_id = ?`
	args := []any{clientID}
	if bankAccountID != "" {
		query += ` AND bank_account_id = ?`
		args = append(args, bankAccountID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var record domain.TransactionRecord
		var amount string
		if err := rows.Scan(&record.ExternalID, &record.AccountID, &record.PostedDate,
			&record.Description, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		record.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AddBankTransactions implements Store.
func (s *SQLite) AddBankTransactions(ctx context.Context, clientID, bankAccountID string, records []domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bank_transactions
			(client_id, bank_account_id, external_id, posted_date, description, amount)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, clientID, bankAccountID, record.ExternalID,
			record.PostedDate, record.Description, record.Amount.String()); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", record.ExternalID, err)
		}
	}

	return tx.Commit()
}
