// Package storage defines the narrow persistence contract the ingestion
// pipeline consumes, with in-memory, SQLite and Firestore backends.
package storage

import (
	"context"
	"errors"

	"github.com/granafin/ofxingest/internal/domain"
)

// ErrNotFound is returned by GetOFXImport when no record exists for the
// (clientID, bankAccountID, fileHash) triple.
var ErrNotFound = errors.New("storage: record not found")

// Store is the persistence collaborator of the ingestion pipeline.
// Isolation is per (clientID, bankAccountID); implementations must not
// leak records across clients or accounts.
type Store interface {
	// GetOFXImport looks up the idempotency record for an exact
	// re-submission. Returns ErrNotFound when absent.
	GetOFXImport(ctx context.Context, clientID, bankAccountID, fileHash string) (*domain.OFXImportRecord, error)

	// AddOFXImport persists one import record.
	AddOFXImport(ctx context.Context, record *domain.OFXImportRecord) error

	// GetBankTransactions returns a client's stored transactions,
	// restricted to one account when bankAccountID is non-empty.
	GetBankTransactions(ctx context.Context, clientID, bankAccountID string) ([]domain.TransactionRecord, error)

	// AddBankTransactions persists new transactions for one account.
	AddBankTransactions(ctx context.Context, clientID, bankAccountID string, records []domain.TransactionRecord) error
}
