package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/granafin/ofxingest/internal/domain"
)

// Memory is a mutex-guarded in-process Store. It backs tests and local
// development; nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	imports map[string]domain.OFXImportRecord   // keyed by client|account|hash
	txns    map[string][]domain.TransactionRecord // keyed by client|account
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		imports: make(map[string]domain.OFXImportRecord),
		txns:    make(map[string][]domain.TransactionRecord),
	}
}

func importKey(clientID, bankAccountID, fileHash string) string {
	return fmt.Sprintf("%s|%s|%s", clientID, bankAccountID, fileHash)
}

func accountKey(clientID, bankAccountID string) string {
	return fmt.Sprintf("%s|%s", clientID, bankAccountID)
}

// GetOFXImport implements Store.
func (m *Memory) GetOFXImport(_ context.Context, clientID, bankAccountID, fileHash string) (*domain.OFXImportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.imports[importKey(clientID, bankAccountID, fileHash)]
	if !ok {
		return nil, ErrNotFound
	}
	out := record
	return &out, nil
}

// AddOFXImport implements Store.
func (m *Memory) AddOFXImport(_ context.Context, record *domain.OFXImportRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid import record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.imports[importKey(record.ClientID, record.BankAccountID, record.FileHash)] = *record
	return nil
}

// GetBankTransactions implements Store.
func (m *Memory) GetBankTransactions(_ context.Context, clientID, bankAccountID string) ([]domain.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bankAccountID != "" {
		stored := m.txns[accountKey(clientID, bankAccountID)]
		return append([]domain.TransactionRecord(nil), stored...), nil
	}

	var out []domain.TransactionRecord
	prefix := clientID + "|"
	for key, stored := range m.txns {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, stored...)
		}
	}
	return out, nil
}

// AddBankTransactions implements Store.
func (m *Memory) AddBankTransactions(_ context.Context, clientID, bankAccountID string, records []domain.TransactionRecord) error {
	if clientID == "" || bankAccountID == "" {
		return fmt.Errorf("client ID and bank account ID are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(clientID, bankAccountID)
	m.txns[key] = append(m.txns[key], records...)
	return nil
}
