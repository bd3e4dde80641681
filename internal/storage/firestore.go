package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/granafin/ofxingest/internal/domain"
)

const (
	importsCollection      = "ofx-imports"
	transactionsCollection = "bank-transactions"
)

// Firestore is the Store used by the hosted deployment. Document ids
// are derived from the record keys, so writes are naturally idempotent
// at the document level.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed store for the given project.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// importDoc is the Firestore shape of an import record. Monetary values
// are stored as strings; Firestore has no decimal type and floats would
// reintroduce the rounding the pipeline avoids.
type importDoc struct {
	ID               string    `firestore:"id"`
	ClientID         string    `firestore:"clientId"`
	BankAccountID    string    `firestore:"bankAccountId"`
	FileHash         string    `firestore:"fileHash"`
	ImportedAt       time.Time `firestore:"importedAt"`
	TransactionCount int       `firestore:"transactionCount"`
	StatementStart   string    `firestore:"statementStart,omitempty"`
	StatementEnd     string    `firestore:"statementEnd,omitempty"`
	LedgerBalance    string    `firestore:"ledgerBalance,omitempty"`
	TotalCredits     string    `firestore:"totalCredits,omitempty"`
	TotalDebits      string    `firestore:"totalDebits,omitempty"`
	ComputedBalance  string    `firestore:"computedBalance,omitempty"`
	Warnings         []string  `firestore:"warnings,omitempty"`
}

type transactionDoc struct {
	ClientID      string `firestore:"clientId"`
	BankAccountID string `firestore:"bankAccountId"`
	ExternalID    string `firestore:"externalId"`
	PostedDate    string `firestore:"postedDate"`
	Description   string `firestore:"description"`
	Amount        string `firestore:"amount"`
}

// docID flattens key parts into a Firestore-safe document id.
func docID(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "/", "_")
	}
	return strings.Join(parts, "-")
}

// GetOFXImport implements Store.
func (f *Firestore) GetOFXImport(ctx context.Context, clientID, bankAccountID, fileHash string) (*domain.OFXImportRecord, error) {
	snap, err := f.client.Collection(importsCollection).
		Doc(docID(clientID, bankAccountID, fileHash)).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get import record: %w", err)
	}

	var doc importDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode import record: %w", err)
	}

	record := &domain.OFXImportRecord{
		ID:               doc.ID,
		ClientID:         doc.ClientID,
		BankAccountID:    doc.BankAccountID,
		FileHash:         doc.FileHash,
		ImportedAt:       doc.ImportedAt,
		TransactionCount: doc.TransactionCount,
		StatementStart:   doc.StatementStart,
		StatementEnd:     doc.StatementEnd,
	}
	if doc.ComputedBalance != "" {
		summary := &domain.ReconciliationSummary{
			BankAccountID: doc.BankAccountID,
			Warnings:      doc.Warnings,
		}
		if summary.TotalCredits, err = decimal.NewFromString(doc.TotalCredits); err != nil {
			return nil, fmt.Errorf("failed to parse stored credits %q: %w", doc.TotalCredits, err)
		}
		if summary.TotalDebits, err = decimal.NewFromString(doc.TotalDebits); err != nil {
			return nil, fmt.Errorf("failed to parse stored debits %q: %w", doc.TotalDebits, err)
		}
		if summary.ComputedClosingBalance, err = decimal.NewFromString(doc.ComputedBalance); err != nil {
			return nil, fmt.Errorf("failed to parse stored balance %q: %w", doc.ComputedBalance, err)
		}
		if doc.LedgerBalance != "" {
			ledger, err := decimal.NewFromString(doc.LedgerBalance)
			if err != nil {
				return nil, fmt.Errorf("failed to parse stored ledger balance %q: %w", doc.LedgerBalance, err)
			}
			summary.LedgerClosingBalance = &ledger
		}
		record.Reconciliation = summary
	}

	return record, nil
}

// AddOFXImport implements Store.
func (f *Firestore) AddOFXImport(ctx context.Context, record *domain.OFXImportRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid import record: %w", err)
	}

	doc := importDoc{
		ID:               record.ID,
		ClientID:         record.ClientID,
		BankAccountID:    record.BankAccountID,
		FileHash:         record.FileHash,
		ImportedAt:       record.ImportedAt,
		TransactionCount: record.TransactionCount,
		StatementStart:   record.StatementStart,
		StatementEnd:     record.StatementEnd,
	}
	if summary := record.Reconciliation; summary != nil {
		doc.TotalCredits = summary.TotalCredits.String()
		doc.TotalDebits = summary.TotalDebits.String()
		doc.ComputedBalance = summary.ComputedClosingBalance.String()
		doc.Warnings = summary.Warnings
		if summary.LedgerClosingBalance != nil {
			doc.LedgerBalance = summary.LedgerClosingBalance.String()
		}
	}

	_, err := f.client.Collection(importsCollection).
		Doc(docID(record.ClientID, record.BankAccountID, record.FileHash)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to write import record: %w", err)
	}
	return nil
}

// GetBankTransactions implements Store.
func (f *Firestore) GetBankTransactions(ctx context.Context, clientID, bankAccountID string) ([]domain.TransactionRecord, error) {
	query := f.client.Collection(transactionsCollection).Where("clientId", "==", clientID)
	if bankAccountID != "" {
		query = query.Where("bankAccountId", "==", bankAccountID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []domain.TransactionRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for client %s: %w", clientID, err)
		}

		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		amount, err := decimal.NewFromString(doc.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored amount %q: %w", doc.Amount, err)
		}
		records = append(records, domain.TransactionRecord{
			ExternalID:  doc.ExternalID,
			AccountID:   doc.BankAccountID,
			PostedDate:  doc.PostedDate,
			Description: doc.Description,
			Amount:      amount,
		})
	}

	return records, nil
}

// bulkWriteJob is the result half of a queued BulkWriter write.
type bulkWriteJob interface {
	Results() (*firestore.WriteResult, error)
}

// awaitBulkWrites blocks on every queued write and returns the first
// failure. BulkWriter's Set only rejects invalid arguments up front;
// real write failures (permissions, quota, contention) are delivered
// solely through the per-job results.
func awaitBulkWrites(jobs []bulkWriteJob, externalIDs []string) error {
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to write transaction %s: %w", externalIDs[i], err)
		}
	}
	return nil
}

// AddBankTransactions implements Store. One failed write fails the
// whole call; writes that already landed stay written (persistence is
// best-effort, not transactional).
func (f *Firestore) AddBankTransactions(ctx context.Context, clientID, bankAccountID string, records []domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	writer := f.client.BulkWriter(ctx)
	jobs := make([]bulkWriteJob, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, record := range records {
		doc := transactionDoc{
			ClientID:      clientID,
			BankAccountID: bankAccountID,
			ExternalID:    record.ExternalID,
			PostedDate:    record.PostedDate,
			Description:   record.Description,
			Amount:        record.Amount.String(),
		}
		ref := f.client.Collection(transactionsCollection).
			Doc(docID(clientID, bankAccountID, record.ExternalID))
		job, err := writer.Set(ref, doc)
		if err != nil {
			return fmt.Errorf("failed to enqueue transaction %s: %w", record.ExternalID, err)
		}
		jobs = append(jobs, job)
		ids = append(ids, record.ExternalID)
	}
	writer.End()

	return awaitBulkWrites(jobs, ids)
}
