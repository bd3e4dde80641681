// Package ingest orchestrates one OFX upload end to end: parse,
// deduplicate, reconcile, persist, summarize.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/granafin/ofxingest/internal/alert"
	"github.com/granafin/ofxingest/internal/domain"
	"github.com/granafin/ofxingest/internal/identity"
	"github.com/granafin/ofxingest/internal/metrics"
	"github.com/granafin/ofxingest/internal/ofx"
	"github.com/granafin/ofxingest/internal/reconcile"
	"github.com/granafin/ofxingest/internal/storage"
)

// ImportRequest is one upload. BankName arrives already PII-masked by
// the caller; the bank account ids are implied by the file content.
type ImportRequest struct {
	ClientID string
	BankName string
	Filename string
	Data     []byte
}

// Service sequences the ingestion pipeline for one upload at a time.
// Multiple Import calls may run concurrently.
type Service struct {
	store   storage.Store
	parser  *ofx.Parser
	metrics *metrics.Recorder
	tracker *alert.Tracker
	log     zerolog.Logger
}

// NewService wires the pipeline's collaborators together.
func NewService(store storage.Store, recorder *metrics.Recorder, tracker *alert.Tracker, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		parser:  ofx.NewParser(),
		metrics: recorder,
		tracker: tracker,
		log:     log,
	}
}

// Import processes one uploaded statement file.
//
// Deduplication runs at two granularities. The file+account level: an
// existing import record for (clientID, bankAccountID, fileHash) means
// this exact file was already ingested for that account, so its
// transactions are counted as deduped without touching storage. The
// transaction level: each remaining transaction's identity is checked
// against the client's stored transactions for that account, catching
// overlap across different files. A file carrying several statements
// for the same account writes one import record (the first statement's)
// and dedupes the later statements transaction by transaction.
//
// There is no lock around the check-then-write on the import record:
// two concurrent uploads of the same bytes for the same account can
// both observe "not yet imported" and both write. This race is accepted
// and documented; backends with a uniqueness constraint on the triple
// (the SQLite store) reject the second import record cleanly.
//
// Reconciliation warnings are advisory and never fail the call. Parse
// and validation failures surface as typed client errors, storage
// failures as typed server errors; every failure is recorded as one
// failed outcome in metrics and the alert tracker.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*domain.ImportResult, error) {
	start := time.Now()
	s.metrics.IncActive(req.ClientID, "", req.BankName)
	defer s.metrics.DecActive(req.ClientID, "", req.BankName)

	if req.ClientID == "" {
		return nil, s.fail(req, "", StageValidate, start, &ValidationError{Msg: "client ID is required"})
	}
	if len(req.Data) == 0 {
		return nil, s.fail(req, "", StageValidate, start, &ValidationError{Msg: "no file content provided"})
	}

	statements, err := s.parser.Parse(req.Data)
	if err != nil {
		return nil, s.fail(req, "", StageParse, start, err)
	}

	fileHash := identity.FileHash(req.Data)
	result := &domain.ImportResult{
		Reconciliation: domain.ReconciliationReport{
			Accounts: []domain.ReconciliationSummary{},
			Warnings: []string{},
		},
	}

	fullDuplicates := 0
	processed := make(map[string]bool, len(statements))
	for i := range statements {
		stmt := &statements[i]
		// Reconcile before dedup: the summary reflects what the file
		// claims, and sign repair must happen before amounts persist.
		summary := reconcile.Account(stmt)
		result.Total += len(stmt.Transactions)
		result.Reconciliation.Accounts = append(result.Reconciliation.Accounts, summary)
		result.Reconciliation.Warnings = append(result.Reconciliation.Warnings, summary.Warnings...)

		prior, err := s.store.GetOFXImport(ctx, req.ClientID, stmt.BankAccountID, fileHash)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, s.fail(req, stmt.BankAccountID, StageStorage, start, &StorageError{Op: "get import record", Err: err})
		}
		priorFound := err == nil

		// A found record from an earlier call makes the whole statement
		// a duplicate. A record written earlier in THIS call means the
		// file carries several statements for one account; those fall
		// through to transaction-level dedup instead of being dropped.
		if priorFound && !processed[stmt.BankAccountID] {
			result.Deduped += prior.TransactionCount
			fullDuplicates++
			continue
		}

		imported, deduped, err := s.stageTransactions(ctx, req, stmt)
		if err != nil {
			return nil, s.fail(req, stmt.BankAccountID, StageStorage, start, err)
		}
		if !priorFound {
			if err := s.writeImportRecord(ctx, req, stmt, fileHash, &summary); err != nil {
				return nil, s.fail(req, stmt.BankAccountID, StageStorage, start, err)
			}
		}
		processed[stmt.BankAccountID] = true
		result.Imported += imported
		result.Deduped += deduped
	}

	result.AlreadyImported = len(statements) > 0 && fullDuplicates == len(statements)

	for i := range statements {
		s.tracker.Record(req.ClientID, statements[i].BankAccountID, req.BankName, true)
	}
	s.metrics.ObserveDuration(req.ClientID, statements[0].BankAccountID, req.BankName,
		metrics.StatusSuccess, time.Since(start))

	s.log.Info().
		Str("clientId", req.ClientID).
		Str("fileHash", fileHash).
		Int("imported", result.Imported).
		Int("deduped", result.Deduped).
		Int("accounts", len(statements)).
		Bool("alreadyImported", result.AlreadyImported).
		Msg("ofx import finished")

	return result, nil
}

// stageTransactions persists one statement's unseen transactions.
// Returns (imported, deduped) counts.
func (s *Service) stageTransactions(ctx context.Context, req ImportRequest, stmt *domain.AccountStatement) (int, int, error) {
	stored, err := s.store.GetBankTransactions(ctx, req.ClientID, stmt.BankAccountID)
	if err != nil {
		return 0, 0, &StorageError{Op: "get transactions", Err: err}
	}

	seen := make(map[string]struct{}, len(stored))
	for _, record := range stored {
		seen[record.ExternalID] = struct{}{}
	}

	staged := make([]domain.TransactionRecord, 0, len(stmt.Transactions))
	deduped := 0
	for _, txn := range stmt.Transactions {
		id := identity.TransactionID(txn)
		if _, dup := seen[id]; dup {
			deduped++
			continue
		}
		seen[id] = struct{}{}
		staged = append(staged, domain.TransactionRecord{
			ExternalID:  id,
			AccountID:   stmt.BankAccountID,
			PostedDate:  txn.PostedDate,
			Description: txn.Description,
			Amount:      txn.Amount,
		})
	}

	if len(staged) > 0 {
		if err := s.store.AddBankTransactions(ctx, req.ClientID, stmt.BankAccountID, staged); err != nil {
			return 0, 0, &StorageError{Op: "add transactions", Err: err}
		}
	}

	return len(staged), deduped, nil
}

// writeImportRecord persists the idempotency record for one statement.
func (s *Service) writeImportRecord(ctx context.Context, req ImportRequest, stmt *domain.AccountStatement, fileHash string, summary *domain.ReconciliationSummary) error {
	record := &domain.OFXImportRecord{
		ID:               uuid.NewString(),
		FileHash:         fileHash,
		ClientID:         req.ClientID,
		BankAccountID:    stmt.BankAccountID,
		ImportedAt:       time.Now().UTC(),
		TransactionCount: len(stmt.Transactions),
		StatementStart:   stmt.StatementStart,
		StatementEnd:     stmt.StatementEnd,
		Reconciliation:   summary,
	}
	if err := s.store.AddOFXImport(ctx, record); err != nil {
		return &StorageError{Op: "add import record", Err: err}
	}
	return nil
}

// fail records one failed outcome in metrics, the alert tracker and the
// log, then returns err unchanged for the transport layer to map.
func (s *Service) fail(req ImportRequest, bankAccountID, stage string, start time.Time, err error) error {
	if bankAccountID == "" {
		bankAccountID = domain.UnknownAccountID
	}
	s.metrics.IncError(req.ClientID, bankAccountID, req.BankName, stage)
	s.metrics.ObserveDuration(req.ClientID, bankAccountID, req.BankName,
		metrics.StatusError, time.Since(start))
	s.tracker.Record(req.ClientID, bankAccountID, req.BankName, false)

	s.log.Error().
		Err(err).
		Str("clientId", req.ClientID).
		Str("bankAccountId", bankAccountID).
		Str("stage", stage).
		Str("filename", req.Filename).
		Msg("ofx import failed")

	return err
}
