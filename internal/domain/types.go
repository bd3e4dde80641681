// Package domain holds the core types shared by the OFX ingestion pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownAccountID is the sentinel used when a statement carries no
// account identifier. Parsers never fail on a missing identifier; they
// substitute this value so downstream keys and metric labels stay
// non-empty.
const UnknownAccountID = "unknown"

// Transaction is one parsed statement entry, prior to deduplication.
//
// Amount sign convention:
//
//	Positive = credit/inflow
//	Negative = debit/outflow
//
// The Raw* fields preserve the untouched field strings from the file.
// Identity hashing uses them, so later repairs (sign flips) never change
// a transaction's identity across re-uploads.
type Transaction struct {
	FITID       string
	Type        string // TRNTYPE marker, upper-cased ("CREDIT", "DEBIT", ...)
	RawPosted   string // DTPOSTED as it appeared in the file
	PostedDate  string // YYYY-MM-DD
	Description string
	RawAmount   string // TRNAMT as it appeared in the file
	Amount      decimal.Decimal
}

// AccountStatement is one account's slice of a parsed OFX file. A single
// file may yield several of these (multi-account exports).
type AccountStatement struct {
	BankAccountID  string
	StatementStart string // YYYY-MM-DD, empty when the file omits it
	StatementEnd   string // YYYY-MM-DD, empty when the file omits it
	LedgerBalance  *decimal.Decimal
	Transactions   []Transaction
}

// TransactionRecord is the persisted form of a transaction.
type TransactionRecord struct {
	ExternalID  string          `json:"externalId"`
	AccountID   string          `json:"accountId"`
	PostedDate  string          `json:"postedDate"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ReconciliationSummary reports one account's balance cross-check.
type ReconciliationSummary struct {
	BankAccountID          string           `json:"bankAccountId"`
	LedgerClosingBalance   *decimal.Decimal `json:"ledgerClosingBalance,omitempty"`
	TotalCredits           decimal.Decimal  `json:"totalCredits"`
	TotalDebits            decimal.Decimal  `json:"totalDebits"`
	ComputedClosingBalance decimal.Decimal  `json:"computedClosingBalance"`
	Warnings               []string         `json:"warnings"`
}

// OFXImportRecord is the persisted idempotency record for one
// (client, account, file) import. The triple (ClientID, BankAccountID,
// FileHash) is unique: re-submitting the same bytes for the same
// account is a no-op that reports the prior record's transaction count.
type OFXImportRecord struct {
	ID               string                 `json:"id"`
	FileHash         string                 `json:"fileHash"`
	ClientID         string                 `json:"clientId"`
	BankAccountID    string                 `json:"bankAccountId"`
	ImportedAt       time.Time              `json:"importedAt"`
	TransactionCount int                    `json:"transactionCount"`
	StatementStart   string                 `json:"statementStart,omitempty"`
	StatementEnd     string                 `json:"statementEnd,omitempty"`
	Reconciliation   *ReconciliationSummary `json:"reconciliation,omitempty"`
}

// Validate checks the fields persisted implementations rely on.
func (r *OFXImportRecord) Validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("import record client ID is required")
	}
	if r.BankAccountID == "" {
		return fmt.Errorf("import record bank account ID is required")
	}
	if r.FileHash == "" {
		return fmt.Errorf("import record file hash is required")
	}
	if r.TransactionCount < 0 {
		return fmt.Errorf("import record transaction count cannot be negative")
	}
	return nil
}

// ReconciliationReport aggregates the per-account summaries of one import.
type ReconciliationReport struct {
	Accounts []ReconciliationSummary `json:"accounts"`
	Warnings []string                `json:"warnings"`
}

// ImportResult is the response of one ingestion call.
// AlreadyImported is true iff every account in the file was a full
// file-level duplicate.
type ImportResult struct {
	Imported        int                  `json:"imported"`
	Deduped         int                  `json:"deduped"`
	Total           int                  `json:"total"`
	AlreadyImported bool                 `json:"alreadyImported"`
	Reconciliation  ReconciliationReport `json:"reconciliation"`
}
