// Package reconcile cross-checks an account statement's computed
// closing balance against the balance the file asserts.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/granafin/ofxingest/internal/domain"
)

// Tolerance absorbs the rounding slack banks introduce when they format
// balances: divergences of one cent or less are not reported.
var Tolerance = decimal.NewFromFloat(0.01)

// Account recomputes the closing balance of one statement and returns
// the summary. It runs on the post-normalization transaction set — what
// the file claims, independent of what was already stored — and so must
// run before deduplication.
//
// Side effect: sign-implausible amounts are repaired in place (see
// repairSign); the repaired amounts are what the caller persists.
// Warnings are advisory and never fail an import.
func Account(stmt *domain.AccountStatement) domain.ReconciliationSummary {
	summary := domain.ReconciliationSummary{
		BankAccountID:        stmt.BankAccountID,
		LedgerClosingBalance: stmt.LedgerBalance,
		Warnings:             []string{},
	}

	for i := range stmt.Transactions {
		txn := &stmt.Transactions[i]
		if repairSign(txn) {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("Sinal ajustado automaticamente para %s", transactionLabel(*txn)))
		}
		if txn.Amount.IsNegative() {
			summary.TotalDebits = summary.TotalDebits.Add(txn.Amount.Neg())
		} else {
			summary.TotalCredits = summary.TotalCredits.Add(txn.Amount)
		}
	}

	summary.ComputedClosingBalance = summary.TotalCredits.Sub(summary.TotalDebits)

	if stmt.LedgerBalance != nil {
		delta := summary.ComputedClosingBalance.Sub(*stmt.LedgerBalance).Abs()
		if delta.GreaterThan(Tolerance) {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("Divergência de R$ %s na conta %s", delta.StringFixed(2), stmt.BankAccountID))
		}
	}

	return summary
}

// repairSign flips amounts whose sign disagrees with the transaction's
// type marker. Some banks emit debit amounts as positive numbers; the
// marker is authoritative. Returns true when a flip happened.
func repairSign(txn *domain.Transaction) bool {
	switch txn.Type {
	case "DEBIT":
		if txn.Amount.IsPositive() {
			txn.Amount = txn.Amount.Neg()
			return true
		}
	case "CREDIT":
		if txn.Amount.IsNegative() {
			txn.Amount = txn.Amount.Neg()
			return true
		}
	}
	return false
}

// transactionLabel names a transaction in warnings: the FITID when the
// file provided one, otherwise the description.
func transactionLabel(txn domain.Transaction) string {
	if txn.FITID != "" {
		return txn.FITID
	}
	return txn.Description
}
