// Package identity computes the two identities the ingestion pipeline
// dedupes on: a whole-file content hash and a per-transaction id.
package identity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/granafin/ofxingest/internal/domain"
)

// FileHash returns the SHA256 hex digest of the raw upload. Together
// with (clientID, bankAccountID) it forms the idempotency key for exact
// re-submission.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TransactionID returns the file's own FITID when present. Exports that
// omit FITID get a deterministic MD5 over the raw posted date,
// description and raw amount, so the same file re-uploaded still
// dedupes transaction by transaction.
//
// The raw field strings are hashed on purpose: sign repair during
// reconciliation rewrites Amount but never RawAmount, so a repaired
// transaction keeps its identity.
func TransactionID(txn domain.Transaction) string {
	if txn.FITID != "" {
		return txn.FITID
	}
	input := fmt.Sprintf("%s-%s-%s", txn.RawPosted, txn.Description, txn.RawAmount)
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
