package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/granafin/ofxingest/internal/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func sampleRecord(t *testing.T, clientID, bankAccountID, fileHash string) *domain.OFXImportRecord {
	t.Helper()
	ledger := dec(t, "1400.00")
	return &domain.OFXImportRecord{
		ID:               "imp-" + fileHash,
		FileHash:         fileHash,
		ClientID:         clientID,
		BankAccountID:    bankAccountID,
		ImportedAt:       time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		TransactionCount: 2,
		StatementStart:   "2024-01-01",
		StatementEnd:     "2024-01-31",
		Reconciliation: &domain.ReconciliationSummary{
			BankAccountID:          bankAccountID,
			LedgerClosingBalance:   &ledger,
			TotalCredits:           dec(t, "1500.00"),
			TotalDebits:            dec(t, "100.00"),
			ComputedClosingBalance: dec(t, "1400.00"),
			Warnings:               []string{"Divergência de R$ 10.00 na conta " + bankAccountID},
		},
	}
}

// testStoreContract runs the behavior every Store implementation must
// share.
func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing import record returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetOFXImport(ctx, "nobody", "nowhere", "nohash")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("import record roundtrip", func(t *testing.T) {
		record := sampleRecord(t, "client-a", "acc-1", "hash-1")
		require.NoError(t, store.AddOFXImport(ctx, record))

		got, err := store.GetOFXImport(ctx, "client-a", "acc-1", "hash-1")
		require.NoError(t, err)
		require.Equal(t, record.ID, got.ID)
		require.Equal(t, record.TransactionCount, got.TransactionCount)
		require.Equal(t, record.StatementStart, got.StatementStart)
		require.Equal(t, record.StatementEnd, got.StatementEnd)
		require.True(t, record.ImportedAt.Equal(got.ImportedAt))

		require.NotNil(t, got.Reconciliation)
		require.True(t, got.Reconciliation.TotalCredits.Equal(dec(t, "1500")))
		require.True(t, got.Reconciliation.TotalDebits.Equal(dec(t, "100")))
		require.True(t, got.Reconciliation.ComputedClosingBalance.Equal(dec(t, "1400")))
		require.NotNil(t, got.Reconciliation.LedgerClosingBalance)
		require.True(t, got.Reconciliation.LedgerClosingBalance.Equal(dec(t, "1400")))
		require.Equal(t, record.Reconciliation.Warnings, got.Reconciliation.Warnings)
	})

	t.Run("import records keyed by full triple", func(t *testing.T) {
		require.NoError(t, store.AddOFXImport(ctx, sampleRecord(t, "client-b", "acc-1", "hash-2")))

		_, err := store.GetOFXImport(ctx, "client-b", "acc-1", "other-hash")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetOFXImport(ctx, "client-b", "acc-2", "hash-2")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetOFXImport(ctx, "other-client", "acc-1", "hash-2")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid import record rejected", func(t *testing.T) {
		err := store.AddOFXImport(ctx, &domain.OFXImportRecord{ID: "x"})
		require.Error(t, err)
	})

	t.Run("transactions roundtrip per account", func(t *testing.T) {
		records := []domain.TransactionRecord{
			{ExternalID: "t1", AccountID: "acc-1", PostedDate: "2024-01-05", Description: "Salario", Amount: dec(t, "1500.00")},
			{ExternalID: "t2", AccountID: "acc-1", PostedDate: "2024-01-10", Description: "Mercado", Amount: dec(t, "-100.00")},
		}
		require.NoError(t, store.AddBankTransactions(ctx, "client-c", "acc-1", records))

		got, err := store.GetBankTransactions(ctx, "client-c", "acc-1")
		require.NoError(t, err)
		require.Len(t, got, 2)

		byID := map[string]domain.TransactionRecord{}
		for _, r := range got {
			byID[r.ExternalID] = r
		}
		require.Equal(t, "Salario", byID["t1"].Description)
		require.True(t, byID["t1"].Amount.Equal(dec(t, "1500")))
		require.True(t, byID["t2"].Amount.Equal(dec(t, "-100")))
	})

	t.Run("empty account id scans the whole client", func(t *testing.T) {
		require.NoError(t, store.AddBankTransactions(ctx, "client-d", "acc-1",
			[]domain.TransactionRecord{{ExternalID: "d1", AccountID: "acc-1", PostedDate: "2024-01-01", Description: "x", Amount: dec(t, "1")}}))
		require.NoError(t, store.AddBankTransactions(ctx, "client-d", "acc-2",
			[]domain.TransactionRecord{{ExternalID: "d2", AccountID: "acc-2", PostedDate: "2024-01-02", Description: "y", Amount: dec(t, "2")}}))

		got, err := store.GetBankTransactions(ctx, "client-d", "")
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("clients are isolated", func(t *testing.T) {
		require.NoError(t, store.AddBankTransactions(ctx, "client-e", "acc-1",
			[]domain.TransactionRecord{{ExternalID: "e1", AccountID: "acc-1", PostedDate: "2024-01-01", Description: "x", Amount: dec(t, "1")}}))

		got, err := store.GetBankTransactions(ctx, "client-f", "acc-1")
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
