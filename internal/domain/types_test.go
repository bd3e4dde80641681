package domain

import "testing"

func TestOFXImportRecordValidate(t *testing.T) {
	valid := OFXImportRecord{
		ID:               "id",
		FileHash:         "hash",
		ClientID:         "client",
		BankAccountID:    "acc",
		TransactionCount: 2,
	}

	tests := []struct {
		name    string
		mutate  func(*OFXImportRecord)
		wantErr bool
	}{
		{
			name:   "valid record",
			mutate: func(r *OFXImportRecord) {},
		},
		{
			name:    "missing client id",
			mutate:  func(r *OFXImportRecord) { r.ClientID = "" },
			wantErr: true,
		},
		{
			name:    "missing bank account id",
			mutate:  func(r *OFXImportRecord) { r.BankAccountID = "" },
			wantErr: true,
		},
		{
			name:    "missing file hash",
			mutate:  func(r *OFXImportRecord) { r.FileHash = "" },
			wantErr: true,
		},
		{
			name:    "negative transaction count",
			mutate:  func(r *OFXImportRecord) { r.TransactionCount = -1 },
			wantErr: true,
		},
		{
			name:   "zero transaction count is fine",
			mutate: func(r *OFXImportRecord) { r.TransactionCount = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid
			tt.mutate(&record)
			err := record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
