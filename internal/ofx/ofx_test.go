package ofx

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/granafin/ofxingest/internal/domain"
)

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
ENCODING:USASCII

<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<CURDEF>BRL
<BANKACCTFROM>
<BANKID>0341
<ACCTID>12345-6
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101
<DTEND>20240131
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240105120000[-3:BRT]
<TRNAMT>1500.00
<FITID>2024010501
<MEMO>Salario
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110
<TRNAMT>-100.00
<FITID>2024011001
<NAME>Mercado
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1400.00
<DTASOF>20240131
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestParseSingleAccount(t *testing.T) {
	statements, err := NewParser().Parse([]byte(sampleBankOFX))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("got %d statements, want 1", len(statements))
	}

	stmt := statements[0]
	if stmt.BankAccountID != "12345-6" {
		t.Errorf("BankAccountID = %q, want %q", stmt.BankAccountID, "12345-6")
	}
	if stmt.StatementStart != "2024-01-01" || stmt.StatementEnd != "2024-01-31" {
		t.Errorf("period = %s..%s, want 2024-01-01..2024-01-31", stmt.StatementStart, stmt.StatementEnd)
	}
	if stmt.LedgerBalance == nil || stmt.LedgerBalance.String() != "1400" {
		t.Errorf("LedgerBalance = %v, want 1400", stmt.LedgerBalance)
	}
	if len(stmt.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(stmt.Transactions))
	}

	first := stmt.Transactions[0]
	if first.FITID != "2024010501" {
		t.Errorf("FITID = %q, want %q", first.FITID, "2024010501")
	}
	if first.PostedDate != "2024-01-05" {
		t.Errorf("PostedDate = %q, want %q", first.PostedDate, "2024-01-05")
	}
	if first.RawPosted != "20240105120000[-3:BRT]" {
		t.Errorf("RawPosted = %q", first.RawPosted)
	}
	if first.Description != "Salario" {
		t.Errorf("Description = %q, want MEMO value", first.Description)
	}
	if first.Amount.String() != "1500" {
		t.Errorf("Amount = %s, want 1500", first.Amount)
	}
	if first.RawAmount != "1500.00" {
		t.Errorf("RawAmount = %q, want %q", first.RawAmount, "1500.00")
	}

	// NAME is the description fallback when MEMO is absent.
	if got := stmt.Transactions[1].Description; got != "Mercado" {
		t.Errorf("Description = %q, want NAME fallback %q", got, "Mercado")
	}
}

func TestParseMultipleAccounts(t *testing.T) {
	multi := `<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<BANKACCTFROM><ACCTID>conta-1</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>CREDIT<DTPOSTED>20240101<TRNAMT>10.00<FITID>a1</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
<STMTTRNRS>
<STMTRS>
<BANKACCTFROM><ACCTID>conta-2</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240102<TRNAMT>-5.00<FITID>b1</STMTTRN>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240103<TRNAMT>-6.00<FITID>b2</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

	statements, err := NewParser().Parse([]byte(multi))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("got %d statements, want 2", len(statements))
	}
	if statements[0].BankAccountID != "conta-1" || statements[1].BankAccountID != "conta-2" {
		t.Errorf("account ids = %q, %q", statements[0].BankAccountID, statements[1].BankAccountID)
	}
	if len(statements[0].Transactions) != 1 || len(statements[1].Transactions) != 2 {
		t.Errorf("transaction counts = %d, %d, want 1, 2",
			len(statements[0].Transactions), len(statements[1].Transactions))
	}
}

func TestParseCreditCardStatement(t *testing.T) {
	cc := `<OFX>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<CCSTMTRS>
<CCACCTFROM><ACCTID>cartao-99</CCACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240115<TRNAMT>-42.50<FITID>cc1</STMTTRN>
</BANKTRANLIST>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

	statements, err := NewParser().Parse([]byte(cc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("got %d statements, want 1", len(statements))
	}
	if statements[0].BankAccountID != "cartao-99" {
		t.Errorf("BankAccountID = %q, want %q", statements[0].BankAccountID, "cartao-99")
	}
}

func TestParseMissingAccountID(t *testing.T) {
	input := `<OFX>
<STMTRS>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>CREDIT<DTPOSTED>20240101<TRNAMT>1.00<FITID>x</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</OFX>`

	statements, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if statements[0].BankAccountID != domain.UnknownAccountID {
		t.Errorf("BankAccountID = %q, want sentinel %q", statements[0].BankAccountID, domain.UnknownAccountID)
	}
}

func TestParseCommaDecimalSeparator(t *testing.T) {
	input := `<OFX>
<STMTRS>
<BANKACCTFROM><ACCTID>1</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240101<TRNAMT>-123,45<FITID>x</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</OFX>`

	statements, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := statements[0].Transactions[0].Amount.String(); got != "-123.45" {
		t.Errorf("Amount = %s, want -123.45", got)
	}
}

func TestParseMissingPostedDateUsesToday(t *testing.T) {
	input := `<OFX>
<STMTRS>
<BANKACCTFROM><ACCTID>1</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>CREDIT<TRNAMT>1.00<FITID>x</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</OFX>`

	statements, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	txn := statements[0].Transactions[0]
	if txn.PostedDate != time.Now().Format("2006-01-02") {
		t.Errorf("PostedDate = %q, want today", txn.PostedDate)
	}
	if txn.RawPosted != "" {
		t.Errorf("RawPosted = %q, want empty", txn.RawPosted)
	}
}

func TestParseWindows1252(t *testing.T) {
	header := "OFXHEADER:100\nCHARSET:1252\n\n"
	body := "<OFX><STMTRS><BANKACCTFROM><ACCTID>1</BANKACCTFROM><BANKTRANLIST>" +
		"<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240101<TRNAMT>-1.00<FITID>x<MEMO>Cart\xe3o</STMTTRN>" +
		"</BANKTRANLIST></STMTRS></OFX>"

	statements, err := NewParser().Parse([]byte(header + body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := statements[0].Transactions[0].Description; got != "Cartão" {
		t.Errorf("Description = %q, want %q", got, "Cartão")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "empty input",
			input: "",
		},
		{
			name:  "no OFX root",
			input: "<HTML><BODY>not a statement</BODY></HTML>",
		},
		{
			name:  "no statements",
			input: "<OFX><SIGNONMSGSRSV1><SONRS></SONRS></SIGNONMSGSRSV1></OFX>",
		},
		{
			name:  "statement without transaction list",
			input: "<OFX><STMTRS><BANKACCTFROM><ACCTID>1</BANKACCTFROM></STMTRS></OFX>",
		},
		{
			name: "transaction without amount",
			input: `<OFX><STMTRS><BANKACCTFROM><ACCTID>1</BANKACCTFROM><BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240101<FITID>x</STMTTRN>
</BANKTRANLIST></STMTRS></OFX>`,
		},
		{
			name: "transaction with garbage amount",
			input: `<OFX><STMTRS><BANKACCTFROM><ACCTID>1</BANKACCTFROM><BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240101<TRNAMT>abc<FITID>x</STMTTRN>
</BANKTRANLIST></STMTRS></OFX>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"20240105", "2024-01-05"},
		{"20240105120000", "2024-01-05"},
		{"20240105120000[-3:BRT]", "2024-01-05"},
		{"", ""},
		{"2024", ""},
		{"notadate", ""},
		{"2024010X", ""},
	}

	for _, tt := range tests {
		if got := formatDate(tt.raw); got != tt.want {
			t.Errorf("formatDate(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCanParse(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		want   bool
	}{
		{"ofx extension with header", "extrato.ofx", "OFXHEADER:100", true},
		{"qfx extension with tag", "export.QFX", "<OFX>", true},
		{"ofx v2 declaration", "extrato.ofx", `<?OFX OFXHEADER="200"?>`, true},
		{"wrong extension", "extrato.csv", "OFXHEADER:100", false},
		{"ofx extension without markers", "extrato.ofx", "hello world", false},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CanParse(tt.path, []byte(tt.header)); got != tt.want {
				t.Errorf("CanParse(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseStatementOrderIsStable(t *testing.T) {
	// Bank statements come before credit-card statements regardless of
	// their position in the file.
	input := `<OFX>
<CREDITCARDMSGSRSV1>
<CCSTMTRS>
<CCACCTFROM><ACCTID>cc</CCACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240101<TRNAMT>-1.00<FITID>c1</STMTTRN>
</BANKTRANLIST>
</CCSTMTRS>
</CREDITCARDMSGSRSV1>
<BANKMSGSRSV1>
<STMTRS>
<BANKACCTFROM><ACCTID>bank</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>CREDIT<DTPOSTED>20240101<TRNAMT>1.00<FITID>b1</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</BANKMSGSRSV1>
</OFX>`

	statements, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := []string{statements[0].BankAccountID, statements[1].BankAccountID}
	if strings.Join(got, ",") != "bank,cc" {
		t.Errorf("statement order = %v, want [bank cc]", got)
	}
}
