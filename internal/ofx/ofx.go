// Package ofx parses OFX-SGML bank and credit-card statement exports
// into normalized per-account statements.
package ofx

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/granafin/ofxingest/internal/domain"
)

// ParseError reports a structurally unusable file: missing <OFX> root,
// no statements, or a statement without its transaction list. Field
// level gaps (account ids, dates) are handled leniently and never
// produce a ParseError.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "ofx: " + e.Msg
}

func parseErrorf(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// Parser implements OFX statement parsing with a stateless design.
// Each call operates solely on the input bytes, so a single instance is
// safe for concurrent use without locking.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// CanParse checks whether the file looks like OFX, based on extension
// and header markers. Used by the CLI to skip unrelated files.
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts every account statement from raw OFX bytes.
//
// Both bank (STMTTRNRS) and credit-card (CCSTMTTRNRS) statements are
// supported, in any cardinality: the tag tree's FindAll guarantees
// downstream code always iterates a slice, whether the file held one
// account or many.
func (p *Parser) Parse(data []byte) ([]domain.AccountStatement, error) {
	text, err := decode(data)
	if err != nil {
		return nil, parseErrorf("failed to decode file: %v", err)
	}

	tree := parseSGML(stripHeader(text))
	root := tree.Find("OFX")
	if root == nil {
		return nil, parseErrorf("missing <OFX> root element")
	}

	var statements []domain.AccountStatement
	for _, container := range root.FindAll("STMTRS") {
		stmt, err := extractStatement(container, "BANKACCTFROM")
		if err != nil {
			return nil, err
		}
		statements = append(statements, *stmt)
	}
	for _, container := range root.FindAll("CCSTMTRS") {
		stmt, err := extractStatement(container, "CCACCTFROM")
		if err != nil {
			return nil, err
		}
		statements = append(statements, *stmt)
	}

	if len(statements) == 0 {
		return nil, parseErrorf("no bank or credit-card statements found")
	}

	return statements, nil
}

// extractStatement pulls one account's fields out of a STMTRS/CCSTMTRS
// container. A missing transaction list is fatal; a missing account id
// or missing dates are not.
func extractStatement(container *Node, acctFrom string) (*domain.AccountStatement, error) {
	accountID := domain.UnknownAccountID
	if from := container.Find(acctFrom); from != nil {
		if id := from.Text("ACCTID"); id != "" {
			accountID = id
		}
	}

	tranList := container.Find("BANKTRANLIST")
	if tranList == nil {
		return nil, parseErrorf("statement for account %s missing transaction list", accountID)
	}

	stmt := &domain.AccountStatement{
		BankAccountID:  accountID,
		StatementStart: formatDate(tranList.Text("DTSTART")),
		StatementEnd:   formatDate(tranList.Text("DTEND")),
	}

	if ledger := container.Find("LEDGERBAL"); ledger != nil {
		if raw := ledger.Text("BALAMT"); raw != "" {
			bal, err := parseAmount(raw)
			if err != nil {
				return nil, parseErrorf("invalid ledger balance %q for account %s", raw, accountID)
			}
			stmt.LedgerBalance = &bal
		}
	}

	for i, trn := range tranList.FindAll("STMTTRN") {
		txn, err := extractTransaction(trn)
		if err != nil {
			return nil, parseErrorf("account %s transaction at index %d: %v", accountID, i, err)
		}
		stmt.Transactions = append(stmt.Transactions, *txn)
	}

	return stmt, nil
}

// extractTransaction reads one STMTTRN element.
func extractTransaction(trn *Node) (*domain.Transaction, error) {
	rawAmount := trn.Text("TRNAMT")
	if rawAmount == "" {
		return nil, fmt.Errorf("missing amount")
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", rawAmount)
	}

	rawPosted := trn.Text("DTPOSTED")
	posted := formatDate(rawPosted)
	if posted == "" {
		// Known leniency: some exports omit DTPOSTED entirely. The
		// import date is the least wrong substitute; we never guess a
		// date from a short/garbled value, only from true absence.
		posted = time.Now().Format("2006-01-02")
	}

	description := trn.Text("MEMO")
	if description == "" {
		description = trn.Text("NAME")
	}

	return &domain.Transaction{
		FITID:       trn.Text("FITID"),
		Type:        strings.ToUpper(trn.Text("TRNTYPE")),
		RawPosted:   rawPosted,
		PostedDate:  posted,
		Description: description,
		RawAmount:   rawAmount,
		Amount:      amount,
	}, nil
}

// formatDate reformats an 8-digit YYYYMMDD prefix (OFX dates carry time
// and timezone suffixes) to YYYY-MM-DD. Absent or short values yield ""
// rather than a guessed date.
func formatDate(raw string) string {
	if len(raw) < 8 {
		return ""
	}
	for _, r := range raw[:8] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return fmt.Sprintf("%s-%s-%s", raw[0:4], raw[4:6], raw[6:8])
}

// parseAmount accepts both dot and comma decimal separators; Brazilian
// bank exports are inconsistent about which they emit.
func parseAmount(raw string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	return decimal.NewFromString(normalized)
}

// decode converts raw bytes to UTF-8 text, honoring the CHARSET:1252
// header line that most Brazilian bank exports carry.
func decode(data []byte) (string, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if strings.Contains(strings.ToUpper(string(head)), "CHARSET:1252") {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	return string(data), nil
}

// stripHeader drops the OFX v1 colon-delimited header block, which ends
// at the first blank line or at the first tag, whichever comes first.
func stripHeader(text string) string {
	if i := strings.IndexByte(text, '<'); i >= 0 {
		return text[i:]
	}
	return text
}
