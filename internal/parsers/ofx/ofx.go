// Package ofx provides OFX/QFX bank and credit card statement parsing
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
	"github.com/rumor-ml/commons.systems/strdash/internal/parsers/bank"
)

// Parser converts OFX/QFX statements into expenses. Debits become expenses
// and credits are counted as ignored. The categorizer is read-only, so a
// Parser is safe for concurrent use.
type Parser struct {
	categorizer parser.Categorizer
}

// NewParser returns an OFX parser using c to categorize debits.
func NewParser(c parser.Categorizer) *Parser {
	return &Parser{categorizer: c}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	// Look for OFX header markers (both v1 SGML and v2 XML formats)
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts expenses from every bank and credit card statement in the file
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", parser.FileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not take a context; this catches
	// cancellation between the read and the parse.
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file%s (%d bytes): %w", parser.FileInfo(meta), len(content), err)
	}

	lists := transactionLists(response)
	if len(lists) == 0 {
		return nil, fmt.Errorf("no bank or credit card statement found in OFX file%s (creditcard: %d, bank: %d, investment: %d)",
			parser.FileInfo(meta), len(response.CreditCard), len(response.Bank), len(response.InvStmt))
	}

	result := parser.NewResult()
	row := 0
	for _, list := range lists {
		for _, txn := range list.Transactions {
			row++
			p.parseTransaction(result, row, txn, meta)
		}
	}
	return result, nil
}

// transactionLists collects the transaction lists of all bank and credit card
// statements in the response.
func transactionLists(resp *ofxgo.Response) []*ofxgo.TransactionList {
	var lists []*ofxgo.TransactionList
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	return lists
}

func (p *Parser) parseTransaction(result *parser.Result, row int, txn ofxgo.Transaction, meta *parser.Metadata) {
	f, _ := txn.TrnAmt.Float64()
	amount := decimal.NewFromFloat(f)
	if !amount.IsNegative() {
		result.Ignored++
		return
	}

	// Use posted date; if not available, fallback to user date
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		result.Skip(row, "transaction %s missing both posted date and user date", txn.FiTID.String())
		return
	}

	// Use Name field for description; if empty, fallback to Memo field
	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		result.Skip(row, "transaction %s missing both name and memo fields", txn.FiTID.String())
		return
	}

	category := meta.Fallback()
	if p.categorizer != nil {
		category = p.categorizer.Categorize(description, meta.Fallback())
	}

	expense, err := domain.NewExpense(
		meta.Calendar().Normalize(date),
		amount.Abs().Round(2).InexactFloat64(),
		category,
		bank.ExtractVendor(description),
		description,
		meta.PropertyID(),
	)
	if err != nil {
		result.Skip(row, "%v", err)
		return
	}
	if id := txn.FiTID.String(); id != "" {
		expense.ExternalID = "ofx_" + id
	}
	result.Expenses = append(result.Expenses, expense)
}
