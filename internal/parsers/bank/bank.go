// Package bank provides bank statement CSV parsing
package bank

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

// DateLayouts are the date formats seen in bank exports (Relay, FPCU and
// similar), tried in order.
var DateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01/02/06"}

// paymentPatterns extract the payee from payment-service descriptions.
// Matching is case-sensitive on the service phrase, the way the bank writes it.
var paymentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Zelle payment to ([A-Za-z\s]+)`),
	regexp.MustCompile(`Venmo Payment to ([A-Za-z\s]+)`),
}

// Parser converts bank statement CSV exports into expenses.
// The only field is the categorizer, which is read-only, so a Parser is safe
// for concurrent use.
type Parser struct {
	categorizer parser.Categorizer
}

// NewParser returns a bank CSV parser. A nil categorizer files every
// expense under the metadata fallback category.
func NewParser(c parser.Categorizer) *Parser {
	return &Parser{categorizer: c}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "bank-csv"
}

// columns holds the header positions of the fields the parser reads
type columns struct {
	date, description, amount int
}

func (c columns) width() int {
	w := c.date
	if c.description > w {
		w = c.description
	}
	if c.amount > w {
		w = c.amount
	}
	return w + 1
}

// detectColumns locates the date, description and amount columns by header
// name. ok is false when any of the three is missing.
func detectColumns(header []string) (columns, bool) {
	cols := columns{date: -1, description: -1, amount: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(h, "\ufeff\"")))
		switch {
		case cols.date < 0 && strings.Contains(name, "date"):
			cols.date = i
		case cols.description < 0 && (strings.Contains(name, "description") || name == "payee" || name == "memo"):
			cols.description = i
		case cols.amount < 0 && strings.Contains(name, "amount"):
			cols.amount = i
		}
	}
	return cols, cols.date >= 0 && cols.description >= 0 && cols.amount >= 0
}

func newReader(r io.Reader) *csv.Reader {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	return csvReader
}

// CanParse accepts .csv files whose header names a date, a description and
// an amount column.
func (p *Parser) CanParse(path string, header []byte) bool {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return false
	}
	record, err := newReader(strings.NewReader(string(header))).Read()
	if err != nil {
		return false
	}
	_, ok := detectColumns(record)
	return ok
}

// Parse reads the statement. Only debits (negative amounts) become expenses;
// credits are counted as ignored. Rows that cannot be read are skipped.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	csvReader := newReader(r)
	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty%s", parser.FileInfo(meta))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header%s: %w", parser.FileInfo(meta), err)
	}

	// Exports without a recognizable header use the documented
	// date, description, amount order.
	cols, ok := detectColumns(header)
	if !ok {
		cols = columns{date: 0, description: 1, amount: 2}
	}

	result := parser.NewResult()
	row := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Skip(row, "unreadable row: %v", err)
			continue
		}
		if isBlank(record) {
			continue
		}
		if row%500 == 0 {
			if err := parser.CheckContext(ctx); err != nil {
				return nil, err
			}
		}
		p.parseRow(result, row, record, cols, meta)
	}

	return result, nil
}

func (p *Parser) parseRow(result *parser.Result, row int, record []string, cols columns, meta *parser.Metadata) {
	if len(record) < cols.width() {
		result.Skip(row, "expected at least %d fields, got %d", cols.width(), len(record))
		return
	}

	amount, err := domain.ParseAmount(record[cols.amount])
	if err != nil {
		result.Skip(row, "%v", err)
		return
	}
	if !amount.IsNegative() {
		result.Ignored++
		return
	}

	date, err := meta.Calendar().Parse(strings.TrimSpace(strings.Trim(record[cols.date], `"`)), DateLayouts...)
	if err != nil {
		result.Skip(row, "%v", err)
		return
	}

	description := strings.TrimSpace(strings.Trim(record[cols.description], `"`))
	category := meta.Fallback()
	if p.categorizer != nil {
		category = p.categorizer.Categorize(description, meta.Fallback())
	}

	expense, err := domain.NewExpense(date, amount.Abs().InexactFloat64(), category, ExtractVendor(description), description, meta.PropertyID())
	if err != nil {
		result.Skip(row, "%v", err)
		return
	}
	result.Expenses = append(result.Expenses, expense)
}

// ExtractVendor returns the payee of a Zelle/Venmo payment, or the first two
// words of the description for anything else.
func ExtractVendor(description string) string {
	for _, pattern := range paymentPatterns {
		if m := pattern.FindStringSubmatch(description); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
			return "Unknown"
		}
	}
	parts := strings.Fields(description)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, " ")
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
