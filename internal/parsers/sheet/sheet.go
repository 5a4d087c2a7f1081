// Package sheet parses spreadsheet exports (.xlsx workbooks and .csv sheets)
// kept by hand: recurring monthly expenses, monthly revenue roll-ups, direct
// bookings and contractor payment logs.
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

// Kind identifies the layout of one sheet
type Kind int

const (
	KindUnknown Kind = iota
	// KindRecurring has an "Expense Item" label column and one column per month
	KindRecurring
	// KindMonthlyRevenue has year, month, gross and optional net columns
	KindMonthlyRevenue
	// KindDirectBookings has date, guest and amount columns
	KindDirectBookings
	// KindPayments has date, vendor and amount columns of contractor payments
	KindPayments
)

func (k Kind) String() string {
	switch k {
	case KindRecurring:
		return "recurring-expenses"
	case KindMonthlyRevenue:
		return "monthly-revenue"
	case KindDirectBookings:
		return "direct-bookings"
	case KindPayments:
		return "contractor-payments"
	default:
		return "unknown"
	}
}

// Parser reads spreadsheet exports. The categorizer is read-only, so a
// Parser is safe for concurrent use.
type Parser struct {
	categorizer parser.Categorizer
}

// NewParser returns a spreadsheet parser using c to categorize expense rows.
func NewParser(c parser.Categorizer) *Parser {
	return &Parser{categorizer: c}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "sheet"
}

// CanParse accepts any .xlsx workbook and .csv files whose header matches
// one of the known sheet layouts.
func (p *Parser) CanParse(path string, header []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		// xlsx is a zip container
		return bytes.HasPrefix(header, []byte("PK"))
	case ".csv":
		r := csv.NewReader(bytes.NewReader(header))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		record, err := r.Read()
		if err != nil {
			return false
		}
		return DetectKind(record) != KindUnknown
	}
	return false
}

// DetectKind classifies a sheet by its header row
func DetectKind(header []string) Kind {
	names := normalizeHeader(header)
	has := func(pred func(string) bool) bool {
		for _, n := range names {
			if pred(n) {
				return true
			}
		}
		return false
	}
	eq := func(want string) func(string) bool {
		return func(n string) bool { return n == want }
	}
	contains := func(want string) func(string) bool {
		return func(n string) bool { return strings.Contains(n, want) }
	}

	months := 0
	for _, n := range names {
		if _, ok := monthNames[n]; ok {
			months++
		}
	}

	switch {
	case len(names) > 0 && (names[0] == "expense item" || months >= 3):
		return KindRecurring
	case has(eq("year")) && has(eq("month")) && (has(contains("gross")) || has(contains("net"))):
		return KindMonthlyRevenue
	case has(contains("date")) && has(contains("guest")) && has(contains("amount")):
		return KindDirectBookings
	case has(contains("date")) && (has(eq("vendor")) || has(contains("paid to"))) && has(contains("amount")):
		return KindPayments
	}
	return KindUnknown
}

func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(strings.Trim(h, "\ufeff\"")))
	}
	return names
}

// Parse reads every recognizable sheet. Workbook sheets with an unknown
// layout count as ignored; rows inside a sheet are skipped and counted.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet content%s: %w", parser.FileInfo(meta), err)
	}

	if !bytes.HasPrefix(content, []byte("PK")) {
		csvReader := csv.NewReader(bytes.NewReader(content))
		csvReader.FieldsPerRecord = -1
		csvReader.LazyQuotes = true
		csvReader.TrimLeadingSpace = true
		rows, err := csvReader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV content%s: %w", parser.FileInfo(meta), err)
		}
		result := parser.NewResult()
		if err := p.parseTable(result, "", rows, meta); err != nil {
			return nil, fmt.Errorf("sheet%s: %w", parser.FileInfo(meta), err)
		}
		return result, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook%s: %w", parser.FileInfo(meta), err)
	}
	defer f.Close()

	result := parser.NewResult()
	recognized := 0
	for _, name := range f.GetSheetList() {
		if err := parser.CheckContext(ctx); err != nil {
			return nil, err
		}
		// Raw values keep date cells as serial numbers and amounts unformatted.
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q%s: %w", name, parser.FileInfo(meta), err)
		}
		if err := p.parseTable(result, name, rows, meta); err != nil {
			result.Ignored++
			continue
		}
		recognized++
	}
	if recognized == 0 {
		return nil, fmt.Errorf("no sheet with a known layout%s", parser.FileInfo(meta))
	}
	return result, nil
}

// errUnknownLayout is returned for a table whose header matches no Kind
var errUnknownLayout = errors.New("unrecognized sheet layout")

// headerScanRows bounds how far below the top a header row is looked for;
// hand-kept sheets often start with a title row.
const headerScanRows = 5

// parseTable finds the header row and dispatches on its layout.
func (p *Parser) parseTable(result *parser.Result, sheetName string, rows [][]string, meta *parser.Metadata) error {
	start, kind := -1, KindUnknown
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if k := DetectKind(rows[i]); k != KindUnknown {
			start, kind = i, k
			break
		}
	}
	if start < 0 {
		return errUnknownLayout
	}

	t := table{
		sheet:  sheetName,
		header: normalizeHeader(rows[start]),
		rows:   rows[start+1:],
		first:  start + 2,
		meta:   meta,
	}

	switch kind {
	case KindRecurring:
		p.parseRecurring(result, t)
	case KindMonthlyRevenue:
		parseMonthlyRevenue(result, t)
	case KindDirectBookings:
		parseDirectBookings(result, t)
	case KindPayments:
		p.parsePayments(result, t)
	}
	return nil
}

// table is one sheet's rows below its header
type table struct {
	sheet  string
	header []string
	rows   [][]string
	first  int // 1-based row number of rows[0]
	meta   *parser.Metadata
}

// column returns the index of the first header accepted by pred, or -1
func (t table) column(pred func(string) bool) int {
	for i, h := range t.header {
		if pred(h) {
			return i
		}
	}
	return -1
}

// year returns the year for rows that carry only a month: an explicit hint
// wins, then a year in the sheet name, then the detection year.
func (t table) year() int {
	if t.meta.HasYear() {
		return t.meta.Year()
	}
	if y, ok := yearFromName(t.sheet); ok {
		return y
	}
	return t.meta.Year()
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
