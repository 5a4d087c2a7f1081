package parser

import (
	"context"
	"fmt"
	"io"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Parser is the strategy interface for all export format parsers
type Parser interface {
	// Name returns parser identifier (e.g., "bank-csv", "airbnb-payouts")
	Name() string

	// CanParse checks if parser can handle this file
	// Returns true if this parser should be used for the file
	CanParse(path string, header []byte) bool

	// Parse converts the export into canonical records. Malformed rows are
	// skipped and counted in the result; an error means the input as a whole
	// could not be read.
	Parse(ctx context.Context, r io.Reader, meta *Metadata) (*Result, error)
}

// Categorizer maps free text to an expense category, returning fallback
// when no rule matches.
type Categorizer interface {
	Categorize(text string, fallback domain.Category) domain.Category
}

// Skip records one input row that produced no record.
type Skip struct {
	Row    int    // 1-based row or element index in the input
	Reason string // Why the row was dropped
}

// Result holds the records produced by one Parse call
type Result struct {
	Revenues []*domain.Revenue
	Expenses []*domain.Expense
	Guests   []domain.Guest
	Skipped  []Skip
	// Ignored counts rows that were valid but out of scope for the parser
	// (e.g. deposits in a bank statement). They are not errors.
	Ignored int
}

// NewResult returns an empty result with initialized slices
func NewResult() *Result {
	return &Result{
		Revenues: []*domain.Revenue{},
		Expenses: []*domain.Expense{},
		Guests:   []domain.Guest{},
		Skipped:  []Skip{},
	}
}

// Skip records a dropped row
func (r *Result) Skip(row int, format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, Skip{Row: row, Reason: fmt.Sprintf(format, args...)})
}

// SkipCount returns the number of malformed rows
func (r *Result) SkipCount() int {
	return len(r.Skipped)
}

// Len returns the number of records produced
func (r *Result) Len() int {
	return len(r.Revenues) + len(r.Expenses) + len(r.Guests)
}

// Merge appends other's records and skips into r
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Revenues = append(r.Revenues, other.Revenues...)
	r.Expenses = append(r.Expenses, other.Expenses...)
	r.Guests = append(r.Guests, other.Guests...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Ignored += other.Ignored
}

// CheckContext returns ctx.Err() if the context is already done
func CheckContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
