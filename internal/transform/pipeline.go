package transform

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/dedup"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

// Batch is a parse result ready for the store: every record has an id and
// an import timestamp.
type Batch struct {
	Revenues []*domain.Revenue
	Expenses []*domain.Expense
	Guests   []domain.Guest

	// Fingerprints maps each record id to its ordinal-extended fingerprint
	Fingerprints map[string]string
}

// Len returns the number of revenue and expense records
func (b *Batch) Len() int {
	return len(b.Revenues) + len(b.Expenses)
}

// Prepare assigns deterministic ids and the import timestamp to every record
// in result. Identical rows within the result are told apart by their
// ordinal, so importing the same file twice yields the same ids.
func Prepare(result *parser.Result, importedAt time.Time) (*Batch, error) {
	if result == nil {
		return nil, fmt.Errorf("parse result cannot be nil")
	}

	batch := &Batch{
		Revenues:     result.Revenues,
		Expenses:     result.Expenses,
		Guests:       result.Guests,
		Fingerprints: make(map[string]string, result.Len()),
	}

	AssignRevenueIDs(batch.Revenues, batch.Fingerprints)
	for _, r := range batch.Revenues {
		r.ImportedAt = importedAt
	}

	ordinals := dedup.NewOrdinals()
	for _, e := range batch.Expenses {
		e.Vendor = NormalizeVendor(e.Vendor)
		fp := ExpenseFingerprint(e)
		n := ordinals.Next(fp)
		e.ID = GenerateExpenseID(e, n)
		e.ImportedAt = importedAt
		batch.Fingerprints[e.ID] = dedup.WithOrdinal(fp, n)
	}

	return batch, nil
}

// AssignRevenueIDs sets a deterministic id on every revenue that lacks one.
// When fingerprints is non-nil it receives id → fingerprint.
func AssignRevenueIDs(revenues []*domain.Revenue, fingerprints map[string]string) {
	ordinals := dedup.NewOrdinals()
	for _, r := range revenues {
		fp := RevenueFingerprint(r)
		n := ordinals.Next(fp)
		if r.ID == "" {
			r.ID = GenerateRevenueID(r, n)
		}
		if fingerprints != nil {
			fingerprints[r.ID] = dedup.WithOrdinal(fp, n)
		}
	}
}
