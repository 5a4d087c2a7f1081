package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/transform"
)

// ValidationResult contains all validation errors and warnings for a batch
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a record that must not be written
type ValidationError struct {
	Entity  string // "revenue", "expense"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any error was found
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Rejected returns the ids of records with at least one error
func (r *ValidationResult) Rejected() map[string]bool {
	ids := make(map[string]bool, len(r.Errors))
	for _, e := range r.Errors {
		ids[e.ID] = true
	}
	return ids
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Entity, e.ID, e.Field, e.Message)
}

// Options tune batch validation
type Options struct {
	// KnownProperties lists valid property ids; nil skips the check
	KnownProperties []string
	// Now anchors the future-date warning; zero means time.Now()
	Now time.Time
}

// ValidateBatch checks every record of a prepared batch: field constraints,
// duplicate ids, property references, and mixing of monthly aggregates with
// individual transactions in one (source, year, month) window.
func ValidateBatch(b *transform.Batch, opts Options) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}
	if b == nil {
		return result
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var known map[string]bool
	if opts.KnownProperties != nil {
		known = make(map[string]bool, len(opts.KnownProperties))
		for _, id := range opts.KnownProperties {
			known[id] = true
		}
	}

	revenueIDs := make(map[string]bool)
	type windowKey struct {
		source domain.Source
		year   int
		month  time.Month
	}
	granularity := make(map[windowKey][2]int) // [aggregates, transactions]

	for _, r := range b.Revenues {
		if r.ID == "" {
			result.addError("revenue", r.ID, "ID", "", "revenue ID cannot be empty")
		} else if revenueIDs[r.ID] {
			result.addError("revenue", r.ID, "ID", r.ID, "duplicate revenue ID")
		}
		revenueIDs[r.ID] = true

		if err := r.Validate(); err != nil {
			result.addError("revenue", r.ID, "Record", "", err.Error())
		}
		if r.ServiceFees < 0 {
			result.addError("revenue", r.ID, "ServiceFees", fmt.Sprintf("%.2f", r.ServiceFees), "service fees cannot be negative")
		}
		if fees := domain.RoundCents(r.GrossAmount - r.NetIncome); fees != domain.RoundCents(r.ServiceFees) {
			result.addWarning("revenue", r.ID, "ServiceFees", fmt.Sprintf("%.2f", r.ServiceFees),
				fmt.Sprintf("service fees differ from gross - net (%.2f)", fees))
		}
		if r.Amount != r.NetIncome {
			result.addWarning("revenue", r.ID, "Amount", fmt.Sprintf("%.2f", r.Amount), "amount should equal net income")
		}
		result.checkCommon("revenue", r.ID, r.Date, r.PropertyID, known, now)

		k := windowKey{r.Source, r.Date.Year(), r.Date.Month()}
		counts := granularity[k]
		if r.MonthlyAggregate {
			counts[0]++
		} else {
			counts[1]++
		}
		granularity[k] = counts
	}

	for k, counts := range granularity {
		if counts[0] > 0 && counts[1] > 0 {
			result.addError("revenue", "", "MonthlyAggregate",
				fmt.Sprintf("%s %04d-%02d", k.source, k.year, k.month),
				fmt.Sprintf("%v: %d aggregates and %d transactions in one window", domain.ErrMixedGranularity, counts[0], counts[1]))
		}
	}

	expenseIDs := make(map[string]bool)
	for _, e := range b.Expenses {
		if e.ID == "" {
			result.addError("expense", e.ID, "ID", "", "expense ID cannot be empty")
		} else if expenseIDs[e.ID] {
			result.addError("expense", e.ID, "ID", e.ID, "duplicate expense ID")
		}
		expenseIDs[e.ID] = true

		if err := e.Validate(); err != nil {
			result.addError("expense", e.ID, "Record", "", err.Error())
		}
		if e.Category != "" && !domain.ValidateCategory(e.Category) {
			result.addError("expense", e.ID, "Category", string(e.Category),
				fmt.Sprintf("invalid category: %s", e.Category))
		}
		if strings.TrimSpace(e.Vendor) == "" {
			result.addWarning("expense", e.ID, "Vendor", "", "vendor is empty")
		}
		result.checkCommon("expense", e.ID, e.Date, e.PropertyID, known, now)
	}

	return result
}

func (r *ValidationResult) checkCommon(entity, id string, date time.Time, propertyID string, known map[string]bool, now time.Time) {
	if date.After(now) {
		r.addWarning(entity, id, "Date", date.Format("2006-01-02"), "date is in the future")
	}
	switch {
	case propertyID == domain.UnknownProperty:
		r.addWarning(entity, id, "PropertyID", propertyID, "record is not attributed to a property")
	case known != nil && !known[propertyID]:
		r.addError(entity, id, "PropertyID", propertyID,
			fmt.Sprintf("%v: %s", domain.ErrUnknownProperty, propertyID))
	}
}

func (r *ValidationResult) addError(entity, id, field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Entity: entity, ID: id, Field: field, Value: value, Message: message})
}

func (r *ValidationResult) addWarning(entity, id, field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Entity: entity, ID: id, Field: field, Value: value, Message: message})
}
