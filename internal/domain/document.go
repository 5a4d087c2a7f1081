package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fields is the document form of a record as held by the record store.
type Fields = map[string]interface{}

// Field names shared by revenue and expense documents.
const (
	FieldDate             = "date"
	FieldAmount           = "amount"
	FieldSource           = "source"
	FieldPropertyID       = "propertyId"
	FieldMonthlyAggregate = "monthlyAggregate"
	FieldCategory         = "category"
	FieldExternalID       = "externalId"
	FieldImportedAt       = "importedAt"
)

// ToFields converts the revenue record to a store document.
func (r *Revenue) ToFields() Fields {
	f := Fields{
		FieldDate:             r.Date,
		FieldAmount:           r.Amount,
		"grossAmount":         r.GrossAmount,
		"netIncome":           r.NetIncome,
		"serviceFees":         r.ServiceFees,
		FieldSource:           string(r.Source),
		FieldPropertyID:       r.PropertyID,
		"description":         r.Description,
		FieldMonthlyAggregate: r.MonthlyAggregate,
	}
	if r.ExternalID != "" {
		f[FieldExternalID] = r.ExternalID
	}
	if r.GuestName != "" {
		f["guestName"] = r.GuestName
	}
	if r.ConfirmationCode != "" {
		f["confirmationCode"] = r.ConfirmationCode
	}
	if !r.ImportedAt.IsZero() {
		f[FieldImportedAt] = r.ImportedAt
	}
	return f
}

// RevenueFromFields rebuilds a revenue record from a store document.
// Dates are normalized through cal so month arithmetic is stable.
func RevenueFromFields(id string, f Fields, cal *Calendar) (*Revenue, error) {
	date, err := timeField(f, FieldDate)
	if err != nil {
		return nil, fmt.Errorf("revenue %s: %w", id, err)
	}
	r := &Revenue{
		ID:               id,
		Date:             cal.Normalize(date),
		Amount:           floatField(f, FieldAmount),
		GrossAmount:      floatField(f, "grossAmount"),
		NetIncome:        floatField(f, "netIncome"),
		ServiceFees:      floatField(f, "serviceFees"),
		Source:           Source(stringField(f, FieldSource)),
		PropertyID:       stringField(f, FieldPropertyID),
		Description:      stringField(f, "description"),
		MonthlyAggregate: boolField(f, FieldMonthlyAggregate),
		ExternalID:       stringField(f, FieldExternalID),
		GuestName:        stringField(f, "guestName"),
		ConfirmationCode: stringField(f, "confirmationCode"),
	}
	if t, err := timeField(f, FieldImportedAt); err == nil {
		r.ImportedAt = t
	}
	// Older documents carried only grossAmount/netIncome.
	if r.Amount == 0 {
		r.Amount = r.NetIncome
		if r.Amount == 0 {
			r.Amount = r.GrossAmount
		}
	}
	if r.NetIncome == 0 {
		r.NetIncome = r.Amount
	}
	if r.GrossAmount == 0 {
		r.GrossAmount = r.NetIncome
	}
	if r.Source == "" {
		r.Source = SourceOther
	}
	if r.PropertyID == "" {
		r.PropertyID = UnknownProperty
	}
	return r, nil
}

// ToFields converts the expense record to a store document.
func (e *Expense) ToFields() Fields {
	f := Fields{
		FieldDate:       e.Date,
		FieldAmount:     e.Amount,
		FieldCategory:   string(e.Category),
		"vendor":        e.Vendor,
		"description":   e.Description,
		FieldPropertyID: e.PropertyID,
		"recurring":     e.Recurring,
	}
	if e.Subcategory != "" {
		f["subcategory"] = e.Subcategory
	}
	if e.ExternalID != "" {
		f[FieldExternalID] = e.ExternalID
	}
	if !e.ImportedAt.IsZero() {
		f[FieldImportedAt] = e.ImportedAt
	}
	return f
}

// ExpenseFromFields rebuilds an expense record from a store document.
func ExpenseFromFields(id string, f Fields, cal *Calendar) (*Expense, error) {
	date, err := timeField(f, FieldDate)
	if err != nil {
		return nil, fmt.Errorf("expense %s: %w", id, err)
	}
	e := &Expense{
		ID:          id,
		Date:        cal.Normalize(date),
		Amount:      floatField(f, FieldAmount),
		Category:    Category(stringField(f, FieldCategory)),
		Subcategory: stringField(f, "subcategory"),
		Vendor:      stringField(f, "vendor"),
		Description: stringField(f, "description"),
		PropertyID:  stringField(f, FieldPropertyID),
		Recurring:   boolField(f, "recurring"),
		ExternalID:  stringField(f, FieldExternalID),
	}
	if t, err := timeField(f, FieldImportedAt); err == nil {
		e.ImportedAt = t
	}
	if e.Amount < 0 {
		e.Amount = -e.Amount
	}
	if e.Category == "" {
		e.Category = CategoryOther
	}
	if e.PropertyID == "" {
		e.PropertyID = UnknownProperty
	}
	return e, nil
}

// ToFields converts the bank account snapshot to a store document.
func (a *BankAccount) ToFields() Fields {
	return Fields{
		"name":          a.Name,
		"type":          a.Type,
		"balance":       a.Balance,
		"active":        a.Active,
		FieldExternalID: a.ExternalID,
		"lastUpdated":   a.LastUpdated,
	}
}

// BankAccountFromFields rebuilds a bank account from a store document.
func BankAccountFromFields(id string, f Fields) *BankAccount {
	a := &BankAccount{
		ID:         id,
		Name:       stringField(f, "name"),
		Type:       stringField(f, "type"),
		Balance:    floatField(f, "balance"),
		Active:     boolField(f, "active"),
		ExternalID: stringField(f, FieldExternalID),
	}
	if t, err := timeField(f, "lastUpdated"); err == nil {
		a.LastUpdated = t
	}
	return a
}

// ToFields converts the inquiry to a store document.
func (i *Inquiry) ToFields() Fields {
	return Fields{
		"propertyId":      i.PropertyID,
		"propertyName":    i.PropertyName,
		"checkIn":         i.CheckIn,
		"checkOut":        i.CheckOut,
		"guests":          i.Guests,
		"guestName":       i.GuestName,
		"guestEmail":      i.GuestEmail,
		"guestPhone":      i.GuestPhone,
		"specialRequests": i.SpecialRequests,
		"priceEstimate": map[string]interface{}{
			"nights":      i.PriceEstimate.Nights,
			"subtotal":    i.PriceEstimate.Subtotal,
			"cleaningFee": i.PriceEstimate.CleaningFee,
			"taxAmount":   i.PriceEstimate.TaxAmount,
			"total":       i.PriceEstimate.Total,
		},
		"status":    string(i.Status),
		"createdAt": i.CreatedAt,
	}
}

// StringField returns a string-valued field or "".
func StringField(f Fields, key string) string { return stringField(f, key) }

// FloatField returns a numeric field as float64, or 0.
func FloatField(f Fields, key string) float64 { return floatField(f, key) }

// IntField returns a numeric field as int64, or 0.
func IntField(f Fields, key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// TimeField returns a timestamp field.
func TimeField(f Fields, key string) (time.Time, error) { return timeField(f, key) }

// BoolField reads a flag the way every backend may hand it back
func BoolField(f Fields, key string) bool { return boolField(f, key) }

func stringField(f Fields, key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// floatField accepts the numeric shapes the store backends return:
// Firestore yields int64 for integral values, JSON decoding yields float64.
func floatField(f Fields, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		n, _ := v.Float64()
		return n
	}
	return 0
}

func boolField(f Fields, key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func timeField(f Fields, key string) (time.Time, error) {
	switch v := f[key].(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s timestamp %q: %w", key, v, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("missing %s timestamp", key)
}
