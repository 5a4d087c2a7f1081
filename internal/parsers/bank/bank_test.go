package bank

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
	"github.com/rumor-ml/commons.systems/strdash/internal/rules"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)
	return NewParser(engine)
}

func newMeta(t *testing.T) *parser.Metadata {
	t.Helper()
	meta, err := parser.NewMetadata("/exports/relay.csv", time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return meta
}

func TestName(t *testing.T) {
	if got := NewParser(nil).Name(); got != "bank-csv" {
		t.Errorf("Name() = %q, want %q", got, "bank-csv")
	}
}

func TestCanParse(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		header   string
		expected bool
	}{
		{"plain header", "relay.csv", "Date,Description,Amount", true},
		{"quoted header", "fpcu.CSV", `"Posting Date","Description","Amount"`, true},
		{"payee header", "bank.csv", "Transaction Date,Payee,Amount,Balance", true},
		{"wrong extension", "relay.ofx", "Date,Description,Amount", false},
		{"direct bookings sheet", "bookings.csv", "Date,Guest,Amount", false},
		{"monthly revenue sheet", "revenue.csv", "Year,Month,Gross,Net", false},
		{"empty header", "bank.csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewParser(nil).CanParse(tt.path, []byte(tt.header))
			if got != tt.expected {
				t.Errorf("CanParse() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParse_EndToEnd(t *testing.T) {
	input := `Date,Description,Amount
"2024-10-03","Zelle payment to Angelica Cleaner","-250.0"
"2024-10-04","Spectrum Internet Bill","-89.99"
`
	result, err := newTestParser(t).Parse(context.Background(), strings.NewReader(input), newMeta(t))
	require.NoError(t, err)
	require.Len(t, result.Expenses, 2)

	first := result.Expenses[0]
	assert.Equal(t, 250.0, first.Amount)
	assert.Equal(t, domain.CategoryCleaning, first.Category)
	assert.Equal(t, "Angelica Cleaner", first.Vendor)
	assert.Equal(t, time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC), first.Date)

	second := result.Expenses[1]
	assert.Equal(t, 89.99, second.Amount)
	assert.Equal(t, domain.CategoryInternet, second.Category)
	assert.Equal(t, "Spectrum Internet", second.Vendor)
	assert.Equal(t, "Spectrum Internet Bill", second.Description)

	assert.Zero(t, result.SkipCount())
}

func TestParse_OnlyNegativeAmounts(t *testing.T) {
	input := `Date,Description,Amount
2024-10-01,Airbnb payout,1200.00
2024-10-02,Interest,0
2024-10-03,"Home Depot, Inc purchase",-45.10
`
	result, err := newTestParser(t).Parse(context.Background(), strings.NewReader(input), newMeta(t))
	require.NoError(t, err)

	require.Len(t, result.Expenses, 1)
	assert.Equal(t, 45.10, result.Expenses[0].Amount)
	assert.Equal(t, domain.CategorySupplies, result.Expenses[0].Category)
	assert.Equal(t, "Home Depot,", result.Expenses[0].Vendor)
	assert.Equal(t, 2, result.Ignored)
	assert.Zero(t, result.SkipCount())

	for _, e := range result.Expenses {
		assert.True(t, domain.ValidateCategory(e.Category), "category %q outside taxonomy", e.Category)
		assert.Positive(t, e.Amount)
	}
}

func TestParse_MalformedRowsSkipped(t *testing.T) {
	input := `Date,Description,Amount
2024-10-03,Zelle payment to Luis,-100
not-a-date,Spectrum,-20
2024-10-05,Water bill,abc
2024-10-06,short

10/07/2024,Venmo Payment to Someone New,"($75.00)"
`
	result, err := newTestParser(t).Parse(context.Background(), strings.NewReader(input), newMeta(t))
	require.NoError(t, err)

	require.Len(t, result.Expenses, 2)
	assert.Equal(t, domain.CategoryPoolSpa, result.Expenses[0].Category)
	assert.Equal(t, "Luis", result.Expenses[0].Vendor)
	assert.Equal(t, domain.CategoryContractor, result.Expenses[1].Category)
	assert.Equal(t, "Someone New", result.Expenses[1].Vendor)
	assert.Equal(t, 75.0, result.Expenses[1].Amount)

	require.Equal(t, 3, result.SkipCount())
	assert.Equal(t, 3, result.Skipped[0].Row)
	assert.Equal(t, 4, result.Skipped[1].Row)
	assert.Equal(t, 5, result.Skipped[2].Row)
}

func TestParse_FallbackAndProperty(t *testing.T) {
	meta := newMeta(t)
	meta.SetFallback(domain.CategoryContractor)
	meta.SetPropertyID("cochran")

	input := "Date,Description,Amount\n2024-10-03,Mystery vendor,-12\n"
	result, err := newTestParser(t).Parse(context.Background(), strings.NewReader(input), meta)
	require.NoError(t, err)
	require.Len(t, result.Expenses, 1)
	assert.Equal(t, domain.CategoryContractor, result.Expenses[0].Category)
	assert.Equal(t, "cochran", result.Expenses[0].PropertyID)
}

func TestParse_CalendarLocation(t *testing.T) {
	cal, err := domain.NewCalendar("America/Los_Angeles")
	require.NoError(t, err)
	meta := newMeta(t)
	meta.SetCalendar(cal)

	input := "Date,Description,Amount\n10/31/24,Spectrum,-10\n"
	result, err := NewParser(nil).Parse(context.Background(), strings.NewReader(input), meta)
	require.NoError(t, err)
	require.Len(t, result.Expenses, 1)
	assert.Equal(t, cal.Date(2024, time.October, 31), result.Expenses[0].Date)
	assert.Equal(t, domain.CategoryOther, result.Expenses[0].Category)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := NewParser(nil).Parse(context.Background(), strings.NewReader(""), newMeta(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.csv")
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser(nil).Parse(ctx, strings.NewReader("Date,Description,Amount\n"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractVendor(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"Zelle payment to Angelica Cleaner", "Angelica Cleaner"},
		{"Zelle payment to Maria Salgado 1234", "Maria Salgado"},
		{"Venmo Payment to Raul", "Raul"},
		{"venmo payment to raul", "venmo payment"},
		{"Spectrum Internet Bill", "Spectrum Internet"},
		{"Amazon", "Amazon"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVendor(tt.description))
		})
	}
}
