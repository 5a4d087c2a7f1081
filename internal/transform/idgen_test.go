package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{"simple name with space", "Cozy Cactus", "cozy-cactus", false},
		{"category with slash", "Pool/Spa", "pool-spa", false},
		{"already lowercase", "airbnb", "airbnb", false},
		{"special characters", "Casa Moto & Co.", "casa-moto-co", false},
		{"multiple spaces", "Palm  Springs   Retreat", "palm-springs-retreat", false},
		{"unicode characters", "Café Crédit", "cafe-credit", false},
		{"numbers in name", "Unit 123", "unit-123", false},
		{"empty string", "", "", true},
		{"only special characters", "!@#$%^&*()", "", true},
		{"only hyphens", "---", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Slugify(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("Slugify(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("Slugify(%q) returned unexpected error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Angelica Cleaner", "Angelica Cleaner"},
		{"  Spectrum   Internet ", "Spectrum Internet"},
		{"Jose\tMaria", "Jose Maria"},
		{"Café", "Café"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeVendor(tt.input); got != tt.expected {
			t.Errorf("NormalizeVendor(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestDocumentID(t *testing.T) {
	if got := DocumentID("qb_123"); got != "qb_123" {
		t.Errorf("DocumentID(qb_123) = %q", got)
	}
	if got := DocumentID(" a/b c "); got != "a_b_c" {
		t.Errorf("DocumentID(a/b c) = %q", got)
	}
}

func newRevenue(t *testing.T, date time.Time, amount float64, source domain.Source, desc string) *domain.Revenue {
	t.Helper()
	r, err := domain.NewRevenue(date, amount, amount, source, "cochran", desc)
	if err != nil {
		t.Fatalf("NewRevenue: %v", err)
	}
	return r
}

func TestGenerateRevenueID(t *testing.T) {
	date := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	r := newRevenue(t, date, 1250.50, domain.SourceAirbnb, "Airbnb payout - HMABC123")

	id := GenerateRevenueID(r, 0)
	if !strings.HasPrefix(id, "rev-airbnb-20240815-") {
		t.Errorf("unexpected id format: %s", id)
	}
	if len(id) != len("rev-airbnb-20240815-")+idHashLen {
		t.Errorf("unexpected id length: %s", id)
	}
	if GenerateRevenueID(r, 0) != id {
		t.Error("GenerateRevenueID is not deterministic")
	}
	if GenerateRevenueID(r, 1) == id {
		t.Error("ordinal should change the id")
	}

	other := newRevenue(t, date, 1250.50, domain.SourceVRBO, "Airbnb payout - HMABC123")
	if GenerateRevenueID(other, 0) == id {
		t.Error("source should change the id")
	}

	r.ExternalID = "qb_42"
	if got := GenerateRevenueID(r, 3); got != "qb_42" {
		t.Errorf("external id should win, got %s", got)
	}
}

func TestGenerateExpenseID(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	e, err := domain.NewExpense(date, 250, domain.CategoryCleaning, "Angelica Cleaner", "Zelle payment to Angelica Cleaner", "")
	if err != nil {
		t.Fatal(err)
	}
	id := GenerateExpenseID(e, 0)
	if !strings.HasPrefix(id, "exp-20240115-") {
		t.Errorf("unexpected id format: %s", id)
	}

	e.Category = domain.CategoryContractor
	if GenerateExpenseID(e, 0) != id {
		t.Error("re-categorizing should keep the id")
	}

	e.ExternalID = "ofx_TXN001"
	if got := GenerateExpenseID(e, 0); got != "ofx_TXN001" {
		t.Errorf("external id should win, got %s", got)
	}
}
