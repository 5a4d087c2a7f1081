package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rumor-ml/commons.systems/strdash/internal/dedup"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRuns    = regexp.MustCompile(`\s+`)
)

// idHashLen is how many hex characters of the fingerprint go into an id
const idHashLen = 16

// Slugify converts a name to a URL-safe slug.
// Examples: "Cozy Cactus" → "cozy-cactus", "Pool/Spa" → "pool-spa"
func Slugify(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}

	// Strip accents: "Café" → "Cafe"
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize name %q: %w", name, err)
	}

	slug := nonSlugChars.ReplaceAllString(strings.ToLower(normalized), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "", fmt.Errorf("name %q contains no alphanumeric characters", name)
	}
	return slug, nil
}

// NormalizeVendor composes unicode and collapses whitespace in a vendor
// name. Case is preserved.
func NormalizeVendor(vendor string) string {
	composed := norm.NFC.String(vendor)
	return strings.TrimSpace(spaceRuns.ReplaceAllString(composed, " "))
}

// DocumentID makes an external natural key safe for use as a document id.
// Path separators are not allowed in document ids.
func DocumentID(externalID string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(strings.TrimSpace(externalID))
}

// RevenueFingerprint identifies a revenue by source, date, amount and
// description.
func RevenueFingerprint(r *domain.Revenue) string {
	return dedup.GenerateFingerprint(string(r.Source), r.Date.Format("2006-01-02"), r.Amount, r.Description)
}

// ExpenseFingerprint identifies an expense by date, amount and description.
func ExpenseFingerprint(e *domain.Expense) string {
	return dedup.GenerateFingerprint("", e.Date.Format("2006-01-02"), e.Amount, e.Description)
}

// GenerateRevenueID creates a deterministic revenue id.
// Records with an external key use it directly; others get
// "rev-{source}-{YYYYMMDD}-{hash}" where hash covers the fingerprint and the
// ordinal among identical rows.
// Example: GenerateRevenueID(airbnbPayout, 0) → "rev-airbnb-20240815-3f2a9c0d1e4b5a67"
func GenerateRevenueID(r *domain.Revenue, ordinal int) string {
	if r.ExternalID != "" {
		return DocumentID(r.ExternalID)
	}
	source, err := Slugify(string(r.Source))
	if err != nil {
		source = "other"
	}
	fp := dedup.WithOrdinal(RevenueFingerprint(r), ordinal)
	return fmt.Sprintf("rev-%s-%s-%s", source, r.Date.Format("20060102"), fp[:idHashLen])
}

// GenerateExpenseID creates a deterministic expense id.
// Format: "exp-{YYYYMMDD}-{hash}", or the external key when present.
// Category is left out so that re-categorizing a record keeps its id.
func GenerateExpenseID(e *domain.Expense, ordinal int) string {
	if e.ExternalID != "" {
		return DocumentID(e.ExternalID)
	}
	fp := dedup.WithOrdinal(ExpenseFingerprint(e), ordinal)
	return fmt.Sprintf("exp-%s-%s", e.Date.Format("20060102"), fp[:idHashLen])
}
