package aggregate

import (
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// TrailingMonths is the length of the dashboard trend series
const TrailingMonths = 12

// InMonth keeps entries dated in the given calendar month
func InMonth(entries []Entry, year int, month time.Month) []Entry {
	return Filter(entries, func(e Entry) bool {
		return e.Date.Year() == year && e.Date.Month() == month
	})
}

// InYear keeps entries dated in the given year
func InYear(entries []Entry, year int) []Entry {
	return Filter(entries, func(e Entry) bool { return e.Date.Year() == year })
}

// MonthToDate totals entries in now's calendar month up to and including now
func MonthToDate(entries []Entry, now time.Time) float64 {
	return Total(Filter(InMonth(entries, now.Year(), now.Month()), notAfter(now)))
}

// YearToDate totals entries in now's calendar year up to and including now
func YearToDate(entries []Entry, now time.Time) float64 {
	return Total(Filter(InYear(entries, now.Year()), notAfter(now)))
}

// Trailing returns n consecutive months ending with now's month, oldest
// first. Months without entries are present with zero sums.
func Trailing(entries []Entry, now time.Time, n int) []MonthSummary {
	if n <= 0 {
		return nil
	}
	byMonth := make(map[ym]MonthSummary)
	for _, m := range ByMonth(entries) {
		byMonth[ym{m.Year, m.Month}] = m
	}

	out := make([]MonthSummary, n)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)
	for i := 0; i < n; i++ {
		d := first.AddDate(0, i, 0)
		k := ym{d.Year(), d.Month()}
		if m, ok := byMonth[k]; ok {
			out[i] = m
		} else {
			out[i] = MonthSummary{Year: k.year, Month: k.month}
		}
	}
	return out
}

// Change returns (current − previous) / previous × 100. ok is false when
// previous is zero and the change is undefined.
func Change(current, previous float64) (float64, bool) {
	if previous == 0 {
		return 0, false
	}
	return domain.RoundCents((current - previous) / previous * 100), true
}

// YoY is the year-over-year percentage change
func YoY(current, previous float64) (float64, bool) {
	return Change(current, previous)
}

// MonthOverMonth compares now's month with the one before
func MonthOverMonth(entries []Entry, now time.Time) (float64, bool) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Change(
		Total(InMonth(entries, now.Year(), now.Month())),
		Total(InMonth(entries, prev.Year(), prev.Month())),
	)
}

// ROI is (income − expenses) / expenses × 100, undefined without expenses
func ROI(income, expenses float64) (float64, bool) {
	if expenses == 0 {
		return 0, false
	}
	return domain.RoundCents((income - expenses) / expenses * 100), true
}

// MortgagePayoff is the share of principal repaid, in percent
func MortgagePayoff(principal, remaining float64) (float64, bool) {
	if principal <= 0 {
		return 0, false
	}
	return domain.RoundCents((principal - remaining) / principal * 100), true
}

// Progress is an actual amount against a target
type Progress struct {
	Target  float64  `json:"target"`
	Actual  float64  `json:"actual"`
	Percent *float64 `json:"percent"`
}

// NewProgress builds a Progress; Percent is nil without a target
func NewProgress(actual, target float64) Progress {
	p := Progress{Target: target, Actual: actual}
	if target > 0 {
		p.Percent = ptr(domain.RoundCents(actual / target * 100))
	}
	return p
}

// fixedCost reports categories that recur every month regardless of use
func fixedCost(c domain.Category) bool {
	return c == domain.CategoryMortgage || domain.IsUtility(c)
}

func ptr(v float64) *float64 { return &v }

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return ptr(v)
}
