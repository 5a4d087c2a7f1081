// Package aggregate turns revenue and expense records into the groupings and
// metrics shown on the dashboard. Everything here is a pure function of the
// records and a reference date; sums are accumulated as decimals and rounded
// to cents.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Entry is the slice of a record the aggregator needs. Dates are expected
// to be normalized to the property location.
type Entry struct {
	ID         string
	Date       time.Time
	Amount     float64
	Category   domain.Category
	Source     domain.Source
	PropertyID string
	Recurring  bool
}

// Revenues converts revenue records to entries; Amount is net
func Revenues(rs []*domain.Revenue) []Entry {
	out := make([]Entry, 0, len(rs))
	for _, r := range rs {
		out = append(out, Entry{
			ID:         r.ID,
			Date:       r.Date,
			Amount:     r.Amount,
			Source:     r.Source,
			PropertyID: r.PropertyID,
		})
	}
	return out
}

// Expenses converts expense records to entries
func Expenses(es []*domain.Expense) []Entry {
	out := make([]Entry, 0, len(es))
	for _, e := range es {
		out = append(out, Entry{
			ID:         e.ID,
			Date:       e.Date,
			Amount:     e.Amount,
			Category:   e.Category,
			PropertyID: e.PropertyID,
			Recurring:  e.Recurring,
		})
	}
	return out
}

// MonthSummary totals one calendar month
type MonthSummary struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Sum   float64    `json:"sum"`
	Count int        `json:"count"`
	IDs   []string   `json:"ids,omitempty"`
}

// CategorySummary totals one expense category
type CategorySummary struct {
	Category domain.Category `json:"category"`
	Sum      float64         `json:"sum"`
	Count    int             `json:"count"`
}

// GroupSummary totals one property or source
type GroupSummary struct {
	Key   string  `json:"key"`
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

type ym struct {
	year  int
	month time.Month
}

func (k ym) before(o ym) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

// ByMonth groups entries by (year, month), ordered chronologically
func ByMonth(entries []Entry) []MonthSummary {
	type acc struct {
		sum   decimal.Decimal
		count int
		ids   []string
	}
	groups := make(map[ym]*acc)
	var keys []ym
	for _, e := range entries {
		k := ym{e.Date.Year(), e.Date.Month()}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
			keys = append(keys, k)
		}
		a.sum = a.sum.Add(decimal.NewFromFloat(e.Amount))
		a.count++
		a.ids = append(a.ids, e.ID)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })

	out := make([]MonthSummary, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		out = append(out, MonthSummary{
			Year:  k.year,
			Month: k.month,
			Sum:   cents(a.sum),
			Count: a.count,
			IDs:   a.ids,
		})
	}
	return out
}

// ByCategory groups expenses by category, largest sum first. Ties keep the
// order in which categories first appeared.
func ByCategory(entries []Entry) []CategorySummary {
	groups := groupBy(entries, func(e Entry) string {
		if e.Category == "" {
			return string(domain.CategoryOther)
		}
		return string(e.Category)
	})
	out := make([]CategorySummary, len(groups))
	for i, g := range groups {
		out[i] = CategorySummary{Category: domain.Category(g.Key), Sum: g.Sum, Count: g.Count}
	}
	return out
}

// ByProperty groups entries by property id, largest sum first
func ByProperty(entries []Entry) []GroupSummary {
	return groupBy(entries, func(e Entry) string {
		if e.PropertyID == "" {
			return domain.UnknownProperty
		}
		return e.PropertyID
	})
}

// BySource groups revenue entries by booking source, largest sum first
func BySource(entries []Entry) []GroupSummary {
	return groupBy(entries, func(e Entry) string {
		if e.Source == "" {
			return string(domain.SourceOther)
		}
		return string(e.Source)
	})
}

func groupBy(entries []Entry, key func(Entry) string) []GroupSummary {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		k := key(e)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(decimal.NewFromFloat(e.Amount))
		counts[k]++
	}

	out := make([]GroupSummary, len(order))
	for i, k := range order {
		out[i] = GroupSummary{Key: k, Sum: cents(sums[k]), Count: counts[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sum > out[j].Sum })
	return out
}

// Total sums entries
func Total(entries []Entry) float64 {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(decimal.NewFromFloat(e.Amount))
	}
	return cents(sum)
}

// Filter returns the entries keep accepts
func Filter(entries []Entry, keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
