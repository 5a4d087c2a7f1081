package sheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

// Labels of rows in a recurring-expense sheet that carry no data
const (
	labelHeader = "Expense Item"
	labelTotal  = "TOTAL"
)

// parseRecurring expands each category row into one expense per month with a
// non-zero amount, dated the 1st of that month.
func (p *Parser) parseRecurring(result *parser.Result, t table) {
	label := t.column(func(h string) bool { return h == "expense item" })
	if label < 0 {
		label = 0
	}
	monthCols := map[int]time.Month{}
	for i, h := range t.header {
		if m, ok := monthNames[h]; ok && i != label {
			monthCols[i] = m
		}
	}

	year := t.year()
	cal := t.meta.Calendar()
	for i, row := range t.rows {
		rowNum := t.first + i
		item := cell(row, label)
		if item == "" || item == labelHeader || item == labelTotal {
			continue
		}

		category := p.categorize(item, t.meta)
		for col := 0; col < len(row); col++ {
			month, ok := monthCols[col]
			if !ok {
				continue
			}
			raw := cell(row, col)
			if raw == "" {
				continue
			}
			amount, err := domain.ParseAmount(raw)
			if err != nil {
				result.Skip(rowNum, "%s %s: %v", item, month, err)
				continue
			}
			if amount.IsZero() {
				continue
			}
			if amount.IsNegative() {
				result.Skip(rowNum, "%s %s: negative amount %s", item, month, amount)
				continue
			}

			vendor := "N/A"
			if category == domain.CategoryMortgage {
				vendor = "Mortgage Lender"
			}
			expense, err := domain.NewExpense(
				cal.Date(year, month, 1),
				amount.Round(2).InexactFloat64(),
				category,
				vendor,
				fmt.Sprintf("%s - %s %d", item, month, year),
				t.meta.PropertyID(),
			)
			if err != nil {
				result.Skip(rowNum, "%v", err)
				continue
			}
			expense.Recurring = true
			if string(category) != item {
				expense.Subcategory = item
			}
			result.Expenses = append(result.Expenses, expense)
		}
	}
}

// categorize maps a sheet label to a category: labels that already name a
// category are kept, anything else goes through the rule table.
func (p *Parser) categorize(label string, meta *parser.Metadata) domain.Category {
	if c := domain.Category(label); domain.ValidateCategory(c) {
		return c
	}
	if p.categorizer == nil {
		return meta.Fallback()
	}
	return p.categorizer.Categorize(label, meta.Fallback())
}

// parseMonthlyRevenue turns (year, month, gross, net) rows into monthly
// aggregate revenues dated the 15th. A missing net means net equals gross.
func parseMonthlyRevenue(result *parser.Result, t table) {
	yearCol := t.column(func(h string) bool { return h == "year" })
	monthCol := t.column(func(h string) bool { return h == "month" })
	grossCol := t.column(func(h string) bool { return strings.Contains(h, "gross") })
	netCol := t.column(func(h string) bool { return strings.Contains(h, "net") })
	propCol := t.column(func(h string) bool { return h == "property" || h == "propertyid" })

	source := t.meta.Source(domain.SourceAirbnb)
	cal := t.meta.Calendar()
	for i, row := range t.rows {
		rowNum := t.first + i
		if isBlank(row) {
			continue
		}

		year := t.year()
		if y := cell(row, yearCol); y != "" {
			d, err := decimal.NewFromString(y)
			if err != nil || d.IntPart() < 1970 {
				result.Skip(rowNum, "invalid year %q", y)
				continue
			}
			year = int(d.IntPart())
		}
		month, ok := parseMonth(cell(row, monthCol))
		if !ok {
			result.Skip(rowNum, "invalid month %q", cell(row, monthCol))
			continue
		}

		gross, net, err := grossNet(cell(row, grossCol), cell(row, netCol))
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}

		property := t.meta.PropertyID()
		if p := cell(row, propCol); p != "" {
			property = p
		}

		rev, err := domain.NewRevenue(
			cal.Date(year, month, 15),
			gross, net, source, property,
			fmt.Sprintf("%s revenue - %s %d", source, month, year),
		)
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		rev.MonthlyAggregate = true
		result.Revenues = append(result.Revenues, rev)
	}
}

func grossNet(grossRaw, netRaw string) (float64, float64, error) {
	var gross, net decimal.Decimal
	var err error
	if grossRaw != "" {
		if gross, err = domain.ParseAmount(grossRaw); err != nil {
			return 0, 0, fmt.Errorf("gross: %w", err)
		}
	}
	if netRaw != "" {
		if net, err = domain.ParseAmount(netRaw); err != nil {
			return 0, 0, fmt.Errorf("net: %w", err)
		}
	} else {
		net = gross
	}
	if gross.IsZero() {
		gross = net
	}
	return gross.Round(2).InexactFloat64(), net.Round(2).InexactFloat64(), nil
}

// parseDirectBookings turns (date, guest, amount) rows into direct revenues
// where gross equals net.
func parseDirectBookings(result *parser.Result, t table) {
	dateCol := t.column(func(h string) bool { return strings.Contains(h, "date") })
	guestCol := t.column(func(h string) bool { return strings.Contains(h, "guest") })
	amountCol := t.column(func(h string) bool { return strings.Contains(h, "amount") })

	source := t.meta.Source(domain.SourceDirect)
	cal := t.meta.Calendar()
	for i, row := range t.rows {
		rowNum := t.first + i
		if isBlank(row) {
			continue
		}
		date, err := parseDate(cell(row, dateCol), cal)
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		amount, err := domain.ParseAmount(cell(row, amountCol))
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		guest := cell(row, guestCol)

		rev, err := domain.NewRevenue(date, 0, amount.Round(2).InexactFloat64(), source, t.meta.PropertyID(),
			fmt.Sprintf("Direct booking - %s", guest))
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		rev.GuestName = guest
		result.Revenues = append(result.Revenues, rev)
	}
}

// parsePayments turns a contractor payment log (date, vendor, amount) into
// expenses. Amounts are written positive in these sheets.
func (p *Parser) parsePayments(result *parser.Result, t table) {
	dateCol := t.column(func(h string) bool { return strings.Contains(h, "date") })
	vendorCol := t.column(func(h string) bool { return h == "vendor" || strings.Contains(h, "paid to") })
	amountCol := t.column(func(h string) bool { return strings.Contains(h, "amount") })

	cal := t.meta.Calendar()
	for i, row := range t.rows {
		rowNum := t.first + i
		if isBlank(row) {
			continue
		}
		date, err := parseDate(cell(row, dateCol), cal)
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		amount, err := domain.ParseAmount(cell(row, amountCol))
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		vendor := cell(row, vendorCol)
		description := fmt.Sprintf("Zelle payment to %s", vendor)

		fallback := t.meta.Fallback()
		if fallback == domain.CategoryOther {
			fallback = domain.CategoryContractor
		}
		category := fallback
		if p.categorizer != nil {
			category = p.categorizer.Categorize(description, fallback)
		}

		expense, err := domain.NewExpense(date, amount.Abs().Round(2).InexactFloat64(), category, vendor, description, t.meta.PropertyID())
		if err != nil {
			result.Skip(rowNum, "%v", err)
			continue
		}
		result.Expenses = append(result.Expenses, expense)
	}
}
