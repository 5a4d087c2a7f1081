package aggregate

import (
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Targets are the owner-entered figures the dashboard measures against
type Targets struct {
	MortgagePrincipal float64
	MortgageBalance   float64
	RevenueGoal       float64
	ExpenseBudget     float64
}

// Input is everything Build needs. Now must be in the property location.
type Input struct {
	Revenues   []Entry
	Expenses   []Entry
	Now        time.Time
	PropertyID string
	Targets    Targets
}

// YearTotal is one bar of the year-over-year comparison
type YearTotal struct {
	Year   int      `json:"year"`
	Total  float64  `json:"total"`
	Change *float64 `json:"change"`
}

// Mortgage is the payoff card
type Mortgage struct {
	Principal   float64  `json:"principal"`
	Balance     float64  `json:"balance"`
	PercentPaid *float64 `json:"percentPaid"`
}

// Dashboard is a snapshot of the owner dashboard. Nil pointers mark
// metrics that are undefined for the data (a zero denominator).
type Dashboard struct {
	AsOf       time.Time `json:"asOf"`
	PropertyID string    `json:"propertyId,omitempty"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`

	MonthlyIncome   float64  `json:"monthlyIncome"`
	MonthlyExpenses float64  `json:"monthlyExpenses"`
	MonthOverMonth  *float64 `json:"monthOverMonth"`
	YTDIncome       float64  `json:"ytdIncome"`
	YTDExpenses     float64  `json:"ytdExpenses"`
	NetProfit       float64  `json:"netProfit"`

	AverageMonthlyIncome  float64  `json:"averageMonthlyIncome"`
	AverageMonthlyExpense float64  `json:"averageMonthlyExpense"`
	UtilitiesAverage      float64  `json:"utilitiesAverage"`
	OneTimeCosts          float64  `json:"oneTimeCosts"`
	ROI                   *float64 `json:"roi"`

	Mortgage      Mortgage `json:"mortgage"`
	RevenueGoal   Progress `json:"revenueGoal"`
	ExpenseBudget Progress `json:"expenseBudget"`

	YearOverYear       []YearTotal       `json:"yearOverYear"`
	RevenueTrend       []MonthSummary    `json:"revenueTrend"`
	ExpenseTrend       []MonthSummary    `json:"expenseTrend"`
	ExpensesByCategory []CategorySummary `json:"expensesByCategory"`
	RevenueBySource    []GroupSummary    `json:"revenueBySource"`
	RevenueByProperty  []GroupSummary    `json:"revenueByProperty"`
	Records            int               `json:"records"`
}

// yoyYears is how many calendar years the comparison shows
const yoyYears = 3

// Build computes the dashboard snapshot
func Build(in Input) *Dashboard {
	now := in.Now
	year, month := now.Year(), now.Month()
	monthsElapsed := float64(int(month))

	monthRev := InMonth(in.Revenues, year, month)
	monthExp := InMonth(in.Expenses, year, month)
	ytdRev := Filter(InYear(in.Revenues, year), notAfter(now))
	ytdExp := Filter(InYear(in.Expenses, year), notAfter(now))

	d := &Dashboard{
		AsOf:            now,
		PropertyID:      in.PropertyID,
		Year:            year,
		Month:           int(month),
		MonthlyIncome:   Total(monthRev),
		MonthlyExpenses: Total(monthExp),
		YTDIncome:       Total(ytdRev),
		YTDExpenses:     Total(ytdExp),
		Records:         len(in.Revenues) + len(in.Expenses),
	}
	d.NetProfit = domain.RoundCents(d.YTDIncome - d.YTDExpenses)
	d.MonthOverMonth = optional(MonthOverMonth(in.Revenues, now))
	d.ROI = optional(ROI(d.YTDIncome, d.YTDExpenses))

	d.AverageMonthlyIncome = domain.RoundCents(Total(InYear(in.Revenues, year)) / 12)
	d.AverageMonthlyExpense = domain.RoundCents(d.YTDExpenses / monthsElapsed)
	d.UtilitiesAverage = domain.RoundCents(Total(Filter(ytdExp, func(e Entry) bool {
		return domain.IsUtility(e.Category)
	})) / monthsElapsed)
	d.OneTimeCosts = Total(Filter(monthExp, func(e Entry) bool {
		return !e.Recurring && !fixedCost(e.Category)
	}))

	d.Mortgage = Mortgage{
		Principal:   in.Targets.MortgagePrincipal,
		Balance:     in.Targets.MortgageBalance,
		PercentPaid: optional(MortgagePayoff(in.Targets.MortgagePrincipal, in.Targets.MortgageBalance)),
	}
	d.RevenueGoal = NewProgress(d.MonthlyIncome, in.Targets.RevenueGoal)
	d.ExpenseBudget = NewProgress(d.MonthlyExpenses, in.Targets.ExpenseBudget)

	for y := year - yoyYears + 1; y <= year; y++ {
		yt := YearTotal{Year: y, Total: Total(InYear(in.Revenues, y))}
		if y > year-yoyYears+1 {
			yt.Change = optional(YoY(yt.Total, d.YearOverYear[len(d.YearOverYear)-1].Total))
		}
		d.YearOverYear = append(d.YearOverYear, yt)
	}

	d.RevenueTrend = withoutIDs(Trailing(in.Revenues, now, TrailingMonths))
	d.ExpenseTrend = withoutIDs(Trailing(in.Expenses, now, TrailingMonths))
	d.ExpensesByCategory = ByCategory(ytdExp)
	d.RevenueBySource = BySource(ytdRev)
	d.RevenueByProperty = ByProperty(ytdRev)
	return d
}

func notAfter(now time.Time) func(Entry) bool {
	return func(e Entry) bool { return !e.Date.After(now) }
}

// withoutIDs drops record ids so the JSON snapshot stays small
func withoutIDs(ms []MonthSummary) []MonthSummary {
	for i := range ms {
		ms[i].IDs = nil
	}
	return ms
}
