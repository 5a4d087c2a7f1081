package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entries = []Entry{
	{ID: "old", Date: day(2023, 3, 9), Amount: 40},
	{ID: "jan", Date: day(2024, 1, 5), Amount: 100},
	{ID: "feb", Date: day(2024, 2, 20), Amount: 200},
	{ID: "mar-1", Date: day(2024, 3, 1), Amount: 10.10},
	{ID: "mar-2", Date: day(2024, 3, 31), Amount: 20.20},
	{ID: "future", Date: day(2024, 4, 2), Amount: 999},
}

var ref = day(2024, 3, 15)

func TestMonthToDateAndYearToDate(t *testing.T) {
	// mar-2 is dated after the reference day and counts in neither
	assert.Equal(t, 10.10, MonthToDate(entries, ref))
	assert.Equal(t, 310.10, YearToDate(entries, ref))
	assert.Equal(t, 0.0, MonthToDate(nil, ref))

	endOfMonth := day(2024, 3, 31)
	assert.Equal(t, 30.30, MonthToDate(entries, endOfMonth))
	assert.Equal(t, 330.30, YearToDate(entries, endOfMonth))
}

func TestTrailing(t *testing.T) {
	got := Trailing(entries, ref, 12)
	require.Len(t, got, 12)

	assert.Equal(t, 2023, got[0].Year)
	assert.Equal(t, time.April, got[0].Month)
	assert.Equal(t, 2024, got[11].Year)
	assert.Equal(t, time.March, got[11].Month)

	for _, m := range got[:9] {
		assert.Zero(t, m.Sum, "%d-%02d should be zero padded", m.Year, m.Month)
		assert.Zero(t, m.Count)
	}
	assert.Equal(t, 100.0, got[9].Sum)
	assert.Equal(t, 200.0, got[10].Sum)
	assert.Equal(t, 30.30, got[11].Sum)
	assert.Equal(t, 2, got[11].Count)

	assert.Nil(t, Trailing(entries, ref, 0))
}

func TestTrailing_AcrossYearBoundary(t *testing.T) {
	got := Trailing(nil, day(2025, 1, 31), 3)
	require.Len(t, got, 3)
	assert.Equal(t, []MonthSummary{
		{Year: 2024, Month: time.November},
		{Year: 2024, Month: time.December},
		{Year: 2025, Month: time.January},
	}, got)
}

func TestYoY(t *testing.T) {
	tests := []struct {
		name              string
		current, previous float64
		want              float64
		ok                bool
	}{
		{"growth", 150, 100, 50, true},
		{"decline", 75, 100, -25, true},
		{"previous zero is undefined", 500, 0, 0, false},
		{"both zero", 0, 0, 0, false},
		{"to zero", 0, 100, -100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := YoY(tt.current, tt.previous)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthOverMonth(t *testing.T) {
	change, ok := MonthOverMonth(entries, day(2024, 2, 10))
	require.True(t, ok)
	assert.Equal(t, 100.0, change)

	_, ok = MonthOverMonth(entries, day(2023, 5, 1))
	assert.False(t, ok, "no revenue in April 2023")
}

func TestROIAndPayoff(t *testing.T) {
	roi, ok := ROI(12000, 8000)
	assert.True(t, ok)
	assert.Equal(t, 50.0, roi)
	_, ok = ROI(100, 0)
	assert.False(t, ok)

	paid, ok := MortgagePayoff(550000, 489000.79)
	assert.True(t, ok)
	assert.Equal(t, 11.09, paid)
	_, ok = MortgagePayoff(0, 0)
	assert.False(t, ok)
}

func TestNewProgress(t *testing.T) {
	p := NewProgress(7500, 15000)
	require.NotNil(t, p.Percent)
	assert.Equal(t, 50.0, *p.Percent)
	assert.Nil(t, NewProgress(10, 0).Percent)
}
