package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// excelEpochOffset is the serial number of 1970-01-01 in the 1900 date system.
const excelEpochOffset = 25569

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01/02/06", "1/2/06", "Jan 2, 2006", "January 2, 2006"}

var monthNames = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		monthNames[full] = m
		monthNames[full[:3]] = m
	}
	monthNames["sept"] = time.September
}

// SerialDate converts an Excel serial day number to a calendar date.
// The fractional time-of-day part is dropped.
func SerialDate(serial float64, cal *domain.Calendar) time.Time {
	days := int(math.Floor(serial)) - excelEpochOffset
	utc := time.Unix(0, 0).UTC().AddDate(0, 0, days)
	return cal.Date(utc.Year(), utc.Month(), utc.Day())
}

// parseDate accepts either an Excel serial number or one of the text layouts.
func parseDate(value string, cal *domain.Calendar) (time.Time, error) {
	value = strings.TrimSpace(value)
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		return SerialDate(serial, cal), nil
	}
	return cal.Parse(value, dateLayouts...)
}

// parseMonth accepts a month name, its abbreviation, or a number 1-12.
func parseMonth(value string) (time.Month, bool) {
	value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), ".")))
	if m, ok := monthNames[value]; ok {
		return m, true
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 12 {
		return time.Month(n), true
	}
	return 0, false
}

// yearFromName reads a trailing two or four digit year from a sheet name
// such as "Monthly 24" or "Zelle 2025".
func yearFromName(name string) (int, bool) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return 0, false
	}
	last := fields[len(fields)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	switch len(last) {
	case 2:
		return 2000 + n, true
	case 4:
		return n, true
	}
	return 0, false
}
