// Package airbnb parses the JSON files of an Airbnb account data export:
// payout history (payment_processing.json) and reservation history
// (reservations.json).
package airbnb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

const (
	payoutsFile      = "payment_processing"
	reservationsFile = "reservations"
	currencyUSD      = "USD"
)

// PayoutParser reads payment_processing.json into Airbnb revenues
type PayoutParser struct{}

// NewPayoutParser returns the payout parser
func NewPayoutParser() *PayoutParser {
	return &PayoutParser{}
}

// Name returns the parser identifier
func (p *PayoutParser) Name() string {
	return "airbnb-payouts"
}

// CanParse accepts payment_processing*.json files holding a JSON array
func (p *PayoutParser) CanParse(path string, header []byte) bool {
	return isExportFile(path, payoutsFile) && looksLikeArray(header)
}

type payoutRecord struct {
	TransactionDetails []transactionDetail `json:"transactionDetails"`
}

type transactionDetail struct {
	AmountMicros         micros `json:"amountMicros"`
	Currency             string `json:"currency"`
	AdditionalAttributes struct {
		EffectiveEntryDate      string `json:"effectiveEntryDate"`
		CompanyEntryDescription string `json:"companyEntryDescription"`
	} `json:"additionalAttributes"`
}

// micros is an amount in millionths of a currency unit. The export writes it
// as a number or as a quoted string depending on the record, so it is kept
// raw and converted per transaction.
type micros json.RawMessage

func (m *micros) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

func (m micros) dollars() (decimal.Decimal, error) {
	s := strings.Trim(string(m), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amountMicros %s", m)
	}
	return decimal.New(d.IntPart(), -6), nil
}

// Parse emits one net revenue per positive USD transaction. Other currencies
// and non-positive amounts count as ignored; a malformed amount or a missing
// or malformed entry date skips the transaction.
func (p *PayoutParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	var records []payoutRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode payouts%s: payment_processing.json must be an array: %w", parser.FileInfo(meta), err)
	}

	result := parser.NewResult()
	cal := meta.Calendar()
	source := meta.Source(domain.SourceAirbnb)
	row := 0
	for _, rec := range records {
		for _, tx := range rec.TransactionDetails {
			row++
			if row%500 == 0 {
				if err := parser.CheckContext(ctx); err != nil {
					return nil, err
				}
			}

			if tx.Currency != currencyUSD {
				result.Ignored++
				continue
			}
			amount, err := tx.AmountMicros.dollars()
			if err != nil {
				result.Skip(row, "%v", err)
				continue
			}
			if !amount.IsPositive() {
				result.Ignored++
				continue
			}

			date, err := ParseEntryDate(tx.AdditionalAttributes.EffectiveEntryDate, cal)
			if err != nil {
				result.Skip(row, "%v", err)
				continue
			}

			code := strings.TrimSpace(tx.AdditionalAttributes.CompanyEntryDescription)
			label := code
			if label == "" {
				label = "N/A"
			}
			net := amount.Round(2).InexactFloat64()
			rev, err := domain.NewRevenue(date, net, net, source, meta.PropertyID(), "Airbnb payout - "+label)
			if err != nil {
				result.Skip(row, "%v", err)
				continue
			}
			rev.ConfirmationCode = code
			result.Revenues = append(result.Revenues, rev)
		}
	}
	return result, nil
}

// ParseEntryDate reads a YYMMDD entry date as 20YY-MM-DD in cal's location.
func ParseEntryDate(s string, cal *domain.Calendar) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return time.Time{}, fmt.Errorf("invalid entry date %q: want YYMMDD", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid entry date %q: want YYMMDD", s)
	}
	year, month, day := 2000+n/10000, time.Month(n/100%100), n%100
	date := cal.Date(year, month, day)
	if date.Month() != month || date.Day() != day {
		return time.Time{}, fmt.Errorf("invalid entry date %q: no such day", s)
	}
	return date, nil
}

func isExportFile(path, stem string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, ".json") && strings.HasPrefix(base, stem)
}

func looksLikeArray(header []byte) bool {
	trimmed := bytes.TrimLeft(header, " \t\r\n\ufeff")
	return len(trimmed) > 0 && trimmed[0] == '['
}
