// Package pricing quotes stays from the property catalog and the live
// listing calendar, and records booking inquiries against a quote.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/hostaway"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
)

// DateLayout is the wire format of check-in and check-out dates
const DateLayout = "2006-01-02"

// CalendarSource returns nightly prices for a listing over [start, end]
type CalendarSource interface {
	Calendar(ctx context.Context, listingID int64, start, end time.Time) ([]hostaway.CalendarDay, error)
}

// Request is a quote request as posted by the booking page
type Request struct {
	PropertyID string `json:"propertyId"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Guests     int    `json:"guests"`
}

// Night is the price of one night of a stay
type Night struct {
	Date      string  `json:"date"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
}

// Quote is the priced stay
type Quote struct {
	IsAvailable      bool     `json:"isAvailable"`
	UnavailableDates []string `json:"unavailableDates"`
	Nights           int      `json:"nights"`
	Nightly          []Night  `json:"nightly"`
	Subtotal         float64  `json:"subtotal"`
	CleaningFee      float64  `json:"cleaningFee"`
	TaxRate          float64  `json:"taxRate"`
	TaxAmount        float64  `json:"taxAmount"`
	Total            float64  `json:"total"`

	checkIn, checkOut time.Time
}

// Estimate is the snapshot stored with an inquiry
func (q *Quote) Estimate() domain.PriceEstimate {
	return domain.PriceEstimate{
		Nights:      q.Nights,
		Subtotal:    q.Subtotal,
		CleaningFee: q.CleaningFee,
		TaxAmount:   q.TaxAmount,
		Total:       q.Total,
	}
}

// Quoter prices stays. Listings without a calendar, or whose calendar
// cannot be read, are priced at the catalog base rate and assumed open.
type Quoter struct {
	catalog  *property.Catalog
	calendar CalendarSource
	cal      *domain.Calendar
}

// NewQuoter creates a quoter; calendar may be nil
func NewQuoter(catalog *property.Catalog, calendar CalendarSource, cal *domain.Calendar) *Quoter {
	return &Quoter{catalog: catalog, calendar: calendar, cal: cal}
}

// Quote validates req against the property and prices every night.
// Invalid requests wrap domain.ErrInvalidRecord or domain.ErrUnknownProperty.
func (q *Quoter) Quote(ctx context.Context, req Request) (*Quote, error) {
	p, err := q.catalog.Get(req.PropertyID)
	if err != nil {
		return nil, err
	}
	checkIn, err := q.cal.Parse(req.CheckIn, DateLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: check-in: %v", domain.ErrInvalidRecord, err)
	}
	checkOut, err := q.cal.Parse(req.CheckOut, DateLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: check-out: %v", domain.ErrInvalidRecord, err)
	}

	nights := nightsBetween(checkIn, checkOut)
	if nights < 1 {
		return nil, fmt.Errorf("%w: check-out must be after check-in", domain.ErrInvalidRecord)
	}
	if p.MinNights > 0 && nights < p.MinNights {
		return nil, fmt.Errorf("%w: %s requires at least %d nights", domain.ErrInvalidRecord, p.Name, p.MinNights)
	}
	if req.Guests < 1 {
		return nil, fmt.Errorf("%w: at least one guest is required", domain.ErrInvalidRecord)
	}
	if p.MaxGuests > 0 && req.Guests > p.MaxGuests {
		return nil, fmt.Errorf("%w: %s sleeps at most %d guests", domain.ErrInvalidRecord, p.Name, p.MaxGuests)
	}

	days := q.calendarDays(ctx, p, checkIn, nights)

	quote := &Quote{
		IsAvailable:      true,
		UnavailableDates: []string{},
		Nights:           nights,
		Nightly:          make([]Night, 0, nights),
		TaxRate:          p.TaxRate,
		checkIn:          checkIn,
		checkOut:         checkOut,
	}
	subtotal := decimal.Zero
	for i := 0; i < nights; i++ {
		date := checkIn.AddDate(0, 0, i).Format(DateLayout)
		night := Night{Date: date, Price: p.BasePrice, Available: true}
		if day, ok := days[date]; ok {
			if day.Price > 0 {
				night.Price = day.Price
			}
			night.Available = day.Available()
		}
		if !night.Available {
			quote.IsAvailable = false
			quote.UnavailableDates = append(quote.UnavailableDates, date)
		}
		quote.Nightly = append(quote.Nightly, night)
		subtotal = subtotal.Add(decimal.NewFromFloat(night.Price))
	}

	cleaning := decimal.NewFromFloat(p.CleaningFee)
	tax := subtotal.Add(cleaning).Mul(decimal.NewFromFloat(p.TaxRate)).Round(2)
	quote.Subtotal = subtotal.Round(2).InexactFloat64()
	quote.CleaningFee = cleaning.Round(2).InexactFloat64()
	quote.TaxAmount = tax.InexactFloat64()
	quote.Total = subtotal.Add(cleaning).Add(tax).Round(2).InexactFloat64()
	return quote, nil
}

// calendarDays fetches the listing calendar keyed by date; failures are
// logged and yield no entries so the base rate applies.
func (q *Quoter) calendarDays(ctx context.Context, p property.Property, checkIn time.Time, nights int) map[string]hostaway.CalendarDay {
	days := map[string]hostaway.CalendarDay{}
	if q.calendar == nil || p.HostawayListingID == 0 {
		return days
	}
	lastNight := checkIn.AddDate(0, 0, nights-1)
	entries, err := q.calendar.Calendar(ctx, p.HostawayListingID, checkIn, lastNight)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("property", p.ID).Msg("calendar unavailable, using base price")
		return days
	}
	for _, d := range entries {
		days[d.Date] = d
	}
	return days
}

// nightsBetween counts calendar days, so a DST change does not shorten a stay
func nightsBetween(checkIn, checkOut time.Time) int {
	in := time.Date(checkIn.Year(), checkIn.Month(), checkIn.Day(), 0, 0, 0, 0, time.UTC)
	out := time.Date(checkOut.Year(), checkOut.Month(), checkOut.Day(), 0, 0, 0, 0, time.UTC)
	return int(out.Sub(in).Hours() / 24)
}
