package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// InquiryRequest is a booking request posted by a guest
type InquiryRequest struct {
	Request
	GuestName       string `json:"guestName"`
	GuestEmail      string `json:"guestEmail"`
	GuestPhone      string `json:"guestPhone"`
	SpecialRequests string `json:"specialRequests"`
}

// Inquiries records booking inquiries for manual review
type Inquiries struct {
	quoter *Quoter
	store  store.Store
	now    func() time.Time
}

// NewInquiries creates an inquiry intake
func NewInquiries(quoter *Quoter, s store.Store) *Inquiries {
	return &Inquiries{quoter: quoter, store: s, now: time.Now}
}

// WithClock replaces time.Now for CreatedAt
func (in *Inquiries) WithClock(now func() time.Time) *Inquiries {
	in.now = now
	return in
}

// Submit re-quotes the stay server-side and stores a pending inquiry.
// Unavailable dates return an error wrapping domain.ErrUnavailable.
func (in *Inquiries) Submit(ctx context.Context, req InquiryRequest) (*domain.Inquiry, error) {
	quote, err := in.quoter.Quote(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	if !quote.IsAvailable {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnavailable, strings.Join(quote.UnavailableDates, ", "))
	}

	p, err := in.quoter.catalog.Get(req.PropertyID)
	if err != nil {
		return nil, err
	}
	inquiry := &domain.Inquiry{
		PropertyID:      p.ID,
		PropertyName:    p.Name,
		CheckIn:         quote.checkIn,
		CheckOut:        quote.checkOut,
		Guests:          req.Guests,
		GuestName:       strings.TrimSpace(req.GuestName),
		GuestEmail:      strings.TrimSpace(req.GuestEmail),
		GuestPhone:      strings.TrimSpace(req.GuestPhone),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		PriceEstimate:   quote.Estimate(),
		Status:          domain.InquiryPending,
		CreatedAt:       in.now(),
	}
	if err := inquiry.Validate(); err != nil {
		return nil, err
	}

	id, err := in.store.Insert(ctx, domain.CollectionInquiries, inquiry.ToFields())
	if err != nil {
		return nil, fmt.Errorf("save inquiry: %w", err)
	}
	inquiry.ID = id

	log := logger.FromContext(ctx)
	log.Info().Str("inquiry", id).Str("property", p.ID).Float64("total", quote.Total).Msg("booking inquiry received")
	return inquiry, nil
}
