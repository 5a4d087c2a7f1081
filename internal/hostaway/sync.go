package hostaway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// SyncResult counts what one reservation sync did
type SyncResult struct {
	Revenue   int       `json:"revenue"`
	Cancelled int       `json:"cancelled"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationSource lists reservations
type ReservationSource interface {
	Reservations(ctx context.Context) ([]Reservation, error)
}

// Syncer upserts one revenue document per booked reservation
type Syncer struct {
	source  ReservationSource
	store   store.Store
	catalog *property.Catalog
	cal     *domain.Calendar
	now     func() time.Time
}

// NewSyncer creates a reservation syncer
func NewSyncer(source ReservationSource, s store.Store, catalog *property.Catalog, cal *domain.Calendar) *Syncer {
	return &Syncer{source: source, store: s, catalog: catalog, cal: cal, now: time.Now}
}

// WithClock replaces time.Now for import stamps
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Sync merges every non-cancelled reservation into revenue/hostaway_<id>,
// dated by arrival, and deletes the document of every cancelled one.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Str("component", "hostaway").Logger()

	reservations, err := s.source.Reservations(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &SyncResult{Timestamp: now.UTC()}
	ops := make([]store.Op, 0, len(reservations))
	var cancelled []store.Op
	for _, res := range reservations {
		if res.Cancelled() {
			// Drops the booking written by an earlier sync, if any
			result.Cancelled++
			cancelled = append(cancelled, store.Delete(revenueID(res.ID)))
			continue
		}
		r, err := s.revenue(res, now)
		if err != nil {
			log.Debug().Err(err).Int64("reservation", res.ID).Msg("skipping reservation")
			result.Skipped++
			continue
		}
		ops = append(ops, store.Merge(r.ID, r.ToFields()))
	}

	booked := len(ops)
	n, err := store.WriteChunked(ctx, s.store, domain.CollectionRevenue, append(ops, cancelled...))
	result.Revenue = min(n, booked)
	if err != nil {
		return result, fmt.Errorf("write reservations: %w", err)
	}
	log.Info().Int("revenue", result.Revenue).Int("cancelled", result.Cancelled).Int("skipped", result.Skipped).Msg("synced reservations")
	return result, nil
}

func (s *Syncer) revenue(res Reservation, now time.Time) (*domain.Revenue, error) {
	date, err := s.cal.Parse(res.ArrivalDate, dateLayout)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Hostaway reservation %d", res.ID)
	if res.ChannelName != "" {
		desc += " via " + res.ChannelName
	}
	r, err := domain.NewRevenue(date, domain.RoundCents(res.TotalPrice), domain.RoundCents(res.Net()),
		domain.SourceHostaway, s.catalog.ByHostawayListing(res.ListingMapID), desc)
	if err != nil {
		return nil, err
	}
	r.ID = revenueID(res.ID)
	r.ExternalID = r.ID
	r.GuestName = res.GuestName
	r.ConfirmationCode = res.ChannelReservationID
	r.ImportedAt = now
	return r, nil
}

func revenueID(reservationID int64) string {
	return "hostaway_" + strconv.FormatInt(reservationID, 10)
}
