package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// SummaryFilter narrows a summary
type SummaryFilter struct {
	PropertyID string
	// Year selects a past year; the snapshot is then taken as of Dec 31.
	// Zero means the current year.
	Year int
}

// Service loads records from the store and builds dashboard snapshots
type Service struct {
	store   store.Store
	cal     *domain.Calendar
	catalog *property.Catalog
	now     func() time.Time
}

// NewService creates a summary service. catalog may be nil, in which case
// no targets are reported.
func NewService(s store.Store, cal *domain.Calendar, catalog *property.Catalog) *Service {
	if cal == nil {
		cal = domain.CalendarIn(time.UTC)
	}
	return &Service{store: s, cal: cal, catalog: catalog, now: time.Now}
}

// WithClock overrides time.Now
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summary builds the dashboard for the filter
func (s *Service) Summary(ctx context.Context, f SummaryFilter) (*Dashboard, error) {
	var preds []store.Predicate
	if f.PropertyID != "" {
		if s.catalog != nil {
			if _, err := s.catalog.Get(f.PropertyID); err != nil {
				return nil, err
			}
		}
		preds = append(preds, store.Eq(domain.FieldPropertyID, f.PropertyID))
	}

	revenues, err := s.loadRevenues(ctx, preds)
	if err != nil {
		return nil, err
	}
	expenses, err := s.loadExpenses(ctx, preds)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.cal.Location())
	if f.Year != 0 && f.Year < now.Year() {
		now = s.cal.Date(f.Year, time.December, 31)
	}

	return Build(Input{
		Revenues:   Revenues(revenues),
		Expenses:   Expenses(expenses),
		Now:        now,
		PropertyID: f.PropertyID,
		Targets:    s.targets(f.PropertyID),
	}), nil
}

func (s *Service) loadRevenues(ctx context.Context, preds []store.Predicate) ([]*domain.Revenue, error) {
	docs, err := s.store.Query(ctx, domain.CollectionRevenue, preds...)
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue: %w", err)
	}
	out := make([]*domain.Revenue, 0, len(docs))
	for _, doc := range docs {
		r, err := domain.RevenueFromFields(doc.ID, doc.Data, s.cal)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Str("id", doc.ID).Err(err).Msg("skipping unreadable revenue")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) loadExpenses(ctx context.Context, preds []store.Predicate) ([]*domain.Expense, error) {
	docs, err := s.store.Query(ctx, domain.CollectionExpenses, preds...)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	out := make([]*domain.Expense, 0, len(docs))
	for _, doc := range docs {
		e, err := domain.ExpenseFromFields(doc.ID, doc.Data, s.cal)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Str("id", doc.ID).Err(err).Msg("skipping unreadable expense")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// targets sums catalog targets over the selected properties
func (s *Service) targets(propertyID string) Targets {
	var t Targets
	if s.catalog == nil {
		return t
	}
	for _, p := range s.catalog.All() {
		if propertyID != "" && p.ID != propertyID {
			continue
		}
		t.MortgagePrincipal += p.MortgagePrincipal
		t.MortgageBalance += p.MortgageBalance
		t.RevenueGoal += p.RevenueGoal
		t.ExpenseBudget += p.ExpenseBudget
	}
	return t
}
