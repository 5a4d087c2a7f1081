// Package reconcile repairs the revenue and expense collections: it replaces
// a source's records for a year or month with an authoritative set, removes
// monthly aggregates shadowed by transactions, and sweeps expired records.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
	"github.com/rumor-ml/commons.systems/strdash/internal/transform"
)

// Phase names reported in domain.PhaseError
const (
	PhaseSelect     = "select"
	PhasePurge      = "purge"
	PhaseRepopulate = "repopulate"
)

// DefaultRetentionYears matches the dashboard's old-data cleanup
const DefaultRetentionYears = 3

// Reconciler runs repair operations against a record store. Replace-window
// calls for the same window key are serialized within the process.
type Reconciler struct {
	store store.Store
	cal   *domain.Calendar
	now   func() time.Time
	locks keyedMutex
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides time.Now for import stamps and the sweep cutoff
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler. A nil calendar means UTC.
func New(s store.Store, cal *domain.Calendar, opts ...Option) *Reconciler {
	if cal == nil {
		cal = domain.CalendarIn(time.UTC)
	}
	r := &Reconciler{store: s, cal: cal, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplaceReport describes a completed replace-window call
type ReplaceReport struct {
	Window    string   `json:"window"`
	Selected  int      `json:"selected"`
	Purged    int      `json:"purged"`
	Written   int      `json:"written"`
	Aggregate bool     `json:"monthlyAggregate"`
	IDs       []string `json:"ids"`
}

// ReplaceWindow swaps every revenue record of w.Source dated inside the
// window for records. It runs Select, Purge and Repopulate in order; a
// failure aborts the rest and comes back as a *domain.PhaseError. Nothing is
// rolled back, and rerunning the same call converges because ids are derived
// from record content.
//
// records must all belong to the window and share one granularity.
func (r *Reconciler) ReplaceWindow(ctx context.Context, w domain.Window, records []*domain.Revenue) (*ReplaceReport, error) {
	if w.Collection == "" {
		w.Collection = domain.CollectionRevenue
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.Collection != domain.CollectionRevenue {
		return nil, fmt.Errorf("replace-window supports the %s collection, got %q", domain.CollectionRevenue, w.Collection)
	}
	aggregate, err := r.checkReplacement(w, records)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(w.Key())
	defer unlock()

	log := logger.FromContext(ctx).With().Str("window", w.String()).Logger()
	report := &ReplaceReport{Window: w.String(), Aggregate: aggregate}

	// Select
	ids, err := r.selectWindow(ctx, w)
	if err != nil {
		return report, &domain.PhaseError{Phase: PhaseSelect, Err: err}
	}
	report.Selected = len(ids)
	log.Debug().Int("selected", len(ids)).Msg("selected window records")

	// Purge
	deletes := make([]store.Op, len(ids))
	for i, id := range ids {
		deletes[i] = store.Delete(id)
	}
	n, err := store.WriteChunked(ctx, r.store, w.Collection, deletes)
	report.Purged = n
	if err != nil {
		return report, &domain.PhaseError{Phase: PhasePurge, Completed: n, Err: err}
	}

	// Repopulate
	importedAt := r.now().UTC()
	for _, rec := range records {
		rec.ID = ""
		rec.ImportedAt = importedAt
	}
	transform.AssignRevenueIDs(records, nil)
	sets := make([]store.Op, len(records))
	for i, rec := range records {
		sets[i] = store.Set(rec.ID, rec.ToFields())
		report.IDs = append(report.IDs, rec.ID)
	}
	n, err = store.WriteChunked(ctx, r.store, w.Collection, sets)
	report.Written = n
	if err != nil {
		return report, &domain.PhaseError{Phase: PhaseRepopulate, Completed: n, Err: err}
	}

	log.Info().
		Int("purged", report.Purged).
		Int("written", report.Written).
		Bool("monthlyAggregate", aggregate).
		Msg("replaced window")
	return report, nil
}

// checkReplacement rejects records outside the window, of another source,
// or of mixed granularity. It reports whether the set is monthly aggregates.
func (r *Reconciler) checkReplacement(w domain.Window, records []*domain.Revenue) (bool, error) {
	start, end := w.Range(r.cal)
	var aggregates, transactions int
	for i, rec := range records {
		if rec == nil {
			return false, fmt.Errorf("record %d: %w: nil record", i, domain.ErrInvalidRecord)
		}
		if err := rec.Validate(); err != nil {
			return false, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.Source != w.Source {
			return false, fmt.Errorf("record %d: %w: source %s outside window %s", i, domain.ErrInvalidRecord, rec.Source, w)
		}
		rec.Date = r.cal.Normalize(rec.Date)
		if !domain.Contains(start, end, rec.Date) {
			return false, fmt.Errorf("record %d: %w: date %s outside window %s",
				i, domain.ErrInvalidRecord, rec.Date.Format("2006-01-02"), w)
		}
		if rec.MonthlyAggregate {
			aggregates++
		} else {
			transactions++
		}
	}
	if aggregates > 0 && transactions > 0 {
		return false, fmt.Errorf("%w: %d aggregates and %d transactions for %s",
			domain.ErrMixedGranularity, aggregates, transactions, w)
	}
	return aggregates > 0, nil
}

// selectWindow queries by source and filters dates in process since the
// store only supports equality predicates.
func (r *Reconciler) selectWindow(ctx context.Context, w domain.Window) ([]string, error) {
	docs, err := r.store.Query(ctx, w.Collection, store.Eq(domain.FieldSource, string(w.Source)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", w, err)
	}
	start, end := w.Range(r.cal)
	var ids []string
	for _, doc := range docs {
		date, err := domain.TimeField(doc.Data, domain.FieldDate)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Str("id", doc.ID).Err(err).Msg("skipping record without a date")
			continue
		}
		if domain.Contains(start, end, r.cal.Normalize(date)) {
			ids = append(ids, doc.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
