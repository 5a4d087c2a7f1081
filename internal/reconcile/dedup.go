package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// DedupOptions configures Dedup
type DedupOptions struct {
	// DryRun reports what would be removed without deleting
	DryRun bool
}

// WindowDuplicates lists the aggregates removed from one (source, year, month)
type WindowDuplicates struct {
	Source       domain.Source `json:"source"`
	Year         int           `json:"year"`
	Month        time.Month    `json:"month"`
	Removed      []string      `json:"removed"`
	Transactions int           `json:"transactions"`
}

// DedupReport is the outcome of Dedup
type DedupReport struct {
	DryRun  bool               `json:"dryRun"`
	Scanned int                `json:"scanned"`
	Removed int                `json:"removed"`
	Windows []WindowDuplicates `json:"windows"`
}

type monthKey struct {
	source domain.Source
	year   int
	month  time.Month
}

// Dedup deletes monthly aggregate revenues wherever transaction-level
// records exist for the same (source, year, month), so gross totals are not
// counted twice. Windows holding only one granularity are untouched.
func (r *Reconciler) Dedup(ctx context.Context, opts DedupOptions) (*DedupReport, error) {
	docs, err := r.store.Query(ctx, domain.CollectionRevenue)
	if err != nil {
		return nil, fmt.Errorf("failed to scan revenue: %w", err)
	}

	type group struct {
		aggregates   []string
		transactions int
	}
	groups := make(map[monthKey]*group)
	report := &DedupReport{DryRun: opts.DryRun, Scanned: len(docs)}
	for _, doc := range docs {
		rev, err := domain.RevenueFromFields(doc.ID, doc.Data, r.cal)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Str("id", doc.ID).Err(err).Msg("skipping unreadable revenue")
			continue
		}
		k := monthKey{rev.Source, rev.Date.Year(), rev.Date.Month()}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
		}
		if rev.MonthlyAggregate {
			g.aggregates = append(g.aggregates, rev.ID)
		} else {
			g.transactions++
		}
	}

	for k, g := range groups {
		if len(g.aggregates) == 0 || g.transactions == 0 {
			continue
		}
		sort.Strings(g.aggregates)
		report.Windows = append(report.Windows, WindowDuplicates{
			Source:       k.source,
			Year:         k.year,
			Month:        k.month,
			Removed:      g.aggregates,
			Transactions: g.transactions,
		})
	}
	sort.Slice(report.Windows, func(i, j int) bool {
		a, b := report.Windows[i], report.Windows[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	for _, w := range report.Windows {
		if opts.DryRun {
			report.Removed += len(w.Removed)
			continue
		}
		n, err := r.deleteInWindow(ctx, domain.Window{
			Collection: domain.CollectionRevenue,
			Source:     w.Source,
			Year:       w.Year,
			Month:      w.Month,
		}, w.Removed)
		report.Removed += n
		if err != nil {
			return report, &domain.PhaseError{Phase: PhasePurge, Completed: report.Removed, Err: err}
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Bool("dryRun", opts.DryRun).
		Int("windows", len(report.Windows)).
		Int("removed", report.Removed).
		Msg("dedup complete")
	return report, nil
}

// deleteInWindow deletes ids while holding the window's replace lock
func (r *Reconciler) deleteInWindow(ctx context.Context, w domain.Window, ids []string) (int, error) {
	unlock := r.locks.Lock(w.Key())
	defer unlock()

	ops := make([]store.Op, len(ids))
	for i, id := range ids {
		ops[i] = store.Delete(id)
	}
	return store.WriteChunked(ctx, r.store, w.Collection, ops)
}
