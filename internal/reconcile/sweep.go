package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// SweepReport is the outcome of Sweep
type SweepReport struct {
	Cutoff  time.Time      `json:"cutoff"`
	DryRun  bool           `json:"dryRun"`
	Removed map[string]int `json:"removed"`
}

// Sweep deletes revenue and expense records dated before today minus years
// (DefaultRetentionYears when years < 1).
func (r *Reconciler) Sweep(ctx context.Context, years int, dryRun bool) (*SweepReport, error) {
	if years < 1 {
		years = DefaultRetentionYears
	}
	report := &SweepReport{
		Cutoff:  r.cal.Normalize(r.now()).AddDate(-years, 0, 0),
		DryRun:  dryRun,
		Removed: make(map[string]int),
	}

	for _, coll := range []string{domain.CollectionRevenue, domain.CollectionExpenses} {
		docs, err := r.store.Query(ctx, coll)
		if err != nil {
			return report, fmt.Errorf("failed to scan %s: %w", coll, err)
		}
		var ops []store.Op
		for _, doc := range docs {
			date, err := domain.TimeField(doc.Data, domain.FieldDate)
			if err != nil {
				continue
			}
			if r.cal.Normalize(date).Before(report.Cutoff) {
				ops = append(ops, store.Delete(doc.ID))
			}
		}
		if dryRun {
			report.Removed[coll] = len(ops)
			continue
		}
		n, err := store.WriteChunked(ctx, r.store, coll, ops)
		report.Removed[coll] = n
		if err != nil {
			return report, &domain.PhaseError{Phase: PhasePurge, Completed: n, Err: err}
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Time("cutoff", report.Cutoff).
		Int("revenue", report.Removed[domain.CollectionRevenue]).
		Int("expenses", report.Removed[domain.CollectionExpenses]).
		Msg("sweep complete")
	return report, nil
}
