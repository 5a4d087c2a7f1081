package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

type revenueWindow struct {
	source domain.Source
	year   int
	month  time.Month
}

func (w revenueWindow) String() string {
	return fmt.Sprintf("%s %04d-%02d", w.source, w.year, w.month)
}

// storedGranularity warns about windows where the accepted revenue would
// sit next to stored records of the other granularity. Validation only sees
// the batch; this looks at what is already in the store. Query failures are
// logged and do not stop the import.
func (p *Pipeline) storedGranularity(ctx context.Context, revenues []*domain.Revenue, rejected map[string]bool) []string {
	if p.deps.Store == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	incoming := make(map[revenueWindow]bool) // window -> monthly aggregate
	ids := make(map[string]bool)
	sources := make(map[domain.Source]bool)
	for _, r := range revenues {
		if rejected[r.ID] {
			continue
		}
		incoming[p.window(r.Source, r.Date)] = r.MonthlyAggregate
		ids[r.ID] = true
		sources[r.Source] = true
	}

	conflicts := make(map[revenueWindow]int)
	for src := range sources {
		docs, err := p.deps.Store.Query(ctx, domain.CollectionRevenue, store.Eq(domain.FieldSource, string(src)))
		if err != nil {
			log.Warn().Err(err).Str("source", string(src)).Msg("could not check stored granularity")
			continue
		}
		for _, doc := range docs {
			if ids[doc.ID] {
				continue
			}
			date, err := domain.TimeField(doc.Data, domain.FieldDate)
			if err != nil {
				continue
			}
			w := p.window(src, date)
			aggregate, ok := incoming[w]
			if !ok {
				continue
			}
			if domain.BoolField(doc.Data, domain.FieldMonthlyAggregate) != aggregate {
				conflicts[w]++
			}
		}
	}

	var warnings []string
	for w, n := range conflicts {
		kind := "transactions"
		if !incoming[w] {
			kind = "monthly aggregates"
		}
		log.Warn().Str("window", w.String()).Int("stored", n).Msg("import mixes revenue granularity with stored records")
		warnings = append(warnings, fmt.Sprintf("revenue %s: %v with %d stored %s; run `strdash dedup` to remove shadowed aggregates",
			w, domain.ErrMixedGranularity, n, kind))
	}
	sort.Strings(warnings)
	return warnings
}

func (p *Pipeline) window(src domain.Source, date time.Time) revenueWindow {
	if p.deps.Calendar != nil {
		date = p.deps.Calendar.Normalize(date)
	}
	return revenueWindow{source: src, year: date.Year(), month: date.Month()}
}
