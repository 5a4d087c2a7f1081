package store

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// BatchWriter is the slice of Store that WriteChunked needs
type BatchWriter interface {
	BatchWrite(ctx context.Context, coll string, ops []Op) error
}

// WriteChunked commits ops in sequential batches of at most
// domain.MaxBatchOps. It stops at the first failed batch and returns the
// number of ops committed before it.
func WriteChunked(ctx context.Context, w BatchWriter, coll string, ops []Op) (int, error) {
	committed := 0
	total := (len(ops) + domain.MaxBatchOps - 1) / domain.MaxBatchOps
	for n := 0; committed < len(ops); n++ {
		end := committed + domain.MaxBatchOps
		if end > len(ops) {
			end = len(ops)
		}
		if err := w.BatchWrite(ctx, coll, ops[committed:end]); err != nil {
			return committed, fmt.Errorf("batch %d of %d on %s: %w", n+1, total, coll, err)
		}
		committed = end
	}
	return committed, nil
}
