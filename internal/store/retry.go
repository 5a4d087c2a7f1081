package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/retry"
)

// Retrying wraps a Store so transient backend failures are retried with
// backoff. Every Store operation is idempotent once Insert has picked its id,
// so whole calls are simply repeated.
type Retrying struct {
	next   Store
	policy retry.Policy
}

var _ Store = (*Retrying)(nil)

// WithRetry decorates s with the given policy
func WithRetry(s Store, p retry.Policy) *Retrying {
	return &Retrying{next: s, policy: p}
}

func (r *Retrying) Insert(ctx context.Context, coll string, data domain.Fields) (string, error) {
	id := uuid.NewString()
	if err := r.Upsert(ctx, coll, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Retrying) Upsert(ctx context.Context, coll, id string, data domain.Fields, mergeFields ...string) error {
	return retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.next.Upsert(ctx, coll, id, data, mergeFields...)
	})
}

func (r *Retrying) Get(ctx context.Context, coll, id string) (*Document, error) {
	var doc *Document
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		doc, err = r.next.Get(ctx, coll, id)
		return err
	})
	return doc, err
}

func (r *Retrying) Query(ctx context.Context, coll string, preds ...Predicate) ([]Document, error) {
	var docs []Document
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		docs, err = r.next.Query(ctx, coll, preds...)
		return err
	})
	return docs, err
}

func (r *Retrying) Delete(ctx context.Context, coll, id string) error {
	return retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.next.Delete(ctx, coll, id)
	})
}

func (r *Retrying) BatchWrite(ctx context.Context, coll string, ops []Op) error {
	if err := CheckBatch(ops); err != nil {
		return err
	}
	return retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.next.BatchWrite(ctx, coll, ops)
	})
}

func (r *Retrying) Close() error { return r.next.Close() }
