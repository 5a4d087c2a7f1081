// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()
	june := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("UpsertGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "revenue", "r1", domain.Fields{
			"date":             june,
			"amount":           1250.5,
			"source":           "Airbnb",
			"monthlyAggregate": false,
			"priceEstimate":    map[string]interface{}{"nights": 3.0},
		}))
		doc, err := s.Get(ctx, "revenue", "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", doc.ID)
		assert.Equal(t, 1250.5, domain.FloatField(doc.Data, "amount"))
		assert.Equal(t, "Airbnb", domain.StringField(doc.Data, "source"))
		got, err := domain.TimeField(doc.Data, "date")
		require.NoError(t, err)
		assert.True(t, june.Equal(got), "date round trip: %v", got)
		nested, ok := doc.Data["priceEstimate"].(map[string]interface{})
		require.True(t, ok, "nested map: %T", doc.Data["priceEstimate"])
		assert.Equal(t, 3.0, domain.FloatField(nested, "nights"))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "revenue", "nope")
		assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	})

	t.Run("UpsertMerge", func(t *testing.T) {
		s := newStore(t)
		base := domain.Fields{"name": "Checking", "balance": 10.0, "active": true}
		require.NoError(t, s.Upsert(ctx, "bankAccounts", "a", base))

		require.NoError(t, s.Upsert(ctx, "bankAccounts", "a", domain.Fields{"balance": 20.0}, store.MergeAll))
		doc, err := s.Get(ctx, "bankAccounts", "a")
		require.NoError(t, err)
		assert.Equal(t, "Checking", domain.StringField(doc.Data, "name"))
		assert.Equal(t, 20.0, domain.FloatField(doc.Data, "balance"))

		require.NoError(t, s.Upsert(ctx, "bankAccounts", "a",
			domain.Fields{"balance": 30.0, "name": "ignored"}, "balance"))
		doc, err = s.Get(ctx, "bankAccounts", "a")
		require.NoError(t, err)
		assert.Equal(t, "Checking", domain.StringField(doc.Data, "name"))
		assert.Equal(t, 30.0, domain.FloatField(doc.Data, "balance"))

		require.NoError(t, s.Upsert(ctx, "bankAccounts", "a", domain.Fields{"balance": 1.0}))
		doc, err = s.Get(ctx, "bankAccounts", "a")
		require.NoError(t, err)
		_, hasName := doc.Data["name"]
		assert.False(t, hasName, "plain upsert replaces the document")
	})

	t.Run("Query", func(t *testing.T) {
		s := newStore(t)
		seed := map[string]domain.Fields{
			"a": {"source": "Airbnb", "amount": 100.0, "monthlyAggregate": true},
			"b": {"source": "Airbnb", "amount": 50.0, "monthlyAggregate": false},
			"c": {"source": "VRBO", "amount": 100.0, "monthlyAggregate": false},
		}
		for id, data := range seed {
			require.NoError(t, s.Upsert(ctx, "revenue", id, data))
		}
		require.NoError(t, s.Upsert(ctx, "expenses", "x", domain.Fields{"source": "Airbnb"}))

		tests := []struct {
			name  string
			preds []store.Predicate
			want  []string
		}{
			{"all", nil, []string{"a", "b", "c"}},
			{"string", []store.Predicate{store.Eq("source", "Airbnb")}, []string{"a", "b"}},
			{"named string type", []store.Predicate{store.Eq("source", domain.SourceVRBO)}, []string{"c"}},
			{"int matches float", []store.Predicate{store.Eq("amount", 100)}, []string{"a", "c"}},
			{"bool", []store.Predicate{store.Eq("monthlyAggregate", true)}, []string{"a"}},
			{"conjunction", []store.Predicate{store.Eq("source", "Airbnb"), store.Eq("amount", 50.0)}, []string{"b"}},
			{"missing field", []store.Predicate{store.Eq("guestName", "x")}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := s.Query(ctx, "revenue", tt.preds...)
				require.NoError(t, err)
				var ids []string
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
				assert.ElementsMatch(t, tt.want, ids)
			})
		}
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Delete(ctx, "revenue", "ghost"))
		require.NoError(t, s.Upsert(ctx, "revenue", "r", domain.Fields{"amount": 1.0}))
		require.NoError(t, s.Delete(ctx, "revenue", "r"))
		_, err := s.Get(ctx, "revenue", "r")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Insert", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(ctx, "bookingInquiries", domain.Fields{"status": "pending"})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		doc, err := s.Get(ctx, "bookingInquiries", id)
		require.NoError(t, err)
		assert.Equal(t, "pending", domain.StringField(doc.Data, "status"))
	})

	t.Run("BatchWrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "expenses", "old", domain.Fields{"amount": 5.0}))
		require.NoError(t, s.Upsert(ctx, "expenses", "keep", domain.Fields{"amount": 5.0, "vendor": "SCE"}))

		err := s.BatchWrite(ctx, "expenses", []store.Op{
			store.Set("new", domain.Fields{"amount": 7.0}),
			store.Merge("keep", domain.Fields{"amount": 6.0}),
			store.Delete("old"),
			store.Delete("never-existed"),
		})
		require.NoError(t, err)

		docs, err := s.Query(ctx, "expenses")
		require.NoError(t, err)
		byID := map[string]domain.Fields{}
		for _, d := range docs {
			byID[d.ID] = d.Data
		}
		assert.Len(t, byID, 2)
		assert.Equal(t, 7.0, domain.FloatField(byID["new"], "amount"))
		assert.Equal(t, 6.0, domain.FloatField(byID["keep"], "amount"))
		assert.Equal(t, "SCE", domain.StringField(byID["keep"], "vendor"))
	})

	t.Run("BatchTooLarge", func(t *testing.T) {
		s := newStore(t)
		ops := make([]store.Op, domain.MaxBatchOps+1)
		for i := range ops {
			ops[i] = store.Set(fmt.Sprintf("id-%d", i), domain.Fields{"n": float64(i)})
		}
		err := s.BatchWrite(ctx, "revenue", ops)
		assert.ErrorIs(t, err, domain.ErrBatchTooLarge)
		docs, err := s.Query(ctx, "revenue")
		require.NoError(t, err)
		assert.Empty(t, docs, "oversized batch must not be partially applied")
	})
}
