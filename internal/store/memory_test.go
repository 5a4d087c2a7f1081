package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
	"github.com/rumor-ml/commons.systems/strdash/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestMemory_DeepCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	in := domain.Fields{"priceEstimate": map[string]interface{}{"total": 100.0}}
	require.NoError(t, m.Upsert(ctx, "bookingInquiries", "i", in))

	in["priceEstimate"].(map[string]interface{})["total"] = 1.0
	doc, err := m.Get(ctx, "bookingInquiries", "i")
	require.NoError(t, err)
	assert.Equal(t, 100.0, doc.Data["priceEstimate"].(map[string]interface{})["total"])

	doc.Data["priceEstimate"].(map[string]interface{})["total"] = 2.0
	again, err := m.Get(ctx, "bookingInquiries", "i")
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.Data["priceEstimate"].(map[string]interface{})["total"])
}

func TestMemory_Fault(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	m.SetFault(func(op, coll string) error {
		if op == "batch" {
			return assert.AnError
		}
		return nil
	})
	err := m.BatchWrite(ctx, "revenue", []store.Op{store.Set("a", domain.Fields{})})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, m.Len("revenue"))
	assert.Empty(t, m.Commits())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b interface{}
		want bool
	}{
		{"int vs float", int64(3), 3.0, true},
		{"float mismatch", 3.5, 3.0, false},
		{"source vs string", domain.SourceAirbnb, "Airbnb", true},
		{"string vs category", "Cleaning", domain.CategoryCleaning, true},
		{"number vs string", 1.0, "1", false},
		{"bool", true, true, true},
		{"nil", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.Equal(tt.a, tt.b))
		})
	}
}
