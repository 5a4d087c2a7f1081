package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
	"github.com/rumor-ml/commons.systems/strdash/internal/store/storetest"
)

func openMemory(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openMemory)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "strdash.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "revenue", "r1", domain.Fields{"amount": 42.0}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	doc, err := s.Get(ctx, "revenue", "r1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, domain.FloatField(doc.Data, "amount"))
}

func TestStore_QueryByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	date := time.Date(2024, 6, 15, 0, 0, 0, 0, loc)

	require.NoError(t, s.Upsert(ctx, "revenue", "r1", domain.Fields{"date": date}))
	docs, err := s.Query(ctx, "revenue", store.Eq("date", date))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	// The stored form is RFC 3339 text, which the domain converters accept.
	r, err := domain.RevenueFromFields("r1", domain.Fields{
		"date":   docs[0].Data["date"],
		"amount": 1.0,
	}, domain.CalendarIn(loc))
	require.NoError(t, err)
	assert.True(t, date.Equal(r.Date))
}
