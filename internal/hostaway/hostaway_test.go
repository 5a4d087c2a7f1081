package hostaway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/retry"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

type fakeHostaway struct {
	t            *testing.T
	reservations []Reservation
	tokenCalls   int
	offsets      []string
	calendarFail bool
}

func (f *fakeHostaway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/accessTokens":
		require.NoError(f.t, r.ParseForm())
		f.tokenCalls++
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "4242", r.PostForm.Get("client_id"))
		assert.Equal(f.t, "key", r.PostForm.Get("client_secret"))
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":15552000}`))
		return
	}

	assert.Equal(f.t, "Bearer tok", r.Header.Get("Authorization"))
	switch r.URL.Path {
	case "/v1/reservations":
		q := r.URL.Query()
		f.offsets = append(f.offsets, q.Get("offset"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		end := offset + limit
		if end > len(f.reservations) {
			end = len(f.reservations)
		}
		if offset > end {
			offset = end
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "result": f.reservations[offset:end]})
	case "/v1/listings/123646/calendar":
		if f.calendarFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(f.t, "2025-03-01", r.URL.Query().Get("startDate"))
		assert.Equal(f.t, "2025-03-03", r.URL.Query().Get("endDate"))
		w.Write([]byte(`{"status":"success","result":[
			{"date":"2025-03-01","isAvailable":1,"price":275},
			{"date":"2025-03-02","isAvailable":0,"price":300},
			{"date":"2025-03-03","isAvailable":1,"price":0}
		]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"fail","message":"not found"}`))
	}
}

var fastRetry = retry.Policy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxAttempts: 2}

func newClient(t *testing.T, f *fakeHostaway) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), srv.URL, "4242", "key", WithHTTPClient(srv.Client()), WithRetryPolicy(fastRetry))
}

func TestReservation_Net(t *testing.T) {
	tests := []struct {
		name string
		res  Reservation
		want float64
	}{
		{"payout reported", Reservation{TotalPrice: 900, HostPayout: 810, HostServiceFee: 27}, 810},
		{"payout missing", Reservation{TotalPrice: 900, HostServiceFee: 27}, 873},
		{"no fees", Reservation{TotalPrice: 450}, 450},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Net())
		})
	}
}

func TestClient_ReservationsPaging(t *testing.T) {
	old := pageLimit
	pageLimit = 2
	t.Cleanup(func() { pageLimit = old })

	f := &fakeHostaway{t: t}
	for i := 1; i <= 4; i++ {
		f.reservations = append(f.reservations, Reservation{ID: int64(i)})
	}
	c := newClient(t, f)

	got, err := c.Reservations(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []string{"0", "2", "4"}, f.offsets)
	assert.Equal(t, 1, f.tokenCalls, "token is cached across requests")
}

func TestClient_Calendar(t *testing.T) {
	c := newClient(t, &fakeHostaway{t: t})
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	days, err := c.Calendar(context.Background(), 123646, start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.True(t, days[0].Available())
	assert.False(t, days[1].Available())
	assert.Equal(t, 275.0, days[0].Price)
}

func TestClient_CalendarError(t *testing.T) {
	c := newClient(t, &fakeHostaway{t: t, calendarFail: true})
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := c.Calendar(context.Background(), 123646, start, start.AddDate(0, 0, 2))
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())

	_, err = c.Calendar(context.Background(), 999, start, start)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSyncer_Sync(t *testing.T) {
	f := &fakeHostaway{t: t, reservations: []Reservation{
		{ID: 1001, ListingMapID: 123646, GuestName: "Dana", ArrivalDate: "2025-02-14", DepartureDate: "2025-02-17",
			TotalPrice: 980, HostPayout: 880, CleaningFee: 150, Status: "new", ChannelName: "airbnbOfficial", ChannelReservationID: "HMABC"},
		{ID: 1002, ListingMapID: 123633, ArrivalDate: "2025-02-20", TotalPrice: 600, HostServiceFee: 18, Status: "modified"},
		{ID: 1003, ListingMapID: 123646, ArrivalDate: "2025-02-21", TotalPrice: 700, Status: "cancelled"},
		{ID: 1004, ListingMapID: 555, ArrivalDate: "garbage", TotalPrice: 100, Status: "new"},
	}}
	c := newClient(t, f)

	catalog, err := property.LoadEmbedded()
	require.NoError(t, err)
	cal, err := domain.NewCalendar("America/Los_Angeles")
	require.NoError(t, err)
	s := store.NewMemory()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	syncer := NewSyncer(c, s, catalog, cal).WithClock(func() time.Time { return now })

	ctx := context.Background()
	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Revenue)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 1, result.Skipped)

	doc, err := s.Get(ctx, domain.CollectionRevenue, "hostaway_1001")
	require.NoError(t, err)
	r, err := domain.RevenueFromFields(doc.ID, doc.Data, cal)
	require.NoError(t, err)
	assert.Equal(t, cal.Date(2025, time.February, 14), r.Date)
	assert.Equal(t, 980.0, r.GrossAmount)
	assert.Equal(t, 880.0, r.Amount)
	assert.Equal(t, 100.0, r.ServiceFees)
	assert.Equal(t, domain.SourceHostaway, r.Source)
	assert.Equal(t, "cochran", r.PropertyID)
	assert.Equal(t, "Dana", r.GuestName)
	assert.Equal(t, "HMABC", r.ConfirmationCode)

	doc, err = s.Get(ctx, domain.CollectionRevenue, "hostaway_1002")
	require.NoError(t, err)
	assert.Equal(t, 582.0, doc.Data[domain.FieldAmount])
	assert.Equal(t, "casa-moto", doc.Data[domain.FieldPropertyID])

	_, err = s.Get(ctx, domain.CollectionRevenue, "hostaway_1003")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Rerunning converges on the same documents
	_, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len(domain.CollectionRevenue))
}

func TestSyncer_CancellationRemovesRevenue(t *testing.T) {
	f := &fakeHostaway{t: t, reservations: []Reservation{
		{ID: 7, ListingMapID: 123646, ArrivalDate: "2025-04-02", TotalPrice: 450, Status: "new"},
	}}
	c := newClient(t, f)

	catalog, err := property.LoadEmbedded()
	require.NoError(t, err)
	cal, err := domain.NewCalendar("America/Los_Angeles")
	require.NoError(t, err)
	s := store.NewMemory()
	syncer := NewSyncer(c, s, catalog, cal)

	ctx := context.Background()
	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Revenue)
	assert.Equal(t, 1, s.Len(domain.CollectionRevenue))

	f.reservations[0].Status = "cancelled"
	result, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Revenue)
	assert.Equal(t, 1, result.Cancelled)
	assert.Zero(t, s.Len(domain.CollectionRevenue))

	_, err = s.Get(ctx, domain.CollectionRevenue, "hostaway_7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
