package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/hostaway"
	"github.com/rumor-ml/commons.systems/strdash/internal/quickbooks"
)

type fakeAuth struct {
	exchangeErr error
	code, realm string
}

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://appcenter.intuit.com/connect/oauth2?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(_ context.Context, code, realmID string) error {
	f.code, f.realm = code, realmID
	return f.exchangeErr
}

type fakeQBSync struct {
	result *quickbooks.SyncResult
	err    error
}

func (f fakeQBSync) Sync(context.Context) (*quickbooks.SyncResult, error) { return f.result, f.err }

type fakeHostawaySync struct {
	result *hostaway.SyncResult
	err    error
}

func (f fakeHostawaySync) Sync(context.Context) (*hostaway.SyncResult, error) { return f.result, f.err }

func TestConnectQuickBooks_SetsStateCookie(t *testing.T) {
	h := NewSyncHandler(&fakeAuth{}, nil, nil)
	rec := httptest.NewRecorder()
	h.ConnectQuickBooks(rec, httptest.NewRequest("GET", "/api/quickbooks/connect", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
}

func TestQuickBooksCallback(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		query       string
		exchangeErr error
		wantCode    int
		wantErr     string
	}{
		{"connects", "s-1", "state=s-1&code=abc&realmId=9130", nil, http.StatusOK, ""},
		{"no cookie", "", "state=s-1&code=abc&realmId=9130", nil, http.StatusBadRequest, "invalid oauth state"},
		{"state mismatch", "s-1", "state=s-2&code=abc&realmId=9130", nil, http.StatusBadRequest, "invalid oauth state"},
		{"missing realm", "s-1", "state=s-1&code=abc", nil, http.StatusBadRequest, "missing code or realmId"},
		{"exchange fails", "s-1", "state=s-1&code=abc&realmId=9130", errors.New("invalid_grant"), http.StatusInternalServerError, "failed to connect quickbooks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{exchangeErr: tt.exchangeErr}
			h := NewSyncHandler(auth, nil, nil)
			req := httptest.NewRequest("GET", "/api/quickbooks/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: stateCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.QuickBooksCallback(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeFailure(t, rec).Error)
				return
			}
			assert.Equal(t, "abc", auth.code)
			assert.Equal(t, "9130", auth.realm)
			assert.JSONEq(t, `{"success":true,"realmId":"9130"}`, rec.Body.String())
		})
	}
}

func TestSyncEndpoints(t *testing.T) {
	reconnect := fmt.Errorf("refresh token: %w", domain.ErrReconnectRequired)

	tests := []struct {
		name     string
		handler  *SyncHandler
		call     func(h *SyncHandler) http.HandlerFunc
		wantCode int
		wantErr  string
		wantKey  string
	}{
		{
			name:     "quickbooks sync",
			handler:  NewSyncHandler(nil, fakeQBSync{result: &quickbooks.SyncResult{Expenses: 12, Revenue: 3}}, nil),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncQuickBooks },
			wantCode: http.StatusOK,
			wantKey:  "expenses",
		},
		{
			name:     "quickbooks needs reconnect",
			handler:  NewSyncHandler(nil, fakeQBSync{err: reconnect}, nil),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncQuickBooks },
			wantCode: http.StatusUnauthorized,
			wantErr:  "quickbooks must be reconnected",
		},
		{
			name:     "quickbooks not configured",
			handler:  NewSyncHandler(nil, nil, nil),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncQuickBooks },
			wantCode: http.StatusNotFound,
			wantErr:  "quickbooks is not configured",
		},
		{
			name:     "hostaway sync",
			handler:  NewSyncHandler(nil, nil, fakeHostawaySync{result: &hostaway.SyncResult{Revenue: 7, Cancelled: 1}}),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncHostaway },
			wantCode: http.StatusOK,
			wantKey:  "cancelled",
		},
		{
			name:     "hostaway fails",
			handler:  NewSyncHandler(nil, nil, fakeHostawaySync{err: errors.New("429 too many requests")}),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncHostaway },
			wantCode: http.StatusInternalServerError,
			wantErr:  "hostaway sync failed",
		},
		{
			name:     "hostaway not configured",
			handler:  NewSyncHandler(nil, nil, nil),
			call:     func(h *SyncHandler) http.HandlerFunc { return h.SyncHostaway },
			wantCode: http.StatusNotFound,
			wantErr:  "hostaway is not configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(tt.handler)(rec, httptest.NewRequest("POST", "/api/sync", nil))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeFailure(t, rec).Error)
				return
			}
			var body struct {
				Success bool                   `json:"success"`
				Results map[string]interface{} `json:"results"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Success)
			assert.Contains(t, body.Results, tt.wantKey)
		})
	}
}
