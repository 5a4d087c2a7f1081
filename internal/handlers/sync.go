package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/strdash/internal/hostaway"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/middleware"
	"github.com/rumor-ml/commons.systems/strdash/internal/quickbooks"
)

const stateCookie = "qb_oauth_state"

// QuickBooksAuth runs the OAuth2 authorization-code flow
type QuickBooksAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, realmID string) error
}

// QuickBooksSyncer pulls accounting data into the store
type QuickBooksSyncer interface {
	Sync(ctx context.Context) (*quickbooks.SyncResult, error)
}

// HostawaySyncer pulls reservations into the store
type HostawaySyncer interface {
	Sync(ctx context.Context) (*hostaway.SyncResult, error)
}

// SyncHandler triggers external syncs. Either syncer may be nil when the
// integration is not configured.
type SyncHandler struct {
	qbAuth   QuickBooksAuth
	qbSync   QuickBooksSyncer
	hostaway HostawaySyncer
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(qbAuth QuickBooksAuth, qbSync QuickBooksSyncer, hostaway HostawaySyncer) *SyncHandler {
	return &SyncHandler{qbAuth: qbAuth, qbSync: qbSync, hostaway: hostaway}
}

// ConnectQuickBooks handles GET /api/quickbooks/connect by redirecting to
// Intuit's consent page
func (h *SyncHandler) ConnectQuickBooks(w http.ResponseWriter, r *http.Request) {
	if h.qbAuth == nil {
		middleware.WriteError(w, http.StatusNotFound, "quickbooks is not configured")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/quickbooks",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.qbAuth.AuthCodeURL(state), http.StatusFound)
}

// QuickBooksCallback handles GET /api/quickbooks/callback?code&state&realmId
func (h *SyncHandler) QuickBooksCallback(w http.ResponseWriter, r *http.Request) {
	if h.qbAuth == nil {
		middleware.WriteError(w, http.StatusNotFound, "quickbooks is not configured")
		return
	}
	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	code, realmID := q.Get("code"), q.Get("realmId")
	if code == "" || realmID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "missing code or realmId")
		return
	}

	if err := h.qbAuth.Exchange(r.Context(), code, realmID); err != nil {
		writeFailure(w, r, err, "failed to connect quickbooks")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/quickbooks", MaxAge: -1})

	log := logger.FromContext(r.Context())
	log.Info().Str("realm", realmID).Msg("quickbooks connected")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"realmId": realmID,
	})
}

// SyncQuickBooks handles POST /api/quickbooks/sync
func (h *SyncHandler) SyncQuickBooks(w http.ResponseWriter, r *http.Request) {
	if h.qbSync == nil {
		middleware.WriteError(w, http.StatusNotFound, "quickbooks is not configured")
		return
	}
	result, err := h.qbSync.Sync(r.Context())
	if err != nil {
		writeFailure(w, r, err, "quickbooks sync failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": result,
	})
}

// SyncHostaway handles POST /api/hostaway/sync
func (h *SyncHandler) SyncHostaway(w http.ResponseWriter, r *http.Request) {
	if h.hostaway == nil {
		middleware.WriteError(w, http.StatusNotFound, "hostaway is not configured")
		return
	}
	result, err := h.hostaway.Sync(r.Context())
	if err != nil {
		writeFailure(w, r, err, "hostaway sync failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": result,
	})
}
