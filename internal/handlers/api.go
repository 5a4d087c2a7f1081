// Package handlers implements the HTTP API: booking quotes and inquiries,
// the dashboard summary, external syncs and upload imports.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/strdash/internal/aggregate"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/middleware"
)

// maxJSONBody caps request bodies for the JSON endpoints
const maxJSONBody = 1 << 20

// SummaryService builds dashboard snapshots
type SummaryService interface {
	Summary(ctx context.Context, f aggregate.SummaryFilter) (*aggregate.Dashboard, error)
}

// APIHandler handles the read-only dashboard API
type APIHandler struct {
	summaries SummaryService
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(summaries SummaryService) *APIHandler {
	return &APIHandler{summaries: summaries}
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSummary handles GET /api/summary?property=&year=
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := aggregate.SummaryFilter{PropertyID: strings.TrimSpace(q.Get("property"))}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 2000 || year > 2100 {
			middleware.WriteError(w, http.StatusBadRequest, "year must be a four-digit year")
			return
		}
		filter.Year = year
	}

	dashboard, err := h.summaries.Summary(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, err, "failed to build summary")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": dashboard,
	})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeFailure maps domain errors to a status and a caller-safe message.
// Anything unrecognized is logged and reported as fallback with a 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRecord):
		middleware.WriteError(w, http.StatusBadRequest, publicMessage(err, domain.ErrInvalidRecord))
	case errors.Is(err, domain.ErrUnknownProperty):
		middleware.WriteError(w, http.StatusNotFound, "unknown property")
	case errors.Is(err, domain.ErrUnavailable):
		middleware.WriteError(w, http.StatusConflict, "the requested dates are not available")
	case errors.Is(err, domain.ErrReconnectRequired):
		middleware.WriteError(w, http.StatusUnauthorized, "quickbooks must be reconnected")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// publicMessage strips everything up to and including the sentinel's text
// so only the validation reason reaches the caller, e.g.
// "invalid record: guest email is invalid" → "guest email is invalid".
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return sentinel.Error()
}
