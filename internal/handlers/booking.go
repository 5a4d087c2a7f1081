package handlers

import (
	"context"
	"net/http"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/middleware"
	"github.com/rumor-ml/commons.systems/strdash/internal/pricing"
)

// Quoter prices a stay
type Quoter interface {
	Quote(ctx context.Context, req pricing.Request) (*pricing.Quote, error)
}

// InquirySubmitter stores a booking inquiry
type InquirySubmitter interface {
	Submit(ctx context.Context, req pricing.InquiryRequest) (*domain.Inquiry, error)
}

// BookingHandler serves the public booking form
type BookingHandler struct {
	quoter    Quoter
	inquiries InquirySubmitter
}

// NewBookingHandler creates a booking handler
func NewBookingHandler(quoter Quoter, inquiries InquirySubmitter) *BookingHandler {
	return &BookingHandler{quoter: quoter, inquiries: inquiries}
}

// Pricing handles POST /api/pricing
func (h *BookingHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	var req pricing.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.quoter.Quote(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err, "failed to calculate pricing")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"pricing": quote,
	})
}

// Inquiry handles POST /api/inquiries
func (h *BookingHandler) Inquiry(w http.ResponseWriter, r *http.Request) {
	var req pricing.InquiryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inquiry, err := h.inquiries.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err, "failed to submit inquiry")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("inquiry", inquiry.ID).Str("property", inquiry.PropertyID).Msg("booking inquiry received")
	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"inquiryId": inquiry.ID,
		"inquiry":   inquiry,
	})
}
