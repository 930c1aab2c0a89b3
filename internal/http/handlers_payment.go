package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"utilibill/internal/amqp"
	"utilibill/internal/core"
	"utilibill/internal/payment"
)

type checkoutRequest struct {
	AggregateID int64 `json:"aggregate_id"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// handleCheckout opens a hosted payment session for one monthly aggregate.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AggregateID <= 0 {
		respondError(w, http.StatusBadRequest, "aggregate_id is required")
		return
	}

	agg, err := s.aggregates.GetAggregateByID(r.Context(), req.AggregateID)
	if errors.Is(err, core.ErrAggregateNotFound) {
		respondError(w, http.StatusNotFound, "aggregate not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Aggregate lookup failed", "error", err, "aggregate_id", req.AggregateID)
		respondError(w, http.StatusInternalServerError, "checkout failed")
		return
	}
	if agg.UserID != userID {
		respondError(w, http.StatusForbidden, "aggregate belongs to another user")
		return
	}
	if agg.PaidStatus == core.Paid {
		respondError(w, http.StatusConflict, "aggregate already paid")
		return
	}
	if agg.CostWith.Cents <= 0 {
		respondError(w, http.StatusUnprocessableEntity, "aggregate has no payable amount")
		return
	}

	session, err := s.checkout.CreateCheckout(r.Context(), payment.CheckoutRequest{
		AggregateID: agg.ID,
		UserID:      userID,
		Description: fmt.Sprintf("Utilities %d-%02d (%s)", agg.Year, agg.Month, agg.UsageUnit),
		AmountCents: agg.CostWith.Cents,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Checkout session creation failed",
			"error", err, "aggregate_id", agg.ID, "user_id", userID)
		respondError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	slog.InfoContext(r.Context(), "Checkout session created",
		"aggregate_id", agg.ID, "user_id", userID, "session_id", session.ID)
	respondJSON(w, http.StatusOK, checkoutResponse{SessionID: session.ID, URL: session.URL})
}

type paymentCompletedRequest struct {
	AggregateID int64  `json:"aggregate_id"`
	UserID      int64  `json:"user_id"`
	Reference   string `json:"reference"`
}

// handlePaymentCompleted receives the provider's completion callback and
// queues the event for the worker. The ledger update happens asynchronously,
// so this responds 202.
func (s *Server) handlePaymentCompleted(w http.ResponseWriter, r *http.Request) {
	var req paymentCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AggregateID <= 0 {
		respondError(w, http.StatusBadRequest, "aggregate_id is required")
		return
	}

	msg := amqp.NewPaymentCompletedMessage(req.AggregateID, req.UserID, req.Reference)
	if err := s.publisher.PublishPaymentCompleted(r.Context(), msg); err != nil {
		slog.ErrorContext(r.Context(), "Failed to queue payment event",
			"error", err, "aggregate_id", req.AggregateID)
		respondError(w, http.StatusServiceUnavailable, "event queue unavailable")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
