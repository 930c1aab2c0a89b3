// Package worker applies payment-completed events to the monthly ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"utilibill/internal/amqp"
	"utilibill/internal/core"
)

// AggregateMarker is the single store operation the worker needs.
type AggregateMarker interface {
	MarkAggregatePaid(ctx context.Context, aggregateID int64) error
}

type PaymentWorker struct {
	store AggregateMarker
}

func NewPaymentWorker(store AggregateMarker) *PaymentWorker {
	return &PaymentWorker{store: store}
}

// HandlePaymentCompleted marks the event's aggregate as paid. The transition
// is one-way; marking an already-paid aggregate is a no-op at the store
// level, so redelivered events are harmless.
//
// Events for unknown aggregates are dropped rather than requeued: the row
// will never appear, and requeueing would loop forever.
func (w *PaymentWorker) HandlePaymentCompleted(ctx context.Context, msg *amqp.PaymentCompletedMessage) error {
	if msg.AggregateID <= 0 {
		slog.WarnContext(ctx, "Dropping payment event without aggregate id",
			"user_id", msg.UserID, "reference", msg.Reference)
		return nil
	}

	err := w.store.MarkAggregatePaid(ctx, msg.AggregateID)
	if errors.Is(err, core.ErrAggregateNotFound) {
		slog.WarnContext(ctx, "Dropping payment event for unknown aggregate",
			"aggregate_id", msg.AggregateID, "reference", msg.Reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark aggregate paid: %w", err)
	}

	slog.InfoContext(ctx, "Aggregate settled",
		"aggregate_id", msg.AggregateID,
		"user_id", msg.UserID,
		"reference", msg.Reference)
	return nil
}
