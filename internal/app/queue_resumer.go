package app

import (
	"context"
	"errors"

	"github.com/paymentflow/core/domain/queue"
	"github.com/paymentflow/core/domain/saga"
	"github.com/paymentflow/core/infrastructure/logging"
)

// QueueSagaResumer implements queue.CompletionSink: when an offline-queued
// account op finally lands, it redrives the saga the op belongs to so a step
// suspended on ErrSuspended doesn't have to wait for the next redrive tick.
type QueueSagaResumer struct {
	Orchestrator *saga.Orchestrator
	Logger       *logging.Logger
}

func (r *QueueSagaResumer) QueuedMessageCompleted(ctx context.Context, m queue.Message) error {
	paymentID, _ := m.Payload["payment_id"].(string)
	if paymentID == "" {
		return nil
	}
	_, err := r.Orchestrator.Run(ctx, paymentID)
	if err != nil && !errors.Is(err, saga.ErrLeaseHeld) {
		if r.Logger != nil {
			r.Logger.WithSagaID(paymentID).WithError(err).Warn("app: queue-triggered resume failed")
		}
		return err
	}
	return nil
}
