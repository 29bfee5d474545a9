package worker

import (
	"context"
	"log/slog"

	audit "verigate/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists events until the inbox is closed. A failed append is logged
// and skipped so one bad event cannot stall the queue.
func (w *Worker) Run(ctx context.Context) {
	for event := range w.inbox {
		if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
			w.logger.ErrorContext(ctx, "failed to persist audit event",
				"error", err,
				"action", event.Action,
				"order_id", event.OrderID,
			)
		}
	}
}
