// Package ports defines the interfaces the entitlement services depend on.
//
//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks
package ports

import (
	"context"
	"log/slog"
	"time"

	"verigate/internal/entitlement/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/audit"
	"verigate/pkg/platform/middleware/metadata"
	"verigate/pkg/requestcontext"
)

// OrderStore is the durable record of Orders plus the atomic mutation
// primitives the ledger needs. Implementations must make TryDebit a single
// indivisible conditional decrement.
type OrderStore interface {
	// FindUsableOrders returns the user's Orders eligible for any of types that
	// are active, have remaining > 0 and have not expired at now, sorted by
	// soonest expiry, then earliest creation, then order id.
	FindUsableOrders(ctx context.Context, userID id.UserID, types []id.VerificationType, now time.Time) ([]*models.Order, error)

	// TryDebit decrements remaining by one if the Order is still active, has
	// remaining >= 1 and is unexpired at now. It returns false, not an error,
	// when the Order no longer qualifies or does not exist.
	TryDebit(ctx context.Context, orderID id.OrderID, now time.Time) (bool, error)

	// Grant persists a new Order. Returns sentinel.ErrConflict if the id exists.
	Grant(ctx context.Context, order *models.Order) error

	// FindByID returns sentinel.ErrNotFound if the Order does not exist.
	FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error)

	// ListActive returns every usable Order of the user in consumption order.
	ListActive(ctx context.Context, userID id.UserID, now time.Time) ([]*models.Order, error)
}

// UncompensatedConsumption records a verification that was delivered but could
// not be debited because the chosen Order stopped qualifying in between.
type UncompensatedConsumption struct {
	UserID           id.UserID
	OrderID          id.OrderID
	VerificationType id.VerificationType
	RequestID        string
	Reason           string
	OccurredAt       time.Time
}

// ConsumptionRecorder hands uncompensated consumptions to reconciliation.
type ConsumptionRecorder interface {
	RecordUncompensated(ctx context.Context, c UncompensatedConsumption) error
}

// AuditPublisher emits audit events for ledger changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event and forwards it to the publisher when one is set.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Device == "" {
		if ua := requestcontext.UserAgent(ctx); ua != "" {
			event.Device = metadata.DeviceLabel(ua)
		}
	}

	if logger != nil {
		args := []any{
			"event", event.Action,
			"log_type", "audit",
			"user_id", event.UserID.String(),
		}
		if event.OrderID != "" {
			args = append(args, "order_id", event.OrderID)
		}
		if event.VerificationType != "" {
			args = append(args, "verification_type", event.VerificationType)
		}
		if event.Remaining != nil {
			args = append(args, "remaining", *event.Remaining)
		}
		if event.Reason != "" {
			args = append(args, "reason", event.Reason)
		}
		if event.RequestID != "" {
			args = append(args, "request_id", event.RequestID)
		}
		if event.ClientIP != "" {
			args = append(args, "client_ip", event.ClientIP)
		}
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "event", event.Action)
	}
}
