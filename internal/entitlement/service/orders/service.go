// Package orders is the write and listing side of the ledger used by the
// purchase flow and the entitlement summary.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"verigate/internal/entitlement/models"
	"verigate/internal/entitlement/ports"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/audit"
	"verigate/pkg/platform/sentinel"
	strs "verigate/pkg/platform/strings"
	"verigate/pkg/requestcontext"
)

type (
	Store          = ports.OrderStore
	AuditPublisher = ports.AuditPublisher
)

type Service struct {
	store          Store
	auditPublisher AuditPublisher
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GrantRequest is what the purchase flow hands over once payment completed.
type GrantRequest struct {
	UserID        id.UserID
	EligibleTypes []id.VerificationType
	Count         int
	ValidityDays  int
}

// Grant creates an active Order starting at the request time.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*models.Order, error) {
	order, err := models.NewOrderForDays(req.UserID, req.EligibleTypes, req.Count, req.ValidityDays, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Grant(ctx, order); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "order already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant order")
	}

	remaining := order.Quota.Remaining
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:           order.UserID,
		Action:           string(audit.EventOrderGranted),
		OrderID:          order.ID.String(),
		VerificationType: strs.Join(order.Quota.EligibleTypes, ","),
		Remaining:        &remaining,
	})
	return order, nil
}

// ListActive returns the user's usable Orders in consumption order.
func (s *Service) ListActive(ctx context.Context, userID id.UserID) ([]*models.Order, error) {
	orders, err := s.store.ListActive(ctx, userID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active orders")
	}
	return orders, nil
}

// Summary aggregates the user's usable quota per verification type.
func (s *Service) Summary(ctx context.Context, userID id.UserID) ([]models.TypeSummary, error) {
	orders, err := s.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.Summarize(orders, requestcontext.Now(ctx)), nil
}
