// Package resolver picks the Order that should pay for a verification.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"verigate/internal/entitlement/models"
	"verigate/internal/entitlement/ports"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
	"verigate/pkg/requestcontext"
)

type Store = ports.OrderStore

// ErrNoUsableOrder means no listed type has a usable Order for the user.
var ErrNoUsableOrder = fmt.Errorf("no usable order: %w", sentinel.ErrNotFound)

// Resolution is the Order chosen to pay and the type it was chosen for.
type Resolution struct {
	Order *models.Order
	Type  id.VerificationType
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

// Resolve walks priority in caller order and returns the soonest-expiring
// usable Order of the first type that has one. Later types are not queried
// once a match is found. It never debits.
//
// Errors: ErrNoUsableOrder when nothing matches (including an empty
// priority list), CodeInternal when the store fails.
func (s *Service) Resolve(ctx context.Context, userID id.UserID, priority []id.VerificationType) (*Resolution, error) {
	if len(priority) == 0 {
		return nil, ErrNoUsableOrder
	}
	now := requestcontext.Now(ctx)

	for _, t := range priority {
		orders, err := s.store.FindUsableOrders(ctx, userID, []id.VerificationType{t}, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find usable orders")
		}
		if len(orders) > 0 {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "order resolved",
					"user_id", userID.String(),
					"order_id", orders[0].ID.String(),
					"verification_type", t.String(),
					"remaining", orders[0].Quota.Remaining,
				)
			}
			return &Resolution{Order: orders[0], Type: t}, nil
		}
	}
	return nil, ErrNoUsableOrder
}

// IsNoUsableOrder reports whether err is the resolver's not-found outcome.
func IsNoUsableOrder(err error) bool {
	return errors.Is(err, ErrNoUsableOrder)
}
