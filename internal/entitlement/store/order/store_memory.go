// Package order provides Order persistence for the entitlement ledger:
// an in-memory store for tests and single-process deployments, plus
// PostgreSQL and Redis stores for shared deployments.
package order

import (
	"context"
	"sync"
	"time"

	"verigate/internal/entitlement/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// InMemoryStore keeps Orders in a map guarded by one mutex. TryDebit runs its
// check and decrement inside a single critical section.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[id.OrderID]*models.Order
	byUser map[id.UserID][]id.OrderID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		orders: make(map[id.OrderID]*models.Order),
		byUser: make(map[id.UserID][]id.OrderID),
	}
}

func (s *InMemoryStore) FindUsableOrders(_ context.Context, userID id.UserID, types []id.VerificationType, now time.Time) ([]*models.Order, error) {
	if len(types) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, oid := range s.byUser[userID] {
		o := s.orders[oid]
		if o.IsUsableForAny(types, now) {
			out = append(out, o.Clone())
		}
	}
	models.SortForConsumption(out)
	return out, nil
}

func (s *InMemoryStore) TryDebit(_ context.Context, orderID id.OrderID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return false, nil
	}
	return o.Debit(now), nil
}

func (s *InMemoryStore) Grant(_ context.Context, order *models.Order) error {
	if order == nil {
		return sentinel.ErrInvalidState
	}
	if err := order.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return sentinel.ErrConflict
	}
	s.orders[order.ID] = order.Clone()
	s.byUser[order.UserID] = append(s.byUser[order.UserID], order.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orderID id.OrderID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *InMemoryStore) ListActive(_ context.Context, userID id.UserID, now time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, oid := range s.byUser[userID] {
		if o := s.orders[oid]; o.CanDebit(now) {
			out = append(out, o.Clone())
		}
	}
	models.SortForConsumption(out)
	return out, nil
}
