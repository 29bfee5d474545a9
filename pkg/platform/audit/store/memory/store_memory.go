// Package memory keeps audit events in process for the memory backend and tests.
package memory

import (
	"context"
	"sync"

	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
)

// InMemoryStore appends events to a single slice in arrival order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stamps the category from the action, as the postgres store does.
func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	event.Category = audit.AuditEvent(event.Action).Category()
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports how many events have been stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
