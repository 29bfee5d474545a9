// Package providers reaches the external verification services. Each
// provider serves one verification type; the ledger meters every call.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	id "verigate/pkg/domain"
)

// Result is the generic answer from any provider. Data is passed through to
// the caller unchanged.
type Result struct {
	ProviderID string              `json:"provider_id"`
	Type       id.VerificationType `json:"verification_type"`
	Data       json.RawMessage     `json:"data"`
	CheckedAt  time.Time           `json:"checked_at"`
}

// Provider is the interface every verification source implements.
type Provider interface {
	// ID returns a unique identifier for this provider instance
	ID() string

	// Type is the verification type this provider performs
	Type() id.VerificationType

	// Verify forwards payload to the provider once. No retries.
	Verify(ctx context.Context, payload json.RawMessage) (*Result, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// Registry maps each verification type to its provider. It is filled at
// startup and read-only afterwards.
type Registry struct {
	providers map[id.VerificationType]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[id.VerificationType]Provider),
	}
}

// Register adds a provider for its type.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider is required")
	}
	t := p.Type()
	if existing, exists := r.providers[t]; exists {
		return fmt.Errorf("type %s already served by provider %s", t, existing.ID())
	}
	r.providers[t] = p
	return nil
}

// Get returns the provider for t.
func (r *Registry) Get(t id.VerificationType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Types returns the registered types in lexical order.
func (r *Registry) Types() []id.VerificationType {
	result := make([]id.VerificationType, 0, len(r.providers))
	for t := range r.providers {
		result = append(result, t)
	}
	slices.Sort(result)
	return result
}

// Health checks every provider and returns the failures keyed by type.
func (r *Registry) Health(ctx context.Context) map[id.VerificationType]error {
	failures := make(map[id.VerificationType]error)
	for t, p := range r.providers {
		if err := p.Health(ctx); err != nil {
			failures[t] = err
		}
	}
	return failures
}
