// Package reconcile records verifications that were delivered without a
// matching debit so billing can settle them out of band.
package reconcile

import (
	"context"
	"slices"
	"sync"

	"verigate/internal/entitlement/ports"
)

// MemoryRecorder keeps uncompensated consumptions in process. It backs tests
// and deployments without a Kafka cluster.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []ports.UncompensatedConsumption
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) RecordUncompensated(_ context.Context, c ports.UncompensatedConsumption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, c)
	return nil
}

// List returns a snapshot of everything recorded so far.
func (r *MemoryRecorder) List() []ports.UncompensatedConsumption {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}
