package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "verigate/pkg/domain"
)

// Sandbox answers deterministically without leaving the process. It stands
// in for the upstream API in development and tests.
//
// A payload field "simulate" set to an ErrorCategory makes the call fail
// with that category.
type Sandbox struct {
	vtype   id.VerificationType
	latency time.Duration
	clock   func() time.Time
}

func NewSandbox(t id.VerificationType, latency time.Duration) *Sandbox {
	return &Sandbox{vtype: t, latency: latency, clock: time.Now}
}

func (s *Sandbox) ID() string                { return "sandbox-" + s.vtype.String() }
func (s *Sandbox) Type() id.VerificationType { return s.vtype }

func (s *Sandbox) Verify(ctx context.Context, payload json.RawMessage) (*Result, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, NewProviderError(ErrorTimeout, s.ID(), "request timed out", ctx.Err())
		case <-timer.C:
		}
	}

	var fields map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, NewProviderError(ErrorBadData, s.ID(), "payload must be a JSON object", err)
		}
	}
	if simulate, ok := fields["simulate"].(string); ok && simulate != "" {
		return nil, NewProviderError(ErrorCategory(simulate), s.ID(), "simulated failure", nil)
	}

	sum := sha256.Sum256(append([]byte(s.vtype+":"), payload...))
	data, err := json.Marshal(map[string]any{
		"status":    "verified",
		"reference": hex.EncodeToString(sum[:8]),
		"request":   fields,
	})
	if err != nil {
		return nil, NewProviderError(ErrorInternal, s.ID(), "encode result", err)
	}
	return &Result{
		ProviderID: s.ID(),
		Type:       s.vtype,
		Data:       data,
		CheckedAt:  s.clock().UTC(),
	}, nil
}

func (s *Sandbox) Health(context.Context) error { return nil }
