// Package coordinator meters operations against the entitlement ledger:
// resolve a paying Order, run the operation, then debit that Order exactly
// once if and only if the operation succeeded.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/entitlement/metrics"
	"verigate/internal/entitlement/ports"
	"verigate/internal/entitlement/service/resolver"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/audit"
	"verigate/pkg/requestcontext"
)

const (
	defaultDebitTimeout = 5 * time.Second
	tracerName          = "verigate/entitlement/coordinator"
)

type (
	Store          = ports.OrderStore
	Recorder       = ports.ConsumptionRecorder
	AuditPublisher = ports.AuditPublisher
)

// Resolver selects the Order that pays for an operation.
type Resolver interface {
	Resolve(ctx context.Context, userID id.UserID, priority []id.VerificationType) (*resolver.Resolution, error)
}

// Operation is the metered work, typically one provider call.
type Operation func(ctx context.Context) (any, error)

// Result is a successful operation's value plus how it was paid for.
// Debited is false when the chosen Order stopped qualifying before the debit
// landed; the consumption was then handed to reconciliation.
type Result struct {
	Value   any
	OrderID id.OrderID
	Type    id.VerificationType
	Debited bool
}

type Coordinator struct {
	store          Store
	resolver       Resolver
	recorder       Recorder
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	logger         *slog.Logger
	debitTimeout   time.Duration
	clock          func() time.Time
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *Coordinator) {
		c.auditPublisher = publisher
	}
}

// WithRecorder sets where uncompensated consumptions go.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// WithDebitTimeout bounds the debit, which runs detached from the caller's
// cancellation.
func WithDebitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debitTimeout = d
		}
	}
}

// WithClock sets the clock read at debit time.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func New(store Store, resolver Resolver, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	c := &Coordinator{
		store:        store,
		resolver:     resolver,
		tracer:       otel.Tracer(tracerName),
		debitTimeout: defaultDebitTimeout,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run resolves an Order for the first type in priority that has one, invokes
// op once, and debits the resolved Order only if op succeeded.
//
// Errors:
//   - *QuotaExhaustedError (matches ErrQuotaExhausted): nothing usable, op not run
//   - *OperationFailedError: op failed, nothing charged
//   - CodeInternal: the resolve query failed, op not run
//
// A debit that loses a race after op succeeded is not an error: the Result is
// returned with Debited false and the consumption is recorded.
func (c *Coordinator) Run(ctx context.Context, userID id.UserID, priority []id.VerificationType, op Operation) (*Result, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user id is required")
	}
	if op == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "operation is required")
	}

	primary := ""
	if len(priority) > 0 {
		primary = priority[0].String()
	}
	ctx, span := c.tracer.Start(ctx, "ledger.run", trace.WithAttributes(
		attribute.String("verigate.user_id", userID.String()),
		attribute.String("verigate.primary_type", primary),
		attribute.Int("verigate.priority_len", len(priority)),
	))
	defer span.End()

	resolution, err := c.resolve(ctx, userID, priority, primary)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	order := resolution.Order
	span.SetAttributes(
		attribute.String("verigate.order_id", order.ID.String()),
		attribute.String("verigate.resolved_type", resolution.Type.String()),
	)

	value, err := c.invoke(ctx, resolution.Type, op)
	if err != nil {
		c.metrics.IncrementOperationFailures(resolution.Type.String())
		ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.Event{
			UserID:           userID,
			Action:           string(audit.EventVerificationFailed),
			OrderID:          order.ID.String(),
			VerificationType: resolution.Type.String(),
			Reason:           err.Error(),
		})
		span.SetStatus(codes.Error, "operation failed")
		return nil, &OperationFailedError{Type: resolution.Type, OrderID: order.ID, Err: err}
	}

	debited := c.debit(ctx, userID, resolution)
	return &Result{
		Value:   value,
		OrderID: order.ID,
		Type:    resolution.Type,
		Debited: debited,
	}, nil
}

func (c *Coordinator) resolve(ctx context.Context, userID id.UserID, priority []id.VerificationType, primary string) (*resolver.Resolution, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.resolve")
	defer span.End()

	start := time.Now()
	resolution, err := c.resolver.Resolve(ctx, userID, priority)
	c.metrics.ObserveResolveLatency(time.Since(start))

	switch {
	case resolver.IsNoUsableOrder(err):
		c.metrics.IncrementResolve(primary, metrics.ResolveExhausted)
		ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.Event{
			UserID:           userID,
			Action:           string(audit.EventQuotaExhausted),
			VerificationType: primary,
		})
		return nil, &QuotaExhaustedError{Types: priority}
	case err != nil:
		c.metrics.IncrementResolve(primary, metrics.ResolveError)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.metrics.IncrementResolve(primary, metrics.ResolveFound)
	return resolution, nil
}

func (c *Coordinator) invoke(ctx context.Context, t id.VerificationType, op Operation) (any, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.operation")
	defer span.End()

	start := time.Now()
	value, err := op(ctx)
	c.metrics.ObserveOperationLatency(t.String(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

// debit applies the conditional decrement for the resolved Order. It is
// detached from ctx's cancellation: the service was already delivered, so a
// client disconnect must not skip the charge.
func (c *Coordinator) debit(ctx context.Context, userID id.UserID, resolution *resolver.Resolution) bool {
	debitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.debitTimeout)
	defer cancel()
	debitCtx, span := c.tracer.Start(debitCtx, "ledger.debit")
	defer span.End()

	order := resolution.Order
	t := resolution.Type.String()

	ok, err := c.store.TryDebit(debitCtx, order.ID, c.clock())
	switch {
	case err != nil:
		c.metrics.IncrementDebit(t, metrics.DebitError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		if c.logger != nil {
			c.logger.ErrorContext(debitCtx, "debit failed after successful verification",
				"error", err,
				"user_id", userID.String(),
				"order_id", order.ID.String(),
				"verification_type", t,
			)
		}
		c.recordUncompensated(debitCtx, userID, resolution, "debit error: "+err.Error())
		return false
	case !ok:
		c.metrics.IncrementDebit(t, metrics.DebitRaceLost)
		span.SetAttributes(attribute.Bool("verigate.debit_race_lost", true))
		if c.logger != nil {
			c.logger.WarnContext(debitCtx, "debit race lost, order no longer debitable",
				"user_id", userID.String(),
				"order_id", order.ID.String(),
				"verification_type", t,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		c.recordUncompensated(debitCtx, userID, resolution, "order no longer debitable")
		return false
	}

	c.metrics.IncrementDebit(t, metrics.DebitApplied)
	event := audit.Event{
		UserID:           userID,
		Action:           string(audit.EventQuotaConsumed),
		OrderID:          order.ID.String(),
		VerificationType: t,
	}
	if current, err := c.store.FindByID(debitCtx, order.ID); err == nil {
		remaining := current.Quota.Remaining
		event.Remaining = &remaining
	}
	ports.LogAudit(debitCtx, c.logger, c.auditPublisher, event)
	return true
}

func (c *Coordinator) recordUncompensated(ctx context.Context, userID id.UserID, resolution *resolver.Resolution, reason string) {
	t := resolution.Type.String()
	c.metrics.IncrementUncompensated(t)
	ports.LogAudit(ctx, c.logger, c.auditPublisher, audit.Event{
		UserID:           userID,
		Action:           string(audit.EventUncompensatedConsumption),
		OrderID:          resolution.Order.ID.String(),
		VerificationType: t,
		Reason:           reason,
	})

	if c.recorder == nil {
		return
	}
	err := c.recorder.RecordUncompensated(ctx, ports.UncompensatedConsumption{
		UserID:           userID,
		OrderID:          resolution.Order.ID,
		VerificationType: resolution.Type,
		RequestID:        requestcontext.RequestID(ctx),
		Reason:           reason,
		OccurredAt:       c.clock(),
	})
	if err != nil && c.logger != nil {
		c.logger.ErrorContext(ctx, "failed to record uncompensated consumption",
			"error", err,
			"user_id", userID.String(),
			"order_id", resolution.Order.ID.String(),
		)
	}
}

// Metered is Run with a typed result.
func Metered[T any](ctx context.Context, c *Coordinator, userID id.UserID, priority []id.VerificationType, op func(ctx context.Context) (T, error)) (T, *Result, error) {
	var zero T
	res, err := c.Run(ctx, userID, priority, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, nil, err
	}
	value, ok := res.Value.(T)
	if !ok && res.Value != nil {
		return zero, res, dErrors.New(dErrors.CodeInternal, "unexpected operation result type")
	}
	return value, res, nil
}
