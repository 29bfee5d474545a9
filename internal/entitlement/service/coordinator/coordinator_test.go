package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"verigate/internal/entitlement/metrics"
	"verigate/internal/entitlement/models"
	"verigate/internal/entitlement/ports"
	"verigate/internal/entitlement/ports/mocks"
	"verigate/internal/entitlement/reconcile"
	"verigate/internal/entitlement/service/resolver"
	orderstore "verigate/internal/entitlement/store/order"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/audit"
	"verigate/pkg/requestcontext"
)

// =============================================================================
// Consumption Coordinator Test Suite
// =============================================================================
// Justification for unit tests: charging happens strictly after a successful
// operation, exactly once, and never below zero. Races between concurrent
// requests and caller cancellation are only reproducible deterministically at
// this level.

var (
	typePAN     = id.VerificationType("pan")
	typeCompany = id.VerificationType("company")
)

type CoordinatorSuite struct {
	suite.Suite
	store    *orderstore.InMemoryStore
	recorder *reconcile.MemoryRecorder
	metrics  *metrics.Metrics
	coord    *Coordinator
	now      time.Time
	ctx      context.Context
	userID   id.UserID
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.userID = id.UserID(uuid.New())
	s.store = orderstore.NewInMemory()
	s.recorder = reconcile.NewMemoryRecorder()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.coord = s.newCoordinator(s.store)
}

func (s *CoordinatorSuite) newCoordinator(store Store, opts ...Option) *Coordinator {
	res, err := resolver.New(store)
	s.Require().NoError(err)
	base := []Option{
		WithRecorder(s.recorder),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	}
	c, err := New(store, res, append(base, opts...)...)
	s.Require().NoError(err)
	return c
}

func (s *CoordinatorSuite) grant(types []id.VerificationType, remaining int) *models.Order {
	o, err := models.NewOrder(s.userID, types, remaining, 48*time.Hour, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Grant(context.Background(), o))
	return o
}

func (s *CoordinatorSuite) remaining(orderID id.OrderID) int {
	o, err := s.store.FindByID(context.Background(), orderID)
	s.Require().NoError(err)
	return o.Quota.Remaining
}

func succeed(value any) Operation {
	return func(context.Context) (any, error) { return value, nil }
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *CoordinatorSuite) TestNew() {
	res, err := resolver.New(s.store)
	s.Require().NoError(err)

	_, err = New(nil, res)
	s.ErrorContains(err, "order store is required")

	_, err = New(s.store, nil)
	s.ErrorContains(err, "resolver is required")
}

func (s *CoordinatorSuite) TestRun_RejectsMissingInputs() {
	_, err := s.coord.Run(s.ctx, id.UserID{}, []id.VerificationType{typePAN}, succeed("x"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Happy Path
// =============================================================================

func (s *CoordinatorSuite) TestRun_DebitsOnceAfterSuccess() {
	order := s.grant([]id.VerificationType{typePAN}, 2)
	var calls atomic.Int32

	res, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
		calls.Add(1)
		s.Equal(2, s.remaining(order.ID), "no debit before the operation completes")
		return "verified", nil
	})

	s.Require().NoError(err)
	s.Equal("verified", res.Value)
	s.Equal(order.ID, res.OrderID)
	s.Equal(typePAN, res.Type)
	s.True(res.Debited)
	s.Equal(int32(1), calls.Load())
	s.Equal(1, s.remaining(order.ID))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.DebitOutcome.WithLabelValues("pan", metrics.DebitApplied)))
}

func (s *CoordinatorSuite) TestRun_FallbackChargesResolvedType() {
	pan := s.grant([]id.VerificationType{typePAN}, 1)

	res, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typeCompany, typePAN}, succeed("ok"))

	s.Require().NoError(err)
	s.Equal(pan.ID, res.OrderID)
	s.Equal(typePAN, res.Type)
	s.Equal(0, s.remaining(pan.ID))
}

func (s *CoordinatorSuite) TestRun_AuditsConsumptionWithRemaining() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	coord := s.newCoordinator(s.store, WithAuditPublisher(auditor))
	order := s.grant([]id.VerificationType{typePAN}, 3)

	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventQuotaConsumed), e.Action)
		s.Equal(order.ID.String(), e.OrderID)
		s.Require().NotNil(e.Remaining)
		s.Equal(2, *e.Remaining)
		return nil
	})

	_, err := coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, succeed("ok"))
	s.Require().NoError(err)
}

// =============================================================================
// No Charge Without Service
// =============================================================================

func (s *CoordinatorSuite) TestRun_OperationFailureLeavesBalance() {
	order := s.grant([]id.VerificationType{typePAN}, 2)
	providerErr := errors.New("provider timeout")

	for range 5 {
		_, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
			return nil, providerErr
		})

		s.Require().Error(err)
		s.ErrorIs(err, providerErr)
		s.False(IsQuotaExhausted(err))
		opErr, ok := AsOperationFailed(err)
		s.Require().True(ok)
		s.Equal(order.ID, opErr.OrderID)
	}

	s.Equal(2, s.remaining(order.ID))
	s.Equal(5.0, promtestutil.ToFloat64(s.metrics.OperationFailures.WithLabelValues("pan")))
}

// =============================================================================
// Quota Exhaustion
// =============================================================================

func (s *CoordinatorSuite) TestRun_QuotaExhausted() {
	s.Run("zero remaining never invokes the operation", func() {
		s.SetupTest()
		spent := s.grant([]id.VerificationType{typePAN}, 1)
		_, err := s.store.TryDebit(context.Background(), spent.ID, s.now)
		s.Require().NoError(err)

		invoked := false
		_, err = s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
			invoked = true
			return nil, nil
		})

		s.ErrorIs(err, ErrQuotaExhausted)
		s.False(invoked)
		s.Equal(0, s.remaining(spent.ID))
	})

	s.Run("message names primary and fallbacks", func() {
		s.SetupTest()
		_, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typeCompany, typePAN, "gst"}, succeed("x"))

		var exhausted *QuotaExhaustedError
		s.Require().ErrorAs(err, &exhausted)
		s.Equal("Verification quota exhausted or expired for company or pan, gst", err.Error())
	})

	s.Run("empty priority list", func() {
		s.SetupTest()
		_, err := s.coord.Run(s.ctx, s.userID, nil, succeed("x"))
		s.ErrorIs(err, ErrQuotaExhausted)
	})

	s.Run("resolve failure is not exhaustion", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockOrderStore(ctrl)
		store.EXPECT().FindUsableOrders(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection refused"))
		coord := s.newCoordinator(store)

		_, err := coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, succeed("x"))
		s.Require().Error(err)
		s.False(IsQuotaExhausted(err))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Lost Debit Races
// =============================================================================

func (s *CoordinatorSuite) TestRun_DebitRaceLost() {
	s.Run("concurrent spend of the last unit", func() {
		s.SetupTest()
		order := s.grant([]id.VerificationType{typePAN}, 1)

		res, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, func(ctx context.Context) (any, error) {
			// Another request takes the last unit while this one is in flight.
			ok, err := s.store.TryDebit(ctx, order.ID, s.now)
			s.Require().NoError(err)
			s.Require().True(ok)
			return "delivered", nil
		})

		s.Require().NoError(err, "the user still receives the result")
		s.Equal("delivered", res.Value)
		s.False(res.Debited)
		s.Equal(0, s.remaining(order.ID))

		records := s.recorder.List()
		s.Require().Len(records, 1)
		s.Equal(order.ID, records[0].OrderID)
		s.Equal(typePAN, records[0].VerificationType)
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.UncompensatedConsumptions.WithLabelValues("pan")))
	})

	s.Run("order expires during the operation", func() {
		s.SetupTest()
		order := s.grant([]id.VerificationType{typePAN}, 3)
		coord := s.newCoordinator(s.store, WithClock(func() time.Time { return order.Quota.ExpiresAt }))

		res, err := coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, succeed("late"))

		s.Require().NoError(err)
		s.False(res.Debited)
		s.Equal(3, s.remaining(order.ID), "expired orders are never debited")
		s.Len(s.recorder.List(), 1)
	})

	s.Run("store error during debit is recorded, not surfaced", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockOrderStore(ctrl)
		recorder := mocks.NewMockConsumptionRecorder(ctrl)
		order := &models.Order{ID: id.NewOrderID(), UserID: s.userID}

		gomock.InOrder(
			store.EXPECT().FindUsableOrders(gomock.Any(), s.userID, []id.VerificationType{typePAN}, s.now).
				Return([]*models.Order{order}, nil),
			store.EXPECT().TryDebit(gomock.Any(), order.ID, s.now).
				Return(false, errors.New("i/o timeout")),
		)
		recorder.EXPECT().RecordUncompensated(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c ports.UncompensatedConsumption) error {
				s.Equal(order.ID, c.OrderID)
				s.Contains(c.Reason, "i/o timeout")
				return nil
			})
		coord := s.newCoordinator(store, WithRecorder(recorder))

		res, err := coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, succeed("ok"))

		s.Require().NoError(err)
		s.False(res.Debited)
	})
}

// =============================================================================
// Cancellation
// =============================================================================

func (s *CoordinatorSuite) TestRun_DebitSurvivesCallerCancellation() {
	order := s.grant([]id.VerificationType{typePAN}, 2)
	ctx, cancel := context.WithCancel(s.ctx)

	res, err := s.coord.Run(ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
		cancel() // client disconnects after the provider answered
		return "done", nil
	})

	s.Require().NoError(err)
	s.True(res.Debited)
	s.Equal(1, s.remaining(order.ID))
}

func (s *CoordinatorSuite) TestRun_DebitUsesBoundedDetachedContext() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockOrderStore(ctrl)
	order := &models.Order{ID: id.NewOrderID(), UserID: s.userID}
	ctx, cancel := context.WithCancel(s.ctx)

	store.EXPECT().FindUsableOrders(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Order{order}, nil)
	store.EXPECT().TryDebit(gomock.Any(), order.ID, gomock.Any()).DoAndReturn(
		func(debitCtx context.Context, _ id.OrderID, _ time.Time) (bool, error) {
			s.NoError(debitCtx.Err(), "caller cancellation must not reach the debit")
			deadline, ok := debitCtx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(250*time.Millisecond), deadline, 200*time.Millisecond)
			return true, nil
		})
	store.EXPECT().FindByID(gomock.Any(), order.ID).Return(order, nil)
	coord := s.newCoordinator(store, WithDebitTimeout(250*time.Millisecond))

	_, err := coord.Run(ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
		cancel()
		return "done", nil
	})
	s.Require().NoError(err)
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *CoordinatorSuite) TestRun_ConcurrentRunsNeverOverspend() {
	const granted, extra = 5, 15
	order := s.grant([]id.VerificationType{typePAN}, granted)

	var debited, undebited, exhausted atomic.Int32
	var g errgroup.Group
	for range granted + extra {
		g.Go(func() error {
			res, err := s.coord.Run(s.ctx, s.userID, []id.VerificationType{typePAN}, func(context.Context) (any, error) {
				time.Sleep(time.Millisecond)
				return "ok", nil
			})
			switch {
			case IsQuotaExhausted(err):
				exhausted.Add(1)
			case err != nil:
				return err
			case res.Debited:
				debited.Add(1)
			default:
				undebited.Add(1)
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(granted), debited.Load(), "exactly the granted units are charged")
	s.Equal(int32(granted+extra), debited.Load()+undebited.Load()+exhausted.Load())
	s.Equal(0, s.remaining(order.ID))
	s.Len(s.recorder.List(), int(undebited.Load()), "every undebited delivery is reconciled")
}

// =============================================================================
// Typed Helper
// =============================================================================

type panResult struct {
	Name string
}

func (s *CoordinatorSuite) TestMetered() {
	s.grant([]id.VerificationType{typePAN}, 1)

	got, res, err := Metered(s.ctx, s.coord, s.userID, []id.VerificationType{typePAN},
		func(context.Context) (panResult, error) {
			return panResult{Name: "A. Kumar"}, nil
		})

	s.Require().NoError(err)
	s.Equal("A. Kumar", got.Name)
	s.True(res.Debited)

	_, _, err = Metered(s.ctx, s.coord, s.userID, []id.VerificationType{typePAN},
		func(context.Context) (panResult, error) {
			return panResult{}, nil
		})
	s.ErrorIs(err, ErrQuotaExhausted)
}
