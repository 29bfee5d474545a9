package order

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/entitlement/models"
	"verigate/internal/entitlement/ports"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

var (
	typePAN     = id.VerificationType("pan")
	typeCompany = id.VerificationType("company")
	typeAadhaar = id.VerificationType("aadhaar")

	// Microsecond-aligned so every backend round-trips it exactly.
	baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

type orderSpec struct {
	user      id.UserID
	types     []id.VerificationType
	remaining int
	total     int
	createdAt time.Time
	expiresAt time.Time
	status    models.OrderStatus
}

func makeOrder(spec orderSpec) *models.Order {
	if spec.total == 0 {
		spec.total = spec.remaining
		if spec.total == 0 {
			spec.total = 1
		}
	}
	if spec.createdAt.IsZero() {
		spec.createdAt = baseTime.Add(-time.Hour)
	}
	if spec.expiresAt.IsZero() {
		spec.expiresAt = baseTime.Add(24 * time.Hour)
	}
	if spec.status == "" {
		spec.status = models.OrderStatusActive
	}
	return &models.Order{
		ID:     id.NewOrderID(),
		UserID: spec.user,
		Status: spec.status,
		Quota: models.VerificationQuota{
			EligibleTypes: spec.types,
			TotalGranted:  spec.total,
			Used:          spec.total - spec.remaining,
			Remaining:     spec.remaining,
			ExpiresAt:     spec.expiresAt,
		},
		CreatedAt: spec.createdAt,
	}
}

func orderIDs(orders []*models.Order) []id.OrderID {
	out := make([]id.OrderID, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

// runOrderStoreContract exercises the behaviour every OrderStore backend must
// share. newStore must return an empty store.
func runOrderStoreContract(t *testing.T, newStore func(t *testing.T) ports.OrderStore) {
	ctx := context.Background()

	t.Run("grant then find by id round-trips", func(t *testing.T) {
		store := newStore(t)
		o := makeOrder(orderSpec{user: id.UserID(uuid.New()), types: []id.VerificationType{typePAN, typeCompany}, remaining: 3, total: 5})
		require.NoError(t, store.Grant(ctx, o))

		got, err := store.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, o.UserID, got.UserID)
		assert.Equal(t, []id.VerificationType{typePAN, typeCompany}, got.Quota.EligibleTypes)
		assert.Equal(t, 3, got.Quota.Remaining)
		assert.Equal(t, 2, got.Quota.Used)
		assert.Equal(t, 5, got.Quota.TotalGranted)
		assert.True(t, o.Quota.ExpiresAt.Equal(got.Quota.ExpiresAt))
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("duplicate grant conflicts", func(t *testing.T) {
		store := newStore(t)
		o := makeOrder(orderSpec{user: id.UserID(uuid.New()), types: []id.VerificationType{typePAN}, remaining: 1})
		require.NoError(t, store.Grant(ctx, o))
		assert.ErrorIs(t, store.Grant(ctx, o), sentinel.ErrConflict)
	})

	t.Run("grant rejects invalid orders", func(t *testing.T) {
		store := newStore(t)
		o := makeOrder(orderSpec{user: id.UserID(uuid.New()), remaining: 1})
		assert.Error(t, store.Grant(ctx, o), "no eligible types")
	})

	t.Run("find by id of unknown order", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindByID(ctx, id.NewOrderID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("find usable filters by type, balance, expiry, status and owner", func(t *testing.T) {
		store := newStore(t)
		user := id.UserID(uuid.New())
		usable := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 2})
		otherType := makeOrder(orderSpec{user: user, types: []id.VerificationType{typeAadhaar}, remaining: 2})
		empty := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 0, total: 4})
		expired := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 2, createdAt: baseTime.Add(-48 * time.Hour), expiresAt: baseTime})
		cancelled := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 2, status: models.OrderStatusCancelled})
		foreign := makeOrder(orderSpec{user: id.UserID(uuid.New()), types: []id.VerificationType{typePAN}, remaining: 2})
		for _, o := range []*models.Order{usable, otherType, empty, expired, cancelled, foreign} {
			require.NoError(t, store.Grant(ctx, o))
		}

		got, err := store.FindUsableOrders(ctx, user, []id.VerificationType{typePAN}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, []id.OrderID{usable.ID}, orderIDs(got))
	})

	t.Run("find usable with no types returns nothing", func(t *testing.T) {
		store := newStore(t)
		user := id.UserID(uuid.New())
		require.NoError(t, store.Grant(ctx, makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1})))

		got, err := store.FindUsableOrders(ctx, user, nil, baseTime)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("find usable sorts by expiry, then creation, then id", func(t *testing.T) {
		store := newStore(t)
		user := id.UserID(uuid.New())
		later := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(72 * time.Hour)})
		sooner := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(48 * time.Hour), createdAt: baseTime.Add(-time.Minute)})
		soonerOlder := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(48 * time.Hour), createdAt: baseTime.Add(-2 * time.Hour)})
		tieA := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(96 * time.Hour)})
		tieB := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(96 * time.Hour)})
		for _, o := range []*models.Order{tieB, later, sooner, tieA, soonerOlder} {
			require.NoError(t, store.Grant(ctx, o))
		}

		first, second := tieA, tieB
		if models.ConsumptionLess(tieB, tieA) {
			first, second = tieB, tieA
		}

		got, err := store.FindUsableOrders(ctx, user, []id.VerificationType{typePAN}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, []id.OrderID{soonerOlder.ID, sooner.ID, later.ID, first.ID, second.ID}, orderIDs(got))
	})

	t.Run("try debit decrements and tracks used", func(t *testing.T) {
		store := newStore(t)
		o := makeOrder(orderSpec{user: id.UserID(uuid.New()), types: []id.VerificationType{typePAN}, remaining: 2})
		require.NoError(t, store.Grant(ctx, o))

		ok, err := store.TryDebit(ctx, o.ID, baseTime)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Quota.Remaining)
		assert.Equal(t, 1, got.Quota.Used)
	})

	t.Run("try debit refuses exhausted, expired, cancelled and unknown orders", func(t *testing.T) {
		store := newStore(t)
		user := id.UserID(uuid.New())
		empty := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 0, total: 1})
		expiring := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime})
		cancelled := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, status: models.OrderStatusCancelled})
		for _, o := range []*models.Order{empty, expiring, cancelled} {
			require.NoError(t, store.Grant(ctx, o))
		}

		for name, oid := range map[string]id.OrderID{
			"exhausted":         empty.ID,
			"expiry equals now": expiring.ID,
			"cancelled":         cancelled.ID,
			"unknown order":     id.NewOrderID(),
		} {
			ok, err := store.TryDebit(ctx, oid, baseTime)
			require.NoError(t, err, name)
			assert.False(t, ok, name)
		}

		got, err := store.FindByID(ctx, expiring.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Quota.Remaining, "refused debit must not mutate")
	})

	t.Run("concurrent debits never overspend", func(t *testing.T) {
		store := newStore(t)
		const granted, attempts = 10, 40
		o := makeOrder(orderSpec{user: id.UserID(uuid.New()), types: []id.VerificationType{typePAN}, remaining: granted})
		require.NoError(t, store.Grant(ctx, o))

		var successes atomic.Int64
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.TryDebit(ctx, o.ID, baseTime)
				assert.NoError(t, err)
				if ok {
					successes.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(granted), successes.Load())
		got, err := store.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Quota.Remaining)
		assert.Equal(t, granted, got.Quota.Used)
	})

	t.Run("list active returns usable orders of every type", func(t *testing.T) {
		store := newStore(t)
		user := id.UserID(uuid.New())
		pan := makeOrder(orderSpec{user: user, types: []id.VerificationType{typePAN}, remaining: 1, expiresAt: baseTime.Add(48 * time.Hour)})
		company := makeOrder(orderSpec{user: user, types: []id.VerificationType{typeCompany}, remaining: 3, expiresAt: baseTime.Add(24 * time.Hour)})
		spent := makeOrder(orderSpec{user: user, types: []id.VerificationType{typeCompany}, remaining: 0, total: 3})
		for _, o := range []*models.Order{pan, company, spent} {
			require.NoError(t, store.Grant(ctx, o))
		}

		got, err := store.ListActive(ctx, user, baseTime)
		require.NoError(t, err)
		assert.Equal(t, []id.OrderID{company.ID, pan.ID}, orderIDs(got))
	})
}
