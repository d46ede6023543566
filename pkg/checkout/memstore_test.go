package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

func TestMemoryStore_Orders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()

	o := &checkout.Order{ID: "o1", UserID: "u1", Status: checkout.StatusPending, ProductID: "pro", CreatedAt: t0}
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.Equal(t, int64(1), o.Version)
	assert.ErrorIs(t, s.CreateOrder(ctx, o), checkout.ErrOrderConflict)

	require.NoError(t, s.AttachSession(ctx, "o1", "cs_1", "https://pay/cs_1", t0))
	got, err := s.FindOrderBySession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/cs_1", got.CheckoutURL)
	assert.Equal(t, int64(2), got.Version)

	t.Run("stale version conflicts", func(t *testing.T) {
		stale := o.Clone()
		stale.Status = checkout.StatusActive
		assert.ErrorIs(t, s.UpdateOrder(ctx, stale), checkout.ErrOrderConflict)
	})

	t.Run("update bumps version", func(t *testing.T) {
		got.Status = checkout.StatusActive
		got.ProviderSubscriptionID = "sub_1"
		got.ExpiresAt = tp(t0.Add(time.Hour))
		require.NoError(t, s.UpdateOrder(ctx, got))
		assert.Equal(t, int64(3), got.Version)

		bySub, err := s.FindOrderBySubscription(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusActive, bySub.Status)
	})

	t.Run("lapsed orders", func(t *testing.T) {
		lapsed, err := s.ListLapsedOrders(ctx, t0.Add(30*time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, lapsed)

		lapsed, err = s.ListLapsedOrders(ctx, t0.Add(2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, lapsed, 1)
		assert.Equal(t, "o1", lapsed[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetOrder(ctx, "missing")
		assert.ErrorIs(t, err, checkout.ErrOrderNotFound)
		_, err = s.FindOrderBySubscription(ctx, "")
		assert.ErrorIs(t, err, checkout.ErrOrderNotFound)
	})
}

func TestMemoryStore_Ledger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()

	rec := checkout.IdempotencyRecord{Key: "k", UserID: "u1", OrderID: "o1", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, s.RecordIdempotency(ctx, rec))

	id, found, err := s.CheckIdempotency(ctx, "k", "u1", t0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "o1", id)

	_, found, _ = s.CheckIdempotency(ctx, "k", "u2", t0)
	assert.False(t, found, "other users never see the record")

	later := rec
	later.OrderID = "o2"
	require.NoError(t, s.RecordIdempotency(ctx, later))
	id, _, _ = s.CheckIdempotency(ctx, "k", "u1", t0)
	assert.Equal(t, "o1", id, "earlier writer wins")

	_, found, _ = s.CheckIdempotency(ctx, "k", "u1", t0.Add(time.Hour))
	assert.False(t, found, "expired at expires_at")

	n, err := s.PurgeExpiredIdempotency(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ActivePayments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()

	require.NoError(t, s.PutActivePayment(ctx, checkout.ActivePayment{
		UserID: "u1", ProductID: "pro", IdempotencyKey: "k", SessionURL: "https://pay/1",
		CreatedAt: t0, ExpiresAt: t0.Add(time.Minute),
	}))

	ap, err := s.FindActivePayment(ctx, "u1", "pro", t0.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, ap)
	assert.Equal(t, "https://pay/1", ap.SessionURL)

	ap, err = s.FindActivePayment(ctx, "u1", "pro", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, ap)

	require.NoError(t, s.RemoveActivePayment(ctx, "u1", "pro"))
	require.NoError(t, s.RemoveActivePayment(ctx, "u1", "pro"))
	ap, _ = s.FindActivePayment(ctx, "u1", "pro", t0)
	assert.Nil(t, ap)
}

func TestMemoryStore_Locks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()
	lock := func(req string, at time.Time) checkout.Lock {
		return checkout.Lock{UserID: "u1", ProductID: "pro", RequestID: req, CreatedAt: at, ExpiresAt: at.Add(10 * time.Second)}
	}

	ok, err := s.TryAcquire(ctx, lock("r1", t0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.TryAcquire(ctx, lock("r2", t0.Add(time.Second)))
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, "u1", "pro", "r2"))
	ok, _ = s.TryAcquire(ctx, lock("r2", t0.Add(time.Second)))
	assert.False(t, ok, "release by a non-holder is ignored")

	ok, _ = s.TryAcquire(ctx, lock("r2", t0.Add(10*time.Second)))
	assert.True(t, ok, "expired lock is taken over")

	require.NoError(t, s.Release(ctx, "u1", "pro", "r2"))
	ok, _ = s.TryAcquire(ctx, lock("r3", t0.Add(11*time.Second)))
	assert.True(t, ok)

	n, err := s.PurgeExpiredLocks(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_CreateOrderWithKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()
	rec := func(orderID string, at time.Time) checkout.IdempotencyRecord {
		return checkout.IdempotencyRecord{Key: "k1", UserID: "u1", OrderID: orderID, CreatedAt: at, ExpiresAt: at.Add(time.Hour)}
	}

	o1 := &checkout.Order{ID: "o1", UserID: "u1", Status: checkout.StatusPending, ProductID: "pro", CreatedAt: t0}
	require.NoError(t, s.CreateOrderWithKey(ctx, o1, rec("o1", t0)))
	assert.Equal(t, int64(1), o1.Version)

	id, ok, err := s.CheckIdempotency(ctx, "k1", "u1", t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "o1", id)

	o2 := &checkout.Order{ID: "o2", UserID: "u1", Status: checkout.StatusPending, ProductID: "pro", CreatedAt: t0}
	assert.ErrorIs(t, s.CreateOrderWithKey(ctx, o2, rec("o2", t0.Add(time.Minute))), checkout.ErrKeyTaken)
	assert.Equal(t, 1, s.OrderCount(), "nothing is written when the key is live")
	_, err = s.GetOrder(ctx, "o2")
	assert.ErrorIs(t, err, checkout.ErrOrderNotFound)

	assert.ErrorIs(t, s.CreateOrderWithKey(ctx, o1, rec("o1", t0.Add(2*time.Hour))), checkout.ErrOrderConflict)

	require.NoError(t, s.CreateOrderWithKey(ctx, o2, rec("o2", t0.Add(2*time.Hour))), "expired key is taken over")
	id, _, _ = s.CheckIdempotency(ctx, "k1", "u1", t0.Add(2*time.Hour))
	assert.Equal(t, "o2", id)
	assert.Equal(t, 2, s.OrderCount())
}

func TestMemoryStore_EventClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()
	claim := checkout.ProcessedEvent{EventID: "evt_1", EventType: "invoice_paid", ProcessedAt: t0}

	ok, err := s.ClaimEvent(ctx, claim, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.ClaimEvent(ctx, claim, t0.Add(-time.Minute))
	assert.False(t, ok, "live claim blocks a second claimer")

	processed, _ := s.IsProcessed(ctx, "evt_1")
	assert.False(t, processed, "a claim is not a recorded outcome")

	later := claim
	later.ProcessedAt = t0.Add(10 * time.Minute)
	ok, _ = s.ClaimEvent(ctx, later, t0.Add(5*time.Minute))
	assert.True(t, ok, "stale claim is taken over")

	require.NoError(t, s.ReleaseEvent(ctx, "evt_1"))
	ok, _ = s.ClaimEvent(ctx, claim, t0.Add(-time.Minute))
	assert.True(t, ok, "released claim can be claimed again")

	require.NoError(t, s.RecordEvent(ctx, checkout.ProcessedEvent{EventID: "evt_1", Outcome: checkout.OutcomeApplied, ProcessedAt: t0}))
	processed, _ = s.IsProcessed(ctx, "evt_1")
	assert.True(t, processed)

	require.NoError(t, s.ReleaseEvent(ctx, "evt_1"))
	processed, _ = s.IsProcessed(ctx, "evt_1")
	assert.True(t, processed, "release leaves recorded outcomes alone")

	ok, _ = s.ClaimEvent(ctx, claim, t0.Add(time.Hour))
	assert.False(t, ok, "recorded outcomes are never claimed")
}

func TestMemoryStore_Events(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := checkout.NewMemoryStore()

	require.NoError(t, s.RecordEvent(ctx, checkout.ProcessedEvent{EventID: "evt_1", Outcome: checkout.OutcomeApplied, ProcessedAt: t0}))
	require.NoError(t, s.RecordEvent(ctx, checkout.ProcessedEvent{EventID: "evt_1", Outcome: checkout.OutcomeIgnored, ProcessedAt: t0}))

	ok, err := s.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.IsProcessed(ctx, "evt_2")
	assert.False(t, ok)

	n, err := s.PruneEvents(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
