package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/checkout/pgstore"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

func setup(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("PG_CONN_URL")
	if dsn == "" {
		t.Skip("PG_CONN_URL not set")
	}
	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: dsn,
		MaxOpenConns:     4,
		RetryAttempts:    1,
		MigrationsTable:  "checkout_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Noop()))
	return pgstore.New(pool)
}

func newOrder(user string, at time.Time) *checkout.Order {
	return &checkout.Order{
		ID:        uuid.NewString(),
		UserID:    user,
		Status:    checkout.StatusPending,
		Plan:      checkout.PlanID("pro", 999, "USD"),
		ProductID: "pro",
		Amount:    999,
		Currency:  "USD",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestStore_Orders(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := uuid.NewString()

	o := newOrder(user, now)
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.Equal(t, int64(1), o.Version)
	assert.ErrorIs(t, s.CreateOrder(ctx, o), checkout.ErrOrderConflict)

	session := "cs_" + uuid.NewString()
	require.NoError(t, s.AttachSession(ctx, o.ID, session, "https://pay/x", now))
	assert.ErrorIs(t, s.AttachSession(ctx, "missing", session, "", now), checkout.ErrOrderNotFound)

	got, err := s.FindOrderBySession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, int64(2), got.Version)
	assert.Empty(t, got.ProviderSubscriptionID)
	assert.Nil(t, got.ExpiresAt)

	assert.ErrorIs(t, s.UpdateOrder(ctx, o), checkout.ErrOrderConflict, "stale version")

	sub := "sub_" + uuid.NewString()
	exp := now.Add(-time.Minute)
	got.Status = checkout.StatusActive
	got.ProviderSubscriptionID = sub
	got.ExpiresAt = &exp
	require.NoError(t, s.UpdateOrder(ctx, got))
	assert.Equal(t, int64(3), got.Version)

	bySub, err := s.FindOrderBySubscription(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusActive, bySub.Status)
	require.NotNil(t, bySub.ExpiresAt)
	assert.True(t, exp.Equal(*bySub.ExpiresAt))

	lapsed, err := s.ListLapsedOrders(ctx, now, 1000)
	require.NoError(t, err)
	var ids []string
	for _, l := range lapsed {
		ids = append(ids, l.ID)
	}
	assert.Contains(t, ids, o.ID)

	missing := newOrder(user, now)
	assert.ErrorIs(t, s.UpdateOrder(ctx, missing), checkout.ErrOrderNotFound)
	_, err = s.GetOrder(ctx, missing.ID)
	assert.ErrorIs(t, err, checkout.ErrOrderNotFound)
}

func TestStore_Ledger(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := uuid.NewString()

	first := newOrder(user, now)
	second := newOrder(user, now)
	require.NoError(t, s.CreateOrder(ctx, first))
	require.NoError(t, s.CreateOrder(ctx, second))

	key := uuid.NewString()
	rec := checkout.IdempotencyRecord{Key: key, UserID: user, OrderID: first.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.RecordIdempotency(ctx, rec))
	rec.OrderID = second.ID
	require.NoError(t, s.RecordIdempotency(ctx, rec))

	id, found, err := s.CheckIdempotency(ctx, key, user, now)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first.ID, id, "earlier writer wins")

	_, found, err = s.CheckIdempotency(ctx, key, "someone-else", now)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.CheckIdempotency(ctx, key, user, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ActivePayments(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := uuid.NewString()

	ap := checkout.ActivePayment{UserID: user, ProductID: "pro", IdempotencyKey: "k1", SessionURL: "https://pay/1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.PutActivePayment(ctx, ap))
	ap.IdempotencyKey = "k2"
	require.NoError(t, s.PutActivePayment(ctx, ap))

	got, err := s.FindActivePayment(ctx, user, "pro", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k2", got.IdempotencyKey)

	got, err = s.FindActivePayment(ctx, user, "pro", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.RemoveActivePayment(ctx, user, "pro"))
	require.NoError(t, s.RemoveActivePayment(ctx, user, "pro"))
}

func TestStore_Locks(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := uuid.NewString()
	lock := func(req string, at time.Time) checkout.Lock {
		return checkout.Lock{UserID: user, ProductID: "pro", RequestID: req, CreatedAt: at, ExpiresAt: at.Add(10 * time.Second)}
	}

	ok, err := s.TryAcquire(ctx, lock("r1", now))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquire(ctx, lock("r2", now.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, user, "pro", "r2"))
	ok, _ = s.TryAcquire(ctx, lock("r2", now.Add(time.Second)))
	assert.False(t, ok, "only the holder releases")

	ok, _ = s.TryAcquire(ctx, lock("r2", now.Add(11*time.Second)))
	assert.True(t, ok, "expired lock is taken over")

	require.NoError(t, s.Release(ctx, user, "pro", "r2"))
	ok, _ = s.TryAcquire(ctx, lock("r3", now.Add(12*time.Second)))
	assert.True(t, ok)
	require.NoError(t, s.Release(ctx, user, "pro", "r3"))
}

func TestStore_Events(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	id := "evt_" + uuid.NewString()

	ok, err := s.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	e := checkout.ProcessedEvent{EventID: id, EventType: "invoice_paid", Outcome: checkout.OutcomeUnresolved, ProcessedAt: now}
	require.NoError(t, s.RecordEvent(ctx, e))
	require.NoError(t, s.RecordEvent(ctx, e))

	ok, err = s.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_EventClaims(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := "evt_" + uuid.NewString()
	claim := checkout.ProcessedEvent{EventID: id, EventType: "invoice_paid", ProcessedAt: now}

	ok, err := s.ClaimEvent(ctx, claim, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimEvent(ctx, claim, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live claim blocks a second claimer")

	processed, err := s.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.False(t, processed)

	later := claim
	later.ProcessedAt = now.Add(10 * time.Minute)
	ok, err = s.ClaimEvent(ctx, later, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "stale claim is taken over")

	require.NoError(t, s.ReleaseEvent(ctx, id))
	ok, err = s.ClaimEvent(ctx, claim, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be claimed again")

	require.NoError(t, s.RecordEvent(ctx, checkout.ProcessedEvent{EventID: id, EventType: "invoice_paid", Outcome: checkout.OutcomeApplied, ProcessedAt: now}))
	processed, err = s.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, s.ReleaseEvent(ctx, id))
	ok, err = s.ClaimEvent(ctx, claim, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "recorded outcomes are never claimed")
}

func TestStore_CreateOrderWithKey(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := uuid.NewString()
	key := "k_" + uuid.NewString()
	rec := func(o *checkout.Order, at time.Time) checkout.IdempotencyRecord {
		return checkout.IdempotencyRecord{Key: key, UserID: user, OrderID: o.ID, CreatedAt: at, ExpiresAt: at.Add(time.Hour)}
	}

	first := newOrder(user, now)
	require.NoError(t, s.CreateOrderWithKey(ctx, first, rec(first, now)))
	assert.Equal(t, int64(1), first.Version)

	id, found, err := s.CheckIdempotency(ctx, key, user, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.ID, id)

	second := newOrder(user, now)
	assert.ErrorIs(t, s.CreateOrderWithKey(ctx, second, rec(second, now.Add(time.Minute))), checkout.ErrKeyTaken)
	_, err = s.GetOrder(ctx, second.ID)
	assert.ErrorIs(t, err, checkout.ErrOrderNotFound, "order insert is rolled back with the key")

	assert.ErrorIs(t, s.CreateOrderWithKey(ctx, first, rec(first, now.Add(2*time.Hour))), checkout.ErrOrderConflict)

	require.NoError(t, s.CreateOrderWithKey(ctx, second, rec(second, now.Add(2*time.Hour))), "expired key is taken over")
	id, _, err = s.CheckIdempotency(ctx, key, user, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
}

func TestStore_Orchestrator(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	catalog, err := checkout.NewInMemCatalog(checkout.Product{ID: "pro", Name: "Pro", PriceID: "price_1", Amount: 999, Currency: "USD"})
	require.NoError(t, err)

	orch := checkout.NewOrchestrator(checkout.DefaultConfig(), s.Stores(), catalog, staticProvider{})
	user := uuid.NewString()

	first, err := orch.CreateCheckout(ctx, checkout.CheckoutRequest{UserID: user, ProductID: "pro", IdempotencyKey: "k"})
	require.NoError(t, err)
	again, err := orch.CreateCheckout(ctx, checkout.CheckoutRequest{UserID: user, ProductID: "pro", IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, again.OrderID)
	assert.True(t, again.Replayed)
}

type staticProvider struct{}

func (staticProvider) CreateCheckoutSession(_ context.Context, sp checkout.SessionParams, _ string) (*checkout.Session, error) {
	return &checkout.Session{ID: "cs_" + sp.OrderID, URL: "https://pay.example.com/" + sp.OrderID}, nil
}

func (staticProvider) RetrieveSubscription(context.Context, string) (*checkout.ProviderSubscription, error) {
	return &checkout.ProviderSubscription{}, nil
}

func (staticProvider) CancelSubscription(context.Context, string) error { return nil }
