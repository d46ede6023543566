package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

func TestJanitor_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.provider.sub = &checkout.ProviderSubscription{CurrentPeriodEnd: tp(t0.Add(time.Hour))}
	o := activeOrder(t, e, "u1", "sub_1")
	e.checkout(t, "u2", "pro")

	j := checkout.NewJanitor(checkout.DefaultConfig(), e.store.Stores(), e.rec, checkout.WithClock(e.clock.Now))

	res, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkout.SweepResult{}, res, "nothing has expired yet")

	e.clock.Advance(48 * time.Hour)
	res, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Idempotency)
	assert.Equal(t, int64(1), res.ActivePayments, "u1's row was removed on completion")
	assert.Equal(t, 1, res.ExpiredOrders)
	assert.Zero(t, res.Events, "events are kept for the retention window")

	got, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusExpired, got.Status)

	e.clock.Advance(31 * 24 * time.Hour)
	res, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Events)
}

func TestJanitor_Run(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	j := checkout.NewJanitor(checkout.DefaultConfig(), e.store.Stores(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}

	assert.NoError(t, j.Run(context.Background(), 0), "zero interval disables the loop")
}
