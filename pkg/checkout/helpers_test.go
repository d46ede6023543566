package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeProvider returns one session per idempotency key, like a real
// provider honoring idempotency headers.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	keys     []string
	sessions map[string]*checkout.Session
	failNext error
	canceled []string

	sub    *checkout.ProviderSubscription
	subErr error
	// subGate, when set, blocks RetrieveSubscription until closed.
	subGate    chan struct{}
	subEntered chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]*checkout.Session)}
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, sp checkout.SessionParams, key string) (*checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.keys = append(p.keys, key)
	if err := p.failNext; err != nil {
		p.failNext = nil
		return nil, err
	}
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	n := len(p.sessions) + 1
	s := &checkout.Session{
		ID:  fmt.Sprintf("cs_%d", n),
		URL: fmt.Sprintf("https://pay.example.com/cs_%d?order=%s", n, sp.OrderID),
	}
	p.sessions[key] = s
	return s, nil
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, id string) (*checkout.ProviderSubscription, error) {
	if p.subGate != nil {
		if p.subEntered != nil {
			close(p.subEntered)
		}
		select {
		case <-p.subGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return nil, p.subErr
	}
	if p.sub == nil {
		return nil, errors.New("subscription not found")
	}
	s := *p.sub
	s.ID = id
	return &s, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, id)
	return nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testCatalog(t *testing.T) *checkout.InMemCatalog {
	t.Helper()
	c, err := checkout.NewInMemCatalog(
		checkout.Product{ID: "pro", Name: "Pro", PriceID: "price_pro", Amount: 999, Currency: "usd", Interval: "month"},
		checkout.Product{ID: "team", Name: "Team", PriceID: "price_team", Amount: 4900, Currency: "usd", Interval: "month"},
	)
	require.NoError(t, err)
	return c
}

type env struct {
	store    *checkout.MemoryStore
	provider *fakeProvider
	clock    *clock
	orch     *checkout.Orchestrator
	rec      *checkout.Reconciler
}

// t0 sits two seconds before a minute boundary so tests can cross into the
// next idempotency bucket deliberately.
var t0 = time.Date(2025, 3, 14, 12, 0, 58, 0, time.UTC)

func newEnv(t *testing.T, opts ...checkout.Option) *env {
	t.Helper()
	e := &env{
		store:    checkout.NewMemoryStore(),
		provider: newFakeProvider(),
		clock:    newClock(t0),
	}
	base := append([]checkout.Option{checkout.WithClock(e.clock.Now)}, opts...)
	e.orch = checkout.NewOrchestrator(checkout.DefaultConfig(), e.store.Stores(), testCatalog(t), e.provider, base...)
	e.rec = checkout.NewReconciler(e.store.Stores(), e.provider, base...)
	return e
}

func (e *env) checkout(t *testing.T, user, product string) *checkout.CheckoutResult {
	t.Helper()
	res, err := e.orch.CreateCheckout(context.Background(), checkout.CheckoutRequest{UserID: user, ProductID: product})
	require.NoError(t, err)
	return res
}

func tp(t time.Time) *time.Time { return &t }
