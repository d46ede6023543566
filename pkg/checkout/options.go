package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// ActivationHook runs after an order moves into active from another state.
// Errors are logged and never fail the webhook.
type ActivationHook func(ctx context.Context, o *Order) error

// Option configures an Orchestrator, Reconciler or Janitor.
type Option func(*options)

type options struct {
	log          *slog.Logger
	now          func() time.Time
	newID        func() string
	onActivate   []ActivationHook
	maxAttempts  int
	sweepLimit   int
	fetchTimeout time.Duration
	claimTimeout time.Duration
}

func newOptions(component string, opts []Option) *options {
	o := &options{
		log:          logger.Noop(),
		now:          time.Now,
		newID:        uuid.NewString,
		maxAttempts:  3,
		sweepLimit:   100,
		fetchTimeout: 10 * time.Second,
		claimTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(logger.Component(component))
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides order and lock request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithActivationHook registers a callback for pending to active activations.
func WithActivationHook(h ActivationHook) Option {
	return func(o *options) {
		if h != nil {
			o.onActivate = append(o.onActivate, h)
		}
	}
}

// WithMaxAttempts bounds optimistic update retries per webhook.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithSweepLimit bounds how many lapsed orders one janitor pass expires.
func WithSweepLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sweepLimit = n
		}
	}
}

// WithClaimTimeout sets how long an unfinished webhook claim blocks other
// instances before it is treated as abandoned.
func WithClaimTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.claimTimeout = d
		}
	}
}
