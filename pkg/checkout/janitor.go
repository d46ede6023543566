package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// SweepResult counts what one housekeeping pass removed or changed.
type SweepResult struct {
	Idempotency    int64
	ActivePayments int64
	Locks          int64
	Events         int64
	ExpiredOrders  int
}

// Janitor purges expired rows and expires lapsed orders. Nothing depends on
// it for correctness; every reader checks expiry itself.
type Janitor struct {
	cfg        Config
	stores     Stores
	reconciler *Reconciler
	*options
}

// NewJanitor creates a Janitor. reconciler may be nil to skip order expiry.
func NewJanitor(cfg Config, stores Stores, reconciler *Reconciler, opts ...Option) *Janitor {
	stores.validate()
	return &Janitor{
		cfg:        cfg.withDefaults(),
		stores:     stores,
		reconciler: reconciler,
		options:    newOptions("checkout_janitor", opts),
	}
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables housekeeping.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		j.log.InfoContext(ctx, "housekeeping disabled")
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.log.ErrorContext(ctx, "housekeeping sweep failed", logger.Error(err))
			}
		}
	}
}

// Sweep runs one housekeeping pass. It keeps going after a failed step and
// returns the joined errors.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	start := j.now()
	var (
		res  SweepResult
		errs []error
		err  error
	)

	if res.Idempotency, err = j.stores.Ledger.PurgeExpiredIdempotency(ctx, start); err != nil {
		errs = append(errs, err)
	}
	if res.ActivePayments, err = j.stores.Payments.PurgeExpiredActivePayments(ctx, start); err != nil {
		errs = append(errs, err)
	}
	if p, ok := j.stores.Locks.(LockPurger); ok {
		if res.Locks, err = p.PurgeExpiredLocks(ctx, start); err != nil {
			errs = append(errs, err)
		}
	}
	if res.Events, err = j.stores.Events.PruneEvents(ctx, start.Add(-j.cfg.WebhookRetention)); err != nil {
		errs = append(errs, err)
	}
	if j.reconciler != nil {
		if res.ExpiredOrders, err = j.reconciler.ExpireLapsed(ctx, j.sweepLimit); err != nil {
			errs = append(errs, err)
		}
	}

	j.log.DebugContext(ctx, "housekeeping sweep done",
		slog.Int64("idempotency", res.Idempotency),
		slog.Int64("active_payments", res.ActivePayments),
		slog.Int64("locks", res.Locks),
		slog.Int64("events", res.Events),
		slog.Int("expired_orders", res.ExpiredOrders),
		logger.Duration(j.now().Sub(start)),
	)
	if len(errs) > 0 {
		return res, errors.Join(append([]error{ErrStorage}, errs...)...)
	}
	return res, nil
}
