package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Outcome describes what handling a webhook event did.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeRejected   Outcome = "rejected"
	// OutcomeProcessing marks a claimed event whose handling has not
	// finished. HandleEvent never returns it.
	OutcomeProcessing Outcome = "processing"
)

// invoicePeriodFallback extends an order when an invoice carries only its
// period start.
const invoicePeriodFallback = 30 * 24 * time.Hour

// releaseTimeout bounds cleanup writes that run after the request context
// is gone.
const releaseTimeout = 5 * time.Second

// Reconciler applies provider events to orders.
type Reconciler struct {
	stores   Stores
	provider Provider

	*options
}

// NewReconciler builds a Reconciler. provider may be nil, in which case
// subscription details are taken from the event alone.
func NewReconciler(stores Stores, provider Provider, opts ...Option) *Reconciler {
	stores.validate()
	return &Reconciler{
		stores:   stores,
		provider: provider,
		options:  newOptions("checkout_reconciler", opts),
	}
}

// HandleWebhook verifies and normalizes payload with parser, then handles it.
func (r *Reconciler) HandleWebhook(ctx context.Context, parser WebhookParser, payload []byte, signature string) (Outcome, error) {
	ev, err := parser.ParseWebhook(ctx, payload, signature)
	if err != nil {
		r.log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		return "", err
	}
	return r.HandleEvent(ctx, ev)
}

// HandleEvent processes ev at most once. A duplicate delivery returns
// OutcomeDuplicate with no error. A returned error means the event was not
// recorded and the provider should redeliver it. Instances sharing an
// EventLedger never handle the same event concurrently.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *Event) (Outcome, error) {
	if ev == nil || ev.ID == "" {
		return "", newValidationError("event_id", "is required")
	}
	log := r.log.With(logger.EventID(ev.ID), logger.EventType(string(ev.Type)))

	now := r.now()
	claimed, err := r.stores.Events.ClaimEvent(ctx, ProcessedEvent{
		EventID:     ev.ID,
		EventType:   string(ev.Type),
		Outcome:     OutcomeProcessing,
		ProcessedAt: now,
	}, now.Add(-r.claimTimeout))
	if err != nil {
		log.ErrorContext(ctx, "event claim failed", logger.Error(err))
		return "", errors.Join(ErrStorage, err)
	}
	if !claimed {
		processed, err := r.stores.Events.IsProcessed(ctx, ev.ID)
		if err != nil {
			log.ErrorContext(ctx, "event ledger lookup failed", logger.Error(err))
			return "", errors.Join(ErrStorage, err)
		}
		if processed {
			log.InfoContext(ctx, "duplicate webhook delivery", logger.Event("webhook_duplicate"))
			return OutcomeDuplicate, nil
		}
		log.InfoContext(ctx, "webhook is being handled elsewhere", logger.Event("webhook_in_flight"))
		return "", ErrEventInFlight
	}

	outcome, orderID, err := r.process(ctx, log, ev)
	if err != nil {
		r.release(ctx, log, ev.ID)
		return "", err
	}

	if err := r.stores.Events.RecordEvent(ctx, ProcessedEvent{
		EventID:     ev.ID,
		EventType:   string(ev.Type),
		OrderID:     orderID,
		Outcome:     outcome,
		ProcessedAt: r.now(),
	}); err != nil {
		log.ErrorContext(ctx, "failed to record webhook event", logger.Error(err))
		r.release(ctx, log, ev.ID)
		return "", errors.Join(ErrStorage, err)
	}
	return outcome, nil
}

// release drops the claim even when ctx is already canceled.
func (r *Reconciler) release(ctx context.Context, log *slog.Logger, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.stores.Events.ReleaseEvent(ctx, eventID); err != nil {
		log.WarnContext(ctx, "failed to release event claim", logger.Error(err))
	}
}

func (r *Reconciler) process(ctx context.Context, log *slog.Logger, ev *Event) (Outcome, string, error) {
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaid, EventInvoicePaymentFailed:
	default:
		log.InfoContext(ctx, "ignoring unhandled event type",
			slog.String("provider_type", ev.ProviderType),
			logger.Event("webhook_ignored"),
		)
		return OutcomeIgnored, "", nil
	}

	order, err := r.resolve(ctx, log, ev)
	if err != nil {
		log.ErrorContext(ctx, "order lookup failed", logger.Error(err))
		return "", "", errors.Join(ErrStorage, err)
	}
	if order == nil {
		log.WarnContext(ctx, "webhook does not resolve to an order",
			logger.OrderID(ev.OrderID),
			slog.String("subscription_id", ev.SubscriptionID),
			logger.Event("webhook_unresolved"),
		)
		return OutcomeUnresolved, "", nil
	}
	log = log.With(logger.OrderID(order.ID))

	var expiry *time.Time
	if ev.Type == EventCheckoutCompleted {
		expiry = r.checkoutExpiry(ctx, log, ev)
	}

	for attempt := 1; ; attempt++ {
		outcome, activated, err := r.apply(ctx, log, ev, order, expiry)
		if err == nil {
			if activated {
				r.activated(ctx, log, order)
			}
			return outcome, order.ID, nil
		}
		if !errors.Is(err, ErrOrderConflict) || attempt >= r.maxAttempts {
			log.ErrorContext(ctx, "failed to apply webhook", logger.Error(err))
			if errors.Is(err, ErrOrderConflict) {
				return "", "", err
			}
			return "", "", errors.Join(ErrStorage, err)
		}
		log.DebugContext(ctx, "order changed concurrently, retrying", slog.Int("attempt", attempt))
		if order, err = r.stores.Orders.GetOrder(ctx, order.ID); err != nil {
			return "", "", errors.Join(ErrStorage, err)
		}
	}
}

// resolve finds the order an event refers to: the explicit order reference
// first, then the subscription id, then (for completed checkouts) the
// session id. It returns nil without error when nothing matches.
func (r *Reconciler) resolve(ctx context.Context, log *slog.Logger, ev *Event) (*Order, error) {
	if ev.OrderID != "" {
		o, err := r.stores.Orders.GetOrder(ctx, ev.OrderID)
		switch {
		case err == nil:
			if ev.SubscriptionID == "" || o.ProviderSubscriptionID == "" || o.ProviderSubscriptionID == ev.SubscriptionID {
				return o, nil
			}
			log.WarnContext(ctx, "order reference disagrees with subscription id",
				logger.OrderID(o.ID),
				slog.String("subscription_id", ev.SubscriptionID),
			)
		case !errors.Is(err, ErrOrderNotFound):
			return nil, err
		}
	}
	if ev.SubscriptionID != "" {
		o, err := r.stores.Orders.FindOrderBySubscription(ctx, ev.SubscriptionID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
	}
	if ev.Type == EventCheckoutCompleted && ev.SessionID != "" {
		o, err := r.stores.Orders.FindOrderBySession(ctx, ev.SessionID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// checkoutExpiry asks the provider for the subscription period and falls
// back to whatever the event carries.
func (r *Reconciler) checkoutExpiry(ctx context.Context, log *slog.Logger, ev *Event) *time.Time {
	if r.provider != nil && ev.SubscriptionID != "" {
		fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
		sub, err := r.provider.RetrieveSubscription(fctx, ev.SubscriptionID)
		if err == nil {
			if t := sub.Expiry(); t != nil {
				return t
			}
		} else {
			log.WarnContext(ctx, "failed to retrieve subscription", logger.Error(err))
		}
	}
	return firstTime(ev.PeriodEnd, ev.BillingCycleAnchor, ev.TrialEnd)
}

// apply mutates order in place and persists it. Rejected transitions are
// not errors.
func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, ev *Event, order *Order, expiry *time.Time) (Outcome, bool, error) {
	next := order.Clone()
	var t Transition

	switch ev.Type {
	case EventCheckoutCompleted:
		t = TransitionActivate
		setProviderIDs(next, ev)
		if expiry != nil {
			next.ExpiresAt = expiry
		}
	case EventSubscriptionUpdated:
		t = transitionFor(MapSubscriptionStatus(ev.Status))
		setProviderIDs(next, ev)
		if e := firstTime(ev.PeriodEnd, ev.BillingCycleAnchor, ev.TrialEnd); e != nil {
			next.ExpiresAt = e
		}
	case EventSubscriptionDeleted:
		t = TransitionCancel
	case EventInvoicePaid:
		t = TransitionActivate
		setProviderIDs(next, ev)
		if e := invoiceExpiry(ev); e != nil {
			next.ExpiresAt = e
		}
	case EventInvoicePaymentFailed:
		t = TransitionMarkIncomplete
	}

	if err := applyTransition(ctx, next, t); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.WarnContext(ctx, "transition rejected",
				logger.Status(string(order.Status)),
				slog.String("transition", string(t)),
				logger.Event("transition_rejected"),
			)
			return OutcomeRejected, false, nil
		}
		return "", false, err
	}

	next.UpdatedAt = r.now()
	if err := r.stores.Orders.UpdateOrder(ctx, next); err != nil {
		return "", false, err
	}

	// The open checkout is settled by any event that activates the order.
	if ev.Type == EventCheckoutCompleted || (order.Status == StatusPending && next.Status == StatusActive) {
		if err := r.stores.Payments.RemoveActivePayment(ctx, next.UserID, next.ProductID); err != nil {
			return "", false, err
		}
	}

	activated := order.Status != StatusActive && next.Status == StatusActive
	log.InfoContext(ctx, "order reconciled",
		slog.String("from", string(order.Status)),
		logger.Status(string(next.Status)),
		logger.Event("order_reconciled"),
	)
	*order = *next
	return OutcomeApplied, activated, nil
}

func (r *Reconciler) activated(ctx context.Context, log *slog.Logger, order *Order) {
	for _, hook := range r.onActivate {
		if err := hook(ctx, order.Clone()); err != nil {
			log.WarnContext(ctx, "activation hook failed", logger.Error(err))
		}
	}
}

// ExpireLapsed moves active orders whose expiry has passed to expired.
// It returns how many orders changed.
func (r *Reconciler) ExpireLapsed(ctx context.Context, limit int) (int, error) {
	now := r.now()
	orders, err := r.stores.Orders.ListLapsedOrders(ctx, now, limit)
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}

	var n int
	for _, o := range orders {
		if err := applyTransition(ctx, o, TransitionExpire); err != nil {
			continue
		}
		o.UpdatedAt = now
		if err := r.stores.Orders.UpdateOrder(ctx, o); err != nil {
			if errors.Is(err, ErrOrderConflict) {
				// A concurrent webhook won; the next sweep re-evaluates.
				continue
			}
			return n, errors.Join(ErrStorage, err)
		}
		r.log.InfoContext(ctx, "order expired", logger.OrderID(o.ID), logger.Event("order_expired"))
		n++
	}
	return n, nil
}

func setProviderIDs(o *Order, ev *Event) {
	if ev.SubscriptionID != "" {
		o.ProviderSubscriptionID = ev.SubscriptionID
	}
	if ev.CustomerID != "" {
		o.ProviderCustomerID = ev.CustomerID
	}
}

func invoiceExpiry(ev *Event) *time.Time {
	if t := firstTime(ev.PeriodEnd); t != nil {
		return t
	}
	if start := firstTime(ev.PeriodStart); start != nil {
		t := start.Add(invoicePeriodFallback)
		return &t
	}
	return nil
}
