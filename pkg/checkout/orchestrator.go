package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// CheckoutRequest asks for a checkout session for one product.
type CheckoutRequest struct {
	UserID        string `validate:"required,max=255"`
	ProductID     string `validate:"required,max=128"`
	CustomerEmail string `validate:"omitempty,email,max=254"`
	// IdempotencyKey is an optional caller supplied key. When empty a key is
	// derived from user, product and the current time bucket.
	IdempotencyKey string `validate:"omitempty,max=255,printascii"`
}

// CheckoutResult is returned for new and replayed checkouts alike.
type CheckoutResult struct {
	CheckoutURL    string
	OrderID        string
	SessionID      string
	IdempotencyKey string
	Replayed       bool
}

// Orchestrator creates checkout sessions exactly once per idempotency key.
type Orchestrator struct {
	cfg      Config
	stores   Stores
	catalog  Catalog
	provider Provider
	*options
}

// NewOrchestrator wires the checkout flow. Panics on missing dependencies.
func NewOrchestrator(cfg Config, stores Stores, catalog Catalog, provider Provider, opts ...Option) *Orchestrator {
	stores.validate()
	if catalog == nil {
		panic("checkout: catalog is required")
	}
	if provider == nil {
		panic("checkout: provider is required")
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		stores:   stores,
		catalog:  catalog,
		provider: provider,
		options:  newOptions("checkout_orchestrator", opts),
	}
}

// CreateCheckout returns the checkout for req, creating the order and the
// provider session on first use. It returns *ConflictError when a checkout
// for the same user and product is open or being created.
func (o *Orchestrator) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	product, err := o.catalog.Product(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, ErrUnknownProduct) {
			return nil, newValidationError("product_id", "unknown product")
		}
		return nil, errors.Join(ErrStorage, err)
	}

	now := o.now()
	key := o.effectiveKey(req, now)
	log := o.log.With(logger.UserID(req.UserID), logger.ProductID(product.ID), logger.IdempotencyKey(key))

	res, resume, err := o.lookup(ctx, log, key, req.UserID, product.ID, now)
	if err != nil || res != nil {
		return res, err
	}
	if err := o.checkActivePayment(ctx, log, req.UserID, product.ID, key, now); err != nil {
		return nil, err
	}

	requestID := o.newID()
	acquired, err := o.stores.Locks.TryAcquire(ctx, Lock{
		UserID:    req.UserID,
		ProductID: product.ID,
		RequestID: requestID,
		CreatedAt: now,
		ExpiresAt: now.Add(o.cfg.LockTTL),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to acquire checkout lock", logger.Error(err))
		return nil, errors.Join(ErrStorage, err)
	}
	if !acquired {
		log.InfoContext(ctx, "checkout lock held by another request", logger.Event("lock_contended"))
		return nil, &ConflictError{
			Reason:         ErrCheckoutInProgress,
			IdempotencyKey: key,
			RetryAfter:     o.cfg.LockRetryAfter,
		}
	}
	defer o.release(ctx, log, req.UserID, product.ID, requestID)

	// A competing request may have finished between the unlocked checks
	// and acquiring the lock.
	res, resume, err = o.lookup(ctx, log, key, req.UserID, product.ID, now)
	if err != nil || res != nil {
		return res, err
	}
	if err := o.checkActivePayment(ctx, log, req.UserID, product.ID, key, now); err != nil {
		return nil, err
	}

	order := resume
	if order == nil {
		order, err = o.createOrder(ctx, req, product, key, now)
		if errors.Is(err, ErrKeyTaken) {
			log.InfoContext(ctx, "idempotency key claimed by a concurrent request", logger.Event("key_taken"))
			return nil, &ConflictError{
				Reason:         ErrCheckoutInProgress,
				IdempotencyKey: key,
				RetryAfter:     o.cfg.LockRetryAfter,
			}
		}
		if err != nil {
			log.ErrorContext(ctx, "failed to create order", logger.Error(err))
			return nil, err
		}
		log.InfoContext(ctx, "order created", logger.OrderID(order.ID), logger.Event("order_created"))
	} else {
		log.InfoContext(ctx, "resuming pending order", logger.OrderID(order.ID), logger.Event("order_resumed"))
	}

	session, err := o.provider.CreateCheckoutSession(ctx, SessionParams{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Product:       product,
		CustomerEmail: order.CustomerEmail,
		SuccessURL:    o.cfg.SuccessURL,
		CancelURL:     o.cfg.CancelURL,
	}, key)
	if err == nil && (session == nil || session.URL == "") {
		err = ErrNoCheckoutURL
	}
	if err != nil {
		log.ErrorContext(ctx, "provider checkout session failed", logger.OrderID(order.ID), logger.Error(err))
		return nil, errors.Join(ErrProvider, err)
	}

	at := o.now()
	if err := o.stores.Orders.AttachSession(ctx, order.ID, session.ID, session.URL, at); err != nil {
		log.ErrorContext(ctx, "failed to attach session to order", logger.OrderID(order.ID), logger.Error(err))
		return nil, errors.Join(ErrStorage, err)
	}
	if err := o.stores.Payments.PutActivePayment(ctx, ActivePayment{
		UserID:         req.UserID,
		ProductID:      product.ID,
		IdempotencyKey: key,
		SessionURL:     session.URL,
		CreatedAt:      at,
		ExpiresAt:      at.Add(o.cfg.ActivePaymentTimeout),
	}); err != nil {
		log.ErrorContext(ctx, "failed to record active payment", logger.OrderID(order.ID), logger.Error(err))
		return nil, errors.Join(ErrStorage, err)
	}

	log.InfoContext(ctx, "checkout session created",
		logger.OrderID(order.ID),
		logger.SessionID(session.ID),
		logger.Event("checkout_created"),
	)
	return &CheckoutResult{
		CheckoutURL:    session.URL,
		OrderID:        order.ID,
		SessionID:      session.ID,
		IdempotencyKey: key,
	}, nil
}

func (o *Orchestrator) effectiveKey(req CheckoutRequest, now time.Time) string {
	if req.IdempotencyKey != "" {
		return ClientKey(req.UserID, req.IdempotencyKey)
	}
	return DeriveKey(req.UserID, req.ProductID, now, o.cfg.Bucket())
}

// lookup consults the idempotency ledger. It returns a cached result when
// the keyed order already has a session, or the order to resume when the
// previous attempt stopped before the provider call succeeded.
func (o *Orchestrator) lookup(ctx context.Context, log *slog.Logger, key, userID, productID string, now time.Time) (*CheckoutResult, *Order, error) {
	orderID, found, err := o.stores.Ledger.CheckIdempotency(ctx, key, userID, now)
	if err != nil {
		log.ErrorContext(ctx, "idempotency lookup failed", logger.Error(err))
		return nil, nil, errors.Join(ErrStorage, err)
	}
	if !found {
		return nil, nil, nil
	}

	order, err := o.stores.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		log.WarnContext(ctx, "idempotency record points to a missing order", logger.OrderID(orderID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Join(ErrStorage, err)
	}
	if order.ProductID != productID {
		return nil, nil, &ValidationError{Fields: map[string]string{"idempotency_key": ErrKeyReused.Error()}}
	}

	if order.HasSession() {
		log.InfoContext(ctx, "idempotent replay", logger.OrderID(order.ID), logger.Event("ledger_hit"))
		return &CheckoutResult{
			CheckoutURL:    order.CheckoutURL,
			OrderID:        order.ID,
			SessionID:      order.ProviderSessionID,
			IdempotencyKey: key,
			Replayed:       true,
		}, nil, nil
	}
	if order.Status != StatusPending {
		return nil, nil, errors.Join(ErrInvalidTransition, errors.New("order is no longer pending"))
	}
	return nil, order, nil
}

// checkActivePayment fails with a conflict while another checkout for the
// pair is open. A live row written under key itself is not a conflict.
func (o *Orchestrator) checkActivePayment(ctx context.Context, log *slog.Logger, userID, productID, key string, now time.Time) error {
	ap, err := o.stores.Payments.FindActivePayment(ctx, userID, productID, now)
	if err != nil {
		log.ErrorContext(ctx, "active payment lookup failed", logger.Error(err))
		return errors.Join(ErrStorage, err)
	}
	if !ap.Live(now) || ap.IdempotencyKey == key {
		return nil
	}
	retry := ap.ExpiresAt.Sub(now)
	log.InfoContext(ctx, "active payment exists", logger.RetryAfter(retry), logger.Event("active_payment_conflict"))
	return &ConflictError{
		Reason:         ErrActivePaymentExists,
		IdempotencyKey: ap.IdempotencyKey,
		SessionURL:     ap.SessionURL,
		RetryAfter:     retry,
	}
}

func (o *Orchestrator) createOrder(ctx context.Context, req CheckoutRequest, p Product, key string, now time.Time) (*Order, error) {
	order := &Order{
		ID:            o.newID(),
		UserID:        req.UserID,
		Status:        StatusPending,
		Plan:          p.Plan(),
		ProductID:     p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CustomerEmail: req.CustomerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := o.stores.Orders.CreateOrderWithKey(ctx, order, IdempotencyRecord{
		Key:       key,
		UserID:    req.UserID,
		OrderID:   order.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(o.cfg.IdempotencyTTL),
	})
	switch {
	case errors.Is(err, ErrKeyTaken):
		return nil, err
	case err != nil:
		return nil, errors.Join(ErrStorage, err)
	}
	return order, nil
}

func (o *Orchestrator) release(ctx context.Context, log *slog.Logger, userID, productID, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := o.stores.Locks.Release(ctx, userID, productID, requestID); err != nil {
		// The lock self-heals at its TTL.
		log.WarnContext(ctx, "failed to release checkout lock", logger.Error(err))
	}
}

// GetOrder returns the order when it belongs to userID.
func (o *Orchestrator) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" || orderID == "" {
		return nil, ErrOrderNotFound
	}
	order, err := o.stores.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// CancelOrder asks the provider to cancel the order's subscription. The
// local status changes when the provider's deletion event is reconciled.
func (o *Orchestrator) CancelOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	order, err := o.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusCanceled {
		return order, nil
	}
	if order.ProviderSubscriptionID == "" {
		return nil, errors.Join(ErrInvalidTransition, errors.New("order has no subscription to cancel"))
	}

	log := o.log.With(logger.UserID(userID), logger.OrderID(order.ID))
	if err := o.provider.CancelSubscription(ctx, order.ProviderSubscriptionID); err != nil {
		log.ErrorContext(ctx, "provider cancel failed", logger.Error(err))
		return nil, errors.Join(ErrProvider, err)
	}
	log.InfoContext(ctx, "subscription cancel requested", logger.Event("cancel_requested"))
	return order, nil
}
