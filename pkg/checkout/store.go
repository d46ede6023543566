package checkout

import (
	"context"
	"time"
)

// IdempotencyRecord maps an idempotency key to the order it produced.
type IdempotencyRecord struct {
	Key       string
	UserID    string
	OrderID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ActivePayment marks an open checkout for a (user, product) pair.
type ActivePayment struct {
	UserID         string
	ProductID      string
	IdempotencyKey string
	SessionURL     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Live reports whether the row still blocks new checkouts at now.
func (p *ActivePayment) Live(now time.Time) bool {
	return p != nil && now.Before(p.ExpiresAt)
}

// Lock is an advisory mutual exclusion row for a (user, product) pair.
type Lock struct {
	UserID    string
	ProductID string
	RequestID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ProcessedEvent records a handled webhook delivery.
type ProcessedEvent struct {
	EventID     string
	EventType   string
	OrderID     string
	Outcome     Outcome
	ProcessedAt time.Time
}

// OrderStore persists orders. It is the single source of truth for status.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error
	// CreateOrderWithKey creates o and its idempotency record in one unit.
	// When a live record already holds rec.Key nothing is written and
	// ErrKeyTaken is returned.
	CreateOrderWithKey(ctx context.Context, o *Order, rec IdempotencyRecord) error
	// GetOrder returns ErrOrderNotFound when id is unknown.
	GetOrder(ctx context.Context, id string) (*Order, error)
	FindOrderBySubscription(ctx context.Context, subscriptionID string) (*Order, error)
	FindOrderBySession(ctx context.Context, sessionID string) (*Order, error)
	// AttachSession sets the provider session id and checkout url.
	AttachSession(ctx context.Context, orderID, sessionID, checkoutURL string, at time.Time) error
	// UpdateOrder writes status, provider ids and expiry when o.Version
	// matches the stored version, then increments it. A mismatch returns
	// ErrOrderConflict.
	UpdateOrder(ctx context.Context, o *Order) error
	// ListLapsedOrders returns active orders whose expiry is before now.
	ListLapsedOrders(ctx context.Context, now time.Time, limit int) ([]*Order, error)
}

// IdempotencyLedger makes checkout creation safe to retry.
type IdempotencyLedger interface {
	// CheckIdempotency returns the order id for a live record owned by userID.
	CheckIdempotency(ctx context.Context, key, userID string, now time.Time) (orderID string, found bool, err error)
	// RecordIdempotency stores rec. An existing live record wins and the
	// call is a no-op.
	RecordIdempotency(ctx context.Context, rec IdempotencyRecord) error
	PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error)
}

// ActivePaymentTracker enforces one open checkout per (user, product).
type ActivePaymentTracker interface {
	// FindActivePayment returns nil when no live row exists at now.
	FindActivePayment(ctx context.Context, userID, productID string, now time.Time) (*ActivePayment, error)
	// PutActivePayment inserts or replaces the row for the pair.
	PutActivePayment(ctx context.Context, p ActivePayment) error
	// RemoveActivePayment is idempotent.
	RemoveActivePayment(ctx context.Context, userID, productID string) error
	PurgeExpiredActivePayments(ctx context.Context, now time.Time) (int64, error)
}

// LockManager provides short-lived exclusion over a (user, product) pair.
type LockManager interface {
	// TryAcquire returns false when a live lock is held by another request.
	TryAcquire(ctx context.Context, l Lock) (bool, error)
	// Release drops the lock only if it is still held by requestID.
	Release(ctx context.Context, userID, productID, requestID string) error
}

// LockPurger is implemented by lock managers that leave expired rows behind.
type LockPurger interface {
	PurgeExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// EventLedger deduplicates webhook deliveries across every instance that
// shares it.
type EventLedger interface {
	// ClaimEvent atomically reserves e.EventID with OutcomeProcessing. It
	// reports false when the event is already recorded or claimed, unless
	// the existing claim was taken before staleBefore.
	ClaimEvent(ctx context.Context, e ProcessedEvent, staleBefore time.Time) (bool, error)
	// ReleaseEvent drops an unfinished claim so a redelivery can retry.
	ReleaseEvent(ctx context.Context, eventID string) error
	// IsProcessed ignores unfinished claims.
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// RecordEvent stores the final outcome over a claim. It is a no-op
	// when a final outcome is already recorded.
	RecordEvent(ctx context.Context, e ProcessedEvent) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Stores bundles the persistence dependencies of the engine.
type Stores struct {
	Orders   OrderStore
	Ledger   IdempotencyLedger
	Payments ActivePaymentTracker
	Locks    LockManager
	Events   EventLedger
}

func (s Stores) validate() {
	if s.Orders == nil || s.Ledger == nil || s.Payments == nil || s.Locks == nil || s.Events == nil {
		panic("checkout: all stores are required")
	}
}
