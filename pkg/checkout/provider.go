package checkout

import (
	"context"
	"time"
)

// Provider is the narrow slice of the payment provider API the engine uses.
type Provider interface {
	// CreateCheckoutSession opens a hosted checkout. idempotencyKey is passed
	// to the provider so its own retries are deduplicated too.
	CreateCheckoutSession(ctx context.Context, params SessionParams, idempotencyKey string) (*Session, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// WebhookParser verifies and normalizes provider callbacks.
type WebhookParser interface {
	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string
	// ParseWebhook returns ErrInvalidSignature when verification fails.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// SessionParams describes the checkout session to create.
type SessionParams struct {
	OrderID       string
	UserID        string
	Product       Product
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Metadata is attached to provider objects so callbacks can be matched
// back to orders.
func (p SessionParams) Metadata() map[string]string {
	return map[string]string{
		MetaOrderID:   p.OrderID,
		MetaUserID:    p.UserID,
		MetaProductID: p.Product.ID,
	}
}

// Metadata keys written on provider sessions and subscriptions.
const (
	MetaOrderID   = "order_id"
	MetaUserID    = "user_id"
	MetaProductID = "product_id"
)

// Session is a provider checkout session.
type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// ProviderSubscription is the provider view of a subscription.
type ProviderSubscription struct {
	ID                 string
	Status             string
	CustomerID         string
	CurrentPeriodEnd   *time.Time
	BillingCycleAnchor *time.Time
	TrialEnd           *time.Time
}

// Expiry picks the order expiry: current period end, then billing cycle
// anchor, then trial end. Nil when none is known.
func (s *ProviderSubscription) Expiry() *time.Time {
	if s == nil {
		return nil
	}
	return firstTime(s.CurrentPeriodEnd, s.BillingCycleAnchor, s.TrialEnd)
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			v := t.UTC()
			return &v
		}
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
