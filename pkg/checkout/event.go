package checkout

import (
	"strings"
	"time"
)

// EventType is a provider-neutral callback kind.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout_completed"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionDeleted  EventType = "subscription_deleted"
	EventInvoicePaid          EventType = "invoice_paid"
	EventInvoicePaymentFailed EventType = "invoice_payment_failed"
	EventUnknown              EventType = "unknown"
)

// Event is a normalized provider callback.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string // original provider event name

	OrderID        string
	SessionID      string
	SubscriptionID string
	CustomerID     string
	Status         string // provider subscription status

	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	BillingCycleAnchor *time.Time
	TrialEnd           *time.Time
}

// MapSubscriptionStatus maps a provider subscription status to an order status.
func MapSubscriptionStatus(status string) Status {
	switch strings.ToLower(status) {
	case "active", "trialing":
		return StatusActive
	case "canceled", "cancelled", "unpaid":
		return StatusCanceled
	case "past_due", "incomplete", "incomplete_expired":
		return StatusIncomplete
	default:
		return StatusPending
	}
}
