package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProvider implements Provider and WebhookParser on Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe backed provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookKey
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeProvider{api: sc, webhookSecret: cfg.WebhookSecret}, nil
}

// CreateCheckoutSession opens a subscription mode Checkout Session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, sp SessionParams, idempotencyKey string) (*Session, error) {
	if sp.Product.PriceID == "" {
		return nil, fmt.Errorf("stripe: product %q has no price id", sp.Product.ID)
	}
	md := sp.Metadata()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(sp.SuccessURL),
		CancelURL:         stripe.String(sp.CancelURL),
		ClientReferenceID: stripe.String(sp.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(sp.Product.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: md,
		},
	}
	if sp.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(sp.CustomerEmail)
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	out := &Session{ID: s.ID, URL: s.URL}
	if t := unixTime(s.ExpiresAt); t != nil {
		out.ExpiresAt = *t
	}
	return out, nil
}

// RetrieveSubscription fetches a subscription and its period boundaries.
func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve subscription: %w", err)
	}

	out := &ProviderSubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		BillingCycleAnchor: unixTime(sub.BillingCycleAnchor),
		TrialEnd:           unixTime(sub.TrialEnd),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		var end int64
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
		out.CurrentPeriodEnd = unixTime(end)
	}
	return out, nil
}

// CancelSubscription cancels immediately. The deletion webhook follows.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return nil
}

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// ParseWebhook verifies the Stripe-Signature header and normalizes the event.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: missing data object", ErrInvalidPayload)
	}
	return normalizeStripeEvent(ev.ID, string(ev.Type), ev.Data.Raw)
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           string            `json:"customer"`
	Metadata           map[string]string `json:"metadata"`
	BillingCycleAnchor int64             `json:"billing_cycle_anchor"`
	TrialEnd           int64             `json:"trial_end"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period stripePeriod `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// normalizeStripeEvent maps a Stripe event object to an Event. Unknown
// types produce EventUnknown rather than an error.
func normalizeStripeEvent(id, typ string, raw json.RawMessage) (*Event, error) {
	ev := &Event{ID: id, ProviderType: typ, Type: EventUnknown}

	decode := func(v any) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, typ, err)
		}
		return nil
	}

	switch typ {
	case "checkout.session.completed":
		var s stripeCheckoutSession
		if err := decode(&s); err != nil {
			return nil, err
		}
		ev.Type = EventCheckoutCompleted
		ev.SessionID = s.ID
		ev.SubscriptionID = s.Subscription
		ev.CustomerID = s.Customer
		ev.OrderID = s.Metadata[MetaOrderID]
		if ev.OrderID == "" {
			ev.OrderID = s.ClientReferenceID
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var s stripeSubscription
		if err := decode(&s); err != nil {
			return nil, err
		}
		ev.Type = EventSubscriptionUpdated
		if typ == "customer.subscription.deleted" {
			ev.Type = EventSubscriptionDeleted
		}
		ev.SubscriptionID = s.ID
		ev.CustomerID = s.Customer
		ev.Status = s.Status
		ev.OrderID = s.Metadata[MetaOrderID]
		end := s.CurrentPeriodEnd
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
		ev.PeriodEnd = unixTime(end)
		ev.BillingCycleAnchor = unixTime(s.BillingCycleAnchor)
		ev.TrialEnd = unixTime(s.TrialEnd)

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var in stripeInvoice
		if err := decode(&in); err != nil {
			return nil, err
		}
		ev.Type = EventInvoicePaid
		if typ == "invoice.payment_failed" {
			ev.Type = EventInvoicePaymentFailed
		}
		ev.CustomerID = in.Customer
		ev.SubscriptionID = in.Subscription
		if details := in.Parent.SubscriptionDetails; details.Subscription != "" {
			ev.SubscriptionID = details.Subscription
			ev.OrderID = details.Metadata[MetaOrderID]
		}
		// Line periods cover the billed subscription period; the invoice
		// level fields describe the previous one.
		var line stripePeriod
		for _, l := range in.Lines.Data {
			if l.Period.End > line.End {
				line = l.Period
			}
		}
		start, end := in.PeriodStart, in.PeriodEnd
		if line.End > 0 {
			start, end = line.Start, line.End
		}
		ev.PeriodStart = unixTime(start)
		ev.PeriodEnd = unixTime(end)
	}
	return ev, nil
}
