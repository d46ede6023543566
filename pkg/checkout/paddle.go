package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds Paddle Billing credentials.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider and WebhookParser on Paddle Billing.
// A transaction plays the role of the checkout session.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle backed provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookKey
	}

	var (
		sdk *paddle.SDK
		err error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		sdk, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		sdk, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("paddle: create client: %w", err)
	}

	return &PaddleProvider{
		client:   sdk,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// CreateCheckoutSession creates a transaction with a hosted checkout link.
// Paddle has no request idempotency header, so the key travels in custom
// data and comes back on every related webhook.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, sp SessionParams, idempotencyKey string) (*Session, error) {
	if sp.Product.PriceID == "" {
		return nil, fmt.Errorf("paddle: product %q has no price id", sp.Product.ID)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  sp.Product.PriceID,
		Quantity: 1,
	})
	data := paddle.CustomData{}
	for k, v := range sp.Metadata() {
		data[k] = v
	}
	if idempotencyKey != "" {
		data["idempotency_key"] = idempotencyKey
	}
	if sp.CustomerEmail != "" {
		data["email"] = sp.CustomerEmail
	}

	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: data,
	}
	if sp.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(sp.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("paddle: create transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &Session{ID: tx.ID, URL: *tx.Checkout.URL}, nil
}

// RetrieveSubscription fetches a subscription and its billing period.
func (p *PaddleProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return nil, fmt.Errorf("paddle: get subscription: %w", err)
	}

	out := &ProviderSubscription{
		ID:         sub.ID,
		Status:     string(sub.Status),
		CustomerID: sub.CustomerID,
	}
	if sub.CurrentBillingPeriod != nil {
		out.CurrentPeriodEnd = parsePaddleTime(sub.CurrentBillingPeriod.EndsAt)
	}
	if sub.NextBilledAt != nil {
		out.BillingCycleAnchor = parsePaddleTime(*sub.NextBilledAt)
	}
	return out, nil
}

// CancelSubscription schedules cancellation with Paddle's default timing.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return fmt.Errorf("paddle: cancel subscription: %w", err)
	}
	return nil
}

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

// ParseWebhook verifies the Paddle-Signature header and normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	req.Header.Set(p.SignatureHeader(), signature)

	ok, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}
	return normalizePaddleEvent(payload)
}

type paddlePeriod struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type paddleEventData struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	SubscriptionID       string         `json:"subscription_id"`
	Origin               string         `json:"origin"`
	CustomData           map[string]any `json:"custom_data"`
	BillingPeriod        *paddlePeriod  `json:"billing_period"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	NextBilledAt         string         `json:"next_billed_at"`
}

type paddleEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      paddleEventData `json:"data"`
}

// normalizePaddleEvent maps a verified Paddle notification to an Event.
func normalizePaddleEvent(payload []byte) (*Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if env.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrInvalidPayload)
	}

	d := env.Data
	ev := &Event{
		ID:           env.EventID,
		Type:         EventUnknown,
		ProviderType: env.EventType,
		CustomerID:   d.CustomerID,
		Status:       d.Status,
	}
	if s, ok := d.CustomData[MetaOrderID].(string); ok {
		ev.OrderID = s
	}

	switch {
	case env.EventType == "transaction.completed":
		ev.SubscriptionID = d.SubscriptionID
		if d.Origin == "subscription_recurring" {
			ev.Type = EventInvoicePaid
		} else {
			ev.Type = EventCheckoutCompleted
			ev.SessionID = d.ID
		}
		if d.BillingPeriod != nil {
			ev.PeriodStart = parsePaddleTime(d.BillingPeriod.StartsAt)
			ev.PeriodEnd = parsePaddleTime(d.BillingPeriod.EndsAt)
		}
	case env.EventType == "transaction.payment_failed":
		ev.Type = EventInvoicePaymentFailed
		ev.SubscriptionID = d.SubscriptionID
	case env.EventType == "subscription.canceled":
		ev.Type = EventSubscriptionDeleted
		ev.SubscriptionID = d.ID
	case strings.HasPrefix(env.EventType, "subscription."):
		ev.Type = EventSubscriptionUpdated
		ev.SubscriptionID = d.ID
		if d.CurrentBillingPeriod != nil {
			ev.PeriodStart = parsePaddleTime(d.CurrentBillingPeriod.StartsAt)
			ev.PeriodEnd = parsePaddleTime(d.CurrentBillingPeriod.EndsAt)
		}
		ev.BillingCycleAnchor = parsePaddleTime(d.NextBilledAt)
	}
	return ev, nil
}

func parsePaddleTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
