package billing

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/jwt"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

// IdempotencyKeyHeader carries the optional caller supplied key.
const IdempotencyKeyHeader = "Idempotency-Key"

type checkoutBody struct {
	ProductID     string `json:"product_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

type checkoutResponse struct {
	CheckoutURL    string `json:"checkout_url"`
	OrderID        string `json:"order_id"`
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Replayed       bool   `json:"replayed"`
}

type conflictResponse struct {
	Error             handler.ErrorDetail `json:"error"`
	IdempotencyKey    string              `json:"idempotency_key"`
	SessionURL        string              `json:"session_url,omitempty"`
	RetryAfterSeconds int                 `json:"retry_after_seconds"`
}

type orderResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Plan        string     `json:"plan"`
	ProductID   string     `json:"product_id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type webhookResponse struct {
	Outcome checkout.Outcome `json:"outcome"`
}

func toOrderResponse(o *checkout.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		Status:      string(o.Status),
		Plan:        o.Plan,
		ProductID:   o.ProductID,
		Amount:      o.Amount,
		Currency:    o.Currency,
		CheckoutURL: o.CheckoutURL,
		ExpiresAt:   o.ExpiresAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func (s *Service) createCheckout(ctx handler.Context, body checkoutBody) handler.Response {
	res, err := s.orch.CreateCheckout(ctx, checkout.CheckoutRequest{
		UserID:         jwt.UserID(ctx),
		ProductID:      body.ProductID,
		CustomerEmail:  body.CustomerEmail,
		IdempotencyKey: ctx.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		var conflict *checkout.ConflictError
		if errors.As(err, &conflict) {
			return conflictJSON(conflict)
		}
		return handler.Fail(err)
	}
	return handler.JSON(checkoutResponse{
		CheckoutURL:    res.CheckoutURL,
		OrderID:        res.OrderID,
		SessionID:      res.SessionID,
		IdempotencyKey: res.IdempotencyKey,
		Replayed:       res.Replayed,
	})
}

func conflictJSON(c *checkout.ConflictError) handler.Response {
	code := "checkout_in_progress"
	if errors.Is(c, checkout.ErrActivePaymentExists) {
		code = "active_payment_exists"
	}
	secs := c.RetryAfterSeconds()
	return handler.JSON(conflictResponse{
		Error:             handler.ErrorDetail{Code: code, Message: c.Reason.Error()},
		IdempotencyKey:    c.IdempotencyKey,
		SessionURL:        c.SessionURL,
		RetryAfterSeconds: secs,
	},
		handler.WithJSONStatus(http.StatusConflict),
		handler.WithJSONHeader("Retry-After", strconv.Itoa(secs)),
	)
}

func (s *Service) getOrder(ctx handler.Context, _ struct{}) handler.Response {
	o, err := s.orch.GetOrder(ctx, jwt.UserID(ctx), chi.URLParam(ctx.Request(), "orderID"))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toOrderResponse(o))
}

func (s *Service) cancelOrder(ctx handler.Context, _ struct{}) handler.Response {
	o, err := s.orch.CancelOrder(ctx, jwt.UserID(ctx), chi.URLParam(ctx.Request(), "orderID"))
	if err != nil {
		return handler.Fail(err)
	}
	// Local status follows once the provider reports the cancellation.
	return handler.JSON(toOrderResponse(o), handler.WithJSONStatus(http.StatusAccepted))
}

func (s *Service) webhook(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, s.webhookMaxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return handler.Fail(handler.ErrEntityTooLarge)
		}
		return handler.Fail(errors.Join(handler.ErrBadRequest, err))
	}

	outcome, err := s.rec.HandleWebhook(ctx, s.parser, payload, r.Header.Get(s.parser.SignatureHeader()))
	if err != nil {
		return handler.Fail(err)
	}
	s.log.DebugContext(ctx, "webhook handled", logger.Status(string(outcome)))
	return handler.JSON(webhookResponse{Outcome: outcome})
}
