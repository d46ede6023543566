package checkout

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var (
	ErrValidation          = errors.New("checkout: invalid request")
	ErrUnknownProduct      = errors.New("checkout: unknown product")
	ErrKeyReused           = errors.New("checkout: idempotency key reused for a different product")
	ErrKeyTaken            = errors.New("checkout: idempotency key is held by another order")
	ErrActivePaymentExists = errors.New("checkout: a checkout for this product is already open")
	ErrCheckoutInProgress  = errors.New("checkout: another checkout attempt is in progress")
	ErrProvider            = errors.New("checkout: payment provider error")
	ErrStorage             = errors.New("checkout: storage error")
	ErrOrderNotFound       = errors.New("checkout: order not found")
	ErrOrderConflict       = errors.New("checkout: order was modified concurrently")
	ErrInvalidTransition   = errors.New("checkout: order cannot change to the requested state")
	ErrEventInFlight       = errors.New("checkout: webhook event is being processed")
	ErrInvalidSignature    = errors.New("checkout: invalid webhook signature")
	ErrInvalidPayload      = errors.New("checkout: invalid webhook payload")
	ErrNoCheckoutURL       = errors.New("checkout: provider returned no checkout url")
	ErrMissingAPIKey       = errors.New("checkout: provider API key is required")
	ErrMissingWebhookKey   = errors.New("checkout: provider webhook secret is required")
	ErrInvalidEnvironment  = errors.New("checkout: invalid provider environment")
)

// ValidationError lists invalid request fields. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError is returned when a checkout cannot start because one is
// already open (ErrActivePaymentExists) or being created right now
// (ErrCheckoutInProgress). Reason is matched by errors.Is.
type ConflictError struct {
	Reason         error
	IdempotencyKey string
	SessionURL     string
	RetryAfter     time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Reason, e.RetryAfter)
}

func (e *ConflictError) Unwrap() error {
	return e.Reason
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *ConflictError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}
