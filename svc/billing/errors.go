package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/checkout"
)

// mapError classifies engine errors for handler.NewErrorHandler.
func mapError(err error) (handler.ErrorInfo, bool) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		info := handler.ErrorInfo{
			StatusCode: http.StatusBadRequest,
			Code:       "validation_error",
			Message:    verr.Error(),
			Details:    make(map[string][]string, len(verr.Fields)),
		}
		for field, msg := range verr.Fields {
			info.Details[field] = []string{msg}
		}
		return info, true
	}

	switch {
	case errors.Is(err, checkout.ErrValidation):
		return errInfo(http.StatusBadRequest, "validation_error", err), true
	case errors.Is(err, checkout.ErrInvalidSignature):
		return errInfo(http.StatusBadRequest, "invalid_signature", err), true
	case errors.Is(err, checkout.ErrInvalidPayload):
		return errInfo(http.StatusBadRequest, "invalid_payload", err), true
	case errors.Is(err, checkout.ErrOrderNotFound):
		return errInfo(http.StatusNotFound, "order_not_found", err), true
	case errors.Is(err, checkout.ErrActivePaymentExists):
		return errInfo(http.StatusConflict, "active_payment_exists", err), true
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return errInfo(http.StatusConflict, "checkout_in_progress", err), true
	case errors.Is(err, checkout.ErrInvalidTransition):
		return errInfo(http.StatusConflict, "invalid_transition", err), true
	case errors.Is(err, checkout.ErrOrderConflict):
		return errInfo(http.StatusConflict, "order_conflict", err), true
	case errors.Is(err, checkout.ErrEventInFlight):
		return errInfo(http.StatusConflict, "event_in_flight", err), true
	case errors.Is(err, checkout.ErrProvider):
		return errInfo(http.StatusBadGateway, "provider_error", err), true
	case errors.Is(err, checkout.ErrStorage):
		return errInfo(http.StatusInternalServerError, "storage_error", err), true
	}
	return handler.ErrorInfo{}, false
}

func errInfo(status int, code string, err error) handler.ErrorInfo {
	return handler.ErrorInfo{StatusCode: status, Code: code, Message: err.Error()}
}
