package handler

import (
	"errors"
	"log/slog"
	"maps"
	"net/http"

	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/requestid"
)

// ErrorInfo is the classified form of an error.
type ErrorInfo struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string][]string
}

// ErrorMapper classifies domain errors. It reports false for errors it does
// not recognise, which then fall back to the built-in classification.
type ErrorMapper func(err error) (ErrorInfo, bool)

func determineLogLevel(statusCode int) slog.Level {
	if statusCode >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// ClassifyError applies the built-in classification: request binding
// failures, ValidationError and HTTPError. Everything else is a 500.
func ClassifyError(err error) ErrorInfo {
	var (
		valErr  ValidationError
		httpErr HTTPError
	)
	switch {
	case errors.As(err, &valErr):
		info := ErrorInfo{StatusCode: http.StatusBadRequest, Code: "validation_error", Message: valErr.Error()}
		if len(valErr) > 0 {
			info.Details = make(map[string][]string, len(valErr))
			maps.Copy(info.Details, valErr)
		}
		return info
	case errors.Is(err, ErrUnsupportedMediaType):
		return ErrorInfo{StatusCode: http.StatusUnsupportedMediaType, Code: "unsupported_media_type", Message: err.Error()}
	case errors.Is(err, ErrBodyTooLarge):
		return ErrorInfo{StatusCode: http.StatusRequestEntityTooLarge, Code: "request_entity_too_large", Message: err.Error()}
	case errors.Is(err, ErrInvalidJSON):
		return ErrorInfo{StatusCode: http.StatusBadRequest, Code: "invalid_json", Message: err.Error()}
	case errors.As(err, &httpErr):
		return ErrorInfo{StatusCode: httpErr.Code, Code: httpErr.Key, Message: http.StatusText(httpErr.Code)}
	}
	return ErrorInfo{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrInternal.Key,
		Message:    "An error occurred processing your request",
	}
}

// NewErrorHandler returns an ErrorHandler that logs the error and writes a
// JSON error envelope. Server errors never expose the underlying message.
func NewErrorHandler(log *slog.Logger, mapper ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = logger.Noop()
	}
	return func(ctx Context, err error) {
		r := ctx.Request()

		info, ok := ErrorInfo{}, false
		if mapper != nil {
			info, ok = mapper(err)
		}
		if !ok {
			info = ClassifyError(err)
		}
		if info.StatusCode >= http.StatusInternalServerError {
			info.Message = http.StatusText(info.StatusCode)
			info.Details = nil
		}

		log.LogAttrs(r.Context(), determineLogLevel(info.StatusCode), "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		resp := JSONError(info.StatusCode, ErrorDetail{Code: info.Code, Message: info.Message, Details: info.Details})
		if rerr := resp.Render(ctx.ResponseWriter(), r); rerr != nil {
			log.Error("failed to render error response",
				logger.RequestID(requestid.FromContext(r.Context())),
				logger.Error(rerr),
				logger.Component("error_handler"),
			)
		}
	}
}
