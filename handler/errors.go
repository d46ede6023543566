package handler

import (
	"errors"
	"net/http"
)

var (
	ErrNilResponse          = errors.New("handler returned nil response")
	ErrBinderNotApplicable  = errors.New("binder not applicable")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrBodyTooLarge         = errors.New("request body too large")
)

// HTTPError carries a status code and a stable machine readable key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest     = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized   = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrNotFound       = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict       = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrInternal       = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
	ErrBadGateway     = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrEntityTooLarge = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "request_entity_too_large"}
)
