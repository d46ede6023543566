package redis

import "errors"

var (
	ErrMissingURL  = errors.New("redis: connection url is empty")
	ErrInvalidURL  = errors.New("redis: invalid connection url")
	ErrNotReady    = errors.New("redis: server did not answer in time")
	ErrUnreachable = errors.New("redis: ping failed")
)
