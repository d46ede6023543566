package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestOptionalStringAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(string) slog.Attr
		key  string
	}{
		{"request id", logger.RequestID, "request_id"},
		{"user id", logger.UserID, "user_id"},
		{"order id", logger.OrderID, "order_id"},
		{"session id", logger.SessionID, "session_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			attr := tt.fn("abc")
			assert.Equal(t, tt.key, attr.Key)
			assert.Equal(t, "abc", attr.Value.String())
			assert.True(t, tt.fn("").Equal(slog.Attr{}), "empty value must produce an empty attr")
		})
	}
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "product_id", logger.ProductID("pro").Key)
	assert.Equal(t, "idempotency_key", logger.IdempotencyKey("k").Key)
	assert.Equal(t, "event_id", logger.EventID("evt_1").Key)
	assert.Equal(t, "event_type", logger.EventType("invoice.paid").Key)
	assert.Equal(t, "component", logger.Component("orchestrator").Key)
	assert.Equal(t, "event", logger.Event("ledger_hit").Key)

	ra := logger.RetryAfter(55 * time.Second)
	assert.Equal(t, "retry_after", ra.Key)
	assert.Equal(t, 55*time.Second, ra.Value.Duration())
}
