package email_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/email"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

func TestSendParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendParams{SendTo: "a@example.com", Subject: "hi", BodyHTML: "<p>x</p>"}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.SendTo = "nope"
	assert.ErrorIs(t, invalid.Validate(), email.ErrInvalidParams)

	empty := email.SendParams{}
	assert.ErrorIs(t, empty.Validate(), email.ErrInvalidParams)
}

func TestNewPostmarkSender(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkSender(email.Config{SenderEmail: "billing@example.com"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkSender(email.Config{PostmarkServerToken: "tok", SenderEmail: "bad"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkSender(email.Config{PostmarkServerToken: "tok", SenderEmail: "billing@example.com", SupportEmail: "bad"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	s, err := email.NewPostmarkSender(email.Config{PostmarkServerToken: "tok", SenderEmail: "billing@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, s)

	assert.False(t, email.Config{}.Enabled())
	assert.True(t, email.Config{PostmarkServerToken: "tok"}.Enabled())
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	s := email.NewLogSender(logger.New(logger.WithOutput(buf)))

	err := s.SendEmail(context.Background(), email.SendParams{SendTo: "a@example.com", Subject: "hi", BodyHTML: "x"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "a@example.com")

	err = s.SendEmail(context.Background(), email.SendParams{})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestRenderReceipt(t *testing.T) {
	t.Parallel()

	exp := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	msg, err := email.RenderReceipt("a@example.com", email.Receipt{
		OrderID:   "ord_1",
		ProductID: "pro",
		Amount:    999,
		Currency:  "USD",
		ExpiresAt: &exp,
	})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", msg.SendTo)
	assert.Contains(t, msg.Subject, "pro")
	assert.Contains(t, msg.BodyHTML, "ord_1")
	assert.Contains(t, msg.BodyHTML, "9.99 USD")
	assert.Contains(t, msg.BodyHTML, "2025-03-01")
	assert.NoError(t, msg.Validate())
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "9.99 USD", email.FormatAmount(999, "USD"))
	assert.Equal(t, "0.05 EUR", email.FormatAmount(5, "EUR"))
	assert.Equal(t, "-1.00 USD", email.FormatAmount(-100, "USD"))
}
