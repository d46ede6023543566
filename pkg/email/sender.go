package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Sender delivers transactional email.
type Sender interface {
	SendEmail(ctx context.Context, params SendParams) error
}

// SendParams describes one message.
type SendParams struct {
	SendTo   string `json:"send_to" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,max=200"`
	BodyHTML string `json:"body_html" validate:"required"`
	Tag      string `json:"tag,omitempty" validate:"max=100"`
}

var validate = validator.New()

// Validate checks the message before it is handed to a transport.
func (p SendParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}

// LogSender writes messages to the logger instead of delivering them.
// Used when no Postmark token is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendEmail(ctx context.Context, params SendParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email suppressed",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
	)
	return nil
}
