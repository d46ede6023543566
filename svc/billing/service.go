// Package billing exposes the checkout engine over HTTP: checkout creation,
// order queries and the provider webhook endpoint.
package billing

import (
	"log/slog"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

// DefaultWebhookMaxBytes caps webhook request bodies.
const DefaultWebhookMaxBytes int64 = 1 << 20

const checkoutBodyMaxBytes int64 = 16 << 10

// Service holds the engine components served by the router.
type Service struct {
	orch            *checkout.Orchestrator
	rec             *checkout.Reconciler
	parser          checkout.WebhookParser
	log             *slog.Logger
	webhookMaxBytes int64
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWebhookMaxBytes overrides DefaultWebhookMaxBytes.
func WithWebhookMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.webhookMaxBytes = n
		}
	}
}

// New panics when a dependency is missing.
func New(orch *checkout.Orchestrator, rec *checkout.Reconciler, parser checkout.WebhookParser, opts ...Option) *Service {
	if orch == nil || rec == nil || parser == nil {
		panic("billing: orchestrator, reconciler and webhook parser are required")
	}
	s := &Service{
		orch:            orch,
		rec:             rec,
		parser:          parser,
		log:             logger.Noop(),
		webhookMaxBytes: DefaultWebhookMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing_http"))
	return s
}
