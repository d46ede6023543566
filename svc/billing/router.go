package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/jwt"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/requestid"
)

// Router mounts the billing API:
//
//	GET  /health/live
//	GET  /health/ready
//	POST /v1/webhooks/billing
//	POST /v1/checkout                  (bearer auth)
//	GET  /v1/orders/{orderID}          (bearer auth)
//	POST /v1/orders/{orderID}/cancel   (bearer auth)
func (s *Service) Router(auth *jwt.Service, checks ...httpserver.Check) http.Handler {
	errHandler := handler.NewErrorHandler(s.log, mapError)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(s.log, 2*time.Second, checks...))

	r.Post("/v1/webhooks/billing", handler.Wrap[handler.Context, struct{}](s.webhook,
		handler.WithErrorHandler[handler.Context, struct{}](errHandler),
	))

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(auth, func(w http.ResponseWriter, r *http.Request, err error) {
			errHandler(handler.NewContext(w, r), handler.ErrUnauthorized)
		}))

		r.Post("/v1/checkout", handler.Wrap[handler.Context, checkoutBody](s.createCheckout,
			handler.WithBinders[handler.Context, checkoutBody](handler.BindJSON(checkoutBodyMaxBytes)),
			handler.WithErrorHandler[handler.Context, checkoutBody](errHandler),
		))
		r.Get("/v1/orders/{orderID}", handler.Wrap[handler.Context, struct{}](s.getOrder,
			handler.WithErrorHandler[handler.Context, struct{}](errHandler),
		))
		r.Post("/v1/orders/{orderID}/cancel", handler.Wrap[handler.Context, struct{}](s.cancelOrder,
			handler.WithErrorHandler[handler.Context, struct{}](errHandler),
		))
	})

	return r
}

// requestLogger writes one line per request after the response is sent.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				logger.RequestID(requestid.FromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", status),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
