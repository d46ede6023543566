// Package logger builds the service's *slog.Logger and provides typed
// attribute helpers so log lines share the same keys across the checkout
// engine, the webhook reconciler and the HTTP layer.
//
// The logger is a thin layer over log/slog:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, cfg.AppName),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "checkout created",
//		logger.OrderID(order.ID),
//		logger.IdempotencyKey(key),
//	)
//
// Context extractors run on every record, so request-scoped values such as
// the request ID or the authenticated user are attached without passing them
// through every call site.
package logger
