// Package httpserver runs the HTTP listener with graceful shutdown and
// provides liveness and readiness handlers.
//
//	srv := httpserver.New(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithShutdownHook(pool.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run returns when ctx is canceled or the process receives SIGINT or
// SIGTERM. Shutdown hooks run once after the listener stops.
package httpserver
