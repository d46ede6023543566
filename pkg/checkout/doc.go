// Package checkout creates subscription checkout sessions exactly once and
// reconciles provider callbacks into order state.
//
// # Creating checkouts
//
// Orchestrator.CreateCheckout derives an idempotency key from the user,
// product and current time bucket (or hashes a caller supplied key), then:
//
//  1. returns the cached result when the key already produced an order,
//  2. rejects with *ConflictError when a checkout for the pair is still open,
//  3. takes a short-lived lock so racing requests cannot both proceed,
//  4. creates a pending Order and records the key,
//  5. calls the Provider with the same key and stores the session.
//
// A failed provider call leaves the order pending and writes no active
// payment, so a retry inside the same bucket resumes that order.
//
//	orch := checkout.NewOrchestrator(cfg, store.Stores(), catalog, provider,
//		checkout.WithLogger(log),
//	)
//	res, err := orch.CreateCheckout(ctx, checkout.CheckoutRequest{
//		UserID:    userID,
//		ProductID: "pro-monthly",
//	})
//	var conflict *checkout.ConflictError
//	if errors.As(err, &conflict) {
//		// 409, retry after conflict.RetryAfterSeconds()
//	}
//
// # Reconciling webhooks
//
// Reconciler.HandleWebhook verifies a payload with a WebhookParser
// (StripeProvider or PaddleProvider), skips event ids seen before and moves
// the referenced order through its state machine:
//
//	pending -> active -> canceled | expired | incomplete
//	incomplete -> active
//
// Canceled orders accept no further change. Events that do not resolve to
// an order are logged and recorded, never guessed.
//
// # Storage
//
// Every store is an interface. MemoryStore implements all of them for tests
// and single-process use; package pgstore provides PostgreSQL and package
// redislock a Redis lock manager. Janitor purges expired rows in the
// background but nothing relies on it: readers check expiry themselves.
package checkout
