// Package handler provides type-safe HTTP request handling for JSON APIs.
//
// Handlers are generic functions that receive a bound request value and
// return a Response:
//
//	type CheckoutBody struct {
//		ProductID string `json:"product_id"`
//	}
//
//	func create(ctx handler.Context, req CheckoutBody) handler.Response {
//		res, err := svc.Create(ctx, req.ProductID)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(res)
//	}
//
//	r.Post("/v1/checkout", handler.Wrap(create,
//		handler.WithBinders[handler.Context, CheckoutBody](handler.BindJSON(1<<20)),
//		handler.WithErrorHandler[handler.Context, CheckoutBody](handler.NewErrorHandler(log, mapper)),
//	))
//
// # Errors
//
// Binding failures, Fail responses and render errors all reach the
// configured ErrorHandler. NewErrorHandler writes a JSON envelope:
//
//	{"error": {"code": "validation_error", "message": "...", "details": {"field": ["..."]}}}
//
// An ErrorMapper classifies domain errors first. Unmapped errors fall back to
// ClassifyError, which knows about ValidationError, HTTPError and the binder
// sentinels (415, 413 and 400).
package handler
