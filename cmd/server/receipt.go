package main

import (
	"context"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/email"
)

// receiptHook emails an activation receipt when the order carries a
// customer email. Orders without one are skipped silently.
func receiptHook(sender email.Sender) checkout.ActivationHook {
	return func(ctx context.Context, o *checkout.Order) error {
		if o.CustomerEmail == "" {
			return nil
		}
		msg, err := email.RenderReceipt(o.CustomerEmail, email.Receipt{
			OrderID:   o.ID,
			ProductID: o.ProductID,
			Amount:    o.Amount,
			Currency:  o.Currency,
			ExpiresAt: o.ExpiresAt,
		})
		if err != nil {
			return err
		}
		return sender.SendEmail(ctx, msg)
	}
}
