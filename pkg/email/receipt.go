package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Receipt is the data rendered into a subscription activation email.
type Receipt struct {
	OrderID   string
	ProductID string
	Amount    int64
	Currency  string
	ExpiresAt *time.Time
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html><body>
<h1>Your subscription is active</h1>
<p>Order <strong>{{.OrderID}}</strong> for plan <strong>{{.ProductID}}</strong> has been paid.</p>
<p>Amount: {{.Price}}</p>
{{if .ExpiresAt}}<p>Next renewal: {{.ExpiresAt.UTC.Format "2006-01-02"}}</p>{{end}}
</body></html>`))

// RenderReceipt builds the activation email for r.
func RenderReceipt(to string, r Receipt) (SendParams, error) {
	var buf bytes.Buffer
	data := struct {
		Receipt
		Price string
	}{r, FormatAmount(r.Amount, r.Currency)}
	if err := receiptTmpl.Execute(&buf, data); err != nil {
		return SendParams{}, fmt.Errorf("render receipt: %w", err)
	}
	return SendParams{
		SendTo:   to,
		Subject:  "Subscription activated: " + r.ProductID,
		BodyHTML: buf.String(),
		Tag:      "subscription-activated",
	}, nil
}

// FormatAmount renders minor units as a decimal amount, e.g. 999 USD as "9.99 USD".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
