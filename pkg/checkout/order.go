package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusCanceled   Status = "canceled"
	StatusExpired    Status = "expired"
	StatusIncomplete Status = "incomplete"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCanceled, StatusExpired, StatusIncomplete:
		return true
	}
	return false
}

// Order is one subscription purchase attempt and its lifecycle.
// Orders are never deleted.
type Order struct {
	ID            string
	UserID        string
	Status        Status
	Plan          string
	ProductID     string
	Amount        int64
	Currency      string
	CustomerEmail string

	CheckoutURL            string
	ProviderSessionID      string
	ProviderSubscriptionID string
	ProviderCustomerID     string

	// Version increases on every write and guards concurrent updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// HasSession reports whether the provider checkout session was attached.
func (o *Order) HasSession() bool {
	return o.ProviderSessionID != ""
}

// PlanID encodes product, amount and currency into the order plan string.
func PlanID(productID string, amount int64, currency string) string {
	return fmt.Sprintf("%s:%d:%s", productID, amount, strings.ToUpper(currency))
}

// ParsePlan decodes a plan string built by PlanID. Fields are split from the
// right, so product ids may contain colons.
func ParsePlan(plan string) (productID string, amount int64, currency string, err error) {
	i := strings.LastIndexByte(plan, ':')
	if i <= 0 {
		return "", 0, "", fmt.Errorf("invalid plan %q", plan)
	}
	currency = plan[i+1:]
	rest := plan[:i]

	j := strings.LastIndexByte(rest, ':')
	if j <= 0 {
		return "", 0, "", fmt.Errorf("invalid plan %q", plan)
	}
	productID = rest[:j]
	amount, err = strconv.ParseInt(rest[j+1:], 10, 64)
	if err != nil || currency == "" {
		return "", 0, "", fmt.Errorf("invalid plan %q", plan)
	}
	return productID, amount, currency, nil
}
