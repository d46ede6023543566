package checkout

import "time"

// Config tunes the checkout engine. Fields are loaded from the environment.
type Config struct {
	ActivePaymentTimeout time.Duration `env:"CHECKOUT_ACTIVE_PAYMENT_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	IdempotencyTTL       time.Duration `env:"CHECKOUT_IDEMPOTENCY_TTL" envDefault:"24h" validate:"gt=0"`
	LockTTL              time.Duration `env:"CHECKOUT_LOCK_TTL" envDefault:"10s" validate:"gt=0"`
	LockRetryAfter       time.Duration `env:"CHECKOUT_LOCK_RETRY_AFTER" envDefault:"2s" validate:"gt=0"`
	// IdempotencyBucket overrides the key derivation window. Zero derives
	// it from ActivePaymentTimeout.
	IdempotencyBucket time.Duration `env:"CHECKOUT_IDEMPOTENCY_BUCKET" envDefault:"0s" validate:"gte=0"`

	SuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:8080/billing/success" validate:"required,url"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:8080/billing/cancel" validate:"required,url"`

	Store        string `env:"CHECKOUT_STORE" envDefault:"postgres" validate:"oneof=postgres memory"`
	LockBackend  string `env:"CHECKOUT_LOCK_BACKEND" envDefault:"postgres" validate:"oneof=postgres redis memory"`
	ProductsFile string `env:"CHECKOUT_PRODUCTS_FILE" envDefault:"products.yaml"`

	HousekeepingInterval time.Duration `env:"CHECKOUT_HOUSEKEEPING_INTERVAL" envDefault:"5m" validate:"gte=0"`
	WebhookRetention     time.Duration `env:"CHECKOUT_WEBHOOK_RETENTION" envDefault:"720h" validate:"gt=0"`
}

// DefaultConfig returns the same values as the envDefault tags.
func DefaultConfig() Config {
	return Config{
		ActivePaymentTimeout: 60 * time.Second,
		IdempotencyTTL:       24 * time.Hour,
		LockTTL:              10 * time.Second,
		LockRetryAfter:       2 * time.Second,
		SuccessURL:           "http://localhost:8080/billing/success",
		CancelURL:            "http://localhost:8080/billing/cancel",
		Store:                "postgres",
		LockBackend:          "postgres",
		ProductsFile:         "products.yaml",
		HousekeepingInterval: 5 * time.Minute,
		WebhookRetention:     720 * time.Hour,
	}
}

// Bucket returns the idempotency key derivation window.
func (c Config) Bucket() time.Duration {
	if c.IdempotencyBucket > 0 {
		return c.IdempotencyBucket
	}
	return BucketWidth(c.ActivePaymentTimeout)
}

// withDefaults fills zero durations so a partially built Config is usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ActivePaymentTimeout <= 0 {
		c.ActivePaymentTimeout = d.ActivePaymentTimeout
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = d.IdempotencyTTL
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.LockRetryAfter <= 0 {
		c.LockRetryAfter = d.LockRetryAfter
	}
	if c.WebhookRetention <= 0 {
		c.WebhookRetention = d.WebhookRetention
	}
	return c
}
