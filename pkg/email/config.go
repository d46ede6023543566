package email

// Config holds outbound email settings. Email is disabled when
// PostmarkServerToken is empty.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" validate:"omitempty,email"`
	SupportEmail         string `env:"SUPPORT_EMAIL" validate:"omitempty,email"`
}

// Enabled reports whether a real sender can be built from c.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != ""
}
