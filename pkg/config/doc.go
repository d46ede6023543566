// Package config loads typed application configuration from environment
// variables.
//
// It combines github.com/joho/godotenv for optional .env files,
// github.com/caarlos0/env/v11 for struct parsing and
// github.com/go-playground/validator/v10 for post-parse validation. Each
// configuration type is parsed once and cached for the process lifetime.
//
// Usage:
//
//	var cfg checkout.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Errors can be matched with errors.Is against ErrParsingConfig,
// ErrInvalidConfig, ErrNilPointer and ErrLoadingEnvFile.
//
// Tests that mutate the environment should call ResetCache.
package config
