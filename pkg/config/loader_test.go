package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/config"
)

type basicConfig struct {
	Name    string        `env:"CONFIG_TEST_NAME" envDefault:"paywall"`
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"60s" validate:"gt=0"`
}

type requiredConfig struct {
	Secret string `env:"CONFIG_TEST_SECRET,required"`
}

type validatedConfig struct {
	URL string `env:"CONFIG_TEST_URL" validate:"required,url"`
}

type fileConfig struct {
	Value string `env:"CONFIG_TEST_FILE_VALUE"`
	Port  int    `env:"CONFIG_TEST_FILE_PORT"`
}

func TestLoad_Defaults(t *testing.T) {
	config.ResetCache()

	var cfg basicConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "paywall", cfg.Name)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestLoad_Cached(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_NAME", "first")

	var first basicConfig
	require.NoError(t, config.Load(&first))
	assert.Equal(t, "first", first.Name)

	t.Setenv("CONFIG_TEST_NAME", "second")
	var second basicConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Name, "cached value must be returned")

	config.ResetCache()
	var third basicConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "second", third.Name)
}

func TestLoad_NilPointer(t *testing.T) {
	err := config.Load[basicConfig](nil)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoad_MissingRequired(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CONFIG_TEST_SECRET")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	t.Setenv("CONFIG_TEST_SECRET", "s3cret")
	require.NoError(t, config.Load(&cfg), "failed loads must not be cached")
	assert.Equal(t, "s3cret", cfg.Secret)
}

func TestLoad_Validation(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_URL", "not a url")

	var cfg validatedConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	t.Setenv("CONFIG_TEST_URL", "https://example.com/success")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "https://example.com/success", cfg.URL)
}

func TestMustLoad(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CONFIG_TEST_SECRET")

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
	assert.NotPanics(t, func() {
		var cfg basicConfig
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CONFIG_TEST_FILE_VALUE")
	os.Unsetenv("CONFIG_TEST_FILE_PORT")
	t.Cleanup(func() {
		os.Unsetenv("CONFIG_TEST_FILE_VALUE")
		os.Unsetenv("CONFIG_TEST_FILE_PORT")
	})

	require.NoError(t, config.LoadEnv("testdata/.env.test"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from_file", cfg.Value)
	assert.Equal(t, 8081, cfg.Port)

	err := config.LoadEnv("testdata/missing.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)

	assert.NoError(t, config.LoadEnv())
}
