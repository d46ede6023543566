package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/checkout/pgstore"
	"github.com/dmitrymomot/paywall/pkg/checkout/redislock"
	"github.com/dmitrymomot/paywall/pkg/config"
	"github.com/dmitrymomot/paywall/pkg/email"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/jwt"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/pg"
	"github.com/dmitrymomot/paywall/pkg/redis"
	"github.com/dmitrymomot/paywall/pkg/requestid"
	"github.com/dmitrymomot/paywall/svc/billing"
)

type appConfig struct {
	Env             string `env:"APP_ENV" envDefault:"development"`
	Name            string `env:"APP_NAME" envDefault:"paywall"`
	BillingProvider string `env:"BILLING_PROVIDER" envDefault:"stripe" validate:"oneof=stripe paddle"`
	JWTSigningKey   string `env:"JWT_SIGNING_KEY,required"`
	JWTIssuer       string `env:"JWT_ISSUER"`
	WebhookMaxBytes int64  `env:"BILLING_WEBHOOK_MAX_BYTES" envDefault:"1048576" validate:"gt=0"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}
	var checkoutCfg checkout.Config
	if err := config.Load(&checkoutCfg); err != nil {
		return fmt.Errorf("load checkout config: %w", err)
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), jwt.LoggerExtractor()),
	)

	catalog, err := checkout.LoadCatalogFile(checkoutCfg.ProductsFile)
	if err != nil {
		return fmt.Errorf("load product catalog: %w", err)
	}

	provider, parser, err := newProvider(app.BillingProvider)
	if err != nil {
		return err
	}

	auth, err := jwt.New(app.JWTSigningKey, jwt.WithIssuer(app.JWTIssuer), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	var (
		closers []func()
		checks  []httpserver.Check
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stores, err := newStores(ctx, checkoutCfg, log, &closers, &checks)
	if err != nil {
		closeAll()
		return err
	}

	sender, err := newSender(log)
	if err != nil {
		closeAll()
		return err
	}

	opts := []checkout.Option{
		checkout.WithLogger(log),
		checkout.WithActivationHook(receiptHook(sender)),
	}
	orch := checkout.NewOrchestrator(checkoutCfg, stores, catalog, provider, opts...)
	rec := checkout.NewReconciler(stores, provider, opts...)
	janitor := checkout.NewJanitor(checkoutCfg, stores, rec, opts...)

	janitorCtx, stopJanitor := context.WithCancel(context.WithoutCancel(ctx))
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		if err := janitor.Run(janitorCtx, checkoutCfg.HousekeepingInterval); err != nil {
			log.Error("janitor stopped", logger.Error(err))
		}
	}()

	svc := billing.New(orch, rec, parser,
		billing.WithLogger(log),
		billing.WithWebhookMaxBytes(app.WebhookMaxBytes),
	)

	srv := httpserver.New(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook(func() {
			stopJanitor()
			<-janitorDone
		}),
		httpserver.WithShutdownHook(closeAll),
	)

	log.Info("starting paywall",
		slog.String("billing_provider", app.BillingProvider),
		slog.String("store", checkoutCfg.Store),
		slog.String("lock_backend", checkoutCfg.LockBackend),
	)
	return srv.Run(ctx, svc.Router(auth, checks...))
}

func newProvider(name string) (checkout.Provider, checkout.WebhookParser, error) {
	switch name {
	case "paddle":
		var cfg checkout.PaddleConfig
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("load paddle config: %w", err)
		}
		p, err := checkout.NewPaddleProvider(cfg)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		var cfg checkout.StripeConfig
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("load stripe config: %w", err)
		}
		p, err := checkout.NewStripeProvider(cfg)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
}

// newStores connects the configured backends. Cleanups and readiness
// checks are appended for every connection opened.
func newStores(ctx context.Context, cfg checkout.Config, log *slog.Logger, closers *[]func(), checks *[]httpserver.Check) (checkout.Stores, error) {
	var (
		stores checkout.Stores
		pool   *pgxpool.Pool
	)

	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory checkout store: state is lost on restart")
		stores = checkout.NewMemoryStore().Stores()
	default:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return stores, fmt.Errorf("load postgres config: %w", err)
		}
		var err error
		pool, err = pg.Connect(ctx, pgCfg)
		if err != nil {
			return stores, err
		}
		*closers = append(*closers, pool.Close)
		*checks = append(*checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})

		if err := pgstore.Migrate(ctx, pool, pgCfg, log); err != nil {
			return stores, err
		}
		stores = pgstore.New(pool).Stores()
	}

	switch cfg.LockBackend {
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return stores, fmt.Errorf("load redis config: %w", err)
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return stores, err
		}
		*closers = append(*closers, func() { _ = client.Close() })
		*checks = append(*checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		stores.Locks = redislock.New(client, redisCfg.KeyPrefix)
	case "memory":
		if pool != nil {
			stores.Locks = checkout.NewMemoryStore()
		}
	default:
		if pool == nil {
			return stores, errors.New("postgres lock backend requires CHECKOUT_STORE=postgres")
		}
	}

	return stores, nil
}

func newSender(log *slog.Logger) (email.Sender, error) {
	var cfg email.Config
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("load email config: %w", err)
	}
	if !cfg.Enabled() {
		return email.NewLogSender(log), nil
	}
	return email.NewPostmarkSender(cfg)
}
