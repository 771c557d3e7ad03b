package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fluentloop/backend/internal/catalog"
	"github.com/fluentloop/backend/internal/feature"
	"github.com/fluentloop/backend/internal/handler"
	"github.com/fluentloop/backend/internal/identity"
	"github.com/fluentloop/backend/internal/storage/postgres"
	"github.com/fluentloop/backend/internal/subscription"
	"github.com/fluentloop/backend/pkg/config"
	"github.com/fluentloop/backend/pkg/httpserver"
	"github.com/fluentloop/backend/pkg/logger"
	"github.com/fluentloop/backend/pkg/pg"
	"github.com/fluentloop/backend/pkg/redis"
)

// adminConfig lists identities that receive complimentary premium on sign-in.
type adminConfig struct {
	AllowedEmails []string `env:"ADMIN_ALLOWLIST_EMAILS" envSeparator:","`
}

func main() {
	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg, logger.WithAttr(slog.String("app", "fluentloop-backend")))

	if err := run(context.Background(), log); err != nil {
		log.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		pgCfg       pg.Config
		httpCfg     httpserver.Config
		identityCfg identity.Config
		stripeCfg   subscription.StripeConfig
		catalogCfg  catalog.Config
		redisCfg    redis.Config
		adminCfg    adminConfig
	)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&identityCfg)
	config.MustLoad(&stripeCfg)
	config.MustLoad(&catalogCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&adminCfg)

	// Billing credentials are validated up front: a server that boots
	// without them would silently fail every checkout and webhook.
	provider, err := subscription.NewStripeProvider(stripeCfg)
	if err != nil {
		return err
	}

	plans, err := catalog.Load(catalogCfg)
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, postgres.Migrations, log); err != nil {
		return err
	}

	store := postgres.NewStore(pool)

	var reconcilerOpts []subscription.ReconcilerOption
	if redisCfg.ConnectionURL != "" {
		redisClient, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			// Reconciliation is idempotent without the guard, so a
			// missing redis is degraded service, not a startup failure.
			log.Warn("redis unavailable, webhook dedup disabled", logger.Error(err))
		} else {
			defer redisClient.Close()
			reconcilerOpts = append(reconcilerOpts,
				subscription.WithEventDeduper(subscription.NewRedisEventDeduper(redisClient)))
		}
	}

	resolver := subscription.NewResolver(store, provider, log)
	service := subscription.NewService(store, provider, log)
	reconciler := subscription.NewReconciler(store, provider, log, reconcilerOpts...)
	provisioner := subscription.NewProvisioner(store, subscription.NewAllowList(adminCfg.AllowedEmails), log)
	gate := feature.NewGate(resolver, plans.PremiumFeatures, log)

	router := handler.New(handler.Deps{
		Resolver:    resolver,
		Gate:        gate,
		Checkout:    service,
		Reconciler:  reconciler,
		Provisioner: provisioner,
		Payments:    store,
		Catalog:     plans,
		Identity:    identityCfg,
		Log:         log,
		Healthcheck: pg.Healthcheck(pool),
	})

	srv := httpserver.New(httpCfg, log)
	return srv.Run(ctx, router)
}
