package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/merchstack/tierprice-service/api/controllers"
	"github.com/merchstack/tierprice-service/api/routes"
	"github.com/merchstack/tierprice-service/internal/catalog"
	"github.com/merchstack/tierprice-service/internal/indexer"
	"github.com/merchstack/tierprice-service/internal/tierprice"
	"github.com/merchstack/tierprice-service/pkg/config"
	"github.com/merchstack/tierprice-service/pkg/db"
	"github.com/merchstack/tierprice-service/pkg/env"
	"github.com/merchstack/tierprice-service/pkg/logger"
	"github.com/merchstack/tierprice-service/pkg/metrics"
	"github.com/merchstack/tierprice-service/pkg/migrate"
	"github.com/merchstack/tierprice-service/pkg/pubsub"
	"github.com/merchstack/tierprice-service/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeResources(dbClient, redisClient, pubsubClient); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reconcileMetrics := metrics.NewReconcileMetrics(registry)

	locator, err := catalog.NewLocator(dbClient, redisClient, cfg.Pricing.LookupCacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sku locator", err)
		os.Exit(1)
	}

	store, err := tierprice.NewStore(dbClient, cfg.Pricing.LinkField)
	if err != nil {
		logg.Error(context.Background(), "failed to create tier price store", err)
		os.Exit(1)
	}

	trigger, err := indexer.NewTrigger(pubsubClient.ReindexPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reindex trigger", err)
		os.Exit(1)
	}

	priceService := tierprice.NewService(
		locator,
		store,
		tierprice.NewValidator(cfg.Pricing.PriceLists),
		trigger,
		logg,
		reconcileMetrics,
		cfg.Pricing.MaxBatchSize,
	)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			priceService,
			redisClient,
			map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func closeResources(dbClient *db.Client, redisClient *redis.Client, pubsubClient *pubsub.Client) error {
	return multierr.Combine(
		dbClient.Close(),
		redisClient.Close(),
		pubsubClient.Close(),
	)
}
