package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/hartwellgoods/storefront-backend/api/routes"
	"github.com/hartwellgoods/storefront-backend/internal/cart"
	"github.com/hartwellgoods/storefront-backend/internal/commerce"
	"github.com/hartwellgoods/storefront-backend/pkg/config"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
	"github.com/hartwellgoods/storefront-backend/pkg/metrics"
	"github.com/hartwellgoods/storefront-backend/pkg/pubsub"
	"github.com/hartwellgoods/storefront-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	commerceClient, err := commerce.NewClient(cfg.Commerce, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create commerce client", err)
		os.Exit(1)
	}
	dispatcher, err := commerce.NewDispatcher(commerceClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create commerce dispatcher", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	cartMetrics := metrics.NewCartMetrics(promRegistry)

	var events cart.EventSink
	var pubsubClient *pubsub.Client
	if cfg.PubSub.Enabled() {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create pubsub client", err)
			os.Exit(1)
		}
		events = cart.NewPublishingSink(pubsubClient, logg)
	}

	registry, err := cart.NewRegistry(cart.RegistryParams{
		Factory: func(token string) (*cart.Engine, error) {
			return cart.NewEngine(cart.EngineParams{
				Token:      token,
				Dispatcher: dispatcher,
				Fetcher:    dispatcher,
				Cache:      redisClient,
				CacheTTL:   cfg.Cart.SnapshotCacheTTL,
				Metrics:    cartMetrics,
				Events:     events,
				Logger:     logg,
			})
		},
		IdleTTL: cfg.Cart.EngineIdleTTL,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart registry", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting storefront api")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			Redis:    redisClient,
			Engines:  registry,
			Registry: promRegistry,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, server.Shutdown(shutdownCtx))
	// Drain in-flight mutations so their confirmed snapshots reach the cache.
	errs = multierr.Append(errs, registry.Close(shutdownCtx))
	if pubsubClient != nil {
		errs = multierr.Append(errs, pubsubClient.Close())
	}
	errs = multierr.Append(errs, redisClient.Close())

	if errs != nil {
		logg.Error(ctx, "shutdown finished with errors", errs)
		os.Exit(1)
	}
	logg.Info(ctx, "shutdown complete")
}
