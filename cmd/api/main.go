package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ledgermart/api/controllers"
	"github.com/angelmondragon/ledgermart/api/routes"
	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/internal/ledger"
	"github.com/angelmondragon/ledgermart/internal/purchase"
	"github.com/angelmondragon/ledgermart/internal/wallet"
	"github.com/angelmondragon/ledgermart/pkg/config"
	"github.com/angelmondragon/ledgermart/pkg/db"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/metrics"
	"github.com/angelmondragon/ledgermart/pkg/migrate"
	"github.com/angelmondragon/ledgermart/pkg/redis"
	"github.com/angelmondragon/ledgermart/pkg/telemetry"
)

const (
	serviceName     = "ledgermart-api"
	shutdownTimeout = 20 * time.Second
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
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		logg.Error(ctx, "failed to set up tracing", err)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	session := wallet.NewSession(logg)
	if cfg.Ledger.SignerKey != "" {
		if _, err := session.ConnectHex(ctx, cfg.Ledger.SignerKey); err != nil {
			logg.Error(ctx, "failed to load configured signer", err)
			os.Exit(1)
		}
	}

	ledgerClient, err := ledger.New(ctx, cfg.Ledger, session, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to ledger", err)
		os.Exit(1)
	}

	reader := items.NewReader(ledgerClient, items.NewRedisCache(redisClient, cfg.Purchase.ItemCacheTTL), logg)
	session.OnChange(reader.OnIdentityChange)

	guard := purchase.NewLocalGuard()
	if cfg.Purchase.DistributedGuard {
		guard, err = purchase.NewRedisGuard(guard, redisClient, cfg.Purchase.GuardTTL, logg)
		if err != nil {
			logg.Error(ctx, "failed to build purchase guard", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	purchaseMetrics := purchase.NewMetricsNotifier(metrics.NewPurchaseMetrics(registry))
	journal := purchase.NewJournalRecorder(dbClient, purchase.NewRepository(dbClient.DB()), logg)

	orchestrator, err := purchase.NewOrchestrator(purchase.Dependencies{
		Wallet:      session,
		Granter:     ledgerClient,
		Submitter:   ledgerClient,
		Revalidator: reader,
		Notifier:    purchase.Notifiers{purchase.NewLogNotifier(logg), purchaseMetrics},
		Recorder:    purchase.Recorders{journal, purchaseMetrics},
		Guard:       guard,
	})
	if err != nil {
		logg.Error(ctx, "failed to build purchase orchestrator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:      cfg,
			Logger:      logg,
			Idempotency: redisClient,
			Checks: map[string]controllers.Pinger{
				"db":     dbClient,
				"redis":  redisClient,
				"ledger": ledgerClient,
			},
			Gatherer:  registry,
			Items:     reader,
			Purchases: orchestrator,
			Journal:   purchase.NewJournalService(purchase.NewRepository(dbClient.DB())),
			Wallet:    session,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, server.Shutdown(shutdownCtx))
	errs = multierr.Append(errs, shutdownTracing(shutdownCtx))
	ledgerClient.Close()
	errs = multierr.Append(errs, redisClient.Close())
	errs = multierr.Append(errs, dbClient.Close())
	if errs != nil {
		logg.Error(shutdownCtx, "shutdown completed with errors", errs)
		os.Exit(1)
	}
	logg.Info(shutdownCtx, "api server stopped")
}
