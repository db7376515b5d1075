// Package app wires the fulfillment service together and runs it.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/fulfill"
	"github.com/xenking/dropship-fulfillment/internal/gateway"
	"github.com/xenking/dropship-fulfillment/internal/handler"
	"github.com/xenking/dropship-fulfillment/internal/notify"
	"github.com/xenking/dropship-fulfillment/internal/repository"
	"github.com/xenking/dropship-fulfillment/internal/storefront"
	"github.com/xenking/dropship-fulfillment/pkg/health"
	"github.com/xenking/dropship-fulfillment/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the fulfillment loop and the
// management HTTP server, and handles graceful shutdown. It is the
// single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	strategy := supplier.Strategy(cfg.Fulfillment.Strategy)
	if !strategy.Valid() {
		return errors.Errorf("unknown scoring strategy %q", cfg.Fulfillment.Strategy)
	}
	preferred := supplier.Type(cfg.Fulfillment.PreferredSupplier)
	if !preferred.Valid() {
		return errors.Errorf("unknown preferred supplier %q", cfg.Fulfillment.PreferredSupplier)
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Stores.
	orderRepo := repository.NewOrderRepository(pool)
	subRepo := repository.NewSupplierOrderRepository(pool)
	marks := repository.NewWatermarkStore(pool)
	catalog := repository.NewProductRepository(pool)

	// Supplier gateways, optionally wrapped with a Redis snapshot cache.
	var mega gateway.Gateway = gateway.NewMegaSupply(cfg.MegaSupply.BaseURL, cfg.MegaSupply.AppKey, cfg.MegaSupply.AppSecret)
	var prime gateway.Gateway = gateway.NewPrimeParts(cfg.PrimeParts.BaseURL, cfg.PrimeParts.ClientID, cfg.PrimeParts.ClientSecret)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})

		mega = gateway.WithSnapshotCache(mega, rdb, cfg.Fulfillment.SnapshotCacheTTL)
		prime = gateway.WithSnapshotCache(prime, rdb, cfg.Fulfillment.SnapshotCacheTTL)
	}

	gateways := map[supplier.Type]gateway.Gateway{
		supplier.TypeMegaSupply: mega,
		supplier.TypePrimeParts: prime,
	}

	// Notifications: Kafka when brokers are configured, log otherwise.
	var notifier notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(strings.Join(cfg.Kafka.Brokers, ","), cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		notifier = kp
	} else {
		notifier = notify.NewLogNotifier(lg.Named("notify"))
	}

	shop := storefront.NewRESTClient(cfg.Storefront.URL, cfg.Storefront.AccessToken)

	orch := fulfill.New(
		fulfill.Config{
			PollInterval:      cfg.Fulfillment.PollInterval,
			StuckShippedAfter: cfg.Fulfillment.StuckShippedAfter,
			MaxConcurrent:     cfg.Fulfillment.MaxConcurrent,
		},
		orderRepo, subRepo, marks, shop, gateways,
		fulfill.NewDecomposer(gateways, catalog, strategy, preferred),
		notifier,
		lg.Named("fulfill"),
	)

	// Mux: health endpoints + management API on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", handler.New(orderRepo, subRepo, orch).Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, runCtx := errgroup.WithContext(ctx)

	// Fulfillment loop. Stops when the run context is cancelled.
	g.Go(func() error {
		return orch.Run(runCtx)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-runCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
