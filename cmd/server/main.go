package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/api"
	"github.com/notifyhub/syften-relay/internal/api/handler"
	"github.com/notifyhub/syften-relay/internal/config"
	"github.com/notifyhub/syften-relay/internal/db"
	"github.com/notifyhub/syften-relay/internal/logging"
	"github.com/notifyhub/syften-relay/internal/metrics"
	"github.com/notifyhub/syften-relay/internal/ratelimiter"
	"github.com/notifyhub/syften-relay/internal/repository"
	"github.com/notifyhub/syften-relay/internal/service"
	"github.com/notifyhub/syften-relay/internal/worker"
)

func main() {
	bootLogger, _ := zap.NewProduction()

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("role", cfg.Role), zap.String("queue_driver", cfg.QueueDriver))

	ctx := context.Background()

	// ---- delivery log (optional) ----
	var deliveries repository.DeliveryRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.OpenDeliveryLog(ctx, cfg, db.DefaultMigrations)
		if err != nil {
			logger.Fatal("failed to open delivery log", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("delivery log ready, migrations applied")
		deliveries = repository.NewPgDeliveryRepository(pool)
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr, err := newTransport(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to set up queue", zap.Error(err))
	}

	status := handler.RelayStatus{Role: cfg.Role, QueueDriver: cfg.QueueDriver}
	if tr.Memory != nil {
		status.Depth = tr.Memory.Depth
		m.RegisterQueueDepth(tr.Memory.Depth)
	}

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	// ---- consumer ----
	var sub *worker.Subscription
	if cfg.Dispatches() {
		limiter := ratelimiter.New(cfg.NotifyRateLimit, cfg.NotifyBurst)
		dispatcher := worker.NewDispatcher(
			newChannel(cfg), cfg.Destination(), limiter, deliveries,
			logger.Named("dispatcher"), m.DispatchHooks(),
		)
		sub = worker.Start(workerCtx, tr.Subscriber, dispatcher, logger.Named("subscription"))
		status.Subscription = sub

		if deliveries != nil && cfg.DeliveryRetention > 0 {
			pruner := worker.NewPruneWorker(deliveries, cfg.DeliveryRetention, cfg.DeliveryPruneEvery, logger.Named("prune"))
			go pruner.Run(workerCtx)
		}
	}

	// ---- HTTP server ----
	deps := api.Deps{
		Deliveries:   deliveries,
		Status:       status,
		Gatherer:     reg,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	}
	if cfg.Ingests() {
		deps.Producer = service.NewProducer(tr.Publisher, cfg.PublishConcurrency, m.ProducerHooks(), logger.Named("producer"))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// A terminated subscription is logged by the worker and reported on
	// /api/v1/metrics; ingest keeps serving until a signal arrives.
	<-quit
	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests and drain in-flight batches.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the pull loop and wait for in-flight messages.
	if sub != nil {
		sub.Stop()
	}
	cancelWorkers()

	// 3. Release queue clients.
	if err := tr.close(); err != nil {
		logger.Error("queue close error", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}
