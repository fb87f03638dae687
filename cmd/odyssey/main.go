package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-wms/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-wms/internal/analytics"
	analytichttp "github.com/odyssey-erp/odyssey-wms/internal/analytics/http"
	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-wms/internal/audit/http"
	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/catalog"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/picking"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, AppName: "odyssey-wms"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, running without cache and events", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	var jobClient *jobs.Client
	if redisClient != nil && cfg.NotifySink == "queue" {
		jobClient, err = jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
	}
	dispatcher := notify.NewDispatcher(eventPublisher(cfg, redisClient, jobClient), cfg.NotifyBuffer, logger)
	dispatcher.OnDrop(metrics.EventDropped)
	dispatcher.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Warn("notify drain", slog.Any("error", err), slog.Int64("dropped", dispatcher.Dropped()))
		}
	}()

	var products catalog.Catalog = catalog.NewRepository(dbpool)
	if redisClient != nil {
		products = catalog.NewCachedCatalog(products, redisClient, cfg.CatalogCacheTTL, logger)
	}

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), logger)
	ledgerService.SetObserver(func(in ledger.DeltaInput, _ ledger.DeltaResult, err error) {
		metrics.ObserveDelta(in.Delta, err)
	})

	engine := scanning.NewEngine(scanning.NewRepository(dbpool), products, ledgerService, dispatcher, logger)
	engine.SetIdempotencyStore(shared.NewIdempotencyStore(dbpool))
	engine.SetObserver(func(scanType scanning.ScanType, status scanning.Status) {
		metrics.ObserveScan(string(scanType), string(status))
	})

	receivingService := receiving.NewService(receiving.NewRepository(dbpool), ledgerService, engine, products, dispatcher, logger)
	pickingService := picking.NewService(picking.NewRepository(dbpool), ledgerService, engine, products, dispatcher,
		picking.ServiceConfig{SecondsPerPick: time.Duration(cfg.PickSecondsPerItem) * time.Second}, logger)
	engine.RegisterWorkflow(scanning.TypeReceiving, receivingService)
	engine.RegisterWorkflow(scanning.TypePicking, pickingService)

	var analyticsCache *analytics.Cache
	if redisClient != nil {
		analyticsCache = analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
		if err := analyticsCache.ListenForInvalidation(ctx, analytics.BumpChannel); err != nil {
			logger.Warn("analytics invalidation listener", slog.Any("error", err))
		}
	}
	analyticsService := analytics.NewService(analytics.NewRepository(dbpool), analyticsCache, logger)

	var jobHandler *jobs.Handler
	readiness := map[string]app.Pinger{"postgres": dbpool}
	if redisClient != nil {
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
		readiness["redis"] = app.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		ScanHandler:      scanning.NewHandler(logger, engine),
		ReceivingHandler: receiving.NewHandler(logger, receivingService),
		PickingHandler:   picking.NewHandler(logger, pickingService),
		AnalyticsHandler: analytichttp.NewHandler(logger, analyticsService, cfg.DashboardRateLimit),
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(shared.NewAuditLogger(dbpool))),
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Readiness:        readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("notify_sink", cfg.NotifySink))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func eventPublisher(cfg *app.Config, client *redis.Client, jobClient *jobs.Client) notify.Publisher {
	switch {
	case cfg.NotifySink == "queue" && jobClient != nil:
		return notify.NewAsynqPublisher(jobClient, jobs.QueueEvents)
	case cfg.NotifySink == "redis" && client != nil:
		return notify.NewRedisPublisher(client)
	default:
		return notify.NopPublisher{}
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	return jobsCLI.Run(ctx, args, os.Stdout, os.Stderr)
}
