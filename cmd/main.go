package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/Leganyst/travel-booking-core/internal/analytics"
	"github.com/Leganyst/travel-booking-core/internal/api"
	"github.com/Leganyst/travel-booking-core/internal/backend"
	"github.com/Leganyst/travel-booking-core/internal/config"
	"github.com/Leganyst/travel-booking-core/internal/db"
	"github.com/Leganyst/travel-booking-core/internal/events"
	"github.com/Leganyst/travel-booking-core/internal/health"
	"github.com/Leganyst/travel-booking-core/internal/metrics"
	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/queue"
	"github.com/Leganyst/travel-booking-core/internal/reconcile"
	"github.com/Leganyst/travel-booking-core/internal/repository"
	"github.com/Leganyst/travel-booking-core/internal/syncstatus"
)

func main() {
	// 0. .env не обязателен: в контейнере всё приходит из окружения.
	_ = godotenv.Load()

	// 1. Конфиг.
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level).With("app", cfg.App.Name, "version", cfg.App.Version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. БД через GORM и миграции.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		fatal(logger, "init db", err)
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		fatal(logger, "auto migrate", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		fatal(logger, "sql DB", err)
	}
	defer sqlDB.Close()

	// 3. Redis: бэкенд очереди и идемпотентность ручного создания.
	var redisClient *redis.Client
	if cfg.Queue.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			fatal(logger, "connect redis", err)
		}
		defer redisClient.Close()
	}

	// 4. Локальная очередь.
	var queueRepo repository.QueueRepository
	if redisClient != nil {
		queueRepo = repository.NewRedisQueueRepository(redisClient, cfg.Queue.Namespace)
	} else {
		queueRepo = repository.NewGormQueueRepository(gormDB, cfg.Queue.Namespace)
	}
	store := queue.NewStore(queueRepo, logger)

	// 5. Бэкенд бронирований.
	remote, err := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		RateBurst: cfg.Backend.RateBurst,
	}, nil, logger)
	if err != nil {
		fatal(logger, "init backend client", err)
	}

	// 6. Метрики, события, статус синхронизации.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
	}

	reporter := syncstatus.NewReporter(cfg.Reconcile.FreshnessWindow, nil)
	healthSrv := health.NewServer()
	healthSrv.Watch(reporter)

	// 7. Сверка.
	syncEvents := repository.NewGormSyncEventRepository(gormDB)
	reconciler := reconcile.New(remote, store, reconcile.Config{
		PassTimeout:      cfg.Reconcile.PassTimeout,
		PersistTimeout:   cfg.Reconcile.PersistTimeout,
		FlushConcurrency: cfg.Reconcile.FlushConcurrency,
	}, logger,
		reconcile.WithObserver(reporter),
		reconcile.WithPublisher(publisher),
		reconcile.WithMetrics(m),
		reconcile.WithAudit(syncEvents),
	)

	// 8. Аналитика.
	analyticsOpts, err := analyticsOptions(cfg.Analytics)
	if err != nil {
		fatal(logger, "init analytics", err)
	}

	// 9. HTTP.
	handlers := api.NewHandlers(reconciler, store, reporter, syncEvents, analyticsOpts, logger)
	var idem redis.UniversalClient
	if redisClient != nil {
		idem = redisClient
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handlers, registry, idem, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http serve", err)
		}
	}()

	// 10. gRPC: health и reflection.
	grpcServer := grpc.NewServer()
	healthSrv.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		fatal(logger, "listen grpc", err)
	}
	go func() {
		logger.Info("grpc server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			fatal(logger, "grpc serve", err)
		}
	}()

	// 11. Периодическая сверка общей области.
	go runReconcileLoop(ctx, reconciler, cfg.Reconcile.Interval, logger)

	// 12. Грейсфул-шатдаун по сигналу.
	<-ctx.Done()
	logger.Info("shutting down")

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

func runReconcileLoop(ctx context.Context, r *reconcile.Reconciler, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Reconcile(ctx, reconcile.AdminScope()); err != nil && ctx.Err() == nil {
			logger.Warn("scheduled reconcile", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func analyticsOptions(cfg config.Analytics) (api.AnalyticsOptions, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return api.AnalyticsOptions{}, err
	}
	opts := api.AnalyticsOptions{
		Location: loc,
		Cutoffs: analytics.Cutoffs{
			VIPMinSpend:        cfg.VIPMinSpend,
			VIPMinBookings:     cfg.VIPMinBookings,
			LoyalMinBookings:   cfg.LoyalMinBookings,
			ValuableMinSpend:   cfg.ValuableMinSpend,
			RegularMinBookings: cfg.RegularMinBookings,
			ChurnRiskDays:      cfg.ChurnRiskDays,
		},
	}
	if cfg.RulesFile != "" {
		if opts.Rules, err = analytics.LoadRulesFile(cfg.RulesFile); err != nil {
			return api.AnalyticsOptions{}, err
		}
	}
	return opts, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
