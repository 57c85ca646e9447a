package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/api"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/calendar"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/config"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/database"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/events"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/export"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/holiday"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/locker"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/service"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	holidays := initHolidays(cfg, redisClient, &logger)

	validator := checkout.NewValidator(db, db, db, db, holidays, &logger)
	calculator := calendar.NewCalculator(validator, db, db, &logger)

	coordinator, lockerWorker := initLockers(cfg, db, redisClient, &logger)

	bus := events.NewBus()

	checkouts := service.NewCheckoutService(validator, db, db, db, coordinator, lockerQueue(lockerWorker), bus, &logger)

	exporter := export.NewExporter(db, db, db, cfg.Exports.Path, &logger)

	httpServer := api.NewServer(cfg.API, checkouts, validator, calculator, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	if lockerWorker != nil {
		go lockerWorker.Start(ctx)
	}

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetCatalog(cfg.Tenants, cfg.Bookables)
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initHolidays(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.HolidayProvider {
	if cfg.Holidays.BaseURL == "" {
		return nil
	}
	source := holiday.NewClient(cfg.Holidays.BaseURL, 10*time.Second)
	ttl := time.Duration(cfg.Holidays.CacheTTLMinutes) * time.Minute
	return holiday.NewCachedProvider(source, redisClient, ttl, logger)
}

func initLockers(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (*locker.Coordinator, *worker.LockerWorker) {
	if cfg.Locker.BaseURL == "" {
		logger.Info().Msg("locker backend not configured, locker coordination disabled")
		return nil, nil
	}

	backend := locker.NewClient(cfg.Locker, logger)
	coordinator := locker.NewCoordinator(locker.NewRegistry(), db, db, backend, logger)
	lockerWorker := worker.NewLockerWorker(coordinator, db, db, redisClient, locker.RetryPolicyFor(cfg.Locker.MaxRetries), logger)
	return coordinator, lockerWorker
}

// lockerQueue avoids handing the service a typed nil interface value.
func lockerQueue(w *worker.LockerWorker) service.LockerQueue {
	if w == nil {
		return nil
	}
	return w
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
