package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mobilemech/internal/api"
	"mobilemech/internal/config"
	"mobilemech/internal/database"
	"mobilemech/internal/domain"
	"mobilemech/internal/events"
	"mobilemech/internal/logging"
	"mobilemech/internal/metrics"
	"mobilemech/internal/postgres"
	"mobilemech/internal/postgrest"
	"mobilemech/internal/repository"
	"mobilemech/internal/service"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ready, closeStore, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	runs := initRunHistory(redisClient, logger)

	publisher, closePublisher := initPublisher(cfg, logger)
	defer closePublisher()

	canceller := service.NewOverdueCanceller(store, publisher, logging.Component(logger, "autocancel")).
		WithRecorder(runs)

	httpServer := api.NewHTTPServer(cfg.API, canceller, runs, logging.Component(logger, "http")).
		WithReadyCheck(ready)

	startMetrics(ctx, cfg, logger)

	return startServer(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

type readyFunc = func(context.Context) error

// initStore returns a nil store when the backend is not configured; every
// run then fails with service.ErrNotConfigured.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.AppointmentStore, readyFunc, func(), error) {
	noop := func() {}
	if !cfg.Database.HasPersistenceCredentials() {
		logger.Warn().Str("driver", cfg.Database.Driver).Msg("persistence backend not configured")
		return nil, func(context.Context) error { return service.ErrNotConfigured }, noop, nil
	}

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, noop, err
		}
		return db, db.PingContext, func() { _ = db.Close() }, nil

	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Database.Postgres.DSN, cfg.Database.Postgres.MaxConnections)
		if err != nil {
			logger.Error().Err(err).Msg("connect postgres")
			return nil, nil, noop, err
		}
		logger.Info().Msg("postgres connected")
		return postgres.NewStore(pool), postgres.ReadyCheck(pool), pool.Close, nil

	case config.DriverPostgREST:
		client, err := postgrest.New(postgrest.Config{
			URL:     cfg.Database.PostgREST.URL,
			APIKey:  cfg.Database.PostgREST.ServiceKey,
			Timeout: cfg.Database.PostgREST.Timeout,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init postgrest client: %w", err)
		}
		logger.Info().Str("url", cfg.Database.PostgREST.URL).Msg("postgrest backend configured")
		return postgrest.NewStore(client), client.Ping, noop, nil
	}

	return nil, nil, noop, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initRunHistory(redisClient *redis.Client, logger *zerolog.Logger) domain.RunRepository {
	memory := repository.NewMemoryRunRepository(0)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRunRepository(
		repository.NewRedisRunRepository(redisClient, 0),
		memory,
		logging.Component(logger, "run-history"),
	)
}

func initPublisher(cfg *config.Config, logger *zerolog.Logger) (domain.EventPublisher, func()) {
	brokers := events.SplitBrokers(strings.Join(cfg.Kafka.Brokers, ","))
	if len(brokers) > 0 {
		kp, err := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		if err == nil {
			logger.Info().Strs("brokers", brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
			return kp, func() { _ = kp.Close() }
		}
		logger.Warn().Err(err).Msg("kafka publisher init failed, using in-process bus")
	}

	bus := events.NewEventBus()
	eventLog := logging.Component(logger, "events")
	bus.Subscribe(events.EventAppointmentAutoCancelled, func(e *events.Event) error {
		eventLog.Debug().Str("type", e.Type).RawJSON("payload", e.Payload).Msg("event")
		return nil
	})
	return bus, func() {}
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

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
