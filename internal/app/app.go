package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/BackOfficeGo/internal/config"
	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/event"
	handler "github.com/utafrali/BackOfficeGo/internal/handler/http"
	"github.com/utafrali/BackOfficeGo/internal/repository"
	"github.com/utafrali/BackOfficeGo/internal/repository/postgres"
	rediscache "github.com/utafrali/BackOfficeGo/internal/repository/redis"
	"github.com/utafrali/BackOfficeGo/internal/service"
	"github.com/utafrali/BackOfficeGo/internal/usage"
	"github.com/utafrali/BackOfficeGo/pkg/database"
	"github.com/utafrali/BackOfficeGo/pkg/health"
	pkgkafka "github.com/utafrali/BackOfficeGo/pkg/kafka"
	"github.com/utafrali/BackOfficeGo/pkg/middleware"
	"github.com/utafrali/BackOfficeGo/pkg/tracing"
)

const serviceName = "promotion-service"

// App wires together all dependencies and runs the promotion service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	recorder       *usage.Recorder
	httpServer     *http.Server
	orderCompleted *pkgkafka.Consumer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		ApplicationName: serviceName,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis is optional: without it the catalog is read from PostgreSQL on
	// every evaluation and processed event ids live in memory.
	redisClient := connectRedis(ctx, cfg, logger)

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	repo := postgres.NewPromotionRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	var catalog repository.CatalogProvider = repo
	opts := []service.Option{service.WithLocation(cfg.Location())}
	if redisClient != nil {
		cache := rediscache.NewCatalogCache(redisClient, repo, cfg.CatalogCacheTTL(), logger)
		catalog = cache
		opts = append(opts, service.WithCatalogCache(cache))
	}

	// The listener runs on recorder workers, which only receive work after
	// promotionService is assigned below.
	var promotionService *service.PromotionService
	recorder := usage.NewRecorder(repo, recorderConfig(cfg), logger,
		usage.WithListener(func(ctx context.Context, u domain.PromotionUsage) {
			promotionService.OnUsageRecorded(ctx, u)
		}),
	)
	promotionService = service.NewPromotionService(repo, catalog, recorder, eventProducer, logger, opts...)

	var idempotencyStore pkgkafka.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = event.NewRedisIdempotencyStore(redisClient, cfg.IdempotencyTTL())
	} else {
		idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL())
	}

	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	eventConsumer := event.NewConsumer(recorder, logger)
	orderCompletedConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.OrderCompletedGroupID,
		Topic:    cfg.OrderCompletedTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	},
		pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleOrderCompleted, logger),
		logger,
		pkgkafka.WithDeadLetter(dlq),
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(promotionService, healthHandler, handler.RouterConfig{
		ServiceName:    serviceName,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		CORS:           corsCfg,
		ActiveMaxAge:   time.Duration(cfg.ActiveMaxAgeSeconds) * time.Second,
		DebugNetworks:  cfg.PprofAllowedCIDRs,
		RedeemLimit: middleware.RateLimitConfig{
			Rate:  cfg.RedeemRatePerSecond,
			Burst: cfg.RedeemBurst,
		},
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		dlq:            dlq,
		recorder:       recorder,
		httpServer:     httpServer,
		orderCompleted: orderCompletedConsumer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the order consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.orderCompleted.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order completed consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (no new usage submissions)
// 2. Order consumer
// 3. Usage recorder (drain queued usages while the pool is still open)
// 4. Tracer
// 5. Kafka producers
// 6. Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.orderCompleted.Close(); err != nil {
		a.logger.Error("order completed consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.UsageDrainSeconds)*time.Second)
	defer drainCancel()
	if err := a.recorder.Close(drainCtx); err != nil {
		a.logger.Error("usage recorder drain error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func recorderConfig(cfg *config.Config) usage.Config {
	rc := usage.DefaultConfig()
	rc.QueueSize = cfg.UsageQueueSize
	rc.Workers = cfg.UsageWorkers
	rc.StoreTimeout = time.Duration(cfg.UsageStoreTimeoutMs) * time.Millisecond
	rc.Breaker.FailureRatio = cfg.UsageBreakerFailureRate
	rc.Breaker.MinRequests = cfg.UsageBreakerMinRequests
	rc.Breaker.Timeout = time.Duration(cfg.UsageBreakerTimeoutSecs) * time.Second
	return rc
}

// connectRedis returns nil when Redis is disabled or unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *goredis.Client {
	if !cfg.RedisEnabled {
		logger.Info("redis disabled, catalog cache off")
		return nil
	}
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB

	client, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		logger.Warn("redis unavailable, continuing without catalog cache",
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	return client
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
