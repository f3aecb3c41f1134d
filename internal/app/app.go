package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalog-indexer/internal/assembler"
	"github.com/utafrali/catalog-indexer/internal/config"
	"github.com/utafrali/catalog-indexer/internal/content"
	"github.com/utafrali/catalog-indexer/internal/engine"
	bleveengine "github.com/utafrali/catalog-indexer/internal/engine/bleve"
	esengine "github.com/utafrali/catalog-indexer/internal/engine/elasticsearch"
	memengine "github.com/utafrali/catalog-indexer/internal/engine/memory"
	"github.com/utafrali/catalog-indexer/internal/event"
	handler "github.com/utafrali/catalog-indexer/internal/handler/http"
	"github.com/utafrali/catalog-indexer/internal/properties"
	"github.com/utafrali/catalog-indexer/internal/reindex"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/internal/repository/memory"
	"github.com/utafrali/catalog-indexer/internal/repository/postgres"
	"github.com/utafrali/catalog-indexer/internal/service"
	"github.com/utafrali/catalog-indexer/internal/worker"
	"github.com/utafrali/catalog-indexer/pkg/database"
	"github.com/utafrali/catalog-indexer/pkg/health"
	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

const (
	serviceName       = "indexer"
	idempotencyTTL    = 24 * time.Hour
	dueKeyPrefix      = "reindex:due"
	idempotencyPrefix = "indexer:event"
)

// App wires together all dependencies and runs the indexer service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	registry       *worker.Registry
	stopWorkers    context.CancelFunc
	indexService   *service.IndexService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
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
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	catalog, err := a.openCatalog(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Redis backs event de-duplication and the reindex-due schedule so that
	// replicas share them. Without it both stay in process.
	var (
		dueStore         reindex.Store = reindex.NewMemoryStore()
		idempotencyStore pkgkafka.IdempotencyStore
	)
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("addr", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)))

		dueStore = reindex.NewRedisStore(client, dueKeyPrefix)
		idempotencyStore = pkgkafka.NewRedisIdempotencyStore(client, idempotencyPrefix, idempotencyTTL)
		healthHandler.Register("redis", database.RedisPinger{Client: client}.Ping)
	} else {
		idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
	}

	props, err := properties.Load(cfg.PropertiesFile)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}

	opener, err := a.openEngine(healthHandler)
	if err != nil {
		return nil, err
	}

	// Build the dependency graph.
	renderer := content.NewDefaultHTTPRenderer(cfg.ContentServiceURL, logger)
	builder := assembler.New(catalog, renderer, props, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	a.stopWorkers = stopWorkers
	a.registry = worker.NewRegistry(workerCtx, func(owner string) *worker.Worker {
		return worker.New(worker.Config{Owner: owner, BatchSize: cfg.IndexBatchSize}, builder, opener, dueStore, logger)
	})
	a.registry.Get(cfg.IndexOwner)

	a.indexService = service.NewIndexService(a.registry, catalog, dueStore, cfg.IndexOwner, logger)
	healthHandler.Register("worker", a.indexService.Ready)

	// Kafka triggers.
	if cfg.KafkaEnabled {
		eventConsumer := event.NewConsumer(a.indexService, logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topics:   event.Topics(),
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.Handle, logger), logger).WithDeadLetter(a.dlq)

		brokers := cfg.KafkaBrokers
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
	}

	// HTTP router.
	router := handler.NewRouter(a.indexService, healthHandler, handler.RouterConfig{
		AdminAllowedCIDRs: cfg.AdminAllowedCIDRs,
		PprofEnabled:      cfg.PprofEnabled,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// openCatalog connects the relational catalog source.
func (a *App) openCatalog(ctx context.Context, healthHandler *health.Handler) (repository.Catalog, error) {
	cfg := a.cfg
	if cfg.CatalogSource == config.SourceMemory {
		a.logger.Warn("using in-memory catalog; products must be loaded by tests or tooling")
		return memory.NewCatalog(), nil
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	if cfg.DBAutoMigrate {
		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	healthHandler.Register("postgres", pool.Ping)
	return postgres.NewCatalogRepository(pool), nil
}

// openEngine selects the index storage backend.
func (a *App) openEngine(healthHandler *health.Handler) (engine.Opener, error) {
	cfg := a.cfg
	switch cfg.IndexEngine {
	case config.EngineElasticsearch:
		opener, err := esengine.NewOpener(cfg.ElasticsearchURL, cfg.ElasticsearchIndexPrefix, a.logger)
		if err != nil {
			return nil, fmt.Errorf("create elasticsearch opener: %w", err)
		}
		healthHandler.Register("elasticsearch", opener.Ping)
		a.logger.Info("using elasticsearch index", slog.String("url", cfg.ElasticsearchURL))
		return opener, nil
	case config.EngineMemory:
		a.logger.Warn("using in-memory index; documents are lost on restart")
		return memengine.NewStore(), nil
	default:
		a.logger.Info("using bleve index", slog.String("root", cfg.IndexRoot))
		return bleveengine.NewOpener(cfg.IndexRoot, a.logger), nil
	}
}

// Handler returns the HTTP handler of the admin surface.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("catalog event consumer: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer
// 4. Index workers (close open writers)
// 5. DLQ producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Stop triggers before the workers so nothing is enqueued late.
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Stop workers; each closes its writer on the way out (10s budget).
	if a.stopWorkers != nil {
		a.stopWorkers()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer waitCancel()
		if err := a.registry.Wait(waitCtx); err != nil {
			a.logger.Error("index workers did not stop in time", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Release connections.
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
