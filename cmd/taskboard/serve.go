package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/daveduya011/wph-task-manager/api"
	"github.com/daveduya011/wph-task-manager/config"
	"github.com/daveduya011/wph-task-manager/events"
	"github.com/daveduya011/wph-task-manager/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task API",
	Long: `Run the task API and page endpoints.

Configuration is read from the environment and an optional .env file.

Examples:
  SESSION_SECRET=dev taskboard serve
  DB_DRIVER=postgres DB_DSN=postgres://localhost/tasks taskboard serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	stores, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	var rc *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var store storage.TaskStore = stores.tasks
	if rc != nil {
		store = storage.NewCache(store, rc, cfg.CacheTTL)
	}
	store = storage.NewTraced(store, cfg.DBDriver)

	publisher, err := newPublisher(cfg, rc, reg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var jwks *keyfunc.JWKS
	if cfg.JWKSURL != "" {
		jwks, err = keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		defer jwks.EndBackground()
	}

	deps := api.Deps{
		Store:         store,
		Accounts:      stores.accounts,
		Sessions:      api.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL, jwks),
		Events:        publisher,
		SecureCookies: cfg.IsProduction(),
		Registry:      reg,
		Logger:        logger,
	}
	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
		deps.Broker = api.NewBroker()
		go deps.Broker.Run(ctx, logger, rc, cfg.EventsChannel)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, api.HeaderIdempotencyKey},
		AllowCredentials: false,
	}))
	if err := api.Register(e, deps); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.ListenAddr,
			"backend": cfg.DBDriver,
			"redis":   rc != nil,
		}).Info("task api listening")
		errc <- e.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type backend struct {
	tasks    storage.TaskStore
	accounts storage.AccountStore
	close    func()
}

// openBackend opens the configured task store. Accounts always live in a
// SQL database; with the aztables driver that is the SQLite file at DB_DSN.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	sqlDriver := cfg.DBDriver
	if sqlDriver == config.DriverTables {
		sqlDriver = storage.DriverSQLite
	}
	db, err := storage.OpenSQL(ctx, sqlDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db.DB(), sqlDriver); err != nil {
		_ = db.Close()
		return nil, err
	}
	b := &backend{tasks: db, accounts: db, close: func() { _ = db.Close() }}
	if cfg.DBDriver == config.DriverTables {
		tables, err := storage.NewTableStore(cfg.StorageConnString, cfg.TasksTable)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		b.tasks = tables
	}
	return b, nil
}

type closingPublisher interface {
	events.Publisher
	Close()
}

func newPublisher(cfg *config.Config, rc *redis.Client, reg prometheus.Registerer, logger *log.Logger) (closingPublisher, error) {
	var sinks events.Multi
	if rc != nil {
		sinks = append(sinks, events.NewRedisPublisher(rc, cfg.EventsChannel))
	}
	if cfg.EventsQueue != "" {
		q, err := events.NewQueuePublisher(cfg.StorageConnString, cfg.EventsQueue)
		if err != nil {
			return nil, fmt.Errorf("events queue: %w", err)
		}
		sinks = append(sinks, q)
	}
	var next events.Publisher = events.Discard{}
	if len(sinks) > 0 {
		next = sinks
	}
	pub := events.NewAsyncPublisher(next, events.PoolConfig{
		Workers:        cfg.EventWorkers,
		Buffer:         cfg.EventBuffer,
		HandoffTimeout: cfg.EventHandoffTimeout,
	}, logger)

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskboard",
		Name:      "events_dropped_total",
		Help:      "Task events dropped because the publish queue was full.",
	})
	if err := reg.Register(dropped); err != nil {
		pub.Close()
		return nil, err
	}
	pub.OnDrop(dropped.Inc)
	return pub, nil
}
