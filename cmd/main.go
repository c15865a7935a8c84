package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/civicwatch/internal/adapters/fetch"
	"github.com/okian/civicwatch/internal/adapters/http/api"
	redisdedupe "github.com/okian/civicwatch/internal/adapters/redis"
	"github.com/okian/civicwatch/internal/adapters/repository"
	"github.com/okian/civicwatch/internal/adapters/repository/postgres"
	service "github.com/okian/civicwatch/internal/app"
	"github.com/okian/civicwatch/internal/config"
	"github.com/okian/civicwatch/internal/domain/adapter"
	"github.com/okian/civicwatch/internal/domain/dedupe"
	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
	"github.com/okian/civicwatch/pkg/logger"
	"github.com/okian/civicwatch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Minute // POST /runs waits for the whole cycle
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline cycle and exit")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Stderr.WriteString("failed to load " + *envFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, *once, log); err != nil {
		log.Error(ctx, "civicwatch stopped with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// components holds the wired process graph.
type components struct {
	store     repository.EventStore
	scheduler *service.Scheduler
	server    *api.Server
	closers   []func()
}

// Close releases resources in reverse acquisition order.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// build wires store, deduper, rules, orchestrator, scheduler and API from cfg.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	c := &components{}

	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closers = append(c.closers, closeStore)

	deduper, closeDeduper, err := buildDeduper(ctx, cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeDeduper)

	engine, err := buildEngine(cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}

	fetcher := fetch.NewRouter(
		fetch.WithClient(fetch.NewHTTPClient(cfg.FetchTimeout)),
		fetch.WithUserAgent(cfg.UserAgent),
	)
	orch := service.New(store,
		service.WithSources(cfg.Sources),
		service.WithRegistry(adapter.Default(extract.NewHeuristic())),
		service.WithEngine(engine),
		service.WithFetcher(fetcher),
		service.WithDeduper(deduper),
		service.WithAlertSink(logAlerts(log.Named("alerts"))),
		service.WithConcurrency(cfg.MaxConcurrency),
		service.WithFetchTimeout(cfg.FetchTimeout),
		service.WithLogger(log.Named("orchestrator")),
	)
	c.scheduler = service.NewScheduler(orch, cfg.RunInterval, log.Named("scheduler"))
	c.server = api.NewServer(store, c.scheduler,
		api.WithLogger(log.Named("http")),
		api.WithSourceLister(orch),
	)
	return c, nil
}

func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.EventStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		log.Info(ctx, "using postgres event store")
		return s, s.Close, nil
	default:
		log.Info(ctx, "using in-memory event store", logger.Int("capacity", cfg.StoreCapacity))
		return repository.NewMemoryStore(repository.WithCapacity(cfg.StoreCapacity)), func() {}, nil
	}
}

// buildDeduper returns nil when alert suppression is disabled.
func buildDeduper(ctx context.Context, cfg *config.Config, log logger.Logger) (dedupe.Deduper, func(), error) {
	if cfg.AlertDedupeWindow <= 0 {
		return nil, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		log.Info(ctx, "alert suppression in memory", logger.Duration("window", cfg.AlertDedupeWindow))
		return dedupe.NewInMemoryDeduper(
			dedupe.WithWindow(cfg.AlertDedupeWindow),
			dedupe.WithMaxSize(cfg.AlertDedupeSize),
		), func() {}, nil
	}

	client, err := redisdedupe.NewClient(ctx, redisdedupe.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info(ctx, "alert suppression in redis", logger.String("addr", cfg.RedisAddr), logger.Duration("window", cfg.AlertDedupeWindow))
	d := redisdedupe.NewDeduper(client,
		redisdedupe.WithWindow(cfg.AlertDedupeWindow),
		redisdedupe.WithLogger(log.Named("redis")),
	)
	return d, closeRedis(client), nil
}

func closeRedis(client *goredis.Client) func() {
	return func() { _ = client.Close() }
}

func buildEngine(cfg *config.Config, log logger.Logger) (*rules.Engine, error) {
	rs, err := cfg.LoadRules()
	if err != nil {
		return nil, err
	}
	engine := rules.New(rs, rules.WithLogger(log.Named("rules")))
	metrics.UpdateRules(engine.Len(), len(engine.Skipped()))
	log.Info(context.Background(), "rules loaded", logger.Int("active", engine.Len()), logger.Int("skipped", len(engine.Skipped())))
	return engine, nil
}

// logAlerts is the default alert hand-off: one structured log line per alert.
func logAlerts(log logger.Logger) service.AlertSink {
	return func(ctx context.Context, sourceID string, alerts []model.Alert) error {
		for _, a := range alerts {
			log.Info(ctx, a.Message,
				logger.String("rule", a.RuleName),
				logger.String("severity", string(a.Severity)),
				logger.String("event_id", a.EventID),
				logger.String("source_id", sourceID),
			)
		}
		return nil
	}
}

// run builds the process and either performs one cycle or serves until ctx
// ends.
func run(ctx context.Context, cfg *config.Config, once bool, log logger.Logger) error {
	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if once {
		r, err := c.scheduler.Trigger(ctx)
		if err != nil {
			return err
		}
		t := r.Totals()
		log.Info(ctx, "single run complete",
			logger.String("run_id", r.RunID),
			logger.Int("sources", t.Sources),
			logger.Int("failed", t.Failed),
			logger.Int("alerts", t.Alerts),
		)
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.server.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		c.scheduler.Run(schedCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	// an in-flight cycle finishes the sources it already started
	stopSched()
	<-schedDone
	log.Info(ctx, "server stopped")
	return runErr
}
