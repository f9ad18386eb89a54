package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"TrustRegistry/internal/config"
	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/infrastructure/fetcher"
	"TrustRegistry/internal/infrastructure/httpapi"
	"TrustRegistry/internal/infrastructure/parser"
	"TrustRegistry/internal/infrastructure/scheduler"
	"TrustRegistry/internal/infrastructure/storage"
	"TrustRegistry/internal/infrastructure/workers"
	"TrustRegistry/internal/logging"
	"TrustRegistry/internal/ports"
	"TrustRegistry/internal/usecase"
	"TrustRegistry/internal/validation"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	store      ports.Store
	closeStore func() error
	reconciler *usecase.Reconciler
	pool       *workers.Pool
	scheduler  *usecase.Scheduler
	server     *http.Server
}

// New opens the store and builds every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	store, closeStore, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pool := workers.NewPool(cfg.Workers.Crawl, cfg.Workers.Queue, baseLogger.With("component", "workers"))
	reconciler := usecase.NewReconciler(store, baseLogger.With("component", "reconciler"))
	httpFetcher := fetcher.NewHTTPFetcher(cfg.Fetcher, baseLogger.With("component", "fetcher"))

	crawler := usecase.NewCrawler(usecase.CrawlerDeps{
		Repository:         store,
		Fetcher:            httpFetcher,
		StatusLists:        parser.NewStatusListParser(baseLogger.With("component", "parser.status_list")),
		ServiceDefinitions: parser.NewServiceDefinitionParser(baseLogger.With("component", "parser.service_definition")),
		Reconciler:         reconciler,
		Runner:             pool,
		Logger:             baseLogger.With("component", "crawler"),
	})
	checker := usecase.NewChecker(usecase.CheckerDeps{
		Repository:  store,
		Fetcher:     httpFetcher,
		Validators:  validation.NewDefaultRegistry(),
		Concurrency: cfg.Workers.Check,
		Location:    cfg.Scheduler.Location(),
		Logger:      baseLogger.With("component", "checker"),
	})

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		CrawlDriver: scheduler.NewTickerScheduler(cfg.Scheduler.CrawlInterval, cfg.Scheduler.CrawlDelay, cfg.Scheduler.Location()),
		CheckDriver: scheduler.NewTickerScheduler(cfg.Scheduler.CheckInterval, cfg.Scheduler.CheckDelay, cfg.Scheduler.Location()),
		Crawler:     crawler,
		Checker:     checker,
		Runner:      pool,
		Logger:      baseLogger.With("component", "scheduler"),
	})

	api := httpapi.New(usecase.NewTreeBuilder(store), baseLogger.With("component", "http"))
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		store:      store,
		closeStore: closeStore,
		reconciler: reconciler,
		pool:       pool,
		scheduler:  sched,
		server:     server,
	}, nil
}

// Run seeds the root agency, starts the jobs and serves the view until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	root, err := a.reconciler.EnsureRoot(ctx, rootAgency(a.cfg.Root))
	if err != nil {
		return fmt.Errorf("ensure root agency: %w", err)
	}
	a.logger.Info("registry ready", "root_id", root.ID, "territory", root.TerritoryCode, "driver", a.cfg.Database.Driver)

	a.pool.Start()
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *Application) shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	return errors.Join(
		a.server.Shutdown(ctx),
		a.scheduler.Stop(ctx),
		a.pool.Stop(ctx),
		a.closeStore(),
	)
}

func rootAgency(cfg config.RootConfig) domain.Agency {
	root := domain.Agency{
		Type:          domain.AgencyListOperator,
		TerritoryCode: cfg.TerritoryCode,
	}
	if cfg.Name != "" {
		root.Names = []domain.AgencyName{{LanguageCode: cfg.LanguageCode, Name: cfg.Name}}
	}
	if cfg.ListURL != "" {
		root.Documents = []domain.Document{{
			URL:              cfg.ListURL,
			Type:             domain.DocumentStatusList,
			LanguageCode:     cfg.LanguageCode,
			StillProvided:    true,
			ReferencedByType: domain.DocumentStatusList,
		}}
	}
	return root
}
