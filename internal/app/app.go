package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NewsScout/internal/config"
	"NewsScout/internal/costs"
	"NewsScout/internal/fetch"
	"NewsScout/internal/infrastructure/llm"
	"NewsScout/internal/infrastructure/scheduler"
	"NewsScout/internal/infrastructure/storage"
	"NewsScout/internal/infrastructure/telegram"
	"NewsScout/internal/logging"
	"NewsScout/internal/rank"
	"NewsScout/internal/safeurl"
	"NewsScout/internal/source"
	"NewsScout/internal/usecase"
)

// Application wires configuration to use cases and owns lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.PostgresStore
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	if cfg.Database.InitSchema {
		if err := store.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	orchestrator := fetch.NewOrchestrator(source.Deps{
		Client:           &http.Client{Timeout: 8 * time.Second},
		Validator:        safeurl.NewValidator(),
		SocialConfigured: cfg.Social.APIToken != "",
	}, baseLogger.With("component", "fetch"))

	chat := llm.NewChatGPTClient(cfg.LLM.Endpoint, cfg.LLM.APIKey)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:                    store,
		Orchestrator:             orchestrator,
		Selector:                 rank.NewSelector(chat),
		Ledger:                   costs.NewLedger(),
		Notifier:                 telegram.NewNotifier(cfg.Notifications.Telegram.BotToken),
		Logger:                   baseLogger.With("component", "pipeline"),
		Lookback:                 cfg.Pipeline.Lookback(),
		Provider:                 cfg.LLM.Provider,
		ExtraPaywallURLPatterns:  cfg.Pipeline.ExtraPaywallURLs,
		ExtraPaywallTitlePhrases: cfg.Pipeline.ExtraPaywallPhrases,
	})

	application := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		pipeline: pipeline,
	}

	if cfg.Scheduler.Enabled {
		driver := scheduler.NewTickerScheduler(cfg.Scheduler.Interval())
		application.scheduler = usecase.NewScheduler(driver, store, pipeline, baseLogger.With("component", "scheduler"))
	}

	return application, nil
}

// ExecuteRun processes a single run by ID, for externally triggered
// deployments.
func (a *Application) ExecuteRun(ctx context.Context, runID string) error {
	return a.pipeline.Execute(ctx, runID)
}

// Close releases the storage pool. Callers defer it regardless of
// which entry point they used.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Run starts the pending-run sweep and blocks until shutdown.
func (a *Application) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return fmt.Errorf("scheduler disabled; pass a run id to execute a single run")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval", a.cfg.Scheduler.Interval().String())

	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}
