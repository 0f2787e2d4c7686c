package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"token-health-alerts/internal/alerting"
	"token-health-alerts/internal/config"
	"token-health-alerts/internal/dispatch"
	"token-health-alerts/internal/engine"
	"token-health-alerts/internal/gate"
	"token-health-alerts/internal/observability"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scheduler"
	"token-health-alerts/internal/service"
	"token-health-alerts/internal/snapshot"
	"token-health-alerts/internal/source"
	"token-health-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() source.Source {
	return source.NewHTTP(source.HTTPOptions{
		BaseURL:   a.Config.Source.FeedURL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running evaluation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var metrics *observability.Metrics
	if a.Config.Observability.Enabled {
		metrics = observability.NewMetrics(a.Config.Observability.Namespace)
		go func() {
			if err := metrics.Serve(ctx, a.Config.Observability.ListenAddr); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server terminated")
			}
		}()
	}

	catalog, err := rules.NewCatalog(a.Config.Engine.RulesPath, a.Logger)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no alert channel configured; fires persist but do not notify")
	}

	var alertWriter dispatch.AlertWriter
	if store != nil {
		alertWriter = store
	}
	dispatcher := dispatch.New(alertWriter, notifier, metrics, a.Logger)
	defer dispatcher.Close()

	g := gate.New()
	evaluator := engine.New(catalog, g, dispatcher, metrics, a.Logger)

	var recorder *snapshot.Recorder
	if store != nil {
		recorder = snapshot.NewRecorder(store, metrics, a.Logger)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToTick:  a.Config.Scheduler.AlignToTick,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	deps := service.Deps{
		Scheduler: sched,
		Source:    a.newSource(),
		Evaluator: evaluator,
		Recorder:  recorder,
		Catalog:   catalog,
		Gate:      g,
		Metrics:   metrics,
	}
	if store != nil {
		deps.Locker = store
		deps.Seeder = store
	}

	svc := service.New(a.Config, deps, a.Logger)

	a.Logger.Info().Msg("starting evaluation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("evaluation service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Entity string
	Limit  int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Entity string
}

// ExportOptions hold parameters for exporting score history.
type ExportOptions struct {
	Entity    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions describe one synthetic snapshot.
type SimulateOptions struct {
	Entity     string
	Age        time.Duration
	Liquidity  float64
	Holders    int64
	FreshPct   float64
	SniperPct  float64
	InsiderPct float64
	Top10Pct   float64
}
