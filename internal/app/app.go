package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hourswatch/internal/alerting"
	"hourswatch/internal/api"
	"hourswatch/internal/classifier"
	"hourswatch/internal/config"
	"hourswatch/internal/metrics"
	"hourswatch/internal/probe"
	"hourswatch/internal/schedulefile"
	"hourswatch/internal/scheduler"
	"hourswatch/internal/service"
	"hourswatch/internal/storage"
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

func (a *App) newProbe() *probe.Probe {
	cfg := a.Config.Probe

	var loader probe.PageLoader
	switch cfg.Engine {
	case "chrome":
		loader = probe.NewChromeLoader(probe.ChromeOptions{
			ExecPath:    cfg.ChromePath,
			UserAgent:   cfg.UserAgent,
			SettleDelay: cfg.SettleDelay,
		}, a.Logger)
	default:
		loader = probe.NewHTTPLoader(probe.HTTPOptions{
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
		})
	}

	return probe.New(probe.Options{
		Timeout:      cfg.Timeout,
		ExcerptLimit: cfg.ExcerptLimit,
	}, loader, a.Logger)
}

func (a *App) newClassifier(store classifier.Store) *classifier.Classifier {
	return classifier.New(store, classifier.Options{
		MinSamples: a.Config.Classifier.MinSamples,
		PruneStale: a.Config.Classifier.PruneStale,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers []alerting.Notifier
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if a.Config.Alerting.Email.Enabled {
		cfg := a.Config.Alerting.Email
		notifiers = append(notifiers, alerting.NewEmailNotifier(cfg.APIKey, cfg.From, cfg.To, cfg.Endpoint, a.Logger))
	}

	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return alerting.NewMulti(notifiers...)
	}
}

func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// seedSchedule saves the schedule file into the store when one is configured.
func (a *App) seedSchedule(ctx context.Context, store storage.ScheduleStore) error {
	path := a.Config.Schedule.File
	if path == "" {
		return nil
	}
	schedule, err := schedulefile.Load(path)
	if err != nil {
		return err
	}
	if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Str("url", schedule.URL).Msg("restaurant config applied from file")
	return nil
}

func (a *App) watchSchedule(ctx context.Context, store storage.ScheduleStore) error {
	return schedulefile.Watch(ctx, a.Config.Schedule.File, a.Logger, func(schedule storage.ResourceSchedule) {
		if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
			a.Logger.Error().Err(err).Msg("failed to save reloaded restaurant config")
		}
	})
}

// Run executes the long-running monitor together with the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := a.seedSchedule(ctx, store); err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunImmediately,
	}, a.Logger)

	reg := metrics.New()
	prb := a.newProbe()
	monitor := service.New(a.Config, sched, prb, a.newClassifier(store), store, a.newNotifier(), reg, a.Logger)
	query := service.NewQuery(store, a.Config.API.DefaultSampleLimit, a.Logger)
	server := api.NewServer(query, reg, a.Logger).WithMaxCalendarDays(a.Config.API.MaxCalendarDays)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return monitor.Run(gctx, prb)
	})
	group.Go(func() error {
		return server.ListenAndServe(gctx, a.Config.API.Listen)
	})
	if a.Config.Schedule.File != "" && a.Config.Schedule.Watch {
		group.Go(func() error {
			return a.watchSchedule(gctx, store)
		})
	}

	a.Logger.Info().Str("listen", a.Config.API.Listen).Str("engine", a.Config.Probe.Engine).Msg("starting monitoring service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Serve runs only the read API against the configured store.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	query := service.NewQuery(store, a.Config.API.DefaultSampleLimit, a.Logger)
	return api.NewServer(query, nil, a.Logger).
		WithMaxCalendarDays(a.Config.API.MaxCalendarDays).
		ListenAndServe(ctx, a.Config.API.Listen)
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// CalendarOptions configure the calendar command.
type CalendarOptions struct {
	From string
	To   string
}

// ClassifyOptions configure re-classification of past days.
type ClassifyOptions struct {
	From   string
	To     string
	DryRun bool
}
