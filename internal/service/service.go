package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hourswatch/internal/alerting"
	"hourswatch/internal/config"
	"hourswatch/internal/metrics"
	"hourswatch/internal/probe"
	"hourswatch/internal/scheduler"
	"hourswatch/internal/storage"
)

// Analyzer classifies the current day and persists the result.
type Analyzer interface {
	Analyze(ctx context.Context, schedule storage.ResourceSchedule) (*storage.DailyEvent, error)
}

// Store is the persistence a monitor tick needs.
type Store interface {
	storage.ScheduleStore
	storage.AlertStore
	InsertSample(ctx context.Context, sample *storage.Sample) error
}

// Monitor orchestrates probing, persistence, classification and alerting.
type Monitor struct {
	scheduler *scheduler.Scheduler
	observer  probe.Observer
	analyzer  Analyzer
	store     Store
	notifier  alerting.Notifier
	metrics   *metrics.Registry
	logger    zerolog.Logger

	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
	now      func() time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, observer probe.Observer, analyzer Analyzer, store Store, notifier alerting.Notifier, reg *metrics.Registry, logger zerolog.Logger) *Monitor {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	if reg == nil {
		reg = metrics.New()
	}

	return &Monitor{
		scheduler: sched,
		observer:  observer,
		analyzer:  analyzer,
		store:     store,
		notifier:  notifier,
		metrics:   reg,
		logger:    logger.With().Str("component", "service").Logger(),
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		now:       time.Now,
	}
}

// Run starts the scheduler with the probe session and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context, session scheduler.Session) error {
	if m.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := m.scheduler.Start(ctx, session, m.ProcessTick); err != nil {
		return err
	}
	<-ctx.Done()
	if err := m.scheduler.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("scheduler stop reported an error")
	}
	return ctx.Err()
}

// ProcessTick 执行单次检测: 探测页面、写入样本、重新分类当天并按需告警。
func (m *Monitor) ProcessTick(ctx context.Context, bucket time.Time) error {
	runID := uuid.NewString()
	log := m.logger.With().Str("run_id", runID).Time("bucket", bucket).Logger()

	unlock, proceed, err := m.acquireLock(ctx)
	if err != nil {
		m.metrics.TickFailed()
		return err
	}
	if !proceed {
		log.Debug().Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := m.executeTick(ctx, log); err != nil {
		m.metrics.TickFailed()
		return fmt.Errorf("run %s: %w", runID, err)
	}
	m.metrics.TickCompleted(m.now().Unix())
	return nil
}

func (m *Monitor) executeTick(ctx context.Context, log zerolog.Logger) error {
	if m.store == nil {
		return storage.ErrNotConfigured
	}

	schedule, err := m.store.GetResourceSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load restaurant config: %w", err)
	}
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("restaurant config: %w", err)
	}

	sample := m.observer.Observe(ctx, schedule)
	m.metrics.ObserveProbe(sample)

	if err := m.store.InsertSample(ctx, &sample); err != nil {
		return fmt.Errorf("insert status check: %w", err)
	}
	log.Info().Bool("open", sample.IsOpen).Int64("sample_id", sample.ID).Msg("status check recorded")

	event, err := m.analyzer.Analyze(ctx, schedule)
	if err != nil {
		return fmt.Errorf("analyze daily pattern: %w", err)
	}
	if event == nil {
		return nil
	}
	m.metrics.EventWritten(event.EventType)
	m.maybeAlert(ctx, log, schedule, *event)
	return nil
}

// maybeAlert notifies once per (date, event type) for anomalies.
func (m *Monitor) maybeAlert(ctx context.Context, log zerolog.Logger, schedule storage.ResourceSchedule, event storage.DailyEvent) {
	if !m.alertsOn || m.notifier == nil || !event.EventType.Anomaly() {
		return
	}
	log = log.With().Str("date", event.Date).Str("event_type", string(event.EventType)).Logger()

	created, err := m.store.RecordAlert(ctx, storage.AlertRecord{
		Date:      event.Date,
		EventType: event.EventType,
		Channels:  m.channels,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist alert record")
		return
	}
	if !created {
		log.Debug().Msg("alert already sent for this day")
		return
	}

	note := alerting.NewNotification(schedule, event, m.channels)
	if err := m.notifier.Notify(ctx, note); err != nil {
		log.Error().Err(err).Msg("failed to dispatch alert")
		// retry on a later tick
		if relErr := m.store.ReleaseAlert(ctx, event.Date, event.EventType); relErr != nil {
			log.Error().Err(relErr).Msg("failed to release alert record")
		}
	}
}

func (m *Monitor) acquireLock(ctx context.Context) (func(), bool, error) {
	if m.lockKey == 0 || m.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.locker.TryAdvisoryLock(ctx, m.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
