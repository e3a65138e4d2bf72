// Package classifier reduces a day of probe samples to one daily event.
package classifier

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"hourswatch/internal/storage"
)

// DefaultMinSamples is the sample count after which an in-hours verdict is persisted.
const DefaultMinSamples = 5

// Result is the outcome of classifying one day's samples at a point in time.
type Result struct {
	Date         string
	WallTime     string
	OperatingDay bool
	WithinHours  bool
	EventType    storage.EventType
	ActualOpen   *string
	ActualClose  *string
	Total        int
	Open         int
	Closed       int
	Timezone     string
}

// HasEvent reports whether a classification rule matched.
func (r Result) HasEvent() bool {
	return r.EventType != ""
}

// ShouldPersist applies the write-gate: a matched event is stored once the
// operating window has passed or enough samples have accumulated.
func (r Result) ShouldPersist(minSamples int) bool {
	if !r.HasEvent() {
		return false
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return !r.WithinHours || r.Total >= minSamples
}

// Event converts the result into the row written to the event store.
func (r Result) Event(schedule storage.ResourceSchedule, now time.Time) storage.DailyEvent {
	return storage.DailyEvent{
		Date:              r.Date,
		EventType:         r.EventType,
		ExpectedOpenTime:  schedule.OpenTime,
		ExpectedCloseTime: schedule.CloseTime,
		ActualOpenTime:    r.ActualOpen,
		ActualCloseTime:   r.ActualClose,
		Details: storage.EventDetails{
			TotalChecks:  r.Total,
			OpenChecks:   r.Open,
			ClosedChecks: r.Closed,
			LastUpdated:  now.UTC().Format(time.RFC3339),
			Timezone:     r.Timezone,
		},
	}
}

// Classify evaluates the daily rules for samples observed up to now. All wall-clock
// comparisons happen in the schedule's timezone. Rules are evaluated in order and
// the first match wins.
func Classify(schedule storage.ResourceSchedule, samples []storage.Sample, now time.Time) (Result, error) {
	loc, err := schedule.Location()
	if err != nil {
		return Result{}, err
	}

	local := now.In(loc)
	res := Result{
		Date:         local.Format(storage.DateLayout),
		WallTime:     local.Format(storage.ClockLayout),
		OperatingDay: schedule.OperatesOn(local.Weekday()),
		Timezone:     loc.String(),
	}
	// a non-operating day is outside hours for its whole length
	res.WithinHours = res.OperatingDay &&
		schedule.OpenTime <= res.WallTime && res.WallTime <= schedule.CloseTime

	ordered := slices.Clone(samples)
	slices.SortStableFunc(ordered, func(a, b storage.Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	lastOpen := -1
	for i, s := range ordered {
		if s.IsOpen {
			res.Open++
			if res.ActualOpen == nil {
				res.ActualOpen = wallClock(s.Timestamp, loc)
			}
			lastOpen = i
		} else {
			res.Closed++
		}
	}
	res.Total = len(ordered)

	if lastOpen >= 0 {
		for _, s := range ordered[lastOpen+1:] {
			if !s.IsOpen {
				res.ActualClose = wallClock(s.Timestamp, loc)
				break
			}
		}
	}

	switch {
	case res.Open == 0 && !res.WithinHours:
		res.EventType = storage.EventOutsideHours
	case res.Open == 0:
		res.EventType = storage.EventNeverOpened
	case res.OperatingDay && res.ActualOpen != nil && *res.ActualOpen > schedule.OpenTime:
		res.EventType = storage.EventOpenedLate
	case res.OperatingDay && res.ActualClose != nil && *res.ActualClose < schedule.CloseTime:
		res.EventType = storage.EventClosedEarly
	case res.WithinHours:
		res.EventType = storage.EventFullyOpen
	}
	return res, nil
}

func wallClock(ts time.Time, loc *time.Location) *string {
	v := ts.In(loc).Format(storage.ClockLayout)
	return &v
}

// Store is the persistence the classifier reads samples from and writes events to.
type Store interface {
	ListSamplesForDate(ctx context.Context, date string, loc *time.Location) ([]storage.Sample, error)
	UpsertDailyEvent(ctx context.Context, event storage.DailyEvent) error
	ListEventsForDate(ctx context.Context, date string) ([]storage.DailyEvent, error)
	PruneDailyEvents(ctx context.Context, date string, keep storage.EventType) (int64, error)
}

// Options tune the classifier.
type Options struct {
	MinSamples int
	PruneStale bool
}

// Classifier loads a day's samples, classifies them and upserts the event.
type Classifier struct {
	store  Store
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a classifier.
func New(store Store, opts Options, logger zerolog.Logger) *Classifier {
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}
	return &Classifier{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "classifier").Logger(),
		now:    time.Now,
	}
}

// WithClock overrides the clock, mainly for tests and replays.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// Analyze classifies the current day. It returns the persisted event, or nil when
// nothing was written.
func (c *Classifier) Analyze(ctx context.Context, schedule storage.ResourceSchedule) (*storage.DailyEvent, error) {
	return c.AnalyzeAt(ctx, schedule, c.now())
}

// AnalyzeAt classifies the day containing at, as seen at that instant.
func (c *Classifier) AnalyzeAt(ctx context.Context, schedule storage.ResourceSchedule, at time.Time) (*storage.DailyEvent, error) {
	if c.store == nil {
		return nil, storage.ErrNotConfigured
	}
	loc, err := schedule.Location()
	if err != nil {
		return nil, err
	}
	date := at.In(loc).Format(storage.DateLayout)

	samples, err := c.store.ListSamplesForDate(ctx, date, loc)
	if err != nil {
		return nil, fmt.Errorf("load samples for %s: %w", date, err)
	}

	res, err := Classify(schedule, samples, at)
	if err != nil {
		return nil, err
	}

	log := c.logger.With().
		Str("date", res.Date).
		Str("wall_time", res.WallTime).
		Int("samples", res.Total).
		Bool("within_hours", res.WithinHours).
		Logger()

	if !res.ShouldPersist(c.opts.MinSamples) {
		log.Debug().Str("event_type", string(res.EventType)).Msg("classification deferred")
		return nil, nil
	}

	if c.opts.PruneStale && res.EventType == storage.EventOutsideHours {
		kept, err := c.inHoursVerdict(ctx, res.Date)
		if err != nil {
			return nil, err
		}
		if kept != "" {
			log.Debug().Str("kept", string(kept)).Msg("outside_hours skipped, day already classified")
			return nil, nil
		}
	}

	event := res.Event(schedule, at)
	if err := c.store.UpsertDailyEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("upsert daily event %s/%s: %w", event.Date, event.EventType, err)
	}

	if c.opts.PruneStale {
		removed, err := c.store.PruneDailyEvents(ctx, event.Date, event.EventType)
		if err != nil {
			log.Warn().Err(err).Msg("prune stale events failed")
		} else if removed > 0 {
			log.Info().Int64("removed", removed).Msg("pruned stale events")
		}
	}

	log.Info().Str("event_type", string(event.EventType)).Msg("daily event updated")
	return &event, nil
}

// inHoursVerdict returns the in-hours event type already stored for date, if any.
func (c *Classifier) inHoursVerdict(ctx context.Context, date string) (storage.EventType, error) {
	events, err := c.store.ListEventsForDate(ctx, date)
	if err != nil {
		return "", fmt.Errorf("load events for %s: %w", date, err)
	}
	var best storage.EventType
	for _, ev := range events {
		if ev.EventType.Rank() > best.Rank() {
			best = ev.EventType
		}
	}
	return best, nil
}
