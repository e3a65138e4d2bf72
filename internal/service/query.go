package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hourswatch/internal/calendar"
	"hourswatch/internal/storage"
)

const (
	defaultSampleLimit = 100
	maxSampleLimit     = 1000
)

var (
	// ErrNoSamples is returned when no status check has been recorded yet.
	ErrNoSamples = errors.New("no status checks found")
	// ErrInvalidDate is returned for malformed YYYY-MM-DD input.
	ErrInvalidDate = errors.New("invalid date")
)

// QueryStore is the read side used by the API.
type QueryStore interface {
	calendar.EventSource
	ListEventsForDate(ctx context.Context, date string) ([]storage.DailyEvent, error)
	ListRecentSamples(ctx context.Context, limit int) ([]storage.Sample, error)
	LatestSample(ctx context.Context) (storage.Sample, error)
	GetResourceSchedule(ctx context.Context) (storage.ResourceSchedule, error)
}

// CalendarData is the calendar payload with the zone its dates are expressed in.
type CalendarData struct {
	Calendar []storage.CalendarDay `json:"calendar"`
	Timezone string                `json:"timezone"`
}

// Query serves read operations for the API and CLI.
type Query struct {
	store        QueryStore
	aggregator   *calendar.Aggregator
	defaultLimit int
	logger       zerolog.Logger
}

// NewQuery wires a query service.
func NewQuery(store QueryStore, defaultLimit int, logger zerolog.Logger) *Query {
	if defaultLimit <= 0 {
		defaultLimit = defaultSampleLimit
	}
	return &Query{
		store:        store,
		aggregator:   calendar.NewAggregator(store, logger),
		defaultLimit: defaultLimit,
		logger:       logger.With().Str("component", "query").Logger(),
	}
}

// GetCalendarData builds the dense calendar for [start, end].
func (q *Query) GetCalendarData(ctx context.Context, start, end string) (CalendarData, error) {
	days, err := q.aggregator.BuildCalendar(ctx, start, end)
	if err != nil {
		return CalendarData{}, err
	}
	tz, err := q.timezone(ctx)
	if err != nil {
		return CalendarData{}, err
	}
	return CalendarData{Calendar: days, Timezone: tz}, nil
}

func (q *Query) timezone(ctx context.Context) (string, error) {
	schedule, err := q.store.GetResourceSchedule(ctx)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		return "UTC", nil
	}
	if err != nil {
		return "", fmt.Errorf("load restaurant timezone: %w", err)
	}
	if schedule.Timezone == "" {
		return "UTC", nil
	}
	return schedule.Timezone, nil
}

// GetEventsForDate lists the stored events of one day.
func (q *Query) GetEventsForDate(ctx context.Context, date string) ([]storage.DailyEvent, error) {
	if _, err := storage.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	events, err := q.store.ListEventsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []storage.DailyEvent{}
	}
	return events, nil
}

// GetRecentSamples returns up to limit samples, newest first. limit <= 0 uses the default.
func (q *Query) GetRecentSamples(ctx context.Context, limit int) ([]storage.Sample, error) {
	if limit <= 0 {
		limit = q.defaultLimit
	}
	if limit > maxSampleLimit {
		limit = maxSampleLimit
	}
	samples, err := q.store.ListRecentSamples(ctx, limit)
	if err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []storage.Sample{}
	}
	return samples, nil
}

// GetLatestSample returns the newest sample or ErrNoSamples.
func (q *Query) GetLatestSample(ctx context.Context) (storage.Sample, error) {
	sample, err := q.store.LatestSample(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Sample{}, ErrNoSamples
	}
	return sample, err
}

// GetSchedule returns the active restaurant config.
func (q *Query) GetSchedule(ctx context.Context) (storage.ResourceSchedule, error) {
	return q.store.GetResourceSchedule(ctx)
}
