// Package calendar rebuilds a dense day-by-day view from sparse daily events.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hourswatch/internal/storage"
)

// ErrInvalidRange is returned for unparsable or reversed date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// Rollup picks the single display status for a day's events: the highest ranked
// type, or not_operating_day when none ranks.
func Rollup(events []storage.DailyEvent) storage.EventType {
	best := storage.StatusNotOperatingDay
	for _, ev := range events {
		if ev.EventType.Rank() > best.Rank() {
			best = ev.EventType
		}
	}
	return best
}

// DayCount returns the number of calendar days in the inclusive range.
func DayCount(start, end string) (int, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return 0, err
	}
	return daysBetween(from, to) + 1, nil
}

// Build returns one CalendarDay per date in [start, end], ascending, including days
// without events.
func Build(start, end string, events []storage.DailyEvent) ([]storage.CalendarDay, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]storage.DailyEvent, len(events))
	for _, ev := range events {
		byDate[ev.Date] = append(byDate[ev.Date], ev)
	}

	days := make([]storage.CalendarDay, 0, daysBetween(from, to)+1)
	// dates are midnight UTC, so AddDate never crosses a DST boundary
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(storage.DateLayout)
		group := byDate[key]
		if group == nil {
			group = []storage.DailyEvent{}
		}
		days = append(days, storage.CalendarDay{
			Date:   key,
			Status: Rollup(group),
			Events: group,
		})
	}
	return days, nil
}

func parseRange(start, end string) (from, to time.Time, err error) {
	from, err = storage.ParseDate(start)
	if err != nil {
		return from, to, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	to, err = storage.ParseDate(end)
	if err != nil {
		return from, to, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start, end)
	}
	return from, to, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// EventSource is the read side of the event store.
type EventSource interface {
	ListEventsBetween(ctx context.Context, start, end string) ([]storage.DailyEvent, error)
}

// Aggregator builds calendars from the event store.
type Aggregator struct {
	events EventSource
	logger zerolog.Logger
}

// NewAggregator constructs an aggregator.
func NewAggregator(events EventSource, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		events: events,
		logger: logger.With().Str("component", "calendar").Logger(),
	}
}

// BuildCalendar fetches all events in range with a single query and builds the calendar.
func (a *Aggregator) BuildCalendar(ctx context.Context, start, end string) ([]storage.CalendarDay, error) {
	if _, _, err := parseRange(start, end); err != nil {
		return nil, err
	}
	if a.events == nil {
		return nil, storage.ErrNotConfigured
	}

	events, err := a.events.ListEventsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events %s..%s: %w", start, end, err)
	}
	days, err := Build(start, end, events)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("start", start).Str("end", end).Int("days", len(days)).Int("events", len(events)).Msg("calendar built")
	return days, nil
}

// Stats summarises a calendar.
type Stats struct {
	Days         int
	Counts       map[storage.EventType]int
	RankedDays   int
	// Availability is the share of classified operating days that were fully open, in percent.
	Availability decimal.Decimal
}

// Summary counts statuses and computes availability over days that have a ranked status.
func Summary(days []storage.CalendarDay) Stats {
	stats := Stats{Days: len(days), Counts: make(map[storage.EventType]int)}
	for _, d := range days {
		stats.Counts[d.Status]++
		if d.Status != storage.StatusNotOperatingDay {
			stats.RankedDays++
		}
	}
	if stats.RankedDays == 0 {
		stats.Availability = decimal.Zero
		return stats
	}
	stats.Availability = decimal.NewFromInt(int64(stats.Counts[storage.EventFullyOpen])).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(stats.RankedDays))).
		Round(1)
	return stats
}
