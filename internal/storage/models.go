package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for event dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock format used for operating hours.
const ClockLayout = "15:04"

// EventType classifies a day of samples.
type EventType string

const (
	EventFullyOpen    EventType = "fully_open"
	EventOpenedLate   EventType = "opened_late"
	EventClosedEarly  EventType = "closed_early"
	EventNeverOpened  EventType = "never_opened"
	EventOutsideHours EventType = "outside_hours"

	// StatusNotOperatingDay is the calendar rollup for days without a ranked event.
	// It is never persisted.
	StatusNotOperatingDay EventType = "not_operating_day"
)

// Valid reports whether t is a persistable event type.
func (t EventType) Valid() bool {
	switch t {
	case EventFullyOpen, EventOpenedLate, EventClosedEarly, EventNeverOpened, EventOutsideHours:
		return true
	}
	return false
}

// Anomaly reports whether the event means the restaurant missed its declared hours.
func (t EventType) Anomaly() bool {
	switch t {
	case EventNeverOpened, EventOpenedLate, EventClosedEarly:
		return true
	}
	return false
}

// Rank orders event types for the calendar rollup. Higher wins; outside_hours and
// not_operating_day rank 0.
func (t EventType) Rank() int {
	switch t {
	case EventNeverOpened:
		return 4
	case EventClosedEarly:
		return 3
	case EventOpenedLate:
		return 2
	case EventFullyOpen:
		return 1
	}
	return 0
}

// Sample is a single open/closed observation of the monitored page.
type Sample struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	IsOpen         bool      `json:"is_open"`
	ResponseTimeMS *int64    `json:"response_time,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ContentExcerpt *string   `json:"page_content,omitempty"`
}

// ResourceSchedule is the declared operating schedule of the monitored restaurant.
type ResourceSchedule struct {
	Name                 string    `json:"name" yaml:"name"`
	URL                  string    `json:"url" yaml:"url"`
	ClosedIndicator      string    `json:"closed_indicator" yaml:"closed_indicator"`
	CheckIntervalMinutes int       `json:"check_interval_minutes" yaml:"check_interval_minutes"`
	OperatingDays        []int     `json:"operating_days" yaml:"operating_days"`
	OpenTime             string    `json:"open_time" yaml:"open_time"`
	CloseTime            string    `json:"close_time" yaml:"close_time"`
	Timezone             string    `json:"timezone" yaml:"timezone"`
	UpdatedAt            time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the schedule is usable by the probe and classifier.
func (s ResourceSchedule) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("schedule url is required")
	}
	if s.ClosedIndicator == "" {
		return errors.New("schedule closed_indicator is required")
	}
	if _, err := time.Parse(ClockLayout, s.OpenTime); err != nil || len(s.OpenTime) != len(ClockLayout) {
		return fmt.Errorf("schedule open_time %q must be HH:MM", s.OpenTime)
	}
	if _, err := time.Parse(ClockLayout, s.CloseTime); err != nil || len(s.CloseTime) != len(ClockLayout) {
		return fmt.Errorf("schedule close_time %q must be HH:MM", s.CloseTime)
	}
	if s.OpenTime > s.CloseTime {
		return fmt.Errorf("schedule open_time %s is after close_time %s", s.OpenTime, s.CloseTime)
	}
	for _, d := range s.OperatingDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("schedule operating day %d out of range 0-6", d)
		}
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the schedule timezone. An empty zone means UTC.
func (s ResourceSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// OperatesOn reports whether the weekday is a declared operating day.
func (s ResourceSchedule) OperatesOn(day time.Weekday) bool {
	return slices.Contains(s.OperatingDays, int(day))
}

// EventDetails is the structured payload stored alongside a DailyEvent.
type EventDetails struct {
	TotalChecks  int    `json:"total_checks"`
	OpenChecks   int    `json:"open_checks"`
	ClosedChecks int    `json:"closed_checks"`
	LastUpdated  string `json:"last_updated"`
	Timezone     string `json:"timezone"`
}

// DailyEvent is the authoritative classification for one calendar day.
type DailyEvent struct {
	ID                int64        `json:"id"`
	Date              string       `json:"date"`
	EventType         EventType    `json:"event_type"`
	ExpectedOpenTime  string       `json:"expected_open_time"`
	ExpectedCloseTime string       `json:"expected_close_time"`
	ActualOpenTime    *string      `json:"actual_open_time,omitempty"`
	ActualCloseTime   *string      `json:"actual_close_time,omitempty"`
	Details           EventDetails `json:"details"`
	CreatedAt         time.Time    `json:"created_at"`
}

// CalendarDay is the per-day read model consumed by the calendar view.
type CalendarDay struct {
	Date   string       `json:"date"`
	Status EventType    `json:"status"`
	Events []DailyEvent `json:"events"`
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID        int64
	Date      string
	EventType EventType
	Channels  []string
	CreatedAt time.Time
}

// ParseDate parses a YYYY-MM-DD calendar day as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t, nil
}

// DayBounds returns the [start, end) instants of a calendar day in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC(), nil
}
