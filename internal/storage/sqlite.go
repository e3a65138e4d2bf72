package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed-width so that text comparison matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Backend on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "hourswatch.db"
	}
	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Migrate ensures the database schema is created.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(value string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t, nil
}

// InsertSample appends a sample and fills in its ID.
func (s *SQLiteStore) InsertSample(ctx context.Context, sample *Sample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	sample.Timestamp = sample.Timestamp.UTC()

	query := `INSERT INTO status_checks (checked_at, is_open, response_time_ms, error_message, page_content)
VALUES (?, ?, ?, ?, ?) RETURNING id`
	if err := s.db.QueryRowContext(ctx, query,
		formatSQLiteTime(sample.Timestamp),
		sample.IsOpen,
		sample.ResponseTimeMS,
		sample.ErrorMessage,
		sample.ContentExcerpt,
	).Scan(&sample.ID); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// ListSamplesForDate lists the samples of one calendar day in loc, oldest first.
func (s *SQLiteStore) ListSamplesForDate(ctx context.Context, date string, loc *time.Location) ([]Sample, error) {
	from, to, err := DayBounds(date, loc)
	if err != nil {
		return nil, err
	}
	return s.ListSamplesBetween(ctx, from, to)
}

// ListSamplesBetween lists samples within [from, to).
func (s *SQLiteStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]Sample, error) {
	query := `SELECT id, checked_at, is_open, response_time_ms, error_message, page_content
FROM status_checks WHERE checked_at >= ? AND checked_at < ? ORDER BY checked_at, id`
	rows, err := s.db.QueryContext(ctx, query, formatSQLiteTime(from), formatSQLiteTime(to))
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	return collectSQLiteSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *SQLiteStore) ListRecentSamples(ctx context.Context, limit int) ([]Sample, error) {
	query := `SELECT id, checked_at, is_open, response_time_ms, error_message, page_content
FROM status_checks ORDER BY checked_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	return collectSQLiteSamples(rows, limit)
}

// LatestSample returns the newest sample or ErrNotFound.
func (s *SQLiteStore) LatestSample(ctx context.Context) (Sample, error) {
	samples, err := s.ListRecentSamples(ctx, 1)
	if err != nil {
		return Sample{}, err
	}
	if len(samples) == 0 {
		return Sample{}, ErrNotFound
	}
	return samples[0], nil
}

// CountSamples counts stored samples.
func (s *SQLiteStore) CountSamples(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM status_checks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// UpsertDailyEvent inserts or refreshes the event for (date, event_type).
func (s *SQLiteStore) UpsertDailyEvent(ctx context.Context, event DailyEvent) error {
	if _, err := ParseDate(event.Date); err != nil {
		return err
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	query := `INSERT INTO daily_events (
	event_date, event_type, expected_open_time, expected_close_time,
	actual_open_time, actual_close_time, details, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_date, event_type) DO UPDATE SET
	actual_open_time = excluded.actual_open_time,
	actual_close_time = excluded.actual_close_time,
	details = excluded.details`
	if _, err := s.db.ExecContext(ctx, query,
		event.Date,
		string(event.EventType),
		event.ExpectedOpenTime,
		event.ExpectedCloseTime,
		event.ActualOpenTime,
		event.ActualCloseTime,
		string(details),
		formatSQLiteTime(time.Now()),
	); err != nil {
		return fmt.Errorf("upsert daily event: %w", err)
	}
	return nil
}

// ListEventsBetween lists events with start <= date <= end.
func (s *SQLiteStore) ListEventsBetween(ctx context.Context, start, end string) ([]DailyEvent, error) {
	if _, err := ParseDate(start); err != nil {
		return nil, err
	}
	if _, err := ParseDate(end); err != nil {
		return nil, err
	}
	query := `SELECT id, event_date, event_type, expected_open_time, expected_close_time,
	actual_open_time, actual_close_time, details, created_at
FROM daily_events WHERE event_date BETWEEN ? AND ? ORDER BY event_date, event_type`
	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events between: %w", err)
	}
	return collectSQLiteEvents(rows)
}

// ListEventsForDate lists every event row stored for one date.
func (s *SQLiteStore) ListEventsForDate(ctx context.Context, date string) ([]DailyEvent, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	query := `SELECT id, event_date, event_type, expected_open_time, expected_close_time,
	actual_open_time, actual_close_time, details, created_at
FROM daily_events WHERE event_date = ? ORDER BY event_type`
	rows, err := s.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("list events for date: %w", err)
	}
	return collectSQLiteEvents(rows)
}

// PruneDailyEvents deletes rows for date whose type differs from keep.
func (s *SQLiteStore) PruneDailyEvents(ctx context.Context, date string, keep EventType) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_events WHERE event_date = ? AND event_type <> ?`, date, string(keep))
	if err != nil {
		return 0, fmt.Errorf("prune daily events: %w", err)
	}
	return res.RowsAffected()
}

// GetResourceSchedule loads the restaurant schedule.
func (s *SQLiteStore) GetResourceSchedule(ctx context.Context) (ResourceSchedule, error) {
	query := `SELECT name, url, closed_indicator, check_interval_minutes, operating_days,
	open_time, close_time, timezone, updated_at
FROM restaurant_config ORDER BY id LIMIT 1`

	var (
		schedule  ResourceSchedule
		days      string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&schedule.Name,
		&schedule.URL,
		&schedule.ClosedIndicator,
		&schedule.CheckIntervalMinutes,
		&days,
		&schedule.OpenTime,
		&schedule.CloseTime,
		&schedule.Timezone,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ResourceSchedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return ResourceSchedule{}, fmt.Errorf("get restaurant schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &schedule.OperatingDays); err != nil {
		return ResourceSchedule{}, fmt.Errorf("parse operating days: %w", err)
	}
	if schedule.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return ResourceSchedule{}, err
	}
	return schedule, nil
}

// SaveResourceSchedule replaces the restaurant schedule.
func (s *SQLiteStore) SaveResourceSchedule(ctx context.Context, schedule ResourceSchedule) error {
	days := schedule.OperatingDays
	if days == nil {
		days = []int{}
	}
	encoded, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("marshal operating days: %w", err)
	}

	query := `INSERT INTO restaurant_config (
	id, name, url, closed_indicator, check_interval_minutes, operating_days,
	open_time, close_time, timezone, updated_at
) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	url = excluded.url,
	closed_indicator = excluded.closed_indicator,
	check_interval_minutes = excluded.check_interval_minutes,
	operating_days = excluded.operating_days,
	open_time = excluded.open_time,
	close_time = excluded.close_time,
	timezone = excluded.timezone,
	updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		schedule.Name,
		schedule.URL,
		schedule.ClosedIndicator,
		schedule.CheckIntervalMinutes,
		string(encoded),
		schedule.OpenTime,
		schedule.CloseTime,
		schedule.Timezone,
		formatSQLiteTime(time.Now()),
	); err != nil {
		return fmt.Errorf("save restaurant schedule: %w", err)
	}
	return nil
}

// RecordAlert persists an alert unless the (date, event_type) pair was already alerted.
func (s *SQLiteStore) RecordAlert(ctx context.Context, alert AlertRecord) (bool, error) {
	if _, err := ParseDate(alert.Date); err != nil {
		return false, err
	}
	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}
	encoded, err := json.Marshal(channels)
	if err != nil {
		return false, fmt.Errorf("marshal alert channels: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts (event_date, event_type, channels, created_at)
VALUES (?, ?, ?, ?) ON CONFLICT (event_date, event_type) DO NOTHING`,
		alert.Date, string(alert.EventType), string(encoded), formatSQLiteTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	return affected > 0, nil
}

// ReleaseAlert deletes the alert record for (date, event_type).
func (s *SQLiteStore) ReleaseAlert(ctx context.Context, date string, eventType EventType) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE event_date = ? AND event_type = ?`, date, string(eventType)); err != nil {
		return fmt.Errorf("release alert: %w", err)
	}
	return nil
}

func collectSQLiteSamples(rows *sql.Rows, capacity int) ([]Sample, error) {
	defer rows.Close()

	samples := make([]Sample, 0, capacity)
	for rows.Next() {
		var (
			sample    Sample
			checkedAt string
			latency   sql.NullInt64
			errMsg    sql.NullString
			excerpt   sql.NullString
		)
		if err := rows.Scan(&sample.ID, &checkedAt, &sample.IsOpen, &latency, &errMsg, &excerpt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		ts, err := parseSQLiteTime(checkedAt)
		if err != nil {
			return nil, err
		}
		sample.Timestamp = ts
		applyNullable(&sample, latency, errMsg, excerpt)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func collectSQLiteEvents(rows *sql.Rows) ([]DailyEvent, error) {
	defer rows.Close()

	events := make([]DailyEvent, 0)
	for rows.Next() {
		var (
			event       DailyEvent
			eventType   string
			actualOpen  sql.NullString
			actualClose sql.NullString
			details     string
			createdAt   string
		)
		if err := rows.Scan(
			&event.ID,
			&event.Date,
			&eventType,
			&event.ExpectedOpenTime,
			&event.ExpectedCloseTime,
			&actualOpen,
			&actualClose,
			&details,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily event: %w", err)
		}
		event.EventType = EventType(eventType)
		if err := finishEvent(&event, actualOpen, actualClose, []byte(details)); err != nil {
			return nil, err
		}
		ts, err := parseSQLiteTime(createdAt)
		if err != nil {
			return nil, err
		}
		event.CreatedAt = ts
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ Backend = (*SQLiteStore)(nil)
