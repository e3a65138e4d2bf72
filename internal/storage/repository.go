package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrScheduleNotFound indicates no restaurant schedule row exists yet.
	ErrScheduleNotFound = errors.New("storage: restaurant schedule not found")
)

const (
	insertSampleSQL = `INSERT INTO status_checks (
        checked_at,
        is_open,
        response_time_ms,
        error_message,
        page_content
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id;`

	sampleColumns = `id, checked_at, is_open, response_time_ms, error_message, page_content`

	listSamplesBetweenSQL = `SELECT ` + sampleColumns + `
    FROM status_checks
    WHERE checked_at >= $1
      AND checked_at < $2
    ORDER BY checked_at, id;`

	listRecentSamplesSQL = `SELECT ` + sampleColumns + `
    FROM status_checks
    ORDER BY checked_at DESC, id DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM status_checks;`

	upsertDailyEventSQL = `INSERT INTO daily_events (
        event_date,
        event_type,
        expected_open_time,
        expected_close_time,
        actual_open_time,
        actual_close_time,
        details
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (event_date, event_type) DO UPDATE
    SET
        actual_open_time = EXCLUDED.actual_open_time,
        actual_close_time = EXCLUDED.actual_close_time,
        details = EXCLUDED.details;`

	eventColumns = `id, event_date, event_type, expected_open_time, expected_close_time,
        actual_open_time, actual_close_time, details, created_at`

	listEventsBetweenSQL = `SELECT ` + eventColumns + `
    FROM daily_events
    WHERE event_date BETWEEN $1 AND $2
    ORDER BY event_date, event_type;`

	listEventsForDateSQL = `SELECT ` + eventColumns + `
    FROM daily_events
    WHERE event_date = $1
    ORDER BY event_type;`

	pruneDailyEventsSQL = `DELETE FROM daily_events WHERE event_date = $1 AND event_type <> $2;`

	getScheduleSQL = `SELECT
        name,
        url,
        closed_indicator,
        check_interval_minutes,
        operating_days,
        open_time,
        close_time,
        timezone,
        updated_at
    FROM restaurant_config
    ORDER BY id
    LIMIT 1;`

	saveScheduleSQL = `INSERT INTO restaurant_config (
        id,
        name,
        url,
        closed_indicator,
        check_interval_minutes,
        operating_days,
        open_time,
        close_time,
        timezone,
        updated_at
    ) VALUES (
        1,$1,$2,$3,$4,$5,$6,$7,$8,NOW()
    )
    ON CONFLICT (id) DO UPDATE
    SET
        name                   = EXCLUDED.name,
        url                    = EXCLUDED.url,
        closed_indicator       = EXCLUDED.closed_indicator,
        check_interval_minutes = EXCLUDED.check_interval_minutes,
        operating_days         = EXCLUDED.operating_days,
        open_time              = EXCLUDED.open_time,
        close_time             = EXCLUDED.close_time,
        timezone               = EXCLUDED.timezone,
        updated_at             = EXCLUDED.updated_at;`

	recordAlertSQL = `INSERT INTO alerts (
        event_date,
        event_type,
        channels
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (event_date, event_type) DO NOTHING
    RETURNING id, created_at;`

	releaseAlertSQL = `DELETE FROM alerts WHERE event_date = $1 AND event_type = $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore is the append-only log of probe outcomes.
type SampleStore interface {
	InsertSample(ctx context.Context, sample *Sample) error
	ListSamplesForDate(ctx context.Context, date string, loc *time.Location) ([]Sample, error)
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]Sample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]Sample, error)
	LatestSample(ctx context.Context) (Sample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// EventStore holds derived daily events keyed on (date, event_type).
type EventStore interface {
	UpsertDailyEvent(ctx context.Context, event DailyEvent) error
	ListEventsBetween(ctx context.Context, start, end string) ([]DailyEvent, error)
	ListEventsForDate(ctx context.Context, date string) ([]DailyEvent, error)
	PruneDailyEvents(ctx context.Context, date string, keep EventType) (int64, error)
}

// ScheduleStore reads and replaces the single restaurant schedule.
type ScheduleStore interface {
	GetResourceSchedule(ctx context.Context) (ResourceSchedule, error)
	SaveResourceSchedule(ctx context.Context, schedule ResourceSchedule) error
}

// AlertStore deduplicates anomaly notifications.
type AlertStore interface {
	// RecordAlert inserts the alert unless one already exists for the same
	// date and event type. created is false for duplicates.
	RecordAlert(ctx context.Context, alert AlertRecord) (created bool, err error)
	// ReleaseAlert removes the record so a later attempt can send again.
	ReleaseAlert(ctx context.Context, date string, eventType EventType) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend is a complete persistence implementation.
type Backend interface {
	SampleStore
	EventStore
	ScheduleStore
	AlertStore
	Migrate(ctx context.Context) error
	Close()
}

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock is dropped with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSample appends a sample and fills in its ID.
func (s *Store) InsertSample(ctx context.Context, sample *Sample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	if scanErr := pool.QueryRow(ctx, insertSampleSQL,
		sample.Timestamp.UTC(),
		sample.IsOpen,
		sample.ResponseTimeMS,
		sample.ErrorMessage,
		sample.ContentExcerpt,
	).Scan(&sample.ID); scanErr != nil {
		return fmt.Errorf("insert sample: %w", scanErr)
	}
	return nil
}

// ListSamplesForDate lists the samples of one calendar day in loc, oldest first.
func (s *Store) ListSamplesForDate(ctx context.Context, date string, loc *time.Location) ([]Sample, error) {
	from, to, err := DayBounds(date, loc)
	if err != nil {
		return nil, err
	}
	return s.ListSamplesBetween(ctx, from, to)
}

// ListSamplesBetween lists samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	return collectSamples(rows, limit)
}

// LatestSample returns the newest sample or ErrNotFound.
func (s *Store) LatestSample(ctx context.Context) (Sample, error) {
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
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// UpsertDailyEvent inserts or refreshes the event for (date, event_type).
func (s *Store) UpsertDailyEvent(ctx context.Context, event DailyEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	day, err := ParseDate(event.Date)
	if err != nil {
		return err
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertDailyEventSQL,
		day,
		string(event.EventType),
		event.ExpectedOpenTime,
		event.ExpectedCloseTime,
		event.ActualOpenTime,
		event.ActualCloseTime,
		details,
	); execErr != nil {
		return fmt.Errorf("upsert daily event: %w", execErr)
	}
	return nil
}

// ListEventsBetween lists events with start <= date <= end.
func (s *Store) ListEventsBetween(ctx context.Context, start, end string) ([]DailyEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEventsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list events between: %w", queryErr)
	}
	return collectEvents(rows)
}

// ListEventsForDate lists every event row stored for one date.
func (s *Store) ListEventsForDate(ctx context.Context, date string) ([]DailyEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEventsForDateSQL, day)
	if queryErr != nil {
		return nil, fmt.Errorf("list events for date: %w", queryErr)
	}
	return collectEvents(rows)
}

// PruneDailyEvents deletes rows for date whose type differs from keep.
func (s *Store) PruneDailyEvents(ctx context.Context, date string, keep EventType) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	day, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, pruneDailyEventsSQL, day, string(keep))
	if execErr != nil {
		return 0, fmt.Errorf("prune daily events: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// GetResourceSchedule loads the restaurant schedule.
func (s *Store) GetResourceSchedule(ctx context.Context) (ResourceSchedule, error) {
	pool, err := s.getPool()
	if err != nil {
		return ResourceSchedule{}, err
	}

	var (
		schedule ResourceSchedule
		days     []int32
	)
	scanErr := pool.QueryRow(ctx, getScheduleSQL).Scan(
		&schedule.Name,
		&schedule.URL,
		&schedule.ClosedIndicator,
		&schedule.CheckIntervalMinutes,
		&days,
		&schedule.OpenTime,
		&schedule.CloseTime,
		&schedule.Timezone,
		&schedule.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return ResourceSchedule{}, ErrScheduleNotFound
	}
	if scanErr != nil {
		return ResourceSchedule{}, fmt.Errorf("get restaurant schedule: %w", scanErr)
	}

	schedule.OperatingDays = make([]int, len(days))
	for i, d := range days {
		schedule.OperatingDays[i] = int(d)
	}
	return schedule, nil
}

// SaveResourceSchedule replaces the restaurant schedule.
func (s *Store) SaveResourceSchedule(ctx context.Context, schedule ResourceSchedule) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	days := make([]int32, len(schedule.OperatingDays))
	for i, d := range schedule.OperatingDays {
		days[i] = int32(d)
	}

	if _, execErr := pool.Exec(ctx, saveScheduleSQL,
		schedule.Name,
		schedule.URL,
		schedule.ClosedIndicator,
		schedule.CheckIntervalMinutes,
		days,
		schedule.OpenTime,
		schedule.CloseTime,
		schedule.Timezone,
	); execErr != nil {
		return fmt.Errorf("save restaurant schedule: %w", execErr)
	}
	return nil
}

// RecordAlert persists an alert unless the (date, event_type) pair was already alerted.
func (s *Store) RecordAlert(ctx context.Context, alert AlertRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	day, err := ParseDate(alert.Date)
	if err != nil {
		return false, err
	}

	var (
		id        int64
		createdAt time.Time
	)
	scanErr := pool.QueryRow(ctx, recordAlertSQL, day, string(alert.EventType), alert.Channels).Scan(&id, &createdAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("record alert: %w", scanErr)
	}
	return true, nil
}

// ReleaseAlert deletes the alert record for (date, event_type).
func (s *Store) ReleaseAlert(ctx context.Context, date string, eventType EventType) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, releaseAlertSQL, day, string(eventType)); execErr != nil {
		return fmt.Errorf("release alert: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]Sample, error) {
	defer rows.Close()

	samples := make([]Sample, 0, capacity)
	for rows.Next() {
		var (
			sample   Sample
			latency  sql.NullInt64
			errMsg   sql.NullString
			excerpt  sql.NullString
			recorded time.Time
		)
		if err := rows.Scan(&sample.ID, &recorded, &sample.IsOpen, &latency, &errMsg, &excerpt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Timestamp = recorded.UTC()
		applyNullable(&sample, latency, errMsg, excerpt)
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func collectEvents(rows pgx.Rows) ([]DailyEvent, error) {
	defer rows.Close()

	events := make([]DailyEvent, 0)
	for rows.Next() {
		var (
			event       DailyEvent
			day         time.Time
			eventType   string
			actualOpen  sql.NullString
			actualClose sql.NullString
			details     []byte
		)
		if err := rows.Scan(
			&event.ID,
			&day,
			&eventType,
			&event.ExpectedOpenTime,
			&event.ExpectedCloseTime,
			&actualOpen,
			&actualClose,
			&details,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily event: %w", err)
		}
		event.Date = day.Format(DateLayout)
		event.EventType = EventType(eventType)
		if err := finishEvent(&event, actualOpen, actualClose, details); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func applyNullable(sample *Sample, latency sql.NullInt64, errMsg, excerpt sql.NullString) {
	if latency.Valid {
		value := latency.Int64
		sample.ResponseTimeMS = &value
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.ErrorMessage = &msg
	}
	if excerpt.Valid {
		content := excerpt.String
		sample.ContentExcerpt = &content
	}
}

func finishEvent(event *DailyEvent, actualOpen, actualClose sql.NullString, details []byte) error {
	if actualOpen.Valid {
		value := actualOpen.String
		event.ActualOpenTime = &value
	}
	if actualClose.Valid {
		value := actualClose.String
		event.ActualCloseTime = &value
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &event.Details); err != nil {
			return fmt.Errorf("parse event details: %w", err)
		}
	}
	return nil
}

var (
	_ Backend        = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
