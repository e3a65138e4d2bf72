package storage

const postgresSchema = `
CREATE TABLE IF NOT EXISTS status_checks (
    id               BIGSERIAL PRIMARY KEY,
    checked_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_open          BOOLEAN NOT NULL,
    response_time_ms BIGINT CHECK (response_time_ms >= 0),
    error_message    TEXT,
    page_content     TEXT
);
CREATE INDEX IF NOT EXISTS idx_status_checks_checked_at ON status_checks (checked_at);

CREATE TABLE IF NOT EXISTS daily_events (
    id                  BIGSERIAL PRIMARY KEY,
    event_date          DATE NOT NULL,
    event_type          TEXT NOT NULL CHECK (event_type IN ('fully_open', 'opened_late', 'closed_early', 'never_opened', 'outside_hours')),
    expected_open_time  TEXT NOT NULL,
    expected_close_time TEXT NOT NULL,
    actual_open_time    TEXT,
    actual_close_time   TEXT,
    details             JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (event_date, event_type)
);

CREATE TABLE IF NOT EXISTS restaurant_config (
    id                     INTEGER PRIMARY KEY CHECK (id = 1),
    name                   TEXT NOT NULL DEFAULT '',
    url                    TEXT NOT NULL,
    closed_indicator       TEXT NOT NULL,
    check_interval_minutes INTEGER NOT NULL DEFAULT 15,
    operating_days         INTEGER[] NOT NULL DEFAULT '{}',
    open_time              TEXT NOT NULL,
    close_time             TEXT NOT NULL,
    timezone               TEXT NOT NULL DEFAULT 'UTC',
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS alerts (
    id         BIGSERIAL PRIMARY KEY,
    event_date DATE NOT NULL,
    event_type TEXT NOT NULL,
    channels   TEXT[],
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (event_date, event_type)
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS status_checks (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    checked_at       TEXT NOT NULL,
    is_open          INTEGER NOT NULL,
    response_time_ms INTEGER CHECK (response_time_ms >= 0),
    error_message    TEXT,
    page_content     TEXT
);
CREATE INDEX IF NOT EXISTS idx_status_checks_checked_at ON status_checks (checked_at);

CREATE TABLE IF NOT EXISTS daily_events (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    event_date          TEXT NOT NULL,
    event_type          TEXT NOT NULL CHECK (event_type IN ('fully_open', 'opened_late', 'closed_early', 'never_opened', 'outside_hours')),
    expected_open_time  TEXT NOT NULL,
    expected_close_time TEXT NOT NULL,
    actual_open_time    TEXT,
    actual_close_time   TEXT,
    details             TEXT NOT NULL DEFAULT '{}',
    created_at          TEXT NOT NULL,
    UNIQUE (event_date, event_type)
);

CREATE TABLE IF NOT EXISTS restaurant_config (
    id                     INTEGER PRIMARY KEY CHECK (id = 1),
    name                   TEXT NOT NULL DEFAULT '',
    url                    TEXT NOT NULL,
    closed_indicator       TEXT NOT NULL,
    check_interval_minutes INTEGER NOT NULL DEFAULT 15,
    operating_days         TEXT NOT NULL DEFAULT '[]',
    open_time              TEXT NOT NULL,
    close_time             TEXT NOT NULL,
    timezone               TEXT NOT NULL DEFAULT 'UTC',
    updated_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event_date TEXT NOT NULL,
    event_type TEXT NOT NULL,
    channels   TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    UNIQUE (event_date, event_type)
);
`
