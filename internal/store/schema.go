package store

// Schema DDL is kept in-package so each backend is self-contained and
// idempotent to open. The two dialects differ only in autoincrement
// spelling, timestamp column types and keyword quoting.

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS log_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      TEXT    NOT NULL,
    log_source     TEXT    NOT NULL,
    event_type     TEXT    NOT NULL,
    category       TEXT    NOT NULL,
    severity       TEXT    NOT NULL,
    raw_log        TEXT    NOT NULL DEFAULT '',
    message        TEXT    NOT NULL DEFAULT '',
    user           TEXT,
    ip_address     TEXT,
    process_name   TEXT,
    rule_triggered TEXT,
    extra_data     TEXT    NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_log_events_timestamp ON log_events (timestamp);

CREATE TABLE IF NOT EXISTS process_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp    TEXT    NOT NULL,
    event_type   TEXT    NOT NULL,
    pid          INTEGER NOT NULL,
    ppid         INTEGER,
    process_name TEXT    NOT NULL DEFAULT '',
    exe          TEXT,
    cmdline      TEXT,
    username     TEXT,
    create_time  INTEGER,
    cpu_percent  REAL,
    memory_rss   INTEGER,
    memory_vms   INTEGER,
    old_value    TEXT,
    new_value    TEXT,
    exe_deleted  INTEGER NOT NULL DEFAULT 0,
    alert_id     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_process_events_timestamp ON process_events (timestamp);

CREATE TABLE IF NOT EXISTS network_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp    TEXT    NOT NULL,
    event_type   TEXT    NOT NULL,
    pid          INTEGER,
    process_name TEXT,
    protocol     TEXT    NOT NULL DEFAULT '',
    laddr_ip     TEXT,
    laddr_port   INTEGER,
    raddr_ip     TEXT,
    raddr_port   INTEGER,
    status       TEXT,
    alert_id     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_network_events_timestamp ON network_events (timestamp);

CREATE TABLE IF NOT EXISTS metrics (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    snapshot  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics (timestamp);

CREATE TABLE IF NOT EXISTS alerts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp    TEXT NOT NULL,
    alert_type   TEXT NOT NULL DEFAULT '',
    rule_name    TEXT NOT NULL,
    severity     TEXT NOT NULL,
    message      TEXT NOT NULL DEFAULT '',
    log_event_id INTEGER,
    extra_data   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts (timestamp);

CREATE TABLE IF NOT EXISTS alert_evidence (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_id   INTEGER NOT NULL,
    event_type TEXT    NOT NULL,
    event_id   INTEGER NOT NULL,
    role       TEXT    NOT NULL,
    sequence   INTEGER,
    timestamp  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_evidence_alert ON alert_evidence (alert_id, event_type);
`

const postgresDDL = `
CREATE TABLE IF NOT EXISTS log_events (
    id             BIGSERIAL PRIMARY KEY,
    timestamp      TIMESTAMPTZ NOT NULL,
    log_source     TEXT        NOT NULL,
    event_type     TEXT        NOT NULL,
    category       TEXT        NOT NULL,
    severity       TEXT        NOT NULL,
    raw_log        TEXT        NOT NULL DEFAULT '',
    message        TEXT        NOT NULL DEFAULT '',
    "user"         TEXT,
    ip_address     TEXT,
    process_name   TEXT,
    rule_triggered TEXT,
    extra_data     JSONB       NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_log_events_timestamp ON log_events (timestamp);

CREATE TABLE IF NOT EXISTS process_events (
    id           BIGSERIAL PRIMARY KEY,
    timestamp    TIMESTAMPTZ NOT NULL,
    event_type   TEXT        NOT NULL,
    pid          INTEGER     NOT NULL,
    ppid         INTEGER,
    process_name TEXT        NOT NULL DEFAULT '',
    exe          TEXT,
    cmdline      TEXT,
    username     TEXT,
    create_time  BIGINT,
    cpu_percent  DOUBLE PRECISION,
    memory_rss   BIGINT,
    memory_vms   BIGINT,
    old_value    TEXT,
    new_value    TEXT,
    exe_deleted  BOOLEAN     NOT NULL DEFAULT FALSE,
    alert_id     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_process_events_timestamp ON process_events (timestamp);

CREATE TABLE IF NOT EXISTS network_events (
    id           BIGSERIAL PRIMARY KEY,
    timestamp    TIMESTAMPTZ NOT NULL,
    event_type   TEXT        NOT NULL,
    pid          INTEGER,
    process_name TEXT,
    protocol     TEXT        NOT NULL DEFAULT '',
    laddr_ip     TEXT,
    laddr_port   INTEGER,
    raddr_ip     TEXT,
    raddr_port   INTEGER,
    status       TEXT,
    alert_id     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_network_events_timestamp ON network_events (timestamp);

CREATE TABLE IF NOT EXISTS metrics (
    id        BIGSERIAL PRIMARY KEY,
    timestamp TIMESTAMPTZ NOT NULL,
    snapshot  JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics (timestamp);

CREATE TABLE IF NOT EXISTS alerts (
    id           BIGSERIAL PRIMARY KEY,
    timestamp    TIMESTAMPTZ NOT NULL,
    alert_type   TEXT        NOT NULL DEFAULT '',
    rule_name    TEXT        NOT NULL,
    severity     TEXT        NOT NULL,
    message      TEXT        NOT NULL DEFAULT '',
    log_event_id BIGINT,
    extra_data   JSONB       NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts (timestamp);

CREATE TABLE IF NOT EXISTS alert_evidence (
    id         BIGSERIAL PRIMARY KEY,
    alert_id   BIGINT      NOT NULL,
    event_type TEXT        NOT NULL,
    event_id   BIGINT      NOT NULL,
    role       TEXT        NOT NULL,
    sequence   INTEGER,
    timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_evidence_alert ON alert_evidence (alert_id, event_type);
`
