// Package store persists events and alerts and answers the read-only
// queries the HTTP surface exposes. Two backends implement the same
// interface: a WAL-mode SQLite database for the default single-host
// deployment and PostgreSQL for hosts that ship into a shared database.
//
// Alert insertion is transactional: the alert row, its explicit evidence
// and any resolver-materialized SUPPORT evidence commit together or not
// at all.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hids/agent/internal/event"
)

// Backend is the storage contract shared by the SQLite and PostgreSQL
// implementations. All methods are safe for concurrent use, although the
// writer serialises inserts through a single goroutine anyway.
type Backend interface {
	InsertLogEvent(ctx context.Context, ev *event.Event) (int64, error)
	InsertProcessEvent(ctx context.Context, ev *event.Event) (int64, error)
	InsertNetworkEvent(ctx context.Context, ev *event.Event) (int64, error)
	InsertMetricSnapshot(ctx context.Context, ev *event.Event) (int64, error)

	// InsertAlert persists the alert, its explicit evidence and the
	// resolver-materialized SUPPORT evidence in one transaction.
	InsertAlert(ctx context.Context, bundle *event.AlertBundle) (int64, error)

	LogEvents(ctx context.Context, q EventQuery) ([]LogEventRow, error)
	ProcessEvents(ctx context.Context, q EventQuery) ([]ProcessEventRow, error)
	NetworkEvents(ctx context.Context, q EventQuery) ([]NetworkEventRow, error)
	Metrics(ctx context.Context, q EventQuery) ([]MetricRow, error)
	Alerts(ctx context.Context, q AlertQuery) ([]AlertRow, error)
	Evidence(ctx context.Context, alertID int64) ([]EvidenceRow, error)

	Close() error
}

// EventQuery carries the recognized filter parameters for the event
// tables. Zero values mean "no filter". Not every field applies to every
// table; inapplicable filters are ignored.
type EventQuery struct {
	Severity  string
	Source    string
	Category  string
	EventType string
	Search    string
	PID       int32
	Protocol  string
	IP        string
	Limit     int
	Offset    int
}

// AlertQuery carries the recognized filter parameters for alerts.
type AlertQuery struct {
	Severity string
	RuleName string
	Limit    int
	Offset   int
}

// DefaultQueryLimit caps result sets when the caller does not set one.
const DefaultQueryLimit = 100

// LogEventRow is a persisted log event as returned by queries.
type LogEventRow struct {
	ID          int64          `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	LogSource   string         `json:"log_source"`
	EventType   string         `json:"event_type"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	RawLog      string         `json:"raw_log,omitempty"`
	Message     string         `json:"message"`
	User        string         `json:"user,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	ProcessName string         `json:"process_name,omitempty"`
	Extra       map[string]any `json:"extra_data,omitempty"`
}

// ProcessEventRow is a persisted process event as returned by queries.
type ProcessEventRow struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	PID         int32     `json:"pid"`
	PPID        int32     `json:"ppid,omitempty"`
	ProcessName string    `json:"process_name"`
	Exe         string    `json:"exe,omitempty"`
	Cmdline     string    `json:"cmdline,omitempty"`
	Username    string    `json:"username,omitempty"`
	CreateTime  int64     `json:"create_time,omitempty"`
	CPUPercent  float64   `json:"cpu_percent,omitempty"`
	MemoryRSS   uint64    `json:"memory_rss,omitempty"`
	MemoryVMS   uint64    `json:"memory_vms,omitempty"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	ExeDeleted  bool      `json:"exe_deleted,omitempty"`
}

// NetworkEventRow is a persisted network event as returned by queries.
type NetworkEventRow struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	PID         int32     `json:"pid,omitempty"`
	ProcessName string    `json:"process_name,omitempty"`
	Protocol    string    `json:"protocol"`
	LaddrIP     string    `json:"laddr_ip,omitempty"`
	LaddrPort   uint32    `json:"laddr_port,omitempty"`
	RaddrIP     string    `json:"raddr_ip,omitempty"`
	RaddrPort   uint32    `json:"raddr_port,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// MetricRow is a persisted metrics snapshot as returned by queries.
type MetricRow struct {
	ID        int64                 `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Snapshot  *event.MetricSnapshot `json:"snapshot"`
}

// AlertRow is a persisted alert as returned by queries. Evidence is
// populated only when the caller asks for it (expand=evidence).
type AlertRow struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	AlertType  string         `json:"type"`
	RuleName   string         `json:"rule_name"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	LogEventID *int64         `json:"log_event_id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	Evidence   []EvidenceRow  `json:"evidence,omitempty"`
}

// EvidenceRow links an alert to one event row that justifies it.
type EvidenceRow struct {
	ID        int64     `json:"id"`
	AlertID   int64     `json:"alert_id"`
	EventType string    `json:"event_type"`
	EventID   int64     `json:"event_id"`
	Role      string    `json:"role"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Open builds the backend selected by the configuration.
func Open(ctx context.Context, backend, dsn string) (Backend, error) {
	switch backend {
	case "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("store: unknown backend %q", backend)
}

// IsTransient reports whether err is a lock or contention failure worth
// retrying. Everything else is treated as permanent and abandoned.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
