package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql

	"github.com/hids/agent/internal/event"
)

// SQLite is the default single-host backend. The database is opened in
// WAL mode with a single pooled connection: SQLite allows one writer at a
// time, and serialising through one connection avoids "database is
// locked" errors from concurrent inserts and reads.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema. ":memory:" gives an in-memory database for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA temp_store = MEMORY`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

func sqliteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("store: marshal extra: %w", err)
	}
	return string(b), nil
}

// InsertLogEvent persists a parsed log event and returns its row id.
func (s *SQLite) InsertLogEvent(ctx context.Context, ev *event.Event) (int64, error) {
	l := ev.Log
	if l == nil {
		return 0, fmt.Errorf("store: log event %q has no log payload", ev.Type)
	}
	extra, err := marshalExtra(l.Extra)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO log_events (timestamp, log_source, event_type, category, severity,
		                         raw_log, message, user, ip_address, process_name, extra_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sqliteTime(ev.Timestamp), l.LogSource, l.EventType, string(l.Category),
		string(l.Severity), ev.Raw, l.Message, l.User, l.IP, l.ProcessName, extra)
	if err != nil {
		return 0, fmt.Errorf("store: insert log event: %w", err)
	}
	return res.LastInsertId()
}

// InsertProcessEvent persists a process lifecycle event and returns its
// row id.
func (s *SQLite) InsertProcessEvent(ctx context.Context, ev *event.Event) (int64, error) {
	p := ev.Process
	if p == nil {
		return 0, fmt.Errorf("store: process event %q has no process payload", ev.Type)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO process_events (timestamp, event_type, pid, ppid, process_name, exe,
		                             cmdline, username, create_time, cpu_percent,
		                             memory_rss, memory_vms, old_value, new_value, exe_deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sqliteTime(ev.Timestamp), ev.Type, p.PID, p.PPID, p.Name, p.Exe,
		p.Cmdline, p.Username, p.CreateTime, p.CPUPercent,
		p.MemoryRSS, p.MemoryVMS, p.Old, p.New, p.ExeDeleted)
	if err != nil {
		return 0, fmt.Errorf("store: insert process event: %w", err)
	}
	return res.LastInsertId()
}

// InsertNetworkEvent persists a connection lifecycle event and returns
// its row id.
func (s *SQLite) InsertNetworkEvent(ctx context.Context, ev *event.Event) (int64, error) {
	n := ev.Network
	if n == nil {
		return 0, fmt.Errorf("store: network event %q has no network payload", ev.Type)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO network_events (timestamp, event_type, pid, process_name, protocol,
		                             laddr_ip, laddr_port, raddr_ip, raddr_port, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sqliteTime(ev.Timestamp), ev.Type, n.PID, n.ProcessName, n.Protocol,
		n.LaddrIP, n.LaddrPort, n.RaddrIP, n.RaddrPort, n.Status)
	if err != nil {
		return 0, fmt.Errorf("store: insert network event: %w", err)
	}
	return res.LastInsertId()
}

// InsertMetricSnapshot persists a metrics snapshot as a JSON blob and
// returns its row id.
func (s *SQLite) InsertMetricSnapshot(ctx context.Context, ev *event.Event) (int64, error) {
	if ev.Metric == nil {
		return 0, fmt.Errorf("store: metric event %q has no snapshot payload", ev.Type)
	}
	blob, err := json.Marshal(ev.Metric)
	if err != nil {
		return 0, fmt.Errorf("store: marshal metric snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (timestamp, snapshot) VALUES (?, ?)`,
		sqliteTime(ev.Timestamp), string(blob))
	if err != nil {
		return 0, fmt.Errorf("store: insert metric snapshot: %w", err)
	}
	return res.LastInsertId()
}

// InsertAlert persists the alert, its explicit evidence rows and any
// resolver-materialized SUPPORT rows in one transaction. Sequence numbers
// stay dense: resolved rows continue after the explicit ones.
func (s *SQLite) InsertAlert(ctx context.Context, bundle *event.AlertBundle) (int64, error) {
	a := bundle.Alert
	extra, err := marshalExtra(a.Extra)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin alert tx: %w", err)
	}
	defer tx.Rollback()

	var logEventID any
	if a.LogEventID != nil {
		logEventID = *a.LogEventID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO alerts (timestamp, alert_type, rule_name, severity, message, log_event_id, extra_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sqliteTime(a.Timestamp), a.Type, a.RuleName, string(a.Severity), a.Message, logEventID, extra)
	if err != nil {
		return 0, fmt.Errorf("store: insert alert: %w", err)
	}
	alertID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: alert id: %w", err)
	}

	seq := 0
	seen := make(map[string]bool)
	for _, item := range bundle.Evidence {
		if item.Sequence > seq {
			seq = item.Sequence
		} else {
			seq++
			item.Sequence = seq
		}
		seen[evidenceKey(item.EventType, item.EventID)] = true
		_, err := tx.ExecContext(ctx,
			`INSERT INTO alert_evidence (alert_id, event_type, event_id, role, sequence, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			alertID, item.EventType, item.EventID, string(item.Role), item.Sequence,
			sqliteTime(a.Timestamp))
		if err != nil {
			return 0, fmt.Errorf("store: insert evidence: %w", err)
		}
	}

	if bundle.Resolve != nil {
		query, args, evidenceType, err := buildResolveQuery(bundle.Resolve, dialectSQLite)
		if err != nil {
			return 0, err
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("store: resolve evidence: %w", err)
		}
		type hit struct {
			id int64
			ts string
		}
		var hits []hit
		for rows.Next() {
			var h hit
			if err := rows.Scan(&h.id, &h.ts); err != nil {
				rows.Close()
				return 0, fmt.Errorf("store: scan resolved row: %w", err)
			}
			hits = append(hits, h)
		}
		if err := rows.Close(); err != nil {
			return 0, fmt.Errorf("store: resolve evidence: %w", err)
		}

		for _, h := range hits {
			if seen[evidenceKey(evidenceType, h.id)] {
				continue
			}
			seq++
			_, err := tx.ExecContext(ctx,
				`INSERT INTO alert_evidence (alert_id, event_type, event_id, role, sequence, timestamp)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				alertID, evidenceType, h.id, string(event.RoleSupport), seq, h.ts)
			if err != nil {
				return 0, fmt.Errorf("store: insert resolved evidence: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit alert tx: %w", err)
	}
	return alertID, nil
}
