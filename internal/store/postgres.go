package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hids/agent/internal/event"
)

// Postgres is the shared-database backend for hosts that report into a
// central PostgreSQL instance instead of the local SQLite file.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to connStr, pings the database and applies the
// schema.
func OpenPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertLogEvent persists a parsed log event and returns its row id.
func (p *Postgres) InsertLogEvent(ctx context.Context, ev *event.Event) (int64, error) {
	l := ev.Log
	if l == nil {
		return 0, fmt.Errorf("store: log event %q has no log payload", ev.Type)
	}
	extra, err := marshalExtra(l.Extra)
	if err != nil {
		return 0, err
	}

	var id int64
	err = p.pool.QueryRow(ctx,
		`INSERT INTO log_events (timestamp, log_source, event_type, category, severity,
		                         raw_log, message, "user", ip_address, process_name, extra_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		ev.Timestamp.UTC(), l.LogSource, l.EventType, string(l.Category), string(l.Severity),
		ev.Raw, l.Message, nullStr(l.User), nullStr(l.IP), nullStr(l.ProcessName), extra).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert log event: %w", err)
	}
	return id, nil
}

// InsertProcessEvent persists a process lifecycle event and returns its
// row id.
func (p *Postgres) InsertProcessEvent(ctx context.Context, ev *event.Event) (int64, error) {
	pf := ev.Process
	if pf == nil {
		return 0, fmt.Errorf("store: process event %q has no process payload", ev.Type)
	}

	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO process_events (timestamp, event_type, pid, ppid, process_name, exe,
		                             cmdline, username, create_time, cpu_percent,
		                             memory_rss, memory_vms, old_value, new_value, exe_deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		ev.Timestamp.UTC(), ev.Type, pf.PID, pf.PPID, pf.Name, nullStr(pf.Exe),
		nullStr(pf.Cmdline), nullStr(pf.Username), pf.CreateTime, pf.CPUPercent,
		int64(pf.MemoryRSS), int64(pf.MemoryVMS), nullStr(pf.Old), nullStr(pf.New),
		pf.ExeDeleted).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert process event: %w", err)
	}
	return id, nil
}

// InsertNetworkEvent persists a connection lifecycle event and returns
// its row id.
func (p *Postgres) InsertNetworkEvent(ctx context.Context, ev *event.Event) (int64, error) {
	n := ev.Network
	if n == nil {
		return 0, fmt.Errorf("store: network event %q has no network payload", ev.Type)
	}

	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO network_events (timestamp, event_type, pid, process_name, protocol,
		                             laddr_ip, laddr_port, raddr_ip, raddr_port, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		ev.Timestamp.UTC(), ev.Type, n.PID, nullStr(n.ProcessName), n.Protocol,
		nullStr(n.LaddrIP), n.LaddrPort, nullStr(n.RaddrIP), n.RaddrPort,
		nullStr(n.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert network event: %w", err)
	}
	return id, nil
}

// InsertMetricSnapshot persists a metrics snapshot as JSONB and returns
// its row id.
func (p *Postgres) InsertMetricSnapshot(ctx context.Context, ev *event.Event) (int64, error) {
	if ev.Metric == nil {
		return 0, fmt.Errorf("store: metric event %q has no snapshot payload", ev.Type)
	}
	blob, err := json.Marshal(ev.Metric)
	if err != nil {
		return 0, fmt.Errorf("store: marshal metric snapshot: %w", err)
	}

	var id int64
	err = p.pool.QueryRow(ctx,
		`INSERT INTO metrics (timestamp, snapshot) VALUES ($1, $2) RETURNING id`,
		ev.Timestamp.UTC(), string(blob)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert metric snapshot: %w", err)
	}
	return id, nil
}

// InsertAlert persists the alert, its explicit evidence rows and any
// resolver-materialized SUPPORT rows in one transaction.
func (p *Postgres) InsertAlert(ctx context.Context, bundle *event.AlertBundle) (int64, error) {
	a := bundle.Alert
	extra, err := marshalExtra(a.Extra)
	if err != nil {
		return 0, err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("store: begin alert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var logEventID any
	if a.LogEventID != nil {
		logEventID = *a.LogEventID
	}
	var alertID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO alerts (timestamp, alert_type, rule_name, severity, message, log_event_id, extra_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.Timestamp.UTC(), a.Type, a.RuleName, string(a.Severity), a.Message, logEventID, extra).Scan(&alertID)
	if err != nil {
		return 0, fmt.Errorf("store: insert alert: %w", err)
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
		_, err := tx.Exec(ctx,
			`INSERT INTO alert_evidence (alert_id, event_type, event_id, role, sequence, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			alertID, item.EventType, item.EventID, string(item.Role), item.Sequence, a.Timestamp.UTC())
		if err != nil {
			return 0, fmt.Errorf("store: insert evidence: %w", err)
		}
	}

	if bundle.Resolve != nil {
		query, args, evidenceType, err := buildResolveQuery(bundle.Resolve, dialectPostgres)
		if err != nil {
			return 0, err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("store: resolve evidence: %w", err)
		}
		type hit struct {
			id int64
			ts any
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
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("store: resolve evidence: %w", err)
		}

		for _, h := range hits {
			if seen[evidenceKey(evidenceType, h.id)] {
				continue
			}
			seq++
			_, err := tx.Exec(ctx,
				`INSERT INTO alert_evidence (alert_id, event_type, event_id, role, sequence, timestamp)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				alertID, evidenceType, h.id, string(event.RoleSupport), seq, h.ts)
			if err != nil {
				return 0, fmt.Errorf("store: insert resolved evidence: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit alert tx: %w", err)
	}
	return alertID, nil
}
