package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hids/agent/internal/event"
)

// LogEvents returns log events matching q, newest first.
func (p *Postgres) LogEvents(ctx context.Context, q EventQuery) ([]LogEventRow, error) {
	b := &qb{d: dialectPostgres}
	if q.Severity != "" {
		b.add("severity = %s", q.Severity)
	}
	if q.Source != "" {
		b.add("log_source = %s", q.Source)
	}
	if q.Category != "" {
		b.add("category = %s", q.Category)
	}
	if q.EventType != "" {
		b.add("event_type = %s", q.EventType)
	}
	if q.IP != "" {
		b.add("ip_address = %s", q.IP)
	}
	if q.Search != "" {
		b.add("message ILIKE %s", "%"+q.Search+"%")
	}
	limit, offset := limits(q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, timestamp, log_source, event_type, category, severity,
		        raw_log, message, "user", ip_address, process_name, extra_data
		 FROM log_events%s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`,
		b.where(), limit, offset)

	rows, err := p.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query log events: %w", err)
	}
	defer rows.Close()

	var out []LogEventRow
	for rows.Next() {
		var (
			r                     LogEventRow
			extra                 []byte
			user, ip, processName sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.LogSource, &r.EventType, &r.Category,
			&r.Severity, &r.RawLog, &r.Message, &user, &ip, &processName, &extra); err != nil {
			return nil, fmt.Errorf("store: scan log event: %w", err)
		}
		r.User = user.String
		r.IPAddress = ip.String
		r.ProcessName = processName.String
		if len(extra) > 0 && string(extra) != "{}" {
			if err := json.Unmarshal(extra, &r.Extra); err != nil {
				return nil, fmt.Errorf("store: decode extra for log event %d: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProcessEvents returns process events matching q, newest first.
func (p *Postgres) ProcessEvents(ctx context.Context, q EventQuery) ([]ProcessEventRow, error) {
	b := &qb{d: dialectPostgres}
	if q.EventType != "" {
		b.add("event_type = %s", q.EventType)
	}
	if q.PID != 0 {
		b.add("pid = %s", q.PID)
	}
	if q.Search != "" {
		b.add("cmdline ILIKE %s", "%"+q.Search+"%")
	}
	limit, offset := limits(q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, timestamp, event_type, pid, ppid, process_name, exe, cmdline,
		        username, create_time, cpu_percent, memory_rss, memory_vms,
		        old_value, new_value, exe_deleted
		 FROM process_events%s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`,
		b.where(), limit, offset)

	rows, err := p.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query process events: %w", err)
	}
	defer rows.Close()

	var out []ProcessEventRow
	for rows.Next() {
		var (
			r                      ProcessEventRow
			ppid                   sql.NullInt32
			exe, cmdline, username sql.NullString
			createTime             sql.NullInt64
			cpuPercent             sql.NullFloat64
			memRSS, memVMS         sql.NullInt64
			oldValue, newValue     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.EventType, &r.PID, &ppid, &r.ProcessName,
			&exe, &cmdline, &username, &createTime, &cpuPercent, &memRSS, &memVMS,
			&oldValue, &newValue, &r.ExeDeleted); err != nil {
			return nil, fmt.Errorf("store: scan process event: %w", err)
		}
		r.PPID = ppid.Int32
		r.Exe = exe.String
		r.Cmdline = cmdline.String
		r.Username = username.String
		r.CreateTime = createTime.Int64
		r.CPUPercent = cpuPercent.Float64
		r.MemoryRSS = uint64(memRSS.Int64)
		r.MemoryVMS = uint64(memVMS.Int64)
		r.OldValue = oldValue.String
		r.NewValue = newValue.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// NetworkEvents returns network events matching q, newest first.
func (p *Postgres) NetworkEvents(ctx context.Context, q EventQuery) ([]NetworkEventRow, error) {
	b := &qb{d: dialectPostgres}
	if q.EventType != "" {
		b.add("event_type = %s", q.EventType)
	}
	if q.PID != 0 {
		b.add("pid = %s", q.PID)
	}
	if q.Protocol != "" {
		b.add("protocol = %s", q.Protocol)
	}
	if q.IP != "" {
		b.args = append(b.args, q.IP, q.IP)
		b.conds = append(b.conds, fmt.Sprintf("(laddr_ip = $%d OR raddr_ip = $%d)",
			len(b.args)-1, len(b.args)))
	}
	limit, offset := limits(q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, timestamp, event_type, pid, process_name, protocol,
		        laddr_ip, laddr_port, raddr_ip, raddr_port, status
		 FROM network_events%s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`,
		b.where(), limit, offset)

	rows, err := p.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query network events: %w", err)
	}
	defer rows.Close()

	var out []NetworkEventRow
	for rows.Next() {
		var (
			r                        NetworkEventRow
			pid                      sql.NullInt32
			processName              sql.NullString
			laddrIP, raddrIP, status sql.NullString
			laddrPort, raddrPort     sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.EventType, &pid, &processName, &r.Protocol,
			&laddrIP, &laddrPort, &raddrIP, &raddrPort, &status); err != nil {
			return nil, fmt.Errorf("store: scan network event: %w", err)
		}
		r.PID = pid.Int32
		r.ProcessName = processName.String
		r.LaddrIP = laddrIP.String
		r.LaddrPort = uint32(laddrPort.Int64)
		r.RaddrIP = raddrIP.String
		r.RaddrPort = uint32(raddrPort.Int64)
		r.Status = status.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Metrics returns metric snapshots, newest first.
func (p *Postgres) Metrics(ctx context.Context, q EventQuery) ([]MetricRow, error) {
	limit, offset := limits(q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, timestamp, snapshot FROM metrics
		 ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var (
			r    MetricRow
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &blob); err != nil {
			return nil, fmt.Errorf("store: scan metric: %w", err)
		}
		var snap event.MetricSnapshot
		if err := json.Unmarshal(blob, &snap); err != nil {
			return nil, fmt.Errorf("store: decode metric snapshot %d: %w", r.ID, err)
		}
		r.Snapshot = &snap
		out = append(out, r)
	}
	return out, rows.Err()
}

// Alerts returns alerts matching q, newest first.
func (p *Postgres) Alerts(ctx context.Context, q AlertQuery) ([]AlertRow, error) {
	b := &qb{d: dialectPostgres}
	if q.Severity != "" {
		b.add("severity = %s", q.Severity)
	}
	if q.RuleName != "" {
		b.add("rule_name = %s", q.RuleName)
	}
	limit, offset := limits(q.Limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT id, timestamp, alert_type, rule_name, severity, message, log_event_id, extra_data
		 FROM alerts%s ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d`,
		b.where(), limit, offset)

	rows, err := p.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRow
	for rows.Next() {
		var (
			r          AlertRow
			extra      []byte
			logEventID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.AlertType, &r.RuleName, &r.Severity,
			&r.Message, &logEventID, &extra); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		if logEventID.Valid {
			id := logEventID.Int64
			r.LogEventID = &id
		}
		if len(extra) > 0 && string(extra) != "{}" {
			if err := json.Unmarshal(extra, &r.Extra); err != nil {
				return nil, fmt.Errorf("store: decode extra for alert %d: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Evidence returns the evidence rows for one alert in sequence order.
func (p *Postgres) Evidence(ctx context.Context, alertID int64) ([]EvidenceRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, alert_id, event_type, event_id, role, sequence, timestamp
		 FROM alert_evidence WHERE alert_id = $1 ORDER BY sequence ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("store: query evidence: %w", err)
	}
	defer rows.Close()

	var out []EvidenceRow
	for rows.Next() {
		var (
			r   EvidenceRow
			ts  time.Time
			seq sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.AlertID, &r.EventType, &r.EventID, &r.Role, &seq, &ts); err != nil {
			return nil, fmt.Errorf("store: scan evidence: %w", err)
		}
		r.Sequence = int(seq.Int64)
		r.Timestamp = ts
		out = append(out, r)
	}
	return out, rows.Err()
}
