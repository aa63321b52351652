package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/hids/agent/internal/event"
)

// Resolver grace applied around the requested time range. Events commit
// after the moment a rule observed them, so the window is widened
// backwards generously and forwards slightly.
const (
	resolveGraceBefore = 10 * time.Second
	resolveGraceAfter  = 2 * time.Second

	defaultResolveLimit = 20
)

// sourceTables maps resolver sources to their tables and the event_type
// value recorded on the materialized evidence rows.
var sourceTables = map[string]struct {
	table        string
	evidenceType string
}{
	"log_events":     {"log_events", event.TypeLogEvent},
	"process_events": {"process_events", "PROCESS_EVENT"},
	"network_events": {"network_events", "NETWORK_EVENT"},
	"metric_events":  {"metrics", event.TypeMetricSnapshot},
}

// resolveFields lists the filter fields the resolver recognizes per
// source. Unknown filters are ignored rather than rejected so a rule can
// carry forward-compatible hints.
var resolveFields = map[string]map[string]bool{
	"log_events": {
		"log_source": true, "event_type": true, "category": true,
		"severity": true, "user": true, "ip_address": true, "process_name": true,
	},
	"process_events": {
		"event_type": true, "pid": true, "process_name": true, "username": true,
	},
	"network_events": {
		"event_type": true, "pid": true, "process_name": true,
		"protocol": true, "laddr_ip": true, "raddr_ip": true, "status": true,
	},
	"metric_events": {},
}

// dialect selects placeholder style and time encoding for the shared
// query builders.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// qb accumulates a WHERE clause with dialect-appropriate placeholders.
type qb struct {
	d     dialect
	conds []string
	args  []any
}

func (b *qb) ph() string {
	if b.d == dialectPostgres {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

func (b *qb) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, strings.Replace(cond, "%s", b.ph(), 1))
}

func (b *qb) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// col quotes identifiers that collide with SQL keywords.
func (d dialect) col(name string) string {
	if d == dialectPostgres && name == "user" {
		return `"user"`
	}
	return name
}

// timeArg encodes a timestamp the way the backend stores it.
func (d dialect) timeArg(t time.Time) any {
	if d == dialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

// sqliteTimeLayout is fixed-width so lexicographic comparison on the TEXT
// column matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// buildResolveQuery turns a resolver spec into a SELECT over (id,
// timestamp) for the spec's source table. The semantics:
//
//   - id__in present and non-empty: query by id membership only,
//     time_range ignored, limit = len(ids).
//   - otherwise: equality filters for recognized fields (with a __in
//     suffix meaning membership), time range widened by the grace
//     constants, order asc|desc (default desc), limit default 20.
func buildResolveQuery(spec *event.ResolveSpec, d dialect) (sql string, args []any, evidenceType string, err error) {
	src, ok := sourceTables[spec.Source]
	if !ok {
		return "", nil, "", fmt.Errorf("resolve: unknown source %q", spec.Source)
	}

	order := strings.ToLower(spec.Order)
	if order != "asc" {
		order = "desc"
	}

	b := &qb{d: d}

	if ids := anySlice(spec.Filters["id__in"]); len(ids) > 0 {
		phs := make([]string, len(ids))
		for i, id := range ids {
			b.args = append(b.args, id)
			phs[i] = b.ph()
		}
		sql = fmt.Sprintf("SELECT id, timestamp FROM %s WHERE id IN (%s) ORDER BY timestamp %s",
			src.table, strings.Join(phs, ", "), strings.ToUpper(order))
		return sql, b.args, src.evidenceType, nil
	}

	known := resolveFields[spec.Source]
	for field, val := range spec.Filters {
		name, isIn := strings.CutSuffix(field, "__in")
		if !known[name] {
			continue
		}
		if isIn {
			vals := anySlice(val)
			if len(vals) == 0 {
				continue
			}
			phs := make([]string, len(vals))
			for i, v := range vals {
				b.args = append(b.args, v)
				phs[i] = b.ph()
			}
			b.conds = append(b.conds, fmt.Sprintf("%s IN (%s)", d.col(name), strings.Join(phs, ", ")))
			continue
		}
		b.add(d.col(name)+" = %s", val)
	}

	if !spec.From.IsZero() {
		b.add("timestamp >= %s", d.timeArg(spec.From.Add(-resolveGraceBefore)))
	}
	if !spec.To.IsZero() {
		b.add("timestamp <= %s", d.timeArg(spec.To.Add(resolveGraceAfter)))
	}

	limit := spec.Limit
	if limit <= 0 {
		limit = defaultResolveLimit
	}

	sql = fmt.Sprintf("SELECT id, timestamp FROM %s%s ORDER BY timestamp %s LIMIT %d",
		src.table, b.where(), strings.ToUpper(order), limit)
	return sql, b.args, src.evidenceType, nil
}

// evidenceKey identifies an evidence row by backing table and row id.
// Explicit items carry the concrete event type ("PROCESS_NEW") while
// resolver hits carry the generic source type ("PROCESS_EVENT"); keying
// on the table dedupes them against each other.
func evidenceKey(eventType string, id int64) string {
	table := eventType
	switch {
	case eventType == event.TypeLogEvent:
		table = "log_events"
	case eventType == event.TypeMetricSnapshot:
		table = "metrics"
	case eventType == "NETWORK_EVENT" || strings.HasPrefix(eventType, "NET_"):
		table = "network_events"
	case eventType == "PROCESS_EVENT" || strings.HasPrefix(eventType, "PROCESS_"):
		table = "process_events"
	}
	return fmt.Sprintf("%s/%d", table, id)
}

// anySlice normalizes the slice shapes a filter value may arrive in.
// Resolver specs built in-process carry typed slices; specs decoded from
// a persisted alert's extra payload carry []any.
func anySlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []int64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	}
	return nil
}
