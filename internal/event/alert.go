package event

import "time"

// Role classifies how an evidence row relates to its alert.
type Role string

const (
	RoleTrigger Role = "TRIGGER"
	RoleSupport Role = "SUPPORT"
	RoleContext Role = "CONTEXT"
)

// Alert is a rule verdict awaiting persistence. ID and the committed
// Timestamp are assigned by the writer.
type Alert struct {
	ID         int64          `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`
	RuleName   string         `json:"rule_name"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	LogEventID *int64         `json:"log_event_id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// EvidenceItem links an alert to one persisted event.
type EvidenceItem struct {
	EventType string `json:"event_type"`
	EventID   int64  `json:"event_id"`
	Role      Role   `json:"role"`
	Sequence  int    `json:"sequence"`
}

// AlertBundle is the full alert payload a rule hands to the writer: the
// alert itself, any evidence the rule could link explicitly, and an optional
// resolver spec the writer materializes into SUPPORT evidence at insert
// time. Explicit and resolved evidence are additive.
type AlertBundle struct {
	Alert    *Alert
	Evidence []EvidenceItem
	Resolve  *ResolveSpec
}

// ResolveSpec declares which stored events support an alert. Rules emit it
// instead of event IDs because events are persisted asynchronously and
// usually have no ID yet when the rule fires.
type ResolveSpec struct {
	// Source selects the table: "log_events", "process_events",
	// "network_events", or "metric_events".
	Source string `json:"source"`

	// Filters holds equality filters on recognized fields. A key with an
	// "__in" suffix matches any of the listed values; a non-empty "id__in"
	// short-circuits every other filter.
	Filters map[string]any `json:"filters,omitempty"`

	// From and To bound the match window. The writer widens it slightly to
	// tolerate commit skew. Zero values leave the window open.
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	// Limit caps the matched rows; 0 means the default of 20.
	Limit int `json:"limit,omitempty"`

	// Order is "asc" or "desc" by timestamp; empty means "desc".
	Order string `json:"order,omitempty"`
}
