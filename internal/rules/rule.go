package rules

import (
	"time"

	"github.com/hids/agent/internal/event"
)

// Rule is the common surface of every detection rule. Prefix narrows which
// event types reach the rule: "PROCESS_" for process events, "LOG_" for log
// events, "METRIC_" for metric snapshots, and "" for hybrid rules that see
// everything.
type Rule interface {
	ID() string
	Prefix() string
}

// StatelessRule decides from a single event.
type StatelessRule interface {
	Rule

	// Match reports whether the event should raise an alert.
	Match(ev *event.Event) bool

	// BuildAlert builds the alert payload for a matched event. Called only
	// when Match returned true.
	BuildAlert(ev *event.Event) *event.AlertBundle
}

// StatefulRule decides from a sequence of events correlated in the Context.
type StatefulRule interface {
	Rule

	// Consume feeds one event into the rule's correlation state.
	Consume(ev *event.Event, ctx *Context)

	// Evaluate inspects the state touched by the latest Consume and returns
	// any alerts that are now due. Re-running Evaluate without a new
	// Consume must not re-fire.
	Evaluate(ctx *Context) []*event.AlertBundle
}

// ThresholdRule is the generic "same kind, same key, k times in w seconds"
// stateful rule. Concrete rules supply the three hooks; Consume routes
// relevant events into the context and Evaluate fires once the pending
// key's count reaches Threshold, clearing the key so the next event starts
// a fresh accumulation.
type ThresholdRule struct {
	RuleID      string
	EventPrefix string
	Threshold   int
	Window      time.Duration

	// Relevant reports whether the event counts toward the threshold.
	Relevant func(ev *event.Event) bool

	// Key maps the event to its correlation key.
	Key func(ev *event.Event) string

	// CreateAlert builds the alert once the threshold is reached.
	CreateAlert func(key string, refs []EventRef) *event.AlertBundle

	pending []string
}

func (r *ThresholdRule) ID() string     { return r.RuleID }
func (r *ThresholdRule) Prefix() string { return r.EventPrefix }

func (r *ThresholdRule) Consume(ev *event.Event, ctx *Context) {
	if !r.Relevant(ev) {
		return
	}

	key := r.Key(ev)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ctx.Add(r.RuleID, key, EventRef{EventID: ev.ID, EventType: ev.Type, TS: ts}, r.Window)
	r.pending = append(r.pending, key)
}

func (r *ThresholdRule) Evaluate(ctx *Context) []*event.AlertBundle {
	pending := r.pending
	r.pending = nil

	var alerts []*event.AlertBundle
	for _, key := range pending {
		refs := ctx.Get(r.RuleID, key, r.Window)
		if len(refs) < r.Threshold {
			continue
		}
		alerts = append(alerts, r.CreateAlert(key, refs))
		ctx.ClearKey(r.RuleID, key)
	}
	return alerts
}

// newAlert assembles the common alert payload fields.
func newAlert(alertType, ruleName string, severity event.Severity, message string) *event.Alert {
	return &event.Alert{
		Timestamp: time.Now(),
		Type:      alertType,
		RuleName:  ruleName,
		Severity:  severity,
		Message:   message,
	}
}
