package rules

import (
	"log/slog"
	"strings"

	"github.com/hids/agent/internal/event"
)

// Engine evaluates the registered rule set against each event. Rules are
// indexed by event prefix so a process event never runs log rules; hybrid
// rules (empty prefix) see everything. A panicking rule is logged and
// isolated, the rest keep evaluating.
type Engine struct {
	ctx       *Context
	stateless []StatelessRule
	stateful  []StatefulRule
	logger    *slog.Logger
}

// NewEngine builds an Engine with the canonical rule set.
func NewEngine(logger *slog.Logger) *Engine {
	e := &Engine{
		ctx:    NewContext(),
		logger: logger,
	}

	e.RegisterStateless(
		SuspiciousProcessRule{},
		SuspiciousShellRule{},
		SensitiveFileRule{},
		LogClearingRule{},
		UserCreationRule{},
		PersistenceCronRule{},
	)
	e.RegisterStateful(
		NewSSHBruteforceRule(),
		NewHighResourceUsageRule(),
	)
	return e
}

// RegisterStateless adds stateless rules to the engine.
func (e *Engine) RegisterStateless(rules ...StatelessRule) {
	e.stateless = append(e.stateless, rules...)
}

// RegisterStateful adds stateful rules to the engine.
func (e *Engine) RegisterStateful(rules ...StatefulRule) {
	e.stateful = append(e.stateful, rules...)
}

// Context exposes the correlation context for the health surface.
func (e *Engine) Context() *Context { return e.ctx }

// Evaluate runs every applicable rule against ev and returns the alerts
// produced.
func (e *Engine) Evaluate(ev *event.Event) []*event.AlertBundle {
	var alerts []*event.AlertBundle

	for _, rule := range e.stateless {
		if !applies(rule, ev.Type) {
			continue
		}
		alerts = append(alerts, e.runStateless(rule, ev)...)
	}

	for _, rule := range e.stateful {
		if !applies(rule, ev.Type) {
			continue
		}
		alerts = append(alerts, e.runStateful(rule, ev)...)
	}

	return alerts
}

func (e *Engine) runStateless(rule StatelessRule, ev *event.Event) (alerts []*event.AlertBundle) {
	defer e.recoverRule(rule)

	if !rule.Match(ev) {
		return nil
	}
	bundle := rule.BuildAlert(ev)
	if bundle == nil {
		return nil
	}
	return []*event.AlertBundle{bundle}
}

func (e *Engine) runStateful(rule StatefulRule, ev *event.Event) (alerts []*event.AlertBundle) {
	defer e.recoverRule(rule)

	rule.Consume(ev, e.ctx)
	return rule.Evaluate(e.ctx)
}

// recoverRule turns a rule panic into a log line so one broken rule cannot
// take the dispatcher down.
func (e *Engine) recoverRule(rule Rule) {
	if r := recover(); r != nil {
		e.logger.Error("rule panicked",
			slog.String("rule", rule.ID()),
			slog.Any("panic", r))
	}
}

func applies(rule Rule, eventType string) bool {
	prefix := rule.Prefix()
	return prefix == "" || strings.HasPrefix(eventType, prefix)
}
