// Package dispatch connects collectors to persistence and detection. Each
// collected event is timestamped, queued for the writer, and evaluated
// against the rule engine; derived alerts are queued after the event so
// the alert's evidence resolver can see the event's row.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/rules"
)

// Sink receives payloads for persistence. *writer.Writer implements it.
type Sink interface {
	EnqueueEvent(ev *event.Event) error
	EnqueueAlert(bundle *event.AlertBundle) error
}

// Dispatcher routes events through the pipeline.
type Dispatcher struct {
	sink   Sink
	engine *rules.Engine
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Dispatcher.
func New(sink Sink, engine *rules.Engine, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// HandleEvent processes one collected event: stamp, persist, evaluate.
// Failures are logged, never propagated; one bad event must not stall a
// collector tick.
func (d *Dispatcher) HandleEvent(ev *event.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}

	if err := d.sink.EnqueueEvent(ev); err != nil {
		d.logger.Error("enqueue event failed",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()))
	}

	for _, bundle := range d.engine.Evaluate(ev) {
		if bundle.Alert.Timestamp.IsZero() {
			bundle.Alert.Timestamp = ev.Timestamp
		}
		if err := d.sink.EnqueueAlert(bundle); err != nil {
			d.logger.Error("enqueue alert failed",
				slog.String("rule", bundle.Alert.RuleName),
				slog.String("error", err.Error()))
			continue
		}
		d.logger.Info("alert raised",
			slog.String("rule", bundle.Alert.RuleName),
			slog.String("severity", string(bundle.Alert.Severity)),
			slog.String("message", bundle.Alert.Message))
	}
}

// HandleBatch processes a collector tick's events in order.
func (d *Dispatcher) HandleBatch(events []*event.Event) {
	for _, ev := range events {
		d.HandleEvent(ev)
	}
}
