package collector

import (
	"context"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/logtail"
	"github.com/hids/agent/internal/parser"
)

// LogCollector composes the log tailer with the parser layer: each poll
// reads newly appended lines and parses the ones a source parser accepts.
type LogCollector struct {
	tailer     *logtail.Tailer
	dispatcher *parser.Dispatcher
}

func NewLogCollector(tailer *logtail.Tailer, dispatcher *parser.Dispatcher) *LogCollector {
	return &LogCollector{tailer: tailer, dispatcher: dispatcher}
}

func (c *LogCollector) Name() string { return "logs" }

func (c *LogCollector) Collect(ctx context.Context) ([]*event.Event, error) {
	lines, err := c.tailer.Collect()
	if err != nil {
		return nil, err
	}

	var events []*event.Event
	for _, line := range lines {
		if ctx.Err() != nil {
			return events, ctx.Err()
		}
		if ev := c.dispatcher.Dispatch(line); ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}
