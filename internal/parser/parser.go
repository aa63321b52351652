// Package parser turns raw log lines into structured log events. Each
// monitored source has its own parser; the Dispatcher selects one by source
// tag and never lets a malformed line escalate beyond a debug log.
package parser

import (
	"log/slog"
	"time"

	"github.com/hids/agent/internal/event"
)

// Parser converts raw lines from one log source into structured log events.
type Parser interface {
	// Match reports whether line looks like this source's format. Parse is
	// only called when Match returns true.
	Match(line string) bool

	// Parse extracts a structured LOG_EVENT from line.
	Parse(line string) (*event.Event, error)
}

// Dispatcher routes raw lines to the parser registered for their source.
type Dispatcher struct {
	parsers map[string]Parser
	logger  *slog.Logger
}

// NewDispatcher builds a Dispatcher with the full parser set registered
// under the canonical source names.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		parsers: map[string]Parser{
			"auth":   &AuthParser{},
			"syslog": &SyslogParser{},
			"kernel": &KernelParser{},
			"dpkg":   &DpkgParser{},
			"ufw":    &UFWParser{},
		},
		logger: logger,
	}
}

// Dispatch parses one raw line. It returns nil when no parser is registered
// for the source, the line does not match the source format, or parsing
// fails; a bad line is never fatal.
func (d *Dispatcher) Dispatch(raw event.RawLine) *event.Event {
	p, ok := d.parsers[raw.Source]
	if !ok {
		return nil
	}
	if !p.Match(raw.Text) {
		return nil
	}

	ev, err := p.Parse(raw.Text)
	if err != nil {
		d.logger.Debug("unparseable log line",
			slog.String("source", raw.Source),
			slog.Any("error", err))
		return nil
	}
	return ev
}

// newLogEvent assembles the common LOG_EVENT envelope around parsed fields.
// Timestamp stays zero when the line carried none; the dispatcher stamps it
// with the collection time.
func newLogEvent(ts time.Time, raw string, fields *event.LogFields) *event.Event {
	return &event.Event{
		Type:      event.TypeLogEvent,
		Timestamp: ts,
		Raw:       raw,
		Log:       fields,
	}
}
