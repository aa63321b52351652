package parser

import (
	"regexp"
	"strings"

	"github.com/hids/agent/internal/event"
)

// SyslogParser classifies general system log lines, mostly around service
// lifecycle and error chatter from systemd.
type SyslogParser struct{}

var (
	syslogTimestampRe = regexp.MustCompile(`^[A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2}`)
	syslogServiceRe   = regexp.MustCompile(`([a-zA-Z0-9_.@-]+)\.service`)
	syslogFailedRe    = regexp.MustCompile(`Failed to start|entered failed state|failed with result`)
	syslogStartedRe   = regexp.MustCompile(`Started |Starting `)
	syslogStoppedRe   = regexp.MustCompile(`Stopped |Stopping `)
)

func (p *SyslogParser) Match(line string) bool {
	if line == "" {
		return false
	}
	return syslogTimestampRe.MatchString(line)
}

func (p *SyslogParser) Parse(line string) (*event.Event, error) {
	eventType := p.detectEventType(line)

	fields := &event.LogFields{
		LogSource: "syslog",
		EventType: eventType,
		Category:  event.CategorySystem,
		Severity:  p.estimateSeverity(eventType),
		Message:   strings.TrimSpace(line),
	}
	if m := syslogServiceRe.FindStringSubmatch(line); m != nil {
		fields.Extra = map[string]any{"service": m[1]}
	}

	return newLogEvent(parseTimestamp(line), strings.TrimSpace(line), fields), nil
}

func (p *SyslogParser) detectEventType(line string) string {
	lower := strings.ToLower(line)
	switch {
	case syslogFailedRe.MatchString(line):
		return "SERVICE_FAILED"
	case syslogStartedRe.MatchString(line):
		return "SERVICE_STARTED"
	case syslogStoppedRe.MatchString(line):
		return "SERVICE_STOPPED"
	case strings.Contains(lower, "error"):
		return "SYSTEM_ERROR"
	case strings.Contains(lower, "warning"), strings.Contains(lower, "warn"):
		return "SYSTEM_WARNING"
	default:
		return "SYS_EVENT"
	}
}

func (p *SyslogParser) estimateSeverity(eventType string) event.Severity {
	switch eventType {
	case "SERVICE_FAILED", "SYSTEM_ERROR":
		return event.SeverityHigh
	case "SERVICE_STOPPED":
		return event.SeverityMedium
	default:
		return event.SeverityLow
	}
}
