package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hids/agent/internal/event"
)

// UFWParser turns ufw.log firewall verdicts into events, keeping the packet
// detail (ports, protocol, interfaces) in the extra fields.
type UFWParser struct{}

var (
	ufwActionRe  = regexp.MustCompile(`\[UFW (\w+)\]`)
	ufwSrcIPRe   = regexp.MustCompile(`SRC=(\S+)`)
	ufwDstIPRe   = regexp.MustCompile(`DST=(\S+)`)
	ufwProtoRe   = regexp.MustCompile(`PROTO=(\S+)`)
	ufwSrcPortRe = regexp.MustCompile(`SPT=(\d+)`)
	ufwDstPortRe = regexp.MustCompile(`DPT=(\d+)`)
	ufwInIfRe    = regexp.MustCompile(`IN=(\S+)`)
	ufwOutIfRe   = regexp.MustCompile(`OUT=(\S+)`)
)

func (p *UFWParser) Match(line string) bool {
	if line == "" {
		return false
	}
	return strings.Contains(line, "UFW ")
}

func (p *UFWParser) Parse(line string) (*event.Event, error) {
	eventType := p.extractEventType(line)

	extra := map[string]any{}
	if m := ufwDstIPRe.FindStringSubmatch(line); m != nil {
		extra["dst_ip"] = m[1]
	}
	if m := ufwProtoRe.FindStringSubmatch(line); m != nil {
		extra["protocol"] = strings.ToLower(m[1])
	}
	if port, ok := matchPort(ufwSrcPortRe, line); ok {
		extra["src_port"] = port
	}
	if port, ok := matchPort(ufwDstPortRe, line); ok {
		extra["dst_port"] = port
	}
	if m := ufwInIfRe.FindStringSubmatch(line); m != nil {
		extra["in_interface"] = m[1]
	}
	if m := ufwOutIfRe.FindStringSubmatch(line); m != nil {
		extra["out_interface"] = m[1]
	}

	fields := &event.LogFields{
		LogSource: "ufw",
		EventType: eventType,
		Category:  event.CategoryFirewall,
		Severity:  p.estimateSeverity(eventType),
		Message:   strings.TrimSpace(line),
		Extra:     extra,
	}
	if m := ufwSrcIPRe.FindStringSubmatch(line); m != nil {
		fields.IP = m[1]
	}

	return newLogEvent(parseTimestamp(line), strings.TrimSpace(line), fields), nil
}

func (p *UFWParser) extractEventType(line string) string {
	m := ufwActionRe.FindStringSubmatch(line)
	if m == nil {
		return "UFW_EVENT"
	}
	return "UFW_" + strings.ToUpper(m[1])
}

func (p *UFWParser) estimateSeverity(eventType string) event.Severity {
	if eventType == "UFW_BLOCK" {
		return event.SeverityMedium
	}
	return event.SeverityLow
}

func matchPort(re *regexp.Regexp, line string) (int, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return port, true
}
