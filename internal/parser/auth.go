package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hids/agent/internal/event"
)

// AuthParser turns auth.log lines into login, sudo, and session events.
// Brute-force and root-login rules feed on its output.
type AuthParser struct{}

var (
	authUserRe   = regexp.MustCompile(`(?:for(?: invalid user)?|user[=\s])\s*(\S+)`)
	authIPRe     = regexp.MustCompile(`from\s+(\d{1,3}(?:\.\d{1,3}){3})`)
	authRhostRe  = regexp.MustCompile(`rhost=(\d{1,3}(?:\.\d{1,3}){3})`)
	authMethodRe = regexp.MustCompile(`(password|publickey|keyboard-interactive)`)
	authPIDRe    = regexp.MustCompile(`\[(\d+)\]`)
	sudoUserRe   = regexp.MustCompile(`sudo:\s+(\w+)\s+:`)
)

// authKeywords marks lines worth parsing from auth.log.
var authKeywords = []string{
	"sshd",
	"sudo",
	"authentication failure",
	"Failed password",
	"Accepted password",
	"Accepted publickey",
	"session opened",
	"session closed",
}

func (p *AuthParser) Match(line string) bool {
	if line == "" {
		return false
	}
	for _, kw := range authKeywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}

func (p *AuthParser) Parse(line string) (*event.Event, error) {
	eventType := p.detectEventType(line)
	user := p.extractUser(line, eventType)

	fields := &event.LogFields{
		LogSource: "auth",
		EventType: eventType,
		Category:  event.CategoryAuth,
		Severity:  p.estimateSeverity(eventType, user),
		Message:   strings.TrimSpace(line),
		User:      user,
		IP:        p.extractIP(line),
		PID:       p.extractPID(line),
	}
	if m := authMethodRe.FindStringSubmatch(line); m != nil {
		fields.Extra = map[string]any{"method": m[1]}
	}

	return newLogEvent(parseTimestamp(line), strings.TrimSpace(line), fields), nil
}

func (p *AuthParser) detectEventType(line string) string {
	isSudo := strings.Contains(line, "sudo")
	switch {
	case strings.Contains(line, "Failed password"):
		return "FAILED_LOGIN"
	case strings.Contains(line, "Accepted password"), strings.Contains(line, "Accepted publickey"):
		return "SUCCESS_LOGIN"
	case isSudo && strings.Contains(line, "authentication failure"):
		return "SUDO_FAILED"
	case strings.Contains(line, "authentication failure"):
		return "FAILED_AUTH"
	case isSudo && strings.Contains(line, "session opened"):
		return "SUDO_SESSION_OPEN"
	case isSudo && strings.Contains(line, "session closed"):
		return "SUDO_SESSION_CLOSE"
	case strings.Contains(line, "session opened"):
		return "SESSION_OPEN"
	case strings.Contains(line, "session closed"):
		return "SESSION_CLOSE"
	default:
		return "AUTH_EVENT"
	}
}

func (p *AuthParser) extractUser(line, eventType string) string {
	if strings.HasPrefix(eventType, "SUDO") {
		if m := sudoUserRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	if m := authUserRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSuffix(m[1], ";")
	}
	return ""
}

func (p *AuthParser) extractIP(line string) string {
	if m := authIPRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := authRhostRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func (p *AuthParser) extractPID(line string) int32 {
	m := authPIDRe.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return int32(pid)
}

func (p *AuthParser) estimateSeverity(eventType, user string) event.Severity {
	switch {
	case eventType == "FAILED_LOGIN", eventType == "FAILED_AUTH":
		return event.SeverityMedium
	case eventType == "SUCCESS_LOGIN" && user == "root":
		return event.SeverityHigh
	case strings.HasPrefix(eventType, "SUDO"):
		return event.SeverityHigh
	default:
		return event.SeverityLow
	}
}
