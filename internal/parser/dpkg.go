package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/watchlist"
)

// DpkgParser turns dpkg.log lines into package lifecycle events. Installing
// known offensive tooling is flagged HIGH regardless of action.
type DpkgParser struct{}

var (
	dpkgDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	dpkgPackageRe = regexp.MustCompile(`\s([a-zA-Z0-9.+-]+):([a-z0-9]+)\s`)
)

// dpkgActions is the set of dpkg.log actions worth an event.
var dpkgActions = []string{"install", "upgrade", "remove", "purge"}

func (p *DpkgParser) Match(line string) bool {
	if line == "" {
		return false
	}
	if !dpkgDateRe.MatchString(line) {
		return false
	}
	for _, action := range dpkgActions {
		if strings.Contains(line, " "+action+" ") {
			return true
		}
	}
	return false
}

func (p *DpkgParser) Parse(line string) (*event.Event, error) {
	action := p.extractAction(line)
	pkg, arch := p.extractPackage(line)
	oldVer, newVer := p.extractVersions(line)
	eventType := p.normalizeEventType(action, oldVer, newVer)

	fields := &event.LogFields{
		LogSource: "dpkg",
		EventType: eventType,
		Category:  event.CategoryPackage,
		Severity:  p.estimateSeverity(action, pkg),
		Message:   fmt.Sprintf("%s %s (old:%s new:%s)", action, pkg, oldVer, newVer),
		Extra: map[string]any{
			"package":     pkg,
			"arch":        arch,
			"action":      action,
			"old_version": oldVer,
			"new_version": newVer,
		},
	}

	return newLogEvent(parseTimestamp(line), strings.TrimSpace(line), fields), nil
}

func (p *DpkgParser) extractAction(line string) string {
	for _, action := range dpkgActions {
		if strings.Contains(line, " "+action+" ") {
			return action
		}
	}
	return "unknown"
}

// extractPackage splits "nmap:arm64" into name and architecture.
func (p *DpkgParser) extractPackage(line string) (string, string) {
	m := dpkgPackageRe.FindStringSubmatch(line)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// extractVersions takes the last two columns as old and new version.
func (p *DpkgParser) extractVersions(line string) (string, string) {
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return "<none>", "<none>"
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func (p *DpkgParser) normalizeEventType(action, oldVer, newVer string) string {
	switch action {
	case "install":
		return "PACKAGE_INSTALL"
	case "remove":
		return "PACKAGE_REMOVE"
	case "purge":
		return "PACKAGE_PURGE"
	case "upgrade":
		if p.isDowngrade(oldVer, newVer) {
			return "PACKAGE_DOWNGRADE"
		}
		return "PACKAGE_UPGRADE"
	default:
		return "PACKAGE_EVENT"
	}
}

// isDowngrade compares version strings lexicographically. Debian version
// ordering (epochs, tildes) is deliberately not implemented here; the
// comparison only needs to catch the common rollback case.
func (p *DpkgParser) isDowngrade(oldVer, newVer string) bool {
	if oldVer == "<none>" || newVer == "<none>" {
		return false
	}
	return newVer < oldVer
}

func (p *DpkgParser) estimateSeverity(action, pkg string) event.Severity {
	if watchlist.IsHackingTool(pkg) {
		return event.SeverityHigh
	}
	if action == "install" || action == "remove" {
		return event.SeverityMedium
	}
	return event.SeverityLow
}
