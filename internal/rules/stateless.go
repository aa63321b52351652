package rules

import (
	"fmt"
	"strings"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/watchlist"
)

// resolveAround builds a resolver spec that finds the triggering event by
// its own attributes and timestamp. Rules cannot link by id directly: the
// event is persisted asynchronously and has no id yet when the rule fires.
// The writer widens the window to absorb commit skew.
func resolveAround(ev *event.Event, source string, filters map[string]any) *event.ResolveSpec {
	return &event.ResolveSpec{
		Source:  source,
		Filters: filters,
		From:    ev.Timestamp,
		To:      ev.Timestamp,
		Limit:   1,
	}
}

// ---------------------------------------------------------------------------
// PROC_001 suspicious process
// ---------------------------------------------------------------------------

// SuspiciousProcessRule (PROC_001) flags new processes whose name is known
// offensive tooling.
type SuspiciousProcessRule struct{}

func (SuspiciousProcessRule) ID() string     { return "PROC_001" }
func (SuspiciousProcessRule) Prefix() string { return "PROCESS_" }

func (SuspiciousProcessRule) Match(ev *event.Event) bool {
	return ev.Type == event.TypeProcessNew && ev.Process != nil &&
		watchlist.IsHackingTool(ev.Process.Name)
}

func (SuspiciousProcessRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	p := ev.Process
	alert := newAlert("ALERT_PROCESS_SUSPICIOUS", "PROC_001", event.SeverityHigh,
		fmt.Sprintf("Suspicious process detected: %s (PID: %d)", strings.ToLower(p.Name), p.PID))

	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "process_events", map[string]any{
			"process_name": p.Name,
			"pid":          int64(p.PID),
		}),
	}
}

// ---------------------------------------------------------------------------
// PROC_002 suspicious shell
// ---------------------------------------------------------------------------

// shellSpawnNames is the exact shell set PROC_002 watches for.
var shellSpawnNames = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "rbash": true,
}

// SuspiciousShellRule (PROC_002) flags a shell spawned by an interpreter or
// network utility, the classic reverse-shell shape.
type SuspiciousShellRule struct{}

func (SuspiciousShellRule) ID() string     { return "PROC_002" }
func (SuspiciousShellRule) Prefix() string { return "PROCESS_" }

func (SuspiciousShellRule) Match(ev *event.Event) bool {
	if ev.Type != event.TypeProcessNew || ev.Process == nil {
		return false
	}
	name := strings.ToLower(ev.Process.Name)
	return shellSpawnNames[name] && watchlist.IsInterpreter(ev.Process.ParentName)
}

func (SuspiciousShellRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	p := ev.Process
	user := p.Username
	if user == "" {
		user = "unknown"
	}
	alert := newAlert("ALERT_SUSPICIOUS_SHELL", "PROC_002", event.SeverityCritical,
		fmt.Sprintf("Process %q spawned a shell %q under user %q, possible reverse shell",
			p.ParentName, p.Name, user))

	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "process_events", map[string]any{
			"process_name": p.Name,
			"pid":          int64(p.PID),
		}),
	}
}

// ---------------------------------------------------------------------------
// FILE_001 sensitive file access
// ---------------------------------------------------------------------------

// SensitiveFileRule (FILE_001) flags non-whitelisted processes whose command
// line touches a sensitive system path.
type SensitiveFileRule struct{}

func (SensitiveFileRule) ID() string     { return "FILE_001" }
func (SensitiveFileRule) Prefix() string { return "PROCESS_" }

func (SensitiveFileRule) Match(ev *event.Event) bool {
	if ev.Type != event.TypeProcessNew || ev.Process == nil {
		return false
	}
	if watchlist.IsWhitelisted(ev.Process.Name) {
		return false
	}
	return watchlist.SensitiveFileIn(strings.ToLower(ev.Process.Cmdline)) != ""
}

func (SensitiveFileRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	p := ev.Process
	path := watchlist.SensitiveFileIn(strings.ToLower(p.Cmdline))
	alert := newAlert("ALERT_SENSITIVE_FILE_ACCESS", "FILE_001", event.SeverityHigh,
		fmt.Sprintf("Sensitive file %s accessed by user %q using %q (PID: %d)",
			path, p.Username, p.Name, p.PID))

	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "process_events", map[string]any{
			"process_name": p.Name,
			"pid":          int64(p.PID),
		}),
	}
}

// ---------------------------------------------------------------------------
// LOG_001 log clearing
// ---------------------------------------------------------------------------

// logWipeTools is the process set whose runs against log paths look like
// evidence destruction.
var logWipeTools = map[string]bool{"rm": true, "truncate": true, "shred": true}

// LogClearingRule (LOG_001) is hybrid: it flags processes wiping logs or
// shell history, and log lines describing the same.
type LogClearingRule struct{}

func (LogClearingRule) ID() string     { return "LOG_001" }
func (LogClearingRule) Prefix() string { return "" }

func (LogClearingRule) Match(ev *event.Event) bool {
	switch {
	case ev.Type == event.TypeProcessNew && ev.Process != nil:
		cmdline := strings.ToLower(ev.Process.Cmdline)
		if logWipeTools[strings.ToLower(ev.Process.Name)] && watchlist.LogTargetIn(cmdline) != "" {
			return true
		}
		return strings.Contains(cmdline, "/dev/null") && strings.Contains(cmdline, "history")

	case ev.Type == event.TypeLogEvent && ev.Log != nil:
		msg := strings.ToLower(ev.Log.Message)
		hasTool := strings.Contains(msg, "rm ") || strings.Contains(msg, "truncate") || strings.Contains(msg, "shred")
		if hasTool && watchlist.LogTargetIn(msg) != "" {
			return true
		}
		return strings.Contains(msg, "/dev/null") && strings.Contains(msg, "history")
	}
	return false
}

func (LogClearingRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	if ev.Type == event.TypeProcessNew {
		p := ev.Process
		alert := newAlert("ALERT_LOG_DELETION", "LOG_001", event.SeverityHigh,
			fmt.Sprintf("Log clearing attempt by user %q using %q (PID: %d)", p.Username, p.Name, p.PID))
		return &event.AlertBundle{
			Alert: alert,
			Resolve: resolveAround(ev, "process_events", map[string]any{
				"process_name": p.Name,
				"pid":          int64(p.PID),
			}),
		}
	}

	alert := newAlert("ALERT_LOG_DELETION", "LOG_001", event.SeverityHigh,
		"Log clearing activity reported in system logs")
	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "log_events", map[string]any{
			"event_type": ev.Log.EventType,
		}),
	}
}

// ---------------------------------------------------------------------------
// UUC_001 user creation
// ---------------------------------------------------------------------------

// userCreationKeywords are the log fragments produced by useradd/adduser.
var userCreationKeywords = []string{"new user", "new group", "useradd", "adduser"}

// UserCreationRule (UUC_001) flags log lines describing a new user or group.
type UserCreationRule struct{}

func (UserCreationRule) ID() string     { return "UUC_001" }
func (UserCreationRule) Prefix() string { return "LOG_" }

func (UserCreationRule) Match(ev *event.Event) bool {
	if ev.Type != event.TypeLogEvent || ev.Log == nil {
		return false
	}
	msg := strings.ToLower(ev.Log.Message)
	for _, kw := range userCreationKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func (UserCreationRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	alert := newAlert("ALERT_USER_CREATION", "UUC_001", event.SeverityCritical,
		"New user or group creation detected in system logs")

	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "log_events", map[string]any{
			"event_type": ev.Log.EventType,
		}),
	}
}

// ---------------------------------------------------------------------------
// PER_001 persistence via cron
// ---------------------------------------------------------------------------

// cronLogActions are the crontab operations syslog reports.
var cronLogActions = []string{"edit", "replace", "delete", "list"}

// PersistenceCronRule (PER_001) is hybrid: it flags processes touching
// scheduled-task configuration and log lines describing crontab changes.
type PersistenceCronRule struct{}

func (PersistenceCronRule) ID() string     { return "PER_001" }
func (PersistenceCronRule) Prefix() string { return "" }

func (PersistenceCronRule) Match(ev *event.Event) bool {
	switch {
	case ev.Type == event.TypeProcessNew && ev.Process != nil:
		cmdline := strings.ToLower(ev.Process.Cmdline)
		return watchlist.CronPathIn(cmdline) != "" || strings.Contains(cmdline, "crontab")

	case ev.Type == event.TypeLogEvent && ev.Log != nil:
		msg := strings.ToLower(ev.Log.Message)
		if !strings.Contains(msg, "crontab") {
			return false
		}
		for _, action := range cronLogActions {
			if strings.Contains(msg, action) {
				return true
			}
		}
	}
	return false
}

func (PersistenceCronRule) BuildAlert(ev *event.Event) *event.AlertBundle {
	if ev.Type == event.TypeProcessNew {
		p := ev.Process
		alert := newAlert("ALERT_PERSISTENCE_CRON", "PER_001", event.SeverityHigh,
			fmt.Sprintf("Possible persistence attempt: user %q executed a cron-related command", p.Username))
		return &event.AlertBundle{
			Alert: alert,
			Resolve: resolveAround(ev, "process_events", map[string]any{
				"process_name": p.Name,
				"pid":          int64(p.PID),
			}),
		}
	}

	user := ev.Log.User
	if user == "" {
		user = "unknown"
	}
	alert := newAlert("ALERT_PERSISTENCE_CRON", "PER_001", event.SeverityHigh,
		fmt.Sprintf("Crontab modification detected in system logs for user %q", user))
	return &event.AlertBundle{
		Alert: alert,
		Resolve: resolveAround(ev, "log_events", map[string]any{
			"event_type": ev.Log.EventType,
		}),
	}
}
