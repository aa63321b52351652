// Package watchlist holds the static knowledge the detection rules and
// parsers consult: known offensive tooling, sensitive system paths, and the
// processes allowed to touch them.
package watchlist

import "strings"

// hackingTools is the set of process and package names associated with
// offensive security tooling.
var hackingTools = map[string]bool{
	"nmap":        true,
	"netcat":      true,
	"nc":          true,
	"hydra":       true,
	"medusa":      true,
	"john":        true,
	"sqlmap":      true,
	"aircrack-ng": true,
	"kismet":      true,
	"metasploit":  true,
	"msfconsole":  true,
}

// sensitiveFiles is the set of paths whose access from a command line is
// worth flagging.
var sensitiveFiles = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers",
	"/etc/group",
	"/etc/gshadow",
	"/root/.ssh",
	"/root/.bash_history",
	"/etc/ssh/sshd_config",
	"/etc/crontab",
	".ssh/authorized_keys",
}

// accessWhitelist is the set of process names legitimately expected to read
// the sensitive files above.
var accessWhitelist = map[string]bool{
	"sshd":   true,
	"login":  true,
	"passwd": true,
	"chfn":   true,
	"chsh":   true,
}

// logTargets is the set of path fragments that identify system logs and
// shell history as the target of a destructive command.
var logTargets = []string{
	"/var/log",
	".bash_history",
	".zsh_history",
	"auth.log",
	"syslog",
	"wtmp",
	"btmp",
	"lastlog",
}

// shellNames is the set of interactive shell binaries.
var shellNames = map[string]bool{
	"sh":   true,
	"bash": true,
	"zsh":  true,
	"dash": true,
	"fish": true,
	"ksh":  true,
	"csh":  true,
	"tcsh": true,
}

// interpreterNames is the set of interpreter or network-utility parents that
// should not normally spawn an interactive shell.
var interpreterNames = map[string]bool{
	"python":  true,
	"python2": true,
	"python3": true,
	"php":     true,
	"node":    true,
	"nodejs":  true,
	"perl":    true,
	"ruby":    true,
	"nc":      true,
	"netcat":  true,
	"socat":   true,
	"lua":     true,
}

// cronPaths is the set of path fragments identifying scheduled-task
// configuration.
var cronPaths = []string{
	"/etc/cron",
	"/var/spool/cron",
	"/etc/crontab",
	"/etc/init.d",
	"/etc/systemd/system",
	"/etc/rc.local",
}

// IsHackingTool reports whether name (a process or package name, any case)
// is known offensive tooling.
func IsHackingTool(name string) bool {
	return hackingTools[strings.ToLower(strings.TrimSpace(name))]
}

// SensitiveFileIn returns the first sensitive path mentioned in cmdline, or
// "" when none is.
func SensitiveFileIn(cmdline string) string {
	for _, p := range sensitiveFiles {
		if strings.Contains(cmdline, p) {
			return p
		}
	}
	return ""
}

// IsWhitelisted reports whether a process name is allowed to access
// sensitive files without raising an alert.
func IsWhitelisted(name string) bool {
	return accessWhitelist[strings.ToLower(strings.TrimSpace(name))]
}

// LogTargetIn returns the first log or history target mentioned in s, or ""
// when none is.
func LogTargetIn(s string) string {
	for _, t := range logTargets {
		if strings.Contains(s, t) {
			return t
		}
	}
	return ""
}

// IsShell reports whether name is an interactive shell binary.
func IsShell(name string) bool {
	return shellNames[strings.ToLower(strings.TrimSpace(name))]
}

// IsInterpreter reports whether name is an interpreter or network utility
// that should not normally spawn a shell.
func IsInterpreter(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if interpreterNames[n] {
		return true
	}
	// Versioned interpreters such as "python3.11" or "php8.2".
	for _, base := range []string{"python", "php", "node", "perl", "ruby"} {
		if strings.HasPrefix(n, base) {
			return true
		}
	}
	return false
}

// CronPathIn returns the first scheduled-task path mentioned in s, or ""
// when none is.
func CronPathIn(s string) string {
	for _, p := range cronPaths {
		if strings.Contains(s, p) {
			return p
		}
	}
	return ""
}
