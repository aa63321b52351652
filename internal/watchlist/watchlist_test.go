package watchlist_test

import (
	"testing"

	"github.com/hids/agent/internal/watchlist"
)

func TestIsHackingTool(t *testing.T) {
	for _, name := range []string{"nmap", "NC", " hydra ", "msfconsole"} {
		if !watchlist.IsHackingTool(name) {
			t.Errorf("IsHackingTool(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"bash", "vim", "nmap-helper", ""} {
		if watchlist.IsHackingTool(name) {
			t.Errorf("IsHackingTool(%q) = true, want false", name)
		}
	}
}

func TestSensitiveFileIn(t *testing.T) {
	if got := watchlist.SensitiveFileIn("cat /etc/shadow"); got != "/etc/shadow" {
		t.Errorf("SensitiveFileIn = %q, want /etc/shadow", got)
	}
	// Key files of any user, not just root's.
	if got := watchlist.SensitiveFileIn("cat /home/bob/.ssh/authorized_keys"); got != ".ssh/authorized_keys" {
		t.Errorf("SensitiveFileIn = %q, want .ssh/authorized_keys", got)
	}
	if got := watchlist.SensitiveFileIn("vim /etc/crontab"); got != "/etc/crontab" {
		t.Errorf("SensitiveFileIn = %q, want /etc/crontab", got)
	}
	if got := watchlist.SensitiveFileIn("ls -la /home/user"); got != "" {
		t.Errorf("SensitiveFileIn = %q, want empty", got)
	}
}

func TestIsWhitelisted(t *testing.T) {
	if !watchlist.IsWhitelisted("sshd") {
		t.Error("sshd should be whitelisted")
	}
	if watchlist.IsWhitelisted("cat") {
		t.Error("cat should not be whitelisted")
	}
}

func TestLogTargetIn(t *testing.T) {
	if got := watchlist.LogTargetIn("rm -rf /var/log/auth.log"); got != "/var/log" {
		t.Errorf("LogTargetIn = %q, want /var/log", got)
	}
	if got := watchlist.LogTargetIn("cat > ~/.bash_history"); got != ".bash_history" {
		t.Errorf("LogTargetIn = %q, want .bash_history", got)
	}
	if got := watchlist.LogTargetIn("rm -rf /tmp/build"); got != "" {
		t.Errorf("LogTargetIn = %q, want empty", got)
	}
}

func TestIsShell(t *testing.T) {
	if !watchlist.IsShell("bash") || !watchlist.IsShell("zsh") {
		t.Error("bash and zsh are shells")
	}
	if watchlist.IsShell("python3") {
		t.Error("python3 is not a shell")
	}
}

func TestIsInterpreter(t *testing.T) {
	for _, name := range []string{"python3", "python3.11", "php8.2", "node", "nc", "socat", "lua"} {
		if !watchlist.IsInterpreter(name) {
			t.Errorf("IsInterpreter(%q) = false, want true", name)
		}
	}
	if watchlist.IsInterpreter("bash") {
		t.Error("bash is not an interpreter")
	}
}

func TestCronPathIn(t *testing.T) {
	if got := watchlist.CronPathIn("echo job > /etc/cron.d/backdoor"); got != "/etc/cron" {
		t.Errorf("CronPathIn = %q, want /etc/cron", got)
	}
	if got := watchlist.CronPathIn("systemctl status nginx"); got != "" {
		t.Errorf("CronPathIn = %q, want empty", got)
	}
}
