package parser

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hids/agent/internal/event"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLine runs line through the dispatcher and fails the test when nothing
// comes out.
func parseLine(t *testing.T, source, line string) *event.Event {
	t.Helper()
	ev := NewDispatcher(quietLogger()).Dispatch(event.RawLine{Source: source, Text: line})
	if ev == nil {
		t.Fatalf("Dispatch(%q, %q) returned nil", source, line)
	}
	if ev.Type != event.TypeLogEvent || ev.Log == nil {
		t.Fatalf("Dispatch returned non-log event: %+v", ev)
	}
	return ev
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

func TestParseTimestamp_ISO(t *testing.T) {
	ts := parseTimestamp("2025-12-04 12:32:10 install nmap:amd64 <none> 7.94")
	want := time.Date(2025, 12, 4, 12, 32, 10, 0, time.Local)
	if !ts.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", ts, want)
	}
}

func TestParseTimestamp_ISOWithT(t *testing.T) {
	ts := parseTimestamp("2025-12-04T12:32:10 something happened")
	want := time.Date(2025, 12, 4, 12, 32, 10, 0, time.Local)
	if !ts.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", ts, want)
	}
}

func TestParseTimestamp_ClassicSyslog(t *testing.T) {
	ts := parseTimestamp("Dec  4 12:32:10 host sshd[123]: whatever")
	if ts.IsZero() {
		t.Fatal("parseTimestamp returned zero time")
	}
	if ts.Month() != time.December || ts.Day() != 4 || ts.Hour() != 12 {
		t.Errorf("parseTimestamp = %v, want Dec 4 12:32:10", ts)
	}
	if ts.Year() != time.Now().Year() {
		t.Errorf("year = %d, want current year", ts.Year())
	}
}

func TestParseTimestamp_Garbage(t *testing.T) {
	for _, line := range []string{"", "no timestamp here", "999 not a date"} {
		if ts := parseTimestamp(line); !ts.IsZero() {
			t.Errorf("parseTimestamp(%q) = %v, want zero", line, ts)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestAuthParser_FailedLogin(t *testing.T) {
	line := "Dec  4 12:00:01 host sshd[4242]: Failed password for invalid user admin from 203.0.113.7 port 52114 ssh2"
	ev := parseLine(t, "auth", line)

	if ev.Log.EventType != "FAILED_LOGIN" {
		t.Errorf("EventType = %q, want FAILED_LOGIN", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityMedium {
		t.Errorf("Severity = %q, want MEDIUM", ev.Log.Severity)
	}
	if ev.Log.Category != event.CategoryAuth {
		t.Errorf("Category = %q, want AUTH", ev.Log.Category)
	}
	if ev.Log.User != "admin" {
		t.Errorf("User = %q, want admin", ev.Log.User)
	}
	if ev.Log.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want 203.0.113.7", ev.Log.IP)
	}
	if ev.Log.PID != 4242 {
		t.Errorf("PID = %d, want 4242", ev.Log.PID)
	}
	if method, _ := ev.Log.Extra["method"].(string); method != "password" {
		t.Errorf("method = %q, want password", method)
	}
}

func TestAuthParser_RootLoginIsHigh(t *testing.T) {
	line := "Dec  4 12:00:02 host sshd[99]: Accepted password for root from 198.51.100.9 port 40022 ssh2"
	ev := parseLine(t, "auth", line)

	if ev.Log.EventType != "SUCCESS_LOGIN" {
		t.Errorf("EventType = %q, want SUCCESS_LOGIN", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH for root login", ev.Log.Severity)
	}
}

func TestAuthParser_UserLoginIsLow(t *testing.T) {
	line := "Dec  4 12:00:03 host sshd[99]: Accepted publickey for deploy from 198.51.100.9 port 40022 ssh2"
	ev := parseLine(t, "auth", line)

	if ev.Log.EventType != "SUCCESS_LOGIN" || ev.Log.Severity != event.SeverityLow {
		t.Errorf("got %q/%q, want SUCCESS_LOGIN/LOW", ev.Log.EventType, ev.Log.Severity)
	}
}

func TestAuthParser_SudoFailed(t *testing.T) {
	line := "Dec  4 12:00:04 host sudo: pam_unix(sudo:auth): authentication failure; logname=bob uid=1000 euid=0 tty=/dev/pts/0 ruser=bob rhost=  user=bob"
	ev := parseLine(t, "auth", line)

	if ev.Log.EventType != "SUDO_FAILED" {
		t.Errorf("EventType = %q, want SUDO_FAILED", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", ev.Log.Severity)
	}
}

func TestAuthParser_SessionOpenClose(t *testing.T) {
	open := parseLine(t, "auth", "Dec  4 12:00:05 host sshd[77]: pam_unix(sshd:session): session opened for user alice by (uid=0)")
	if open.Log.EventType != "SESSION_OPEN" {
		t.Errorf("EventType = %q, want SESSION_OPEN", open.Log.EventType)
	}

	closed := parseLine(t, "auth", "Dec  4 12:10:05 host sshd[77]: pam_unix(sshd:session): session closed for user alice")
	if closed.Log.EventType != "SESSION_CLOSE" {
		t.Errorf("EventType = %q, want SESSION_CLOSE", closed.Log.EventType)
	}
}

// ---------------------------------------------------------------------------
// Syslog
// ---------------------------------------------------------------------------

func TestSyslogParser_ServiceFailed(t *testing.T) {
	line := "Dec  4 13:00:00 host systemd[1]: Failed to start nginx.service - A high performance web server."
	ev := parseLine(t, "syslog", line)

	if ev.Log.EventType != "SERVICE_FAILED" {
		t.Errorf("EventType = %q, want SERVICE_FAILED", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", ev.Log.Severity)
	}
	if svc, _ := ev.Log.Extra["service"].(string); svc != "nginx" {
		t.Errorf("service = %q, want nginx", svc)
	}
}

func TestSyslogParser_ServiceLifecycle(t *testing.T) {
	started := parseLine(t, "syslog", "Dec  4 13:00:01 host systemd[1]: Started cron.service.")
	if started.Log.EventType != "SERVICE_STARTED" || started.Log.Severity != event.SeverityLow {
		t.Errorf("started = %q/%q", started.Log.EventType, started.Log.Severity)
	}

	stopped := parseLine(t, "syslog", "Dec  4 13:00:02 host systemd[1]: Stopped cron.service.")
	if stopped.Log.EventType != "SERVICE_STOPPED" || stopped.Log.Severity != event.SeverityMedium {
		t.Errorf("stopped = %q/%q", stopped.Log.EventType, stopped.Log.Severity)
	}
}

func TestSyslogParser_NoTimestampNoMatch(t *testing.T) {
	d := NewDispatcher(quietLogger())
	if ev := d.Dispatch(event.RawLine{Source: "syslog", Text: "free-form line with no timestamp"}); ev != nil {
		t.Errorf("Dispatch = %+v, want nil", ev)
	}
}

// ---------------------------------------------------------------------------
// Kernel
// ---------------------------------------------------------------------------

func TestKernelParser_Panic(t *testing.T) {
	line := "Dec  4 14:00:00 host kernel: [12345.678] Kernel panic - not syncing: Fatal exception"
	ev := parseLine(t, "kernel", line)

	if ev.Log.EventType != "KERNEL_PANIC" {
		t.Errorf("EventType = %q, want KERNEL_PANIC", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityCritical {
		t.Errorf("Severity = %q, want CRITICAL", ev.Log.Severity)
	}
}

func TestKernelParser_OOM(t *testing.T) {
	line := "Dec  4 14:00:01 host kernel: Out of memory: Killed process 1234 (java) total-vm:10240kB"
	ev := parseLine(t, "kernel", line)

	if ev.Log.EventType != "OOM_KILLER" || ev.Log.Severity != event.SeverityHigh {
		t.Errorf("got %q/%q, want OOM_KILLER/HIGH", ev.Log.EventType, ev.Log.Severity)
	}
	if ev.Log.ProcessName != "1234" && ev.Log.ProcessName != "java" {
		// "process 1234" is what the pattern captures from this phrasing.
		t.Errorf("ProcessName = %q", ev.Log.ProcessName)
	}
}

func TestKernelParser_Segfault(t *testing.T) {
	line := "Dec  4 14:00:02 host kernel: myapp[3141]: segfault at 0 ip 00007f sp 00007ffc error 4"
	ev := parseLine(t, "kernel", line)

	if ev.Log.EventType != "SEGFAULT" || ev.Log.Severity != event.SeverityHigh {
		t.Errorf("got %q/%q, want SEGFAULT/HIGH", ev.Log.EventType, ev.Log.Severity)
	}
}

// ---------------------------------------------------------------------------
// Dpkg
// ---------------------------------------------------------------------------

func TestDpkgParser_HackingToolInstallIsHigh(t *testing.T) {
	line := "2025-12-04 15:00:00 install nmap:amd64 <none> 7.94+git20230807-3"
	ev := parseLine(t, "dpkg", line)

	if ev.Log.EventType != "PACKAGE_INSTALL" {
		t.Errorf("EventType = %q, want PACKAGE_INSTALL", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH for nmap", ev.Log.Severity)
	}
	if pkg, _ := ev.Log.Extra["package"].(string); pkg != "nmap" {
		t.Errorf("package = %q, want nmap", pkg)
	}
	if arch, _ := ev.Log.Extra["arch"].(string); arch != "amd64" {
		t.Errorf("arch = %q, want amd64", arch)
	}
	if !ev.Timestamp.Equal(time.Date(2025, 12, 4, 15, 0, 0, 0, time.Local)) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
}

func TestDpkgParser_OrdinaryInstallIsMedium(t *testing.T) {
	line := "2025-12-04 15:00:01 install htop:amd64 <none> 3.2.2-2"
	ev := parseLine(t, "dpkg", line)
	if ev.Log.Severity != event.SeverityMedium {
		t.Errorf("Severity = %q, want MEDIUM", ev.Log.Severity)
	}
}

func TestDpkgParser_Downgrade(t *testing.T) {
	// Lexicographically new < old.
	line := "2025-12-04 15:00:02 upgrade curl:amd64 8.5.0-2 8.4.0-1"
	ev := parseLine(t, "dpkg", line)
	if ev.Log.EventType != "PACKAGE_DOWNGRADE" {
		t.Errorf("EventType = %q, want PACKAGE_DOWNGRADE", ev.Log.EventType)
	}
}

func TestDpkgParser_Upgrade(t *testing.T) {
	line := "2025-12-04 15:00:03 upgrade curl:amd64 8.4.0-1 8.5.0-2"
	ev := parseLine(t, "dpkg", line)
	if ev.Log.EventType != "PACKAGE_UPGRADE" || ev.Log.Severity != event.SeverityLow {
		t.Errorf("got %q/%q, want PACKAGE_UPGRADE/LOW", ev.Log.EventType, ev.Log.Severity)
	}
}

func TestDpkgParser_RequiresLeadingDate(t *testing.T) {
	d := NewDispatcher(quietLogger())
	if ev := d.Dispatch(event.RawLine{Source: "dpkg", Text: "install nmap:amd64 <none> 7.94"}); ev != nil {
		t.Errorf("Dispatch without date = %+v, want nil", ev)
	}
}

// ---------------------------------------------------------------------------
// UFW
// ---------------------------------------------------------------------------

func TestUFWParser_Block(t *testing.T) {
	line := "Dec  4 16:00:00 host kernel: [UFW BLOCK] IN=eth0 OUT= MAC=00:11 SRC=203.0.113.50 DST=10.0.0.5 LEN=60 PROTO=TCP SPT=54321 DPT=22"
	ev := parseLine(t, "ufw", line)

	if ev.Log.EventType != "UFW_BLOCK" {
		t.Errorf("EventType = %q, want UFW_BLOCK", ev.Log.EventType)
	}
	if ev.Log.Severity != event.SeverityMedium {
		t.Errorf("Severity = %q, want MEDIUM", ev.Log.Severity)
	}
	if ev.Log.IP != "203.0.113.50" {
		t.Errorf("IP = %q, want 203.0.113.50", ev.Log.IP)
	}
	if dst, _ := ev.Log.Extra["dst_ip"].(string); dst != "10.0.0.5" {
		t.Errorf("dst_ip = %q", dst)
	}
	if dpt, _ := ev.Log.Extra["dst_port"].(int); dpt != 22 {
		t.Errorf("dst_port = %v", ev.Log.Extra["dst_port"])
	}
	if iface, _ := ev.Log.Extra["in_interface"].(string); iface != "eth0" {
		t.Errorf("in_interface = %q", iface)
	}
}

func TestUFWParser_Allow(t *testing.T) {
	line := "Dec  4 16:00:01 host kernel: [UFW ALLOW] IN=eth0 OUT= SRC=192.0.2.1 DST=10.0.0.5 PROTO=UDP SPT=123 DPT=123"
	ev := parseLine(t, "ufw", line)
	if ev.Log.EventType != "UFW_ALLOW" || ev.Log.Severity != event.SeverityLow {
		t.Errorf("got %q/%q, want UFW_ALLOW/LOW", ev.Log.EventType, ev.Log.Severity)
	}
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func TestDispatcher_UnknownSource(t *testing.T) {
	d := NewDispatcher(quietLogger())
	if ev := d.Dispatch(event.RawLine{Source: "journal", Text: "anything"}); ev != nil {
		t.Errorf("Dispatch(unknown source) = %+v, want nil", ev)
	}
}
