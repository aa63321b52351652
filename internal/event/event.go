// Package event defines the canonical event and alert model shared by every
// stage of the HIDS pipeline: collectors and parsers produce events, the
// dispatcher routes them, the rule engine derives alerts from them, and the
// writer persists both.
//
// An Event is a tagged union: Type carries the canonical event type string
// (e.g. "PROCESS_NEW", "LOG_EVENT", "NET_NEW_CONNECTION", "METRIC_SNAPSHOT")
// and exactly one of the variant payload pointers (Log, Process, Network,
// Metric) is non-nil. The writer dispatches on the Type prefix; rules inspect
// the variant fields directly.
package event

import "time"

// Severity is the graded urgency of a log event or alert.
// Ordering: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the numeric position of s in the severity ordering, with LOW
// as 0. Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Category classifies the origin of a log event.
type Category string

const (
	CategoryAuth     Category = "AUTH"
	CategorySystem   Category = "SYSTEM"
	CategoryKernel   Category = "KERNEL"
	CategoryPackage  Category = "PACKAGE"
	CategoryFirewall Category = "FIREWALL"
)

// Canonical event type strings produced by the pipeline. Log events and
// metric snapshots use a single outer type; process and network events carry
// their specific lifecycle type directly in Event.Type.
const (
	TypeLogEvent       = "LOG_EVENT"
	TypeMetricSnapshot = "METRIC_SNAPSHOT"

	TypeProcessNew            = "PROCESS_NEW"
	TypeProcessTerminated     = "PROCESS_TERMINATED"
	TypeProcessExecChanged    = "PROCESS_EXEC_CHANGED"
	TypeProcessCmdlineChanged = "PROCESS_CMDLINE_CHANGED"
	TypeProcessPrivEscalation = "PROCESS_PRIV_ESCALATION"
	TypeProcessStatusChanged  = "PROCESS_STATUS_CHANGED"
	TypeProcessZombie         = "PROCESS_ZOMBIE_PROCESS"
	TypeProcessExecDeleted    = "PROCESS_EXEC_DELETED"
	TypeProcessExecHashChange = "PROCESS_EXEC_HASH_CHANGED"

	TypeNetNewConnection    = "NET_NEW_CONNECTION"
	TypeNetClosedConnection = "NET_CLOSED_CONNECTION"
	TypeNetNewListenPort    = "NET_NEW_LISTEN_PORT"
	TypeNetClosedListenPort = "NET_CLOSED_LISTEN_PORT"
	TypeNetInterfaceStats   = "NET_INTERFACE_STATS"
)

// RawLine is one unparsed line read from a monitored log file, tagged with
// its source ("auth", "syslog", "kernel", "dpkg", "ufw"). RawLines are
// transient: they exist only between the tail collector and the parser layer.
type RawLine struct {
	Source string
	Text   string
}

// Event is the canonical pipeline event. ID is zero until the writer has
// persisted the row; it is assigned by storage and never reused or mutated
// afterwards.
type Event struct {
	ID        int64     `json:"id,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"raw,omitempty"`

	Log     *LogFields      `json:"log,omitempty"`
	Process *ProcessFields  `json:"process,omitempty"`
	Network *NetworkFields  `json:"network,omitempty"`
	Metric  *MetricSnapshot `json:"metric,omitempty"`
}

// LogFields is the payload of a parsed log line (Event.Type == LOG_EVENT).
type LogFields struct {
	LogSource   string         `json:"log_source"`
	EventType   string         `json:"event_type"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	User        string         `json:"user,omitempty"`
	IP          string         `json:"ip,omitempty"`
	ProcessName string         `json:"process,omitempty"`
	PID         int32          `json:"pid,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ProcessFields is the payload of a process lifecycle or mutation event.
// Old and New carry the previous and current value for *_CHANGED events.
type ProcessFields struct {
	PID        int32   `json:"pid"`
	PPID       int32   `json:"ppid,omitempty"`
	Name       string  `json:"name,omitempty"`
	ParentName string  `json:"parent_name,omitempty"`
	Exe        string  `json:"exe,omitempty"`
	Cmdline    string  `json:"cmdline,omitempty"`
	Username   string  `json:"username,omitempty"`
	Status     string  `json:"status,omitempty"`
	CreateTime int64   `json:"create_time,omitempty"` // Unix seconds
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemoryRSS  uint64  `json:"memory_rss,omitempty"`
	MemoryVMS  uint64  `json:"memory_vms,omitempty"`
	ExeDeleted bool    `json:"exe_deleted,omitempty"`
	ExeHash    string  `json:"exe_hash,omitempty"`
	Old        string  `json:"old,omitempty"`
	New        string  `json:"new,omitempty"`
	RunTime    float64 `json:"run_time,omitempty"` // seconds, PROCESS_TERMINATED only
}

// NetworkFields is the payload of a connection or listen-port lifecycle
// event. For NET_INTERFACE_STATS events only Iface and IO are populated.
type NetworkFields struct {
	PID         int32       `json:"pid,omitempty"`
	ProcessName string      `json:"process_name,omitempty"`
	Protocol    string      `json:"protocol,omitempty"` // "tcp" or "udp"
	LaddrIP     string      `json:"laddr_ip,omitempty"`
	LaddrPort   uint32      `json:"laddr_port,omitempty"`
	RaddrIP     string      `json:"raddr_ip,omitempty"`
	RaddrPort   uint32      `json:"raddr_port,omitempty"`
	Status      string      `json:"status,omitempty"`
	IsListen    bool        `json:"is_listen,omitempty"`
	Iface       string      `json:"iface,omitempty"`
	IO          *IOCounters `json:"io,omitempty"`
}

// IOCounters holds per-interface traffic counters published as STATE events.
type IOCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	ErrIn       uint64 `json:"errin"`
	ErrOut      uint64 `json:"errout"`
	DropIn      uint64 `json:"dropin"`
	DropOut     uint64 `json:"dropout"`
}

// MetricSnapshot is a point-in-time view of host resource usage.
type MetricSnapshot struct {
	CPU     CPUMetrics     `json:"cpu"`
	Memory  MemoryMetrics  `json:"memory"`
	Disk    []DiskMetrics  `json:"disk"`
	Network NetworkMetrics `json:"network"`
	System  SystemMetrics  `json:"system"`
}

// CPUMetrics holds overall and per-core CPU usage plus load averages.
type CPUMetrics struct {
	Percent float64   `json:"percent"`
	PerCPU  []float64 `json:"per_cpu,omitempty"`
	Count   int       `json:"count"`
	Load1   float64   `json:"load1"`
	Load5   float64   `json:"load5"`
	Load15  float64   `json:"load15"`
}

// MemoryMetrics holds virtual memory and swap usage.
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	Percent     float64 `json:"percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapPercent float64 `json:"swap_percent"`
}

// DiskMetrics holds usage for one mounted filesystem.
type DiskMetrics struct {
	Path    string  `json:"path"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// NetworkMetrics holds host-wide traffic totals.
type NetworkMetrics struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// SystemMetrics holds host identity and uptime information.
type SystemMetrics struct {
	Hostname string `json:"hostname"`
	BootTime int64  `json:"boot_time"` // Unix seconds
	UptimeS  uint64 `json:"uptime_s"`
}
