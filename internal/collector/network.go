package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"syscall"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hids/agent/internal/event"
)

// connKey correlates one socket across snapshots.
type connKey struct {
	PID       int32
	LaddrIP   string
	LaddrPort uint32
	RaddrIP   string
	RaddrPort uint32
	Protocol  string
}

func keyOf(c *event.NetworkFields) connKey {
	return connKey{
		PID:       c.PID,
		LaddrIP:   c.LaddrIP,
		LaddrPort: c.LaddrPort,
		RaddrIP:   c.RaddrIP,
		RaddrPort: c.RaddrPort,
		Protocol:  c.Protocol,
	}
}

// networkState is the on-disk snapshot of the previous poll.
type networkState struct {
	Connections []*event.NetworkFields `json:"connections"`
}

// NetworkCollector diffs successive inet-connection snapshots into
// connection and listen-port lifecycle events, and publishes per-interface
// traffic counters as state events.
type NetworkCollector struct {
	statePath   string
	ignoreLocal map[string]bool // "ip:port" local endpoints to skip
	prev        []*event.NetworkFields
	procNames   map[int32]string
	logger      *slog.Logger
}

// NewNetworkCollector builds a NetworkCollector persisting its prior
// snapshot at statePath. ignoreLocal lists local "ip:port" endpoints whose
// sockets are skipped, typically the agent's own API listener.
func NewNetworkCollector(statePath string, ignoreLocal []string, logger *slog.Logger) *NetworkCollector {
	ignore := make(map[string]bool, len(ignoreLocal))
	for _, ep := range ignoreLocal {
		ignore[ep] = true
	}

	c := &NetworkCollector{
		statePath:   statePath,
		ignoreLocal: ignore,
		logger:      logger,
	}
	var state networkState
	if ok, err := loadSnapshot(statePath, &state); err != nil {
		logger.Warn("cannot load network snapshot, starting fresh", slog.Any("error", err))
	} else if ok {
		c.prev = state.Connections
	}
	return c
}

func (c *NetworkCollector) Name() string { return "network" }

// Collect takes a fresh connection snapshot, diffs it against the prior
// one, appends interface counter events, and persists the new snapshot.
func (c *NetworkCollector) Collect(ctx context.Context) ([]*event.Event, error) {
	curr, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	events := c.diffConnections(c.prev, curr, now)
	events = append(events, c.interfaceStats(ctx, now)...)

	c.prev = curr
	if err := saveSnapshot(c.statePath, &networkState{Connections: curr}); err != nil {
		c.logger.Warn("cannot persist network snapshot", slog.Any("error", err))
	}
	return events, nil
}

func (c *NetworkCollector) snapshot(ctx context.Context) ([]*event.NetworkFields, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("collector: list connections: %w", err)
	}

	c.procNames = make(map[int32]string)
	out := make([]*event.NetworkFields, 0, len(conns))
	for _, conn := range conns {
		proto := "tcp"
		if conn.Type == syscall.SOCK_DGRAM {
			proto = "udp"
		}

		rec := &event.NetworkFields{
			PID:         conn.Pid,
			ProcessName: c.processName(conn.Pid),
			Protocol:    proto,
			LaddrIP:     conn.Laddr.IP,
			LaddrPort:   conn.Laddr.Port,
			RaddrIP:     conn.Raddr.IP,
			RaddrPort:   conn.Raddr.Port,
			Status:      conn.Status,
		}
		rec.IsListen = conn.Status == "LISTEN" || (proto == "udp" && rec.RaddrIP == "")
		out = append(out, rec)
	}
	return out, nil
}

// processName resolves a pid to its process name, memoized per poll.
func (c *NetworkCollector) processName(pid int32) string {
	if pid == 0 {
		return "unknown"
	}
	if name, ok := c.procNames[pid]; ok {
		return name
	}
	name := "unknown"
	if p, err := process.NewProcess(pid); err == nil {
		if n, err := p.Name(); err == nil {
			name = n
		}
	}
	c.procNames[pid] = name
	return name
}

// skip filters sockets irrelevant to the diff: TIME_WAIT churn and the
// agent's own local endpoints.
func (c *NetworkCollector) skip(conn *event.NetworkFields) bool {
	if conn.Status == "TIME_WAIT" {
		return true
	}
	return c.ignoreLocal[conn.LaddrIP+":"+strconv.Itoa(int(conn.LaddrPort))]
}

func (c *NetworkCollector) diffConnections(prev, curr []*event.NetworkFields, now time.Time) []*event.Event {
	prevMap := make(map[connKey]*event.NetworkFields, len(prev))
	for _, conn := range prev {
		prevMap[keyOf(conn)] = conn
	}
	currMap := make(map[connKey]*event.NetworkFields, len(curr))
	for _, conn := range curr {
		currMap[keyOf(conn)] = conn
	}

	var events []*event.Event
	emit := func(typ string, conn *event.NetworkFields) {
		events = append(events, &event.Event{Type: typ, Timestamp: now, Network: conn})
	}

	for k, conn := range currMap {
		if _, ok := prevMap[k]; ok || c.skip(conn) {
			continue
		}
		switch {
		case conn.IsListen:
			emit(event.TypeNetNewListenPort, conn)
		case conn.RaddrIP != "":
			emit(event.TypeNetNewConnection, conn)
		}
	}

	for k, conn := range prevMap {
		if _, ok := currMap[k]; ok || c.skip(conn) {
			continue
		}
		switch {
		case conn.IsListen:
			emit(event.TypeNetClosedListenPort, conn)
		case conn.RaddrIP != "":
			emit(event.TypeNetClosedConnection, conn)
		}
	}

	return events
}

// interfaceStats publishes per-interface I/O counters. These are state
// events for observability; no rule consumes them.
func (c *NetworkCollector) interfaceStats(ctx context.Context, now time.Time) []*event.Event {
	counters, err := gnet.IOCountersWithContext(ctx, true)
	if err != nil {
		c.logger.Warn("cannot read interface counters", slog.Any("error", err))
		return nil
	}

	events := make([]*event.Event, 0, len(counters))
	for _, io := range counters {
		events = append(events, &event.Event{
			Type:      event.TypeNetInterfaceStats,
			Timestamp: now,
			Network: &event.NetworkFields{
				Iface: io.Name,
				IO: &event.IOCounters{
					BytesSent:   io.BytesSent,
					BytesRecv:   io.BytesRecv,
					PacketsSent: io.PacketsSent,
					PacketsRecv: io.PacketsRecv,
					ErrIn:       io.Errin,
					ErrOut:      io.Errout,
					DropIn:      io.Dropin,
					DropOut:     io.Dropout,
				},
			},
		})
	}
	return events
}
