package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/hids/agent/internal/event"
)

// ProcessSnapshot maps pid (as a string, for stable JSON keys) to the full
// process record at collection time.
type ProcessSnapshot map[string]*event.ProcessFields

// ProcessCollector diffs successive process table snapshots into lifecycle
// and mutation events. The prior snapshot is kept on disk so restarts do not
// report every running process as new.
type ProcessCollector struct {
	statePath string
	hashExes  bool
	hashCache map[string]string
	prev      ProcessSnapshot
	logger    *slog.Logger
}

// NewProcessCollector builds a ProcessCollector persisting its prior
// snapshot at statePath. When hashExes is set, process binaries are hashed
// with SHA-256 (cached per path) to detect binary swaps.
func NewProcessCollector(statePath string, hashExes bool, logger *slog.Logger) *ProcessCollector {
	c := &ProcessCollector{
		statePath: statePath,
		hashExes:  hashExes,
		hashCache: make(map[string]string),
		prev:      make(ProcessSnapshot),
		logger:    logger,
	}
	if ok, err := loadSnapshot(statePath, &c.prev); err != nil {
		logger.Warn("cannot load process snapshot, starting fresh", slog.Any("error", err))
	} else if !ok {
		c.prev = make(ProcessSnapshot)
	}
	return c
}

func (c *ProcessCollector) Name() string { return "process" }

// Collect takes a new snapshot, diffs it against the prior one, then
// replaces the prior snapshot in memory and on disk.
func (c *ProcessCollector) Collect(ctx context.Context) ([]*event.Event, error) {
	curr, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	events := diffProcesses(c.prev, curr, time.Now())

	c.prev = curr
	if err := saveSnapshot(c.statePath, curr); err != nil {
		c.logger.Warn("cannot persist process snapshot", slog.Any("error", err))
	}
	return events, nil
}

// snapshot reads the current process table. Processes that vanish or deny
// access mid-read are skipped.
func (c *ProcessCollector) snapshot(ctx context.Context) (ProcessSnapshot, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: list processes: %w", err)
	}

	snap := make(ProcessSnapshot, len(procs))
	for _, p := range procs {
		rec := c.record(p)
		if rec == nil {
			continue
		}
		snap[strconv.Itoa(int(rec.PID))] = rec
	}
	return snap, nil
}

func (c *ProcessCollector) record(p *process.Process) *event.ProcessFields {
	name, err := p.Name()
	if err != nil {
		return nil
	}

	rec := &event.ProcessFields{PID: p.Pid, Name: name}
	if ppid, err := p.Ppid(); err == nil {
		rec.PPID = ppid
	}
	if exe, err := p.Exe(); err == nil {
		rec.Exe = exe
	}
	if cmdline, err := p.Cmdline(); err == nil {
		rec.Cmdline = cmdline
	}
	if username, err := p.Username(); err == nil {
		rec.Username = username
	}
	if status, err := p.Status(); err == nil {
		rec.Status = strings.Join(status, ",")
	}
	if ct, err := p.CreateTime(); err == nil {
		rec.CreateTime = ct / 1000 // gopsutil reports milliseconds
	}
	if cpu, err := p.CPUPercent(); err == nil {
		rec.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		rec.MemoryRSS = mem.RSS
		rec.MemoryVMS = mem.VMS
	}

	if rec.Exe != "" {
		if strings.Contains(rec.Exe, "(deleted)") {
			rec.ExeDeleted = true
		} else if _, err := os.Stat(rec.Exe); err != nil {
			rec.ExeDeleted = true
		}
	}

	if c.hashExes && rec.Exe != "" && !rec.ExeDeleted {
		rec.ExeHash = c.hashExecutable(rec.Exe)
	}
	return rec
}

// hashExecutable returns the SHA-256 of the file at path, caching by path.
// Unreadable binaries hash to "".
func (c *ProcessCollector) hashExecutable(path string) string {
	if h, ok := c.hashCache[path]; ok {
		return h
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.hashCache[path] = ""
		return ""
	}
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	c.hashCache[path] = h
	return h
}

// diffProcesses compares two snapshots and emits the lifecycle and mutation
// events between them.
func diffProcesses(prev, curr ProcessSnapshot, now time.Time) []*event.Event {
	var events []*event.Event

	emit := func(typ string, fields *event.ProcessFields) {
		events = append(events, &event.Event{
			Type:      typ,
			Timestamp: now,
			Process:   fields,
		})
	}

	for pid, rec := range curr {
		if _, ok := prev[pid]; !ok {
			emit(event.TypeProcessNew, rec)
		}
	}

	for pid, rec := range prev {
		if _, ok := curr[pid]; ok {
			continue
		}
		term := &event.ProcessFields{
			PID:        rec.PID,
			PPID:       rec.PPID,
			Name:       rec.Name,
			Exe:        rec.Exe,
			Username:   rec.Username,
			CreateTime: rec.CreateTime,
		}
		if rec.CreateTime > 0 {
			term.RunTime = now.Sub(time.Unix(rec.CreateTime, 0)).Seconds()
		}
		emit(event.TypeProcessTerminated, term)
	}

	for pid, old := range prev {
		cur, ok := curr[pid]
		if !ok {
			continue
		}

		if old.Exe != cur.Exe {
			emit(event.TypeProcessExecChanged, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Old: old.Exe, New: cur.Exe,
			})
		}
		if old.Cmdline != cur.Cmdline {
			emit(event.TypeProcessCmdlineChanged, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Old: old.Cmdline, New: cur.Cmdline,
			})
		}
		if old.Username != cur.Username {
			emit(event.TypeProcessPrivEscalation, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Old: old.Username, New: cur.Username,
			})
		}
		if old.Status != cur.Status {
			emit(event.TypeProcessStatusChanged, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Old: old.Status, New: cur.Status,
			})
			if strings.Contains(cur.Status, process.Zombie) {
				emit(event.TypeProcessZombie, &event.ProcessFields{
					PID: cur.PID, Name: cur.Name, Exe: cur.Exe, Username: cur.Username,
				})
			}
		}
		if !old.ExeDeleted && cur.ExeDeleted {
			emit(event.TypeProcessExecDeleted, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Exe: cur.Exe, Username: cur.Username,
			})
		}
		if old.ExeHash != "" && cur.ExeHash != "" && old.ExeHash != cur.ExeHash {
			emit(event.TypeProcessExecHashChange, &event.ProcessFields{
				PID: cur.PID, Name: cur.Name, Exe: cur.Exe, Old: old.ExeHash, New: cur.ExeHash,
			})
		}
	}

	resolveParentNames(events, curr)
	return events
}

// resolveParentNames fills ParentName on PROCESS_NEW events from the current
// snapshot, for the shell-spawn rule.
func resolveParentNames(events []*event.Event, curr ProcessSnapshot) {
	for _, ev := range events {
		if ev.Type != event.TypeProcessNew || ev.Process == nil || ev.Process.PPID == 0 {
			continue
		}
		if parent, ok := curr[strconv.Itoa(int(ev.Process.PPID))]; ok {
			ev.Process.ParentName = parent.Name
		}
	}
}
