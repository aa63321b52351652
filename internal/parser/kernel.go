package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hids/agent/internal/event"
)

// KernelParser watches kern.log for panics, the OOM killer, segfaults, and
// hardware/driver trouble.
type KernelParser struct{}

var (
	kernelPanicRe    = regexp.MustCompile(`(?i)kernel panic`)
	kernelSegfaultRe = regexp.MustCompile(`(?i)segfault|segmentation fault`)
	kernelOOMRe      = regexp.MustCompile(`Out of memory|oom-kill|OOM`)
	kernelUSBRe      = regexp.MustCompile(`(?i)usb.*(error|fail|disconnect)`)
	kernelDriverRe   = regexp.MustCompile(`(?i)driver.*(error|fail)|firmware.*fail`)
	kernelPIDRe      = regexp.MustCompile(`pid[=\s](\d+)|\[(\d+)\]:`)
	kernelProcessRe  = regexp.MustCompile(`process (\S+)|segfault.*?(\w+)\[`)
)

// kernelKeywords marks lines worth parsing from kern.log.
var kernelKeywords = []string{
	"kernel", "panic", "segfault", "Out of memory",
	"OOM", "driver", "usb", "segmentation fault",
}

func (p *KernelParser) Match(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	for _, kw := range kernelKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (p *KernelParser) Parse(line string) (*event.Event, error) {
	eventType := p.detectEventType(line)

	fields := &event.LogFields{
		LogSource:   "kernel",
		EventType:   eventType,
		Category:    event.CategoryKernel,
		Severity:    p.estimateSeverity(eventType),
		Message:     strings.TrimSpace(line),
		PID:         p.extractPID(line),
		ProcessName: p.extractProcess(line),
	}

	return newLogEvent(parseTimestamp(line), strings.TrimSpace(line), fields), nil
}

func (p *KernelParser) detectEventType(line string) string {
	switch {
	case kernelPanicRe.MatchString(line):
		return "KERNEL_PANIC"
	case kernelSegfaultRe.MatchString(line):
		return "SEGFAULT"
	case kernelOOMRe.MatchString(line):
		return "OOM_KILLER"
	case kernelUSBRe.MatchString(line):
		return "USB_ERROR"
	case kernelDriverRe.MatchString(line):
		return "DRIVER_ERROR"
	default:
		return "KERNEL_EVENT"
	}
}

func (p *KernelParser) extractPID(line string) int32 {
	m := kernelPIDRe.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		pid, err := strconv.Atoi(g)
		if err == nil {
			return int32(pid)
		}
	}
	return 0
}

func (p *KernelParser) extractProcess(line string) string {
	m := kernelProcessRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func (p *KernelParser) estimateSeverity(eventType string) event.Severity {
	switch eventType {
	case "KERNEL_PANIC":
		return event.SeverityCritical
	case "OOM_KILLER", "SEGFAULT":
		return event.SeverityHigh
	case "USB_ERROR", "DRIVER_ERROR":
		return event.SeverityMedium
	default:
		return event.SeverityLow
	}
}
