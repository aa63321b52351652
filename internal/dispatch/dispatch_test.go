package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/rules"
)

type fakeSink struct {
	order  []string
	alerts []*event.AlertBundle
	fail   bool
}

func (f *fakeSink) EnqueueEvent(ev *event.Event) error {
	if f.fail {
		return errors.New("queue full")
	}
	f.order = append(f.order, "event:"+ev.Type)
	return nil
}

func (f *fakeSink) EnqueueAlert(bundle *event.AlertBundle) error {
	if f.fail {
		return errors.New("queue full")
	}
	f.order = append(f.order, "alert:"+bundle.Alert.RuleName)
	f.alerts = append(f.alerts, bundle)
	return nil
}

func newDispatcher(sink Sink) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sink, rules.NewEngine(logger), logger)
}

func TestDispatcher_StampsMissingTimestamp(t *testing.T) {
	sink := &fakeSink{}
	d := newDispatcher(sink)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	ev := &event.Event{
		Type:    event.TypeProcessNew,
		Process: &event.ProcessFields{PID: 1, Name: "cron"},
	}
	d.HandleEvent(ev)

	if !ev.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, fixed)
	}
}

func TestDispatcher_PreservesExistingTimestamp(t *testing.T) {
	sink := &fakeSink{}
	d := newDispatcher(sink)

	parsed := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	ev := &event.Event{
		Type:      event.TypeLogEvent,
		Timestamp: parsed,
		Log:       &event.LogFields{LogSource: "auth", EventType: "SESSION_OPEN"},
	}
	d.HandleEvent(ev)

	if !ev.Timestamp.Equal(parsed) {
		t.Errorf("Timestamp = %v, want parser value %v", ev.Timestamp, parsed)
	}
}

func TestDispatcher_EventQueuedBeforeDerivedAlert(t *testing.T) {
	sink := &fakeSink{}
	d := newDispatcher(sink)

	d.HandleEvent(&event.Event{
		Type:      event.TypeProcessNew,
		Timestamp: time.Now(),
		Process:   &event.ProcessFields{PID: 4321, Name: "nmap", Cmdline: "nmap -sS 10.0.0.0/24"},
	})

	if len(sink.order) != 2 {
		t.Fatalf("order = %v, want event then alert", sink.order)
	}
	if sink.order[0] != "event:PROCESS_NEW" || sink.order[1] != "alert:PROC_001" {
		t.Errorf("order = %v, want event before alert", sink.order)
	}
	if sink.alerts[0].Alert.Timestamp.IsZero() {
		t.Error("alert timestamp not set")
	}
}

func TestDispatcher_BenignEventRaisesNothing(t *testing.T) {
	sink := &fakeSink{}
	d := newDispatcher(sink)

	d.HandleEvent(&event.Event{
		Type:      event.TypeProcessNew,
		Timestamp: time.Now(),
		Process:   &event.ProcessFields{PID: 10, Name: "sleep", Cmdline: "sleep 60"},
	})

	if len(sink.order) != 1 {
		t.Fatalf("order = %v, want only the event", sink.order)
	}
}

func TestDispatcher_SinkFailureDoesNotPanic(t *testing.T) {
	d := newDispatcher(&fakeSink{fail: true})

	d.HandleEvent(&event.Event{
		Type:      event.TypeProcessNew,
		Timestamp: time.Now(),
		Process:   &event.ProcessFields{PID: 4321, Name: "nmap"},
	})
}

func TestDispatcher_HandleBatchKeepsOrder(t *testing.T) {
	sink := &fakeSink{}
	d := newDispatcher(sink)

	d.HandleBatch([]*event.Event{
		{Type: event.TypeProcessNew, Timestamp: time.Now(),
			Process: &event.ProcessFields{PID: 1, Name: "cron"}},
		{Type: event.TypeProcessTerminated, Timestamp: time.Now(),
			Process: &event.ProcessFields{PID: 2, Name: "sshd"}},
	})

	if len(sink.order) != 2 ||
		sink.order[0] != "event:PROCESS_NEW" || sink.order[1] != "event:PROCESS_TERMINATED" {
		t.Errorf("order = %v, want batch order preserved", sink.order)
	}
}
