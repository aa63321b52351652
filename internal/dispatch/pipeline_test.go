package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/rules"
	"github.com/hids/agent/internal/store"
	"github.com/hids/agent/internal/writer"
)

func failedLogin(ip string, ts time.Time) *event.Event {
	return &event.Event{
		Type:      event.TypeLogEvent,
		Timestamp: ts,
		Log: &event.LogFields{
			LogSource: "auth",
			EventType: "FAILED_LOGIN",
			Category:  event.CategoryAuth,
			Severity:  event.SeverityMedium,
			Message:   fmt.Sprintf("Failed password for root from %s port 55123 ssh2", ip),
			User:      "root",
			IP:        ip,
		},
	}
}

// TestPipeline_WriterLeavesDispatchedEventsAlone runs the dispatcher
// against the real writer and store. The writer persists on its own
// goroutine while the stateful rules are still reading the dispatched
// events, so any write-back from the writer onto a shared event trips
// the race detector.
func TestPipeline_WriterLeavesDispatchedEventsAlone(t *testing.T) {
	backend, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := writer.New(backend, 64, writer.PolicyBlock, logger)
	d := New(w, rules.NewEngine(logger), logger)

	base := time.Now().Add(-10 * time.Second)
	events := make([]*event.Event, 0, 5)
	for i := 0; i < 5; i++ {
		ev := failedLogin("10.0.0.9", base.Add(time.Duration(i)*time.Second))
		events = append(events, ev)
		d.HandleEvent(ev)
	}
	w.Stop()

	for i, ev := range events {
		if ev.ID != 0 {
			t.Errorf("events[%d].ID = %d, persistence mutated the shared event", i, ev.ID)
		}
	}

	ctx := context.Background()
	rows, err := backend.LogEvents(ctx, store.EventQuery{})
	if err != nil {
		t.Fatalf("LogEvents: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("len(rows) = %d, want 5 persisted events", len(rows))
	}

	alerts, err := backend.Alerts(ctx, store.AlertQuery{RuleName: "AUTH_001"})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}

	// The events committed ahead of the alert, so the resolver links all
	// five without needing ids on the in-memory events.
	evidence, err := backend.Evidence(ctx, alerts[0].ID)
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if len(evidence) != 5 {
		t.Fatalf("len(evidence) = %d, want 5", len(evidence))
	}
}
