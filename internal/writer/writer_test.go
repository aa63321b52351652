package writer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/store"
)

// fakeBackend records inserts and can simulate transient lock failures.
type fakeBackend struct {
	mu        sync.Mutex
	nextID    int64
	inserted  []string // insert order, by payload kind
	attempts  int
	failWith  error
	failTimes int // how many calls fail before succeeding; -1 fails forever
	gate      chan struct{}
}

func (f *fakeBackend) insert(kind string) (int64, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failTimes != 0 && f.failWith != nil {
		if f.failTimes > 0 {
			f.failTimes--
		}
		return 0, f.failWith
	}
	f.nextID++
	f.inserted = append(f.inserted, kind)
	return f.nextID, nil
}

func (f *fakeBackend) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inserted...)
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeBackend) InsertLogEvent(ctx context.Context, ev *event.Event) (int64, error) {
	return f.insert("log")
}
func (f *fakeBackend) InsertProcessEvent(ctx context.Context, ev *event.Event) (int64, error) {
	return f.insert("process")
}
func (f *fakeBackend) InsertNetworkEvent(ctx context.Context, ev *event.Event) (int64, error) {
	return f.insert("network")
}
func (f *fakeBackend) InsertMetricSnapshot(ctx context.Context, ev *event.Event) (int64, error) {
	return f.insert("metric")
}
func (f *fakeBackend) InsertAlert(ctx context.Context, b *event.AlertBundle) (int64, error) {
	return f.insert("alert")
}

func (f *fakeBackend) LogEvents(ctx context.Context, q store.EventQuery) ([]store.LogEventRow, error) {
	return nil, nil
}
func (f *fakeBackend) ProcessEvents(ctx context.Context, q store.EventQuery) ([]store.ProcessEventRow, error) {
	return nil, nil
}
func (f *fakeBackend) NetworkEvents(ctx context.Context, q store.EventQuery) ([]store.NetworkEventRow, error) {
	return nil, nil
}
func (f *fakeBackend) Metrics(ctx context.Context, q store.EventQuery) ([]store.MetricRow, error) {
	return nil, nil
}
func (f *fakeBackend) Alerts(ctx context.Context, q store.AlertQuery) ([]store.AlertRow, error) {
	return nil, nil
}
func (f *fakeBackend) Evidence(ctx context.Context, alertID int64) ([]store.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeBackend) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func logEvent() *event.Event {
	return &event.Event{
		Type:      event.TypeLogEvent,
		Timestamp: time.Now(),
		Log:       &event.LogFields{LogSource: "auth", EventType: "FAILED_LOGIN"},
	}
}

func TestWriter_RoutesAndOrders(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, PolicyBlock, quietLogger())

	ev := logEvent()
	payloads := []*event.Event{
		ev,
		{Type: event.TypeProcessNew, Process: &event.ProcessFields{PID: 1}},
		{Type: event.TypeNetNewConnection, Network: &event.NetworkFields{Protocol: "tcp"}},
		{Type: event.TypeMetricSnapshot, Metric: &event.MetricSnapshot{}},
	}
	for _, p := range payloads {
		if err := w.EnqueueEvent(p); err != nil {
			t.Fatalf("EnqueueEvent: %v", err)
		}
	}
	bundle := &event.AlertBundle{Alert: &event.Alert{RuleName: "AUTH_001"}}
	if err := w.EnqueueAlert(bundle); err != nil {
		t.Fatalf("EnqueueAlert: %v", err)
	}
	w.Stop()

	want := []string{"log", "process", "network", "metric", "alert"}
	got := backend.order()
	if len(got) != len(want) {
		t.Fatalf("inserted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("inserted = %v, want %v", got, want)
		}
	}
	// The dispatcher side still owns the event; the worker goroutine must
	// not write the row id back into it.
	if ev.ID != 0 {
		t.Errorf("event ID = %d, writer mutated the shared event", ev.ID)
	}
}

func TestWriter_RetriesTransientThenSucceeds(t *testing.T) {
	backend := &fakeBackend{
		failWith:  errors.New("database is locked (5) (SQLITE_BUSY)"),
		failTimes: 2,
	}
	w := New(backend, 4, PolicyBlock, quietLogger())

	start := time.Now()
	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent: %v", err)
	}
	w.Stop()
	elapsed := time.Since(start)

	if calls := backend.calls(); calls != 3 {
		t.Fatalf("backend calls = %d, want 3 (two failures, one success)", calls)
	}
	if got := backend.order(); len(got) != 1 {
		t.Fatalf("inserted = %v, want exactly one row", got)
	}
	// Two backoffs: 100ms + 200ms, with headroom for scheduling.
	if elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the backoff time", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, retries took far too long", elapsed)
	}
}

func TestWriter_AbandonsPermanentFailure(t *testing.T) {
	backend := &fakeBackend{
		failWith:  errors.New("UNIQUE constraint failed"),
		failTimes: -1,
	}
	w := New(backend, 4, PolicyBlock, quietLogger())

	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent: %v", err)
	}
	w.Stop()

	if calls := backend.calls(); calls != 1 {
		t.Fatalf("backend calls = %d, want 1 (no retry on permanent failure)", calls)
	}
	if got := backend.order(); len(got) != 0 {
		t.Fatalf("inserted = %v, want none", got)
	}
}

func TestWriter_AbandonsAfterMaxRetries(t *testing.T) {
	backend := &fakeBackend{
		failWith:  errors.New("database is locked"),
		failTimes: -1,
	}
	w := New(backend, 4, PolicyBlock, quietLogger())

	start := time.Now()
	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent: %v", err)
	}
	w.Stop()
	elapsed := time.Since(start)

	if calls := backend.calls(); calls != 3 {
		t.Fatalf("backend calls = %d, want 3", calls)
	}
	// Backoff runs between attempts only: 100ms + 200ms, with no sleep
	// after the final failure.
	if elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the two backoffs", elapsed)
	}
	if elapsed > 550*time.Millisecond {
		t.Errorf("elapsed = %v, backoff ran after the final attempt", elapsed)
	}
}

func TestWriter_DropPolicy(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{gate: gate}
	w := New(backend, 1, PolicyDrop, quietLogger())

	// First payload is picked up by the worker and blocks on the gate.
	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent: %v", err)
	}
	// Give the worker a moment to take it off the queue.
	deadline := time.Now().Add(time.Second)
	for w.Depth() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Second fills the queue, third overflows and is dropped.
	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent: %v", err)
	}
	if err := w.EnqueueEvent(logEvent()); err != nil {
		t.Fatalf("EnqueueEvent on full queue: %v", err)
	}
	if dropped := w.Dropped(); dropped != 1 {
		t.Errorf("Dropped = %d, want 1", dropped)
	}

	close(gate)
	w.Stop()

	if got := backend.order(); len(got) != 2 {
		t.Errorf("inserted = %v, want the two undropped payloads", got)
	}
}

func TestWriter_EnqueueAfterStop(t *testing.T) {
	w := New(&fakeBackend{}, 1, PolicyBlock, quietLogger())
	w.Stop()

	if err := w.EnqueueEvent(logEvent()); err == nil {
		t.Error("EnqueueEvent after Stop should fail")
	}
}
