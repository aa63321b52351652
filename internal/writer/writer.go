// Package writer owns all storage writes. Producers enqueue events and
// alert bundles onto a bounded queue; a single goroutine drains it and
// persists each payload, retrying transient lock failures with a short
// linear backoff. Serialising writes through one goroutine keeps the
// SQLite backend contention-free and gives alerts a stable commit order
// relative to their evidence.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/store"
)

const (
	// maxAttempts bounds retries of a transient storage failure.
	maxAttempts = 3

	// retryStep is the linear backoff unit: attempt n sleeps n*retryStep.
	retryStep = 100 * time.Millisecond

	// drainDeadline bounds how long Stop waits for queued payloads.
	drainDeadline = 5 * time.Second
)

// Overflow policies for a full queue.
const (
	PolicyBlock = "block"
	PolicyDrop  = "drop"
)

// payload is one queued unit of work: exactly one field is non-nil.
type payload struct {
	ev    *event.Event
	alert *event.AlertBundle
}

// Writer is the single-writer persistence service.
type Writer struct {
	backend store.Backend
	queue   chan payload
	policy  string
	logger  *slog.Logger

	depth   atomic.Int64
	dropped atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Writer with a queue of the given capacity and starts its
// worker goroutine. policy decides what a full queue does to producers:
// PolicyBlock applies backpressure, PolicyDrop discards the payload and
// counts it.
func New(backend store.Backend, capacity int, policy string, logger *slog.Logger) *Writer {
	if capacity <= 0 {
		capacity = 1
	}
	if policy != PolicyDrop {
		policy = PolicyBlock
	}
	w := &Writer{
		backend: backend,
		queue:   make(chan payload, capacity),
		policy:  policy,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run()
	return w
}

// EnqueueEvent queues ev for persistence.
func (w *Writer) EnqueueEvent(ev *event.Event) error {
	return w.enqueue(payload{ev: ev})
}

// EnqueueAlert queues bundle for persistence. The alert commits after any
// events already in the queue, so its resolver sees them.
func (w *Writer) EnqueueAlert(bundle *event.AlertBundle) error {
	return w.enqueue(payload{alert: bundle})
}

func (w *Writer) enqueue(p payload) error {
	select {
	case <-w.stopCh:
		return fmt.Errorf("writer: stopped")
	default:
	}

	if w.policy == PolicyDrop {
		select {
		case w.queue <- p:
			w.depth.Add(1)
			return nil
		case <-w.stopCh:
			return fmt.Errorf("writer: stopped")
		default:
			w.dropped.Add(1)
			w.logger.Warn("queue full, payload dropped",
				slog.Int64("dropped_total", w.dropped.Load()))
			return nil
		}
	}

	select {
	case w.queue <- p:
		w.depth.Add(1)
		return nil
	case <-w.stopCh:
		return fmt.Errorf("writer: stopped")
	}
}

// Depth returns the number of queued payloads.
func (w *Writer) Depth() int64 { return w.depth.Load() }

// Dropped returns the number of payloads discarded under PolicyDrop.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Stop shuts the worker down, draining queued payloads for at most
// drainDeadline. Safe to call more than once.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Writer) run() {
	defer close(w.doneCh)

	for {
		select {
		case p := <-w.queue:
			w.depth.Add(-1)
			w.persist(p)
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

// drain persists what is already queued, bounded by drainDeadline so a
// wedged backend cannot hold shutdown hostage.
func (w *Writer) drain() {
	deadline := time.Now().Add(drainDeadline)
	for {
		select {
		case p := <-w.queue:
			w.depth.Add(-1)
			w.persist(p)
			if time.Now().After(deadline) {
				w.logger.Warn("drain deadline exceeded, abandoning queue",
					slog.Int64("remaining", w.depth.Load()))
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) persist(p payload) {
	ctx := context.Background()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = w.write(ctx, p)
		if lastErr == nil {
			return
		}
		if !store.IsTransient(lastErr) {
			w.logger.Error("payload abandoned",
				slog.String("payload", describe(p)),
				slog.String("error", lastErr.Error()))
			return
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * retryStep)
		}
	}

	w.logger.Error("payload abandoned after retries",
		slog.String("payload", describe(p)),
		slog.Int("attempts", maxAttempts),
		slog.String("error", lastErr.Error()))
}

// write routes the payload to the backend table implied by its type.
// The event is still shared with the dispatcher and the rule engine on
// their goroutine, so the assigned row id is discarded rather than
// written back into it.
func (w *Writer) write(ctx context.Context, p payload) error {
	if p.alert != nil {
		_, err := w.backend.InsertAlert(ctx, p.alert)
		return err
	}

	ev := p.ev
	var err error
	switch {
	case ev.Type == event.TypeLogEvent:
		_, err = w.backend.InsertLogEvent(ctx, ev)
	case ev.Type == event.TypeMetricSnapshot:
		_, err = w.backend.InsertMetricSnapshot(ctx, ev)
	case strings.HasPrefix(ev.Type, "PROCESS_"):
		_, err = w.backend.InsertProcessEvent(ctx, ev)
	case strings.HasPrefix(ev.Type, "NET_"):
		_, err = w.backend.InsertNetworkEvent(ctx, ev)
	default:
		return fmt.Errorf("writer: unroutable event type %q", ev.Type)
	}
	return err
}

func describe(p payload) string {
	if p.alert != nil {
		return "alert/" + p.alert.Alert.RuleName
	}
	return "event/" + p.ev.Type
}
