// Package scheduler supervises the periodic collector workers. Each job
// runs on its own goroutine with its own ticker, so a slow process scan
// never delays the log tail. Worker failure is isolated: a panic or error
// in one tick is logged and the worker keeps its schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// unhealthyAfter is how many intervals may pass without a completed tick
// before a worker is reported unhealthy.
const unhealthyAfter = 3

// Job is one periodic worker: a named tick function and its interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Heartbeat is the health snapshot of one worker.
type Heartbeat struct {
	LastTick time.Time     `json:"last_tick"`
	Age      time.Duration `json:"age"`
	Healthy  bool          `json:"healthy"`
}

// Scheduler runs registered jobs until stopped.
type Scheduler struct {
	logger      *slog.Logger
	jobs        []Job
	healthEvery time.Duration

	mu      sync.RWMutex
	beats   map[string]time.Time
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New builds a Scheduler. healthEvery is the cadence of the internal
// health check that logs unhealthy workers; zero disables it.
func New(logger *slog.Logger, healthEvery time.Duration) *Scheduler {
	return &Scheduler{
		logger:      logger,
		healthEvery: healthEvery,
		beats:       make(map[string]time.Time),
		now:         time.Now,
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(jobs ...Job) {
	s.jobs = append(s.jobs, jobs...)
}

// Start launches one goroutine per job plus the health worker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	s.running = true
	for _, job := range s.jobs {
		// Seed heartbeats so a worker that never completes a tick reads
		// as stale rather than unknown.
		s.beats[job.Name] = s.now()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runWorker(ctx, job)
	}
	if s.healthEvery > 0 {
		s.wg.Add(1)
		go s.runHealthWorker(ctx)
	}

	s.logger.Info("scheduler started", slog.Int("workers", len(s.jobs)))
	return nil
}

// Stop cancels all workers and waits for them to exit. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Heartbeats reports per-worker health. A worker is unhealthy when its
// last completed tick is older than three intervals.
func (s *Scheduler) Heartbeats() map[string]Heartbeat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make(map[string]Heartbeat, len(s.jobs))
	for _, job := range s.jobs {
		last := s.beats[job.Name]
		age := now.Sub(last)
		out[job.Name] = Heartbeat{
			LastTick: last,
			Age:      age,
			Healthy:  age <= unhealthyAfter*job.Interval,
		}
	}
	return out
}

func (s *Scheduler) runWorker(ctx context.Context, job Job) {
	defer s.wg.Done()

	// First tick immediately so startup state (prior snapshots, offsets)
	// is established without waiting a full interval.
	s.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

// tick runs one job iteration with panic isolation, then records the
// heartbeat. A worker that hangs inside Run stops beating and shows up
// unhealthy.
func (s *Scheduler) tick(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker tick panicked",
				slog.String("worker", job.Name),
				slog.Any("panic", r))
		}
	}()

	if err := job.Run(ctx); err != nil {
		s.logger.Error("worker tick failed",
			slog.String("worker", job.Name),
			slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.beats[job.Name] = s.now()
	s.mu.Unlock()
}

func (s *Scheduler) runHealthWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.healthEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, hb := range s.Heartbeats() {
				if !hb.Healthy {
					s.logger.Warn("worker unhealthy",
						slog.String("worker", name),
						slog.Duration("heartbeat_age", hb.Age))
				}
			}
		}
	}
}
