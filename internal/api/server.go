// Package api exposes the read-only HTTP surface of the agent: a liveness
// endpoint reporting worker heartbeats and queue depth, and query routes
// over the persisted events and alerts. All routes are read-only; the
// agent is the only writer.
package api

import (
	"log/slog"

	"github.com/hids/agent/internal/rules"
	"github.com/hids/agent/internal/scheduler"
	"github.com/hids/agent/internal/store"
)

// Health supplies the live pipeline state for /healthz. Fields left nil
// are reported as absent.
type Health struct {
	Heartbeats func() map[string]scheduler.Heartbeat
	QueueDepth func() int64
	Dropped    func() int64
	RuleStats  func() map[string]rules.ContextStats
}

// Server holds the dependencies needed by the handlers.
type Server struct {
	store  store.Backend
	health Health
	logger *slog.Logger
}

// NewServer builds a Server over the given backend.
func NewServer(backend store.Backend, health Health, logger *slog.Logger) *Server {
	return &Server{store: backend, health: health, logger: logger}
}
