package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hids/agent/internal/store"
)

const maxQueryLimit = 1000

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// parseIntParam parses an optional integer query parameter.
func parseIntParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("'%s' must be a non-negative integer", name)
	}
	return v, nil
}

// parseEventQuery extracts the recognized event filters. "type" is an
// alias for "event_type", matching what the dashboard sends.
func parseEventQuery(r *http.Request) (store.EventQuery, error) {
	q := r.URL.Query()

	eventType := q.Get("event_type")
	if eventType == "" {
		eventType = q.Get("type")
	}

	pid, err := parseIntParam(r, "pid")
	if err != nil {
		return store.EventQuery{}, err
	}
	limit, err := parseIntParam(r, "limit")
	if err != nil {
		return store.EventQuery{}, err
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset, err := parseIntParam(r, "offset")
	if err != nil {
		return store.EventQuery{}, err
	}

	return store.EventQuery{
		Severity:  q.Get("severity"),
		Source:    q.Get("source"),
		Category:  q.Get("category"),
		EventType: eventType,
		Search:    q.Get("search"),
		PID:       int32(pid),
		Protocol:  q.Get("protocol"),
		IP:        q.Get("ip"),
		Limit:     limit,
		Offset:    offset,
	}, nil
}

// handleHealthz responds to GET /healthz. No authentication: load
// balancers and local tooling probe it.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.health.Heartbeats != nil {
		body["workers"] = s.health.Heartbeats()
	}
	if s.health.QueueDepth != nil {
		body["queue_depth"] = s.health.QueueDepth()
	}
	if s.health.Dropped != nil {
		body["queue_dropped"] = s.health.Dropped()
	}
	if s.health.RuleStats != nil {
		body["rule_context"] = s.health.RuleStats()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleLogs responds to GET /api/v1/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.LogEvents(r.Context(), q)
	if err != nil {
		s.logger.Error("log event query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleProcesses responds to GET /api/v1/processes.
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.ProcessEvents(r.Context(), q)
	if err != nil {
		s.logger.Error("process event query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleNetwork responds to GET /api/v1/network.
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.NetworkEvents(r.Context(), q)
	if err != nil {
		s.logger.Error("network event query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleMetrics responds to GET /api/v1/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.Metrics(r.Context(), q)
	if err != nil {
		s.logger.Error("metrics query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleAlerts responds to GET /api/v1/alerts. With ?expand=evidence each
// alert carries its evidence rows in sequence order.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset, err := parseIntParam(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := s.store.Alerts(r.Context(), store.AlertQuery{
		Severity: q.Get("severity"),
		RuleName: q.Get("rule_name"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("alert query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if q.Get("expand") == "evidence" {
		for i := range alerts {
			evidence, err := s.store.Evidence(r.Context(), alerts[i].ID)
			if err != nil {
				s.logger.Error("evidence query failed", slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "query failed")
				return
			}
			alerts[i].Evidence = evidence
		}
	}
	writeJSON(w, http.StatusOK, alerts)
}
