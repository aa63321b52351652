//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/store/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hids/agent/internal/event"
	"github.com/hids/agent/internal/store"
)

// setupDB starts a PostgreSQL container and returns an opened backend.
func setupDB(t *testing.T) *store.Postgres {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("hids_test"),
		tcpostgres.WithUsername("hids"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	pg, err := store.OpenPostgres(ctx, connStr)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestPostgres_AlertWithResolvedEvidence(t *testing.T) {
	pg := setupDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var want []int64
	for i := 0; i < 5; i++ {
		id, err := pg.InsertLogEvent(ctx, &event.Event{
			Type:      event.TypeLogEvent,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Raw:       "Failed password for root from 10.0.0.9 port 55123 ssh2",
			Log: &event.LogFields{
				LogSource: "auth",
				EventType: "FAILED_LOGIN",
				Category:  event.CategoryAuth,
				Severity:  event.SeverityMedium,
				Message:   "Failed password for root from 10.0.0.9",
				User:      "root",
				IP:        "10.0.0.9",
			},
		})
		if err != nil {
			t.Fatalf("InsertLogEvent: %v", err)
		}
		want = append(want, id)
	}

	alertID, err := pg.InsertAlert(ctx, &event.AlertBundle{
		Alert: &event.Alert{
			Timestamp: base.Add(4 * time.Second),
			Type:      "ALERT_BRUTEFORCE",
			RuleName:  "AUTH_001",
			Severity:  event.SeverityHigh,
			Message:   "SSH brute force from 10.0.0.9 (5 failed attempts)",
		},
		Resolve: &event.ResolveSpec{
			Source: "log_events",
			Filters: map[string]any{
				"ip_address":     "10.0.0.9",
				"category":       string(event.CategoryAuth),
				"event_type__in": []string{"FAILED_LOGIN", "FAILED_AUTH"},
			},
			From:  base,
			To:    base.Add(4 * time.Second),
			Limit: 10,
			Order: "asc",
		},
	})
	if err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	evidence, err := pg.Evidence(ctx, alertID)
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if len(evidence) != 5 {
		t.Fatalf("len(evidence) = %d, want 5", len(evidence))
	}
	for i, ev := range evidence {
		if ev.EventID != want[i] || ev.Sequence != i+1 || ev.Role != string(event.RoleSupport) {
			t.Errorf("evidence[%d] = %+v, want SUPPORT seq %d for event %d", i, ev, i+1, want[i])
		}
	}

	alerts, err := pg.Alerts(ctx, store.AlertQuery{RuleName: "AUTH_001"})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != alertID {
		t.Fatalf("alerts = %+v, want the inserted alert", alerts)
	}
}

func TestPostgres_EventQueries(t *testing.T) {
	pg := setupDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := pg.InsertProcessEvent(ctx, &event.Event{
		Type:      event.TypeProcessNew,
		Timestamp: base,
		Process: &event.ProcessFields{
			PID: 4321, PPID: 1, Name: "nmap",
			Cmdline: "NMAP -sS 192.168.1.0/24", Username: "eve",
		},
	}); err != nil {
		t.Fatalf("InsertProcessEvent: %v", err)
	}
	if _, err := pg.InsertNetworkEvent(ctx, &event.Event{
		Type:      event.TypeNetNewConnection,
		Timestamp: base,
		Network: &event.NetworkFields{
			PID: 77, ProcessName: "curl", Protocol: "tcp",
			LaddrIP: "10.0.0.5", LaddrPort: 44310,
			RaddrIP: "93.184.216.34", RaddrPort: 443, Status: "ESTABLISHED",
		},
	}); err != nil {
		t.Fatalf("InsertNetworkEvent: %v", err)
	}

	// ILIKE search is case-insensitive.
	procs, err := pg.ProcessEvents(ctx, store.EventQuery{Search: "nmap -ss"})
	if err != nil {
		t.Fatalf("ProcessEvents: %v", err)
	}
	if len(procs) != 1 || procs[0].ProcessName != "nmap" {
		t.Fatalf("procs = %+v, want the nmap event", procs)
	}

	nets, err := pg.NetworkEvents(ctx, store.EventQuery{IP: "93.184.216.34"})
	if err != nil {
		t.Fatalf("NetworkEvents: %v", err)
	}
	if len(nets) != 1 || nets[0].RaddrPort != 443 {
		t.Fatalf("nets = %+v, want the remote connection", nets)
	}
}
