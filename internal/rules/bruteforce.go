package rules

import (
	"fmt"
	"time"

	"github.com/hids/agent/internal/event"
)

// NewSSHBruteforceRule (AUTH_001) fires when the same source IP fails
// authentication five times within a minute. The key is cleared on fire, so
// a sustained attack produces one alert per five attempts rather than one
// per line.
func NewSSHBruteforceRule() *ThresholdRule {
	const (
		threshold = 5
		window    = 60 * time.Second
	)

	return &ThresholdRule{
		RuleID:      "AUTH_001",
		EventPrefix: "LOG_",
		Threshold:   threshold,
		Window:      window,

		Relevant: func(ev *event.Event) bool {
			if ev.Log == nil || ev.Log.Category != event.CategoryAuth || ev.Log.IP == "" {
				return false
			}
			return ev.Log.EventType == "FAILED_LOGIN" || ev.Log.EventType == "FAILED_AUTH"
		},

		Key: func(ev *event.Event) string {
			return ev.Log.IP
		},

		CreateAlert: func(key string, refs []EventRef) *event.AlertBundle {
			alert := newAlert("ALERT_SSH_BRUTEFORCE", "AUTH_001", event.SeverityHigh,
				fmt.Sprintf("SSH brute force from %s (%d failed attempts)", key, len(refs)))

			// Contributing events have no ids yet (they persist
			// asynchronously), so the alert links them by attributes and
			// the observed window.
			resolve := &event.ResolveSpec{
				Source: "log_events",
				Filters: map[string]any{
					"ip_address":     key,
					"category":       string(event.CategoryAuth),
					"event_type__in": []string{"FAILED_LOGIN", "FAILED_AUTH"},
				},
				From:  refs[0].TS,
				To:    refs[len(refs)-1].TS,
				Limit: 10,
				Order: "asc",
			}

			return &event.AlertBundle{Alert: alert, Resolve: resolve}
		},
	}
}
