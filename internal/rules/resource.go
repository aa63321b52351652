package rules

import (
	"fmt"
	"time"

	"github.com/hids/agent/internal/event"
)

// Resource thresholds for RES_001.
const (
	highCPUPercent = 70.0
	highMemPercent = 80.0
)

// NewHighResourceUsageRule (RES_001) fires when three metric snapshots
// within two minutes show CPU above 70% or memory above 80%. The whole host
// correlates under a single key.
func NewHighResourceUsageRule() *ThresholdRule {
	const (
		threshold = 3
		window    = 120 * time.Second
	)

	return &ThresholdRule{
		RuleID:      "RES_001",
		EventPrefix: "METRIC_",
		Threshold:   threshold,
		Window:      window,

		Relevant: func(ev *event.Event) bool {
			if ev.Type != event.TypeMetricSnapshot || ev.Metric == nil {
				return false
			}
			return ev.Metric.CPU.Percent > highCPUPercent || ev.Metric.Memory.Percent > highMemPercent
		},

		Key: func(ev *event.Event) string {
			return "system_resources"
		},

		CreateAlert: func(key string, refs []EventRef) *event.AlertBundle {
			alert := newAlert("ALERT_HIGH_RESOURCE_USAGE", "RES_001", event.SeverityMedium,
				fmt.Sprintf("Sustained high resource usage across %d consecutive snapshots", len(refs)))

			return &event.AlertBundle{
				Alert: alert,
				Resolve: &event.ResolveSpec{
					Source: "metric_events",
					From:   refs[0].TS,
					To:     refs[len(refs)-1].TS,
					Limit:  len(refs),
					Order:  "asc",
				},
			}
		},
	}
}
