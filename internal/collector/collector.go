// Package collector gathers host state and turns it into pipeline events.
// The process and network collectors diff successive snapshots and persist
// the prior snapshot to disk, so a restart does not replay the whole host as
// "new"; the metrics collector reports point-in-time usage; the log
// collector tails files and parses new lines.
package collector

import (
	"context"

	"github.com/hids/agent/internal/event"
)

// Collector is a periodically scheduled event source.
type Collector interface {
	// Name identifies the collector in heartbeats and logs.
	Name() string

	// Collect performs one poll and returns the events it produced. A
	// returned error means the poll failed as a whole; partial results with
	// a nil error are normal.
	Collect(ctx context.Context) ([]*event.Event, error)
}
