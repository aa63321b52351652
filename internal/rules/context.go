// Package rules holds the detection logic: the correlation context stateful
// rules accumulate into, the rule contracts, the engine that evaluates them,
// and the canonical rule set.
package rules

import (
	"sync"
	"time"
)

// Context defaults; rules override the window per Add call.
const (
	DefaultWindow    = 5 * time.Minute
	DefaultMaxKeys   = 500
	DefaultMaxPerKey = 50
)

// EventRef is the minimal footprint of an event inside the context: enough
// to count, order, and later resolve.
type EventRef struct {
	EventID   int64
	EventType string
	TS        time.Time
}

// ruleBucket holds one rule's correlation state. order tracks key insertion
// for FIFO eviction when the key cap is hit.
type ruleBucket struct {
	order []string
	keys  map[string][]EventRef
}

// Context is an in-memory, rule-scoped correlation store: per rule, per key,
// a bounded time-ordered ring of event references. Expired entries are
// pruned lazily on access; there is no background sweeper. Safe for
// concurrent use.
type Context struct {
	mu        sync.Mutex
	maxKeys   int
	maxPerKey int
	store     map[string]*ruleBucket
}

// ContextStats summarizes one rule's footprint for the health surface.
type ContextStats struct {
	Keys   int `json:"keys"`
	Events int `json:"events"`
}

// NewContext builds a Context with the default capacity limits.
func NewContext() *Context {
	return &Context{
		maxKeys:   DefaultMaxKeys,
		maxPerKey: DefaultMaxPerKey,
		store:     make(map[string]*ruleBucket),
	}
}

// Add records an event reference under (ruleID, key). Expired refs are
// pruned first, the per-key ring is capped by dropping oldest, and when a
// rule exceeds its key budget the oldest key is evicted wholesale.
func (c *Context) Add(ruleID, key string, ref EventRef, window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ruleID]
	if !ok {
		bucket = &ruleBucket{keys: make(map[string][]EventRef)}
		c.store[ruleID] = bucket
	}

	if _, ok := bucket.keys[key]; !ok {
		if len(bucket.keys) >= c.maxKeys {
			oldest := bucket.order[0]
			bucket.order = bucket.order[1:]
			delete(bucket.keys, oldest)
		}
		bucket.order = append(bucket.order, key)
	}

	ring := prune(bucket.keys[key], window)
	if len(ring) >= c.maxPerKey {
		ring = ring[len(ring)-c.maxPerKey+1:]
	}
	bucket.keys[key] = append(ring, ref)
}

// Get returns a pruned copy of the refs under (ruleID, key).
func (c *Context) Get(ruleID, key string, window time.Duration) []EventRef {
	if window <= 0 {
		window = DefaultWindow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ruleID]
	if !ok {
		return nil
	}
	ring, ok := bucket.keys[key]
	if !ok {
		return nil
	}

	ring = prune(ring, window)
	bucket.keys[key] = ring

	out := make([]EventRef, len(ring))
	copy(out, ring)
	return out
}

// ClearKey drops the state for one key, typically right after a rule fires
// on it so the next event starts a fresh accumulation.
func (c *Context) ClearKey(ruleID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ruleID]
	if !ok {
		return
	}
	if _, ok := bucket.keys[key]; !ok {
		return
	}
	delete(bucket.keys, key)
	for i, k := range bucket.order {
		if k == key {
			bucket.order = append(bucket.order[:i], bucket.order[i+1:]...)
			break
		}
	}
}

// ClearRule drops all state for a rule.
func (c *Context) ClearRule(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, ruleID)
}

// Stats reports per-rule key and event counts.
func (c *Context) Stats() map[string]ContextStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]ContextStats, len(c.store))
	for ruleID, bucket := range c.store {
		s := ContextStats{Keys: len(bucket.keys)}
		for _, ring := range bucket.keys {
			s.Events += len(ring)
		}
		out[ruleID] = s
	}
	return out
}

// prune drops refs older than the window. Rings are appended in time order,
// so expired entries sit at the front.
func prune(ring []EventRef, window time.Duration) []EventRef {
	cutoff := time.Now().Add(-window)
	i := 0
	for i < len(ring) && ring[i].TS.Before(cutoff) {
		i++
	}
	return ring[i:]
}
