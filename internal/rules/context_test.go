package rules

import (
	"fmt"
	"testing"
	"time"
)

func ref(id int64, ts time.Time) EventRef {
	return EventRef{EventID: id, EventType: "LOG_EVENT", TS: ts}
}

func TestContext_AddAndGet(t *testing.T) {
	ctx := NewContext()
	now := time.Now()

	ctx.Add("R1", "10.0.0.9", ref(1, now.Add(-2*time.Second)), time.Minute)
	ctx.Add("R1", "10.0.0.9", ref(2, now.Add(-time.Second)), time.Minute)

	refs := ctx.Get("R1", "10.0.0.9", time.Minute)
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].EventID != 1 || refs[1].EventID != 2 {
		t.Errorf("refs = %+v, want time order preserved", refs)
	}
}

func TestContext_RuleIsolation(t *testing.T) {
	ctx := NewContext()
	ctx.Add("R1", "k", ref(1, time.Now()), time.Minute)

	if refs := ctx.Get("R2", "k", time.Minute); len(refs) != 0 {
		t.Errorf("R2 sees R1 state: %+v", refs)
	}
}

func TestContext_WindowPruning(t *testing.T) {
	ctx := NewContext()
	now := time.Now()

	ctx.Add("R1", "k", ref(1, now.Add(-2*time.Minute)), 10*time.Minute)
	ctx.Add("R1", "k", ref(2, now), 10*time.Minute)

	// With a one-minute window only the recent ref survives.
	refs := ctx.Get("R1", "k", time.Minute)
	if len(refs) != 1 || refs[0].EventID != 2 {
		t.Fatalf("refs = %+v, want only event 2", refs)
	}
}

func TestContext_PerKeyCap(t *testing.T) {
	ctx := NewContext()
	now := time.Now()

	for i := 0; i < DefaultMaxPerKey+10; i++ {
		ctx.Add("R1", "k", ref(int64(i+1), now.Add(time.Duration(i)*time.Millisecond)), time.Hour)
	}

	refs := ctx.Get("R1", "k", time.Hour)
	if len(refs) != DefaultMaxPerKey {
		t.Fatalf("len(refs) = %d, want cap %d", len(refs), DefaultMaxPerKey)
	}
	// Oldest entries were dropped.
	if refs[0].EventID != 11 {
		t.Errorf("refs[0].EventID = %d, want 11", refs[0].EventID)
	}
}

func TestContext_KeyFIFOEviction(t *testing.T) {
	ctx := NewContext()
	now := time.Now()

	for i := 0; i < DefaultMaxKeys+1; i++ {
		ctx.Add("R1", fmt.Sprintf("key-%d", i), ref(int64(i), now), time.Hour)
	}

	// The first key inserted was evicted to make room.
	if refs := ctx.Get("R1", "key-0", time.Hour); len(refs) != 0 {
		t.Errorf("key-0 survived eviction: %+v", refs)
	}
	if refs := ctx.Get("R1", "key-1", time.Hour); len(refs) != 1 {
		t.Errorf("key-1 missing after eviction: %+v", refs)
	}
	if refs := ctx.Get("R1", fmt.Sprintf("key-%d", DefaultMaxKeys), time.Hour); len(refs) != 1 {
		t.Errorf("newest key missing")
	}
}

func TestContext_ClearKey(t *testing.T) {
	ctx := NewContext()
	ctx.Add("R1", "a", ref(1, time.Now()), time.Minute)
	ctx.Add("R1", "b", ref(2, time.Now()), time.Minute)

	ctx.ClearKey("R1", "a")
	if refs := ctx.Get("R1", "a", time.Minute); len(refs) != 0 {
		t.Errorf("cleared key still has refs: %+v", refs)
	}
	if refs := ctx.Get("R1", "b", time.Minute); len(refs) != 1 {
		t.Errorf("unrelated key lost refs")
	}
}

func TestContext_ClearRule(t *testing.T) {
	ctx := NewContext()
	ctx.Add("R1", "a", ref(1, time.Now()), time.Minute)
	ctx.Add("R2", "a", ref(2, time.Now()), time.Minute)

	ctx.ClearRule("R1")
	if refs := ctx.Get("R1", "a", time.Minute); len(refs) != 0 {
		t.Errorf("cleared rule still has refs")
	}
	if refs := ctx.Get("R2", "a", time.Minute); len(refs) != 1 {
		t.Errorf("unrelated rule lost refs")
	}
}

func TestContext_Stats(t *testing.T) {
	ctx := NewContext()
	ctx.Add("R1", "a", ref(1, time.Now()), time.Minute)
	ctx.Add("R1", "a", ref(2, time.Now()), time.Minute)
	ctx.Add("R1", "b", ref(3, time.Now()), time.Minute)

	stats := ctx.Stats()
	if stats["R1"].Keys != 2 || stats["R1"].Events != 3 {
		t.Errorf("Stats = %+v, want 2 keys / 3 events", stats["R1"])
	}
}
