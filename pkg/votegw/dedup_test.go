package votegw

import (
	"testing"
	"time"
)

func TestDedup(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDedup()
	d.now = func() time.Time { return now }

	if d.IsDuplicate("Steve", "PMC") {
		t.Error("fresh pair marked duplicate")
	}
	d.MarkProcessed("Steve", "PMC")

	if !d.IsDuplicate("Steve", "PMC") {
		t.Error("processed pair not duplicate")
	}
	if !d.IsDuplicate("sTeVe", "pmc") {
		t.Error("dedup not case-insensitive")
	}
	if d.IsDuplicate("Steve", "TopG") {
		t.Error("other service marked duplicate")
	}

	// still suppressed just inside the window
	now = now.Add(dedupWindow - time.Second)
	if !d.IsDuplicate("Steve", "PMC") {
		t.Error("pair expired before the window closed")
	}

	// expired at exactly one window
	now = now.Add(time.Second)
	if d.IsDuplicate("Steve", "PMC") {
		t.Error("pair still duplicate after the window")
	}

	// pruning actually removes the entry
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n != 0 {
		t.Errorf("stale entries not pruned, %d left", n)
	}

	// re-marking restarts the window
	d.MarkProcessed("Steve", "PMC")
	if !d.IsDuplicate("Steve", "PMC") {
		t.Error("re-marked pair not duplicate")
	}
}
