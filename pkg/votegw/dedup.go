package votegw

import (
	"strings"
	"sync"
	"time"
)

// dedupWindow is how long a (user, service) pair is suppressed after a
// processed vote. Voting sites almost never legitimately double-submit
// within an hour.
const dedupWindow = time.Hour

// Dedup is a sliding-window set of recently processed votes. Keys are
// case-insensitive. Memory only; a restart forgets history.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time

	now func() time.Time // overridden in tests
}

func NewDedup() *Dedup {
	return &Dedup{
		seen: map[string]time.Time{},
		now:  time.Now,
	}
}

// IsDuplicate reports whether a vote for (user, service) was processed
// within the window. Stale entries are pruned on every call.
func (d *Dedup) IsDuplicate(user, service string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-dedupWindow)
	for k, ts := range d.seen {
		if !ts.After(cutoff) {
			delete(d.seen, k)
		}
	}
	_, ok := d.seen[dedupKey(user, service)]
	return ok
}

// MarkProcessed records a processed vote for (user, service).
func (d *Dedup) MarkProcessed(user, service string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[dedupKey(user, service)] = d.now()
}

func dedupKey(user, service string) string {
	return strings.ToLower(user) + ":" + strings.ToLower(service)
}
