package bridge

import (
	"sync"
	"time"
)

// Status is the debounced view of whether the game is reachable.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
)

func (s Status) String() string {
	if s == StatusOnline {
		return "online"
	}
	return "offline"
}

const (
	// offlineThreshold is how many consecutive failed polls flip the state
	// to offline. A single threshold leaves flapping on long outages and a
	// cooldown alone misses single-tick transients, so both apply.
	offlineThreshold = 3

	// statusCooldown is the minimum gap between status notifications.
	statusCooldown = 30 * time.Second
)

type statusEvent int

const (
	statusNone statusEvent = iota
	statusWentOnline
	statusWentOffline
)

// statusFSM debounces poll results into online/offline transitions. It is
// mutated only from the stats poller; other readers see eventually
// consistent state.
type statusFSM struct {
	mu              sync.Mutex
	state           Status
	consecutiveFail int
	lastNotify      time.Time

	now func() time.Time // overridden in tests
}

func newStatusFSM() *statusFSM {
	return &statusFSM{now: time.Now}
}

// tick feeds one poll result in and reports whether a notification should be
// emitted. State transitions always happen; only notifications are
// rate-limited by the cooldown.
func (f *statusFSM) tick(ok bool) statusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ok {
		f.consecutiveFail = 0
		if f.state == StatusOnline {
			return statusNone
		}
		f.state = StatusOnline
		return f.notify(statusWentOnline)
	}

	f.consecutiveFail++
	if f.state != StatusOnline || f.consecutiveFail < offlineThreshold {
		return statusNone
	}
	f.state = StatusOffline
	return f.notify(statusWentOffline)
}

func (f *statusFSM) notify(ev statusEvent) statusEvent {
	now := f.now()
	if !f.lastNotify.IsZero() && now.Sub(f.lastNotify) < statusCooldown {
		return statusNone
	}
	f.lastNotify = now
	return ev
}

func (f *statusFSM) current() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
