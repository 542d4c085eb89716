package bridge

import (
	"testing"
	"time"
)

func newTestFSM() (*statusFSM, *time.Time) {
	now := time.Unix(1700000000, 0)
	f := newStatusFSM()
	f.now = func() time.Time { return now }
	return f, &now
}

func TestFSMComesOnline(t *testing.T) {
	f, _ := newTestFSM()

	if ev := f.tick(true); ev != statusWentOnline {
		t.Errorf("first successful tick: got %v, want online notification", ev)
	}
	if ev := f.tick(true); ev != statusNone {
		t.Errorf("second successful tick: got %v, want none", ev)
	}
	if f.current() != StatusOnline {
		t.Error("state not online")
	}
}

func TestFSMOfflineThreshold(t *testing.T) {
	f, now := newTestFSM()
	f.tick(true)
	*now = now.Add(time.Minute)

	// two failures are a transient, not an outage
	if ev := f.tick(false); ev != statusNone {
		t.Errorf("first failure: got %v, want none", ev)
	}
	if ev := f.tick(false); ev != statusNone {
		t.Errorf("second failure: got %v, want none", ev)
	}
	if f.current() != StatusOnline {
		t.Error("state flipped before the threshold")
	}

	if ev := f.tick(false); ev != statusWentOffline {
		t.Errorf("third failure: got %v, want offline notification", ev)
	}
	if f.current() != StatusOffline {
		t.Error("state not offline")
	}

	// further failures stay quiet
	if ev := f.tick(false); ev != statusNone {
		t.Errorf("fourth failure: got %v, want none", ev)
	}
}

func TestFSMTransientRecovery(t *testing.T) {
	f, _ := newTestFSM()
	f.tick(true)

	f.tick(false)
	f.tick(false)
	if ev := f.tick(true); ev != statusNone {
		t.Errorf("recovery before threshold: got %v, want none", ev)
	}

	// the failure counter must have reset
	f.tick(false)
	f.tick(false)
	if f.current() != StatusOnline {
		t.Error("failure counter survived recovery")
	}
	f.tick(false)
	if f.current() != StatusOffline {
		t.Error("state not offline after a fresh threshold")
	}
}

func TestFSMCooldown(t *testing.T) {
	f, now := newTestFSM()

	if ev := f.tick(true); ev != statusWentOnline {
		t.Fatalf("got %v, want online", ev)
	}

	// flap offline within the cooldown: state changes, notification is
	// suppressed
	*now = now.Add(10 * time.Second)
	f.tick(false)
	f.tick(false)
	if ev := f.tick(false); ev != statusNone {
		t.Errorf("offline flap within cooldown: got %v, want none", ev)
	}
	if f.current() != StatusOffline {
		t.Error("state not offline despite suppressed notification")
	}

	// and back online, still inside the cooldown
	*now = now.Add(5 * time.Second)
	if ev := f.tick(true); ev != statusNone {
		t.Errorf("online flap within cooldown: got %v, want none", ev)
	}

	// once the cooldown passes, notifications resume
	*now = now.Add(statusCooldown)
	f.tick(false)
	f.tick(false)
	if ev := f.tick(false); ev != statusWentOffline {
		t.Errorf("offline after cooldown: got %v, want offline notification", ev)
	}
}
