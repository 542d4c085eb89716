package rewards

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T, path string) *JSONFile {
	t.Helper()
	s, err := OpenJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestAddAndPending(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "pending_rewards.json"))

	if err := s.Add("Steve", "PMC"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("Steve", "TopG"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// lookups are case-insensitive, original casing is preserved
	rs, err := s.Pending("STEVE")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("got %d rewards, want 2", len(rs))
	}
	if rs[0].Username != "Steve" || rs[0].Service != "PMC" {
		t.Errorf("incorrect first reward %+v", rs[0])
	}
	if rs[0].Timestamp == "" {
		t.Error("missing timestamp")
	}

	if n, _ := s.PendingCount("steve"); n != 2 {
		t.Errorf("count %d, want 2", n)
	}
	if n, _ := s.PendingCount("alex"); n != 0 {
		t.Errorf("count %d for unknown player, want 0", n)
	}
}

func TestClaimAndClear(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "pending_rewards.json"))

	s.Add("Steve", "PMC")
	s.Add("Steve", "TopG")
	s.Add("Alex", "PMC")

	claimed, err := s.ClaimAll("steve")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d, want 2", len(claimed))
	}
	if n, _ := s.PendingCount("Steve"); n != 0 {
		t.Errorf("count %d after claim, want 0", n)
	}

	// claimed entries survive until cleared
	if err := s.ClearClaimed("Steve"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s.mu.Lock()
	_, exists := s.rewards["steve"]
	s.mu.Unlock()
	if exists {
		t.Error("empty player list not dropped after clear")
	}

	players, err := s.AllPlayersWithPending()
	if err != nil {
		t.Fatalf("all players: %v", err)
	}
	if !reflect.DeepEqual(players, []string{"alex"}) {
		t.Errorf("players %v, want [alex]", players)
	}

	// a second claim is a no-op but still works
	claimed, err = s.ClaimAll("Steve")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed %d on empty, want 0", len(claimed))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_rewards.json")

	s := openTestStore(t, path)
	s.Add("Steve", "PMC")
	s.Add("Alex", "PMC")
	s.ClaimAll("Alex")

	// restart
	s2 := openTestStore(t, path)
	if n, _ := s2.PendingCount("Steve"); n != 1 {
		t.Errorf("steve count %d after reload, want 1", n)
	}
	if n, _ := s2.PendingCount("Alex"); n != 0 {
		t.Errorf("alex count %d after reload, want 0", n)
	}

	// the file is a plain pretty-printed map keyed by lowercase username
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var m map[string][]PendingReward
	if err := json.Unmarshal(buf, &m); err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if _, ok := m["steve"]; !ok {
		t.Errorf("file keys %v missing steve", keys(m))
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_rewards.json")
	if err := os.WriteFile(path, []byte("{nope"), 0666); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t, path)
	if n, _ := s.PendingCount("Steve"); n != 0 {
		t.Errorf("corrupt store not empty")
	}
	if _, err := os.Stat(path + ".corrupt.gz"); err != nil {
		t.Errorf("corrupt file backup missing: %v", err)
	}

	// the store stays usable
	if err := s.Add("Steve", "PMC"); err != nil {
		t.Fatalf("add after corrupt load: %v", err)
	}
}

func TestMissingFile(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "data", "pending_rewards.json"))
	if n, _ := s.PendingCount("Steve"); n != 0 {
		t.Error("fresh store not empty")
	}
}

func keys(m map[string][]PendingReward) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
