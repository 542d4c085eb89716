package rewardsdb

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cur, to, err := db.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if cur != to {
		if err := db.MigrateUp(context.Background(), to); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

func TestStore(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "rewards.db"))

	if err := db.Add("Steve", "PMC"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := db.Add("Steve", "TopG"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := db.Add("Alex", "PMC"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// case-insensitive lookups preserving original casing, oldest first
	rs, err := db.Pending("STEVE")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rs) != 2 || rs[0].Username != "Steve" || rs[0].Service != "PMC" || rs[1].Service != "TopG" {
		t.Errorf("incorrect rewards %+v", rs)
	}
	if n, _ := db.PendingCount("steve"); n != 2 {
		t.Errorf("count %d, want 2", n)
	}

	players, err := db.AllPlayersWithPending()
	if err != nil {
		t.Fatalf("all players: %v", err)
	}
	if !reflect.DeepEqual(players, []string{"alex", "steve"}) {
		t.Errorf("players %v", players)
	}

	claimed, err := db.ClaimAll("steve")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Errorf("claimed %d, want 2", len(claimed))
	}
	if n, _ := db.PendingCount("Steve"); n != 0 {
		t.Errorf("count %d after claim, want 0", n)
	}
	if err := db.ClearClaimed("Steve"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// alex untouched
	if n, _ := db.PendingCount("Alex"); n != 1 {
		t.Errorf("alex count %d, want 1", n)
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.db")

	db := openTestDB(t, path)
	db.Add("Steve", "PMC")
	db.Close()

	db2 := openTestDB(t, path)
	if n, _ := db2.PendingCount("Steve"); n != 1 {
		t.Errorf("count %d after reopen, want 1", n)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.db")
	openTestDB(t, path)
	openTestDB(t, path)
}
