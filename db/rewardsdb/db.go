// Package rewardsdb implements sqlite3 storage for pending vote rewards.
package rewardsdb

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vulpinegames/kubebridge/pkg/rewards"
)

// DB stores pending rewards in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB from the provided sqlite3 path.
func Open(name string) (*DB, error) {
	// note: WAL makes our single-writer workload crash-safe without
	// whole-file rewrites
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_busy_timeout": {"6000"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	return &DB{x}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

func (db *DB) Add(username, service string) error {
	_, err := db.x.NamedExec(`
		INSERT INTO
		pending_rewards  ( player,  username,  service,  ts,  claimed)
		VALUES           (:player, :username, :service, :ts, 0)
	`, map[string]any{
		"player":   strings.ToLower(username),
		"username": username,
		"service":  service,
		"ts":       time.Now().UTC().Format("2006-01-02T15:04:05.999999"),
	})
	return err
}

func (db *DB) Pending(username string) ([]rewards.PendingReward, error) {
	var rows []struct {
		Username string `db:"username"`
		Service  string `db:"service"`
		TS       string `db:"ts"`
		Claimed  bool   `db:"claimed"`
	}
	if err := db.x.Select(&rows, `
		SELECT username, service, ts, claimed FROM pending_rewards
		WHERE player = ? AND claimed = 0
		ORDER BY id
	`, strings.ToLower(username)); err != nil {
		return nil, err
	}
	rs := make([]rewards.PendingReward, 0, len(rows))
	for _, r := range rows {
		rs = append(rs, rewards.PendingReward{
			Username:  r.Username,
			Service:   r.Service,
			Timestamp: r.TS,
			Claimed:   r.Claimed,
		})
	}
	return rs, nil
}

func (db *DB) PendingCount(username string) (int, error) {
	var n int
	if err := db.x.Get(&n, `
		SELECT COUNT(*) FROM pending_rewards WHERE player = ? AND claimed = 0
	`, strings.ToLower(username)); err != nil {
		return 0, err
	}
	return n, nil
}

func (db *DB) ClaimAll(username string) ([]rewards.PendingReward, error) {
	tx, err := db.x.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	player := strings.ToLower(username)

	var rows []struct {
		Username string `db:"username"`
		Service  string `db:"service"`
		TS       string `db:"ts"`
	}
	if err := tx.Select(&rows, `
		SELECT username, service, ts FROM pending_rewards
		WHERE player = ? AND claimed = 0
		ORDER BY id
	`, player); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE pending_rewards SET claimed = 1 WHERE player = ?`, player); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rs := make([]rewards.PendingReward, 0, len(rows))
	for _, r := range rows {
		rs = append(rs, rewards.PendingReward{
			Username:  r.Username,
			Service:   r.Service,
			Timestamp: r.TS,
		})
	}
	return rs, nil
}

func (db *DB) ClearClaimed(username string) error {
	_, err := db.x.Exec(`
		DELETE FROM pending_rewards WHERE player = ? AND claimed = 1
	`, strings.ToLower(username))
	return err
}

func (db *DB) AllPlayersWithPending() ([]string, error) {
	var names []string
	if err := db.x.Select(&names, `
		SELECT DISTINCT player FROM pending_rewards WHERE claimed = 0
	`); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

var _ rewards.Store = (*DB)(nil)
