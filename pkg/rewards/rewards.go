// Package rewards stores pending vote rewards for players who could not be
// credited at vote time.
package rewards

import "time"

// PendingReward is a single undelivered reward. Username keeps the original
// casing; store keys are lowercased.
type PendingReward struct {
	Username  string `json:"username"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Claimed   bool   `json:"claimed"`
}

// Store is durable per-player reward storage. Implementations must be safe
// for concurrent use, and mutations must be totally ordered: a reader of
// Pending observes a consistent snapshot.
type Store interface {
	// Add appends an unclaimed reward for username with the current time.
	Add(username, service string) error

	// Pending returns the unclaimed rewards for username, oldest first.
	Pending(username string) ([]PendingReward, error)

	// PendingCount returns len(Pending(username)).
	PendingCount(username string) (int, error)

	// ClaimAll marks every reward for username as claimed and returns the
	// ones that were previously unclaimed.
	ClaimAll(username string) ([]PendingReward, error)

	// ClearClaimed removes claimed rewards for username, dropping the player
	// entirely if nothing remains.
	ClearClaimed(username string) error

	// AllPlayersWithPending returns the (lowercased) names of every player
	// with at least one unclaimed reward.
	AllPlayersWithPending() ([]string, error)

	Close() error
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999")
}
