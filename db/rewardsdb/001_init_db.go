package rewardsdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE pending_rewards (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			player   TEXT NOT NULL,
			username TEXT NOT NULL,
			service  TEXT NOT NULL,
			ts       TEXT NOT NULL,
			claimed  INTEGER NOT NULL DEFAULT 0
		);
	`, `
		`, "\n")); err != nil {
		return fmt.Errorf("create pending_rewards table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX pending_rewards_player_idx ON pending_rewards(player, claimed)`); err != nil {
		return fmt.Errorf("create pending_rewards index: %w", err)
	}
	return nil
}
