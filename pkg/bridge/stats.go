package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Player is an online player as reported by getstats.
type Player struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// Event is a game event queued for the bridge: a chat line, a join, or a
// leave. Unknown types are ignored.
type Event struct {
	Type    string `json:"type"`
	Player  string `json:"player"`
	UUID    string `json:"uuid"`
	Message string `json:"message"`
}

// Stats is a snapshot returned by the game's getstats command.
type Stats struct {
	TPS         float64  `json:"tps"`
	PlayerCount int      `json:"playerCount"`
	Uptime      string   `json:"uptime"`
	Players     []Player `json:"players"`
	Messages    []Event  `json:"messages"`
}

// Topic renders the channel-topic summary line for the snapshot.
func (s *Stats) Topic() string {
	return fmt.Sprintf("TPS: %.2f | Players: %d | Uptime: %s", s.TPS, s.PlayerCount, s.Uptime)
}

// fetchStats polls the game. A nil result means the game is unreachable or
// returned garbage; the caller feeds that into the status FSM.
func (b *Bridge) fetchStats(ctx context.Context) *Stats {
	resp, err := b.Rcon.Exec(ctx, "getstats")
	if err != nil {
		b.Log.Debug().Err(err).Msg("getstats failed")
		return nil
	}
	var s Stats
	if err := json.Unmarshal([]byte(resp), &s); err != nil {
		b.Log.Warn().Err(err).Msg("invalid json from getstats")
		return nil
	}
	return &s
}

const (
	avatarSizeChat  = 128
	avatarSizeEmbed = 32
)

// avatarURL builds the head-render URL for a player. Returns "" when the
// uuid is not usable in a URL.
func avatarURL(id string, size int) string {
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return fmt.Sprintf("https://mc-heads.net/avatar/%s/%d", id, size)
}
