package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vulpinegames/kubebridge/pkg/avatargrid"
	"github.com/vulpinegames/kubebridge/pkg/chat"
)

const (
	playersLimit  = 20
	playersPerRow = 5
	playersPad    = 4
)

// handlePlayers answers the /players slash command with an embed listing the
// online players, attaching a composited avatar grid when enough avatars
// resolve.
func (b *Bridge) handlePlayers(r chat.SlashResponder) {
	b.mu.Lock()
	stats := b.lastStats
	b.mu.Unlock()

	if stats == nil || b.fsm.current() == StatusOffline {
		if err := r.Respond(chat.Embed{
			Title:       "Players Online",
			Description: "The server is offline or restarting.",
			Color:       colorOrange,
		}, nil, true); err != nil {
			b.Log.Warn().Err(err).Msg("failed to respond to players command")
		}
		return
	}

	players := stats.Players
	if len(players) > playersLimit {
		players = players[:playersLimit]
	}

	var sb strings.Builder
	for _, p := range players {
		sb.WriteString("• ")
		sb.WriteString(p.Name)
		sb.WriteByte('\n')
	}
	desc := sb.String()
	if desc == "" {
		desc = "Nobody is online right now."
	}

	e := chat.Embed{
		Title:       fmt.Sprintf("Players Online (%d)", stats.PlayerCount),
		Description: desc,
		Color:       colorGreen,
		Footer:      fmt.Sprintf("TPS: %.2f | Uptime: %s", stats.TPS, stats.Uptime),
	}

	if file := b.avatarGrid(players); file != nil {
		e.ImageURL = "attachment://" + file.Name
		if err := r.Respond(e, file, false); err != nil {
			b.Log.Warn().Err(err).Msg("failed to respond to players command")
		}
		return
	}
	if err := r.Respond(e, nil, false); err != nil {
		b.Log.Warn().Err(err).Msg("failed to respond to players command")
	}
}

// avatarGrid fetches each player's avatar and composites them into one PNG.
// Nil when no avatars resolve; the embed is then sent alone.
func (b *Bridge) avatarGrid(players []Player) *chat.File {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var avatars [][]byte
	for _, p := range players {
		url := avatarURL(p.UUID, avatarSizeEmbed)
		if url == "" {
			continue
		}
		buf, err := b.Chat.HTTPGetBytes(ctx, url)
		if err != nil {
			b.Log.Debug().Err(err).Str("player", p.Name).Msg("avatar fetch failed")
			continue
		}
		avatars = append(avatars, buf)
	}
	if len(avatars) == 0 {
		return nil
	}

	buf, err := avatargrid.PNG(avatars, playersPerRow, avatarSizeEmbed, playersPad)
	if err != nil {
		b.Log.Debug().Err(err).Msg("avatar grid compositing failed")
		return nil
	}
	return &chat.File{
		Name:        "players.png",
		ContentType: "image/png",
		Data:        buf,
	}
}
