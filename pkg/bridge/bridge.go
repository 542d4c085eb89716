package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vulpinegames/kubebridge/pkg/chat"
	"github.com/vulpinegames/kubebridge/pkg/rcon"
)

// Embed colors.
const (
	colorGreen  = 0x57F287
	colorRed    = 0xED4245
	colorOrange = 0xE67E22
	colorBlue   = 0x3498DB
	colorPurple = 0x9B59B6
)

// bridgeWebhookName is the channel webhook we look for (and create) when no
// manual webhook URL is configured.
const bridgeWebhookName = "Minecraft Bridge"

// Execer is the part of the RCON client the bridge uses.
type Execer interface {
	Exec(ctx context.Context, command string) (string, error)
}

// Bridge relays between a Discord channel and the game server.
type Bridge struct {
	Log  zerolog.Logger
	Rcon Execer
	Chat chat.Adapter

	ServerName       string
	ChannelID        string
	WebhookURL       string
	MaxMessageLength int
	StatsInterval    time.Duration
	TopicInterval    time.Duration

	m   brMetrics
	fsm *statusFSM

	mu        sync.Mutex
	lastStats *Stats
	lastTopic string
	webhook   chat.Webhook
	stopSent  bool
}

// New configures a bridge using c and the given chat adapter.
func New(c *Config, adapter chat.Adapter, log zerolog.Logger) *Bridge {
	b := &Bridge{
		Log:              log,
		Rcon:             rcon.NewClient(c.RconHost, c.RconPort, c.RconPassword, log.With().Str("component", "rcon").Logger()),
		Chat:             adapter,
		ServerName:       c.ServerName,
		ChannelID:        c.DiscordChannelID,
		WebhookURL:       c.DiscordWebhookURL,
		MaxMessageLength: c.MaxMessageLength,
		StatsInterval:    c.StatsCheckInterval,
		TopicInterval:    c.TopicUpdateInterval,
		fsm:              newStatusFSM(),
	}
	b.initMetrics()
	return b
}

// Run runs the bridge, shutting it down gracefully when ctx is canceled. It
// must only ever be called once.
func (b *Bridge) Run(ctx context.Context) error {
	b.Chat.OnMessage(b.handleMessage)
	if err := b.Chat.RegisterSlash("players", "Show who is online on the server", b.handlePlayers); err != nil {
		return fmt.Errorf("register slash command: %w", err)
	}

	if err := b.Chat.Open(ctx); err != nil {
		return fmt.Errorf("connect to discord: %w", err)
	}
	defer b.Chat.Close()

	b.setupWebhook()

	if err := b.Chat.SetPresenceWatching(b.ServerName); err != nil {
		b.Log.Warn().Err(err).Msg("failed to set presence")
	}
	b.sendEmbed(chat.Embed{Description: ":robot: Discord bot started", Color: colorPurple})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.statsLoop(ctx) })
	g.Go(func() error { return b.topicLoop(ctx) })
	err := g.Wait()

	b.shutdown()
	if c, ok := b.Rcon.(io.Closer); ok {
		c.Close()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown emits the stop embed exactly once.
func (b *Bridge) shutdown() {
	b.mu.Lock()
	sent := b.stopSent
	b.stopSent = true
	b.mu.Unlock()
	if sent {
		return
	}
	b.sendEmbed(chat.Embed{Description: ":robot: Discord bot stopped", Color: colorRed})
	b.Log.Info().Msg("bridge stopped")
}

// setupWebhook resolves the webhook used for game→chat fanout. A manually
// configured URL wins; otherwise we reuse or create a channel webhook. On
// missing permissions embeds are dropped with a warning.
func (b *Bridge) setupWebhook() {
	if b.WebhookURL != "" {
		b.Log.Info().Msg("using configured webhook url")
		return
	}
	ch, err := b.Chat.Channel(b.ChannelID)
	if err != nil {
		b.Log.Err(err).Str("channel", b.ChannelID).Msg("could not resolve channel, webhook fanout disabled")
		return
	}
	wh, err := ch.GetOrCreateWebhook(bridgeWebhookName)
	if err != nil {
		if errors.Is(err, chat.ErrForbidden) {
			b.Log.Error().Msg("missing permission to manage webhooks, webhook fanout disabled")
		} else {
			b.Log.Err(err).Msg("failed to find or create webhook, webhook fanout disabled")
		}
		return
	}
	b.mu.Lock()
	b.webhook = wh
	b.mu.Unlock()
	b.Log.Info().Str("webhook", bridgeWebhookName).Msg("webhook ready")
}

// post sends a payload through whichever webhook path is configured.
func (b *Bridge) post(p chat.WebhookPayload) {
	if b.WebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Chat.PostWebhookURL(ctx, b.WebhookURL, p); err != nil {
			b.logPostErr(err)
		}
		return
	}

	b.mu.Lock()
	wh := b.webhook
	b.mu.Unlock()
	if wh == nil {
		b.Log.Warn().Msg("no webhook available, dropping message")
		return
	}
	if err := wh.Send(p); err != nil {
		b.logPostErr(err)
	}
}

func (b *Bridge) logPostErr(err error) {
	if errors.Is(err, chat.ErrRateLimited) {
		b.Log.Warn().Msg("webhook rate limited")
		return
	}
	b.Log.Err(err).Msg("webhook error")
}

func (b *Bridge) sendEmbed(e chat.Embed) {
	b.post(chat.WebhookPayload{Embeds: []chat.Embed{e}})
}

// statsLoop drives the status FSM and the game→chat fanout.
func (b *Bridge) statsLoop(ctx context.Context) error {
	t := time.NewTicker(b.StatsInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		b.pollStats(ctx)
	}
}

// pollStats runs one stats tick: fetch, FSM, fanout.
func (b *Bridge) pollStats(ctx context.Context) {
	stats := b.fetchStats(ctx)
	if stats != nil {
		b.m.stats_polls_total.ok.Inc()
		b.mu.Lock()
		b.lastStats = stats
		b.mu.Unlock()
	} else {
		b.m.stats_polls_total.fail.Inc()
	}

	switch b.fsm.tick(stats != nil) {
	case statusWentOnline:
		b.m.status_transitions_total.online.Inc()
		b.Log.Info().Msg("server came online")
		b.sendEmbed(chat.Embed{
			Description: fmt.Sprintf(":white_check_mark: **%s** is now online!", b.ServerName),
			Color:       colorBlue,
		})
	case statusWentOffline:
		b.m.status_transitions_total.offline.Inc()
		b.Log.Info().Msg("server went offline")
		b.sendEmbed(chat.Embed{
			Description: fmt.Sprintf(":octagonal_sign: **%s** is restarting...", b.ServerName),
			Color:       colorOrange,
		})
	}

	if stats != nil {
		b.processEvents(stats.Messages)
	}
}

// processEvents fans queued game events out to the channel.
func (b *Bridge) processEvents(events []Event) {
	for _, ev := range events {
		switch ev.Type {
		case "chat":
			b.m.messages_relayed_total.to_chat.Inc()
			b.post(chat.WebhookPayload{
				Content:   ev.Message,
				Username:  ev.Player,
				AvatarURL: avatarURL(ev.UUID, avatarSizeChat),
			})
		case "join":
			b.sendEmbed(chat.Embed{
				Description:  fmt.Sprintf(":green_circle: **%s** logged in", ev.Player),
				Color:        colorGreen,
				ThumbnailURL: avatarURL(ev.UUID, avatarSizeEmbed),
			})
		case "leave":
			b.sendEmbed(chat.Embed{
				Description:  fmt.Sprintf(":red_circle: **%s** logged out", ev.Player),
				Color:        colorRed,
				ThumbnailURL: avatarURL(ev.UUID, avatarSizeEmbed),
			})
		}
	}
}

// topicLoop keeps the channel topic in sync with the last stats snapshot,
// skipping edits when nothing changed to stay clear of the topic rate limit.
func (b *Bridge) topicLoop(ctx context.Context) error {
	t := time.NewTicker(b.TopicInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		b.updateTopic()
	}
}

func (b *Bridge) updateTopic() {
	b.mu.Lock()
	stats, last := b.lastStats, b.lastTopic
	b.mu.Unlock()
	if stats == nil {
		return
	}

	topic := stats.Topic()
	if topic == last {
		return
	}

	ch, err := b.Chat.Channel(b.ChannelID)
	if err != nil {
		b.Log.Warn().Err(err).Msg("could not resolve channel for topic update")
		return
	}
	if err := ch.EditTopic(topic); err != nil {
		switch {
		case errors.Is(err, chat.ErrRateLimited):
			b.Log.Warn().Msg("rate limited when updating channel topic")
		case errors.Is(err, chat.ErrForbidden):
			b.Log.Error().Msg("missing permission to edit channel topic")
		default:
			b.Log.Err(err).Msg("failed to update channel topic")
		}
		return
	}

	b.m.topic_updates_total.Inc()
	b.mu.Lock()
	b.lastTopic = topic
	b.mu.Unlock()
	b.Log.Info().Str("topic", topic).Msg("updated channel topic")
}

// handleMessage relays an inbound channel message into game chat.
func (b *Bridge) handleMessage(m chat.Message) {
	if m.AuthorBot || m.ChannelID != b.ChannelID {
		return
	}

	content := m.Content
	if content == "" {
		switch {
		case m.HasAttachments:
			content = "[attachment]"
		case m.HasStickers:
			content = "[sticker]"
		default:
			return
		}
	}

	content = sanitizeMessage(content, b.MaxMessageLength)
	if content == "" {
		return
	}
	username := sanitizeUsername(m.Author)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	command := fmt.Sprintf(`discordmsg "%s" %s`, username, content)
	if _, err := b.Rcon.Exec(ctx, command); err != nil {
		b.Log.Warn().Err(err).Str("username", username).Msg("failed to relay message")
		if m.Reply != nil {
			if err := m.Reply(chat.Embed{
				Description: fmt.Sprintf("**Message was not delivered**\n> %s", m.Content),
				Color:       colorRed,
			}); err != nil {
				b.Log.Debug().Err(err).Msg("failed to send delivery failure reply")
			}
		}
		return
	}
	b.m.messages_relayed_total.to_game.Inc()
	b.Log.Info().Str("username", username).Msg("relayed message to game")
}
