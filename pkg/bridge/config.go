// Package bridge runs the Discord bridge engine: a bidirectional relay
// between a Discord channel and the game server, with a status poller,
// topic updater, and presence summaries.
package bridge

import (
	"fmt"
	"time"

	"github.com/vulpinegames/kubebridge/pkg/envcfg"
)

// Config contains the configuration for the bridge. The env struct tag
// contains the environment variable name and the default value if missing.
type Config struct {
	// The game server RCON endpoint.
	RconHost     string `env:"RCON_HOST=localhost"`
	RconPort     int    `env:"RCON_PORT=25575"`
	RconPassword string `env:"RCON_PASSWORD"`

	// Discord bot token.
	DiscordToken string `env:"DISCORD_TOKEN"`

	// The channel to relay.
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	// If set, slash commands sync to this guild only (instant) instead of
	// globally (takes up to an hour).
	DiscordGuildID string `env:"DISCORD_GUILD_ID"`

	// Manual webhook URL. If empty, a channel webhook named "Minecraft
	// Bridge" is found or created.
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	// Display name used in notifications and presence.
	ServerName string `env:"SERVER_NAME=Minecraft Server"`

	// Poll intervals. Bare numbers are seconds.
	TopicUpdateInterval time.Duration `env:"TOPIC_UPDATE_INTERVAL=60"`
	StatsCheckInterval  time.Duration `env:"STATS_CHECK_INTERVAL=5"`

	// Longest message relayed into the game.
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH=256"`

	// Verbose logging.
	Debug bool `env:"DEBUG=false"`

	// Whether to use pretty console logs rather than JSON.
	LogPretty bool `env:"LOG_PRETTY=true"`

	// If set, serve /metrics and pprof on this address. Do not expose it.
	DebugServerAddr string `env:"DEBUG_SERVER_ADDR"`
}

// UnmarshalEnv unmarshals an array of environment variables into c.
func (c *Config) UnmarshalEnv(es []string) error {
	if err := envcfg.Unmarshal(c, es); err != nil {
		return err
	}
	if c.RconPassword == "" {
		return fmt.Errorf("RCON_PASSWORD must be set")
	}
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN must be set")
	}
	if c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID must be set")
	}
	return nil
}
