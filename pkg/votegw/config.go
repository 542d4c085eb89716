// Package votegw runs the Votifier vote gateway: a TCP server terminating
// the public voting protocol, delivering votes to the game over RCON, and
// reconciling rewards for players who could not be credited.
package votegw

import (
	"fmt"

	"github.com/vulpinegames/kubebridge/pkg/envcfg"
)

// Config contains the configuration for the vote gateway. The env struct tag
// contains the environment variable name and the default value if missing.
type Config struct {
	// The game server RCON endpoint.
	RconHost     string `env:"RCON_HOST=localhost"`
	RconPort     int    `env:"RCON_PORT=25575"`
	RconPassword string `env:"RCON_PASSWORD"`

	// The address to listen on for voting sites.
	VotifierHost string `env:"VOTIFIER_HOST=0.0.0.0"`
	VotifierPort int    `env:"VOTIFIER_PORT=8192"`

	// The directory holding private.pem/public.pem. Generated on first run.
	KeysPath string `env:"KEYS_PATH=keys"`

	// The pending-reward storage:
	//  - json:/path/to/pending_rewards.json
	//  - sqlite3:/path/to/rewards.db
	PendingStorage string `env:"PENDING_STORAGE=json:data/pending_rewards.json"`

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
	return nil
}
