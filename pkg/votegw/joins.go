package votegw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// joinLoop watches the online player list so players who earned rewards
// while offline are told about them when they log in.
func (s *Server) joinLoop(ctx context.Context) error {
	l := s.Log.With().Str("component", "joins").Logger()

	t := time.NewTicker(joinPollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		resp, err := s.Rcon.Exec(ctx, "list")
		if err != nil {
			l.Debug().Err(err).Msg("list poll failed")
			continue
		}
		s.trackOnline(ctx, l, parsePlayerList(resp))
	}
}

// trackOnline diffs the freshly observed player set against the previous
// one, notifying new joiners with pending rewards and forgetting leavers so
// they get notified again next login.
func (s *Server) trackOnline(ctx context.Context, l zerolog.Logger, current map[string]struct{}) {
	// an empty set right after a nonempty one is far more likely a garbled
	// response than a simultaneous quit of everyone online
	if len(current) == 0 && len(s.online) != 0 {
		return
	}

	for name := range current {
		if _, ok := s.online[name]; !ok {
			s.onJoin(ctx, l, name)
		}
	}
	s.notifyMu.Lock()
	for name := range s.online {
		if _, ok := current[name]; !ok {
			delete(s.notified, strings.ToLower(name))
		}
	}
	s.notifyMu.Unlock()

	s.online = current
}

func (s *Server) onJoin(ctx context.Context, l zerolog.Logger, name string) {
	key := strings.ToLower(name)

	s.notifyMu.Lock()
	_, already := s.notified[key]
	s.notifyMu.Unlock()
	if already {
		return
	}

	count, err := s.Store.PendingCount(name)
	if err != nil {
		l.Err(err).Str("username", name).Msg("failed to count pending rewards")
		return
	}
	if count == 0 {
		return
	}

	msg := fmt.Sprintf(`{"text":"You have %d pending vote reward(s)! ","color":"gold","extra":[{"text":"[Click to claim]","color":"green","bold":true,"clickEvent":{"action":"run_command","value":"/vote claim"}}]}`, count)
	if _, err := s.Rcon.Exec(ctx, fmt.Sprintf("tellraw %s %s", name, msg)); err != nil {
		l.Warn().Err(err).Str("username", name).Msg("failed to notify player of pending rewards")
		return
	}
	l.Info().Str("username", name).Int("count", count).Msg("notified player of pending rewards")

	s.notifyMu.Lock()
	s.notified[key] = struct{}{}
	s.notifyMu.Unlock()
}

// parsePlayerList extracts player names from the response to the list
// command, e.g. "There are 2 of a max of 20 players online: Steve, Alex".
// Rank tags like "[Admin]Steve" are stripped.
func parsePlayerList(resp string) map[string]struct{} {
	players := map[string]struct{}{}

	i := strings.LastIndex(resp, ":")
	if i < 0 {
		return players
	}
	for _, name := range strings.Split(resp[i+1:], ",") {
		name = strings.TrimSpace(name)
		if j := strings.LastIndex(name, "]"); j >= 0 {
			name = name[j+1:]
		}
		name = strings.TrimSpace(name)
		if name != "" {
			players[name] = struct{}{}
		}
	}
	return players
}
