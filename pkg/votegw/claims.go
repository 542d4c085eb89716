package votegw

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// claimLoop polls the game for players who ran /vote claim. The game queues
// their names and hands the queue back as "CLAIMQUEUE: a, b, c".
func (s *Server) claimLoop(ctx context.Context) error {
	l := s.Log.With().Str("component", "claims").Logger()

	t := time.NewTicker(claimPollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		resp, err := s.Rcon.Exec(ctx, "kubevote claimqueue")
		if err != nil {
			l.Debug().Err(err).Msg("claim queue poll failed")
			continue
		}
		_, queue, ok := strings.Cut(resp, "CLAIMQUEUE:")
		if !ok {
			continue
		}
		for _, username := range strings.Split(queue, ",") {
			username = strings.TrimSpace(username)
			if username == "" {
				continue
			}
			l.Info().Str("username", username).Msg("processing claim request")
			s.claim(ctx, username)
		}
	}
}

// claim delivers a player's pending rewards. The claim command is issued
// even for a zero count so the game can tell the player there was nothing to
// claim.
func (s *Server) claim(ctx context.Context, username string) {
	l := s.Log.With().Str("component", "claims").Str("username", username).Logger()

	count, err := s.Store.PendingCount(username)
	if err != nil {
		l.Err(err).Msg("failed to count pending rewards")
		return
	}

	resp, err := s.Rcon.Exec(ctx, fmt.Sprintf("kubevote claim %s %d", username, count))
	if err != nil {
		l.Err(err).Msg("failed to claim pending rewards")
		return
	}
	if count == 0 {
		l.Debug().Msg("no pending rewards")
		return
	}
	l.Info().Int("count", count).Str("response", resp).Msg("claimed pending rewards")
	s.m.claims_total.Inc()

	if _, err := s.Store.ClaimAll(username); err != nil {
		l.Err(err).Msg("failed to mark rewards claimed")
		return
	}
	if err := s.Store.ClearClaimed(username); err != nil {
		l.Err(err).Msg("failed to clear claimed rewards")
	}

	s.notifyMu.Lock()
	delete(s.notified, strings.ToLower(username))
	s.notifyMu.Unlock()
}
