package votegw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vulpinegames/kubebridge/db/rewardsdb"
	"github.com/vulpinegames/kubebridge/pkg/rcon"
	"github.com/vulpinegames/kubebridge/pkg/rewards"
	"github.com/vulpinegames/kubebridge/pkg/votifier"
)

const (
	claimPollInterval = time.Second
	joinPollInterval  = 5 * time.Second
	acceptTimeout     = time.Second
	connTimeout       = 5 * time.Second
)

// Execer is the part of the RCON client the gateway uses.
type Execer interface {
	Exec(ctx context.Context, command string) (string, error)
}

// Server is the vote gateway.
type Server struct {
	Log      zerolog.Logger
	Addr     string
	Protocol *votifier.Protocol
	Rcon     Execer
	Store    rewards.Store
	Dedup    *Dedup

	m gwMetrics

	// players already told about their pending rewards this session; cleared
	// when they leave so rewards earned while offline notify again
	notifyMu sync.Mutex
	notified map[string]struct{}

	// last observed online set, owned by the join poller
	online map[string]struct{}
}

// NewServer configures a new gateway using c, which is assumed to be
// initialized to default or configured values (as done by UnmarshalEnv).
func NewServer(c *Config, log zerolog.Logger) (*Server, error) {
	proto, err := votifier.New(c.KeysPath)
	if err != nil {
		return nil, fmt.Errorf("initialize votifier keys: %w", err)
	}

	store, err := configurePendingStorage(c, log.With().Str("component", "rewards").Logger())
	if err != nil {
		return nil, fmt.Errorf("initialize pending storage: %w", err)
	}

	s := &Server{
		Log:      log,
		Addr:     net.JoinHostPort(c.VotifierHost, fmt.Sprint(c.VotifierPort)),
		Protocol: proto,
		Rcon:     rcon.NewClient(c.RconHost, c.RconPort, c.RconPassword, log.With().Str("component", "rcon").Logger()),
		Store:    store,
		Dedup:    NewDedup(),
		notified: map[string]struct{}{},
		online:   map[string]struct{}{},
	}
	s.initMetrics()
	return s, nil
}

func configurePendingStorage(c *Config, log zerolog.Logger) (rewards.Store, error) {
	switch typ, arg, _ := strings.Cut(c.PendingStorage, ":"); typ {
	case "json":
		if arg == "" {
			return nil, fmt.Errorf("json: missing path")
		}
		return rewards.OpenJSONFile(arg, log)
	case "sqlite3":
		if arg == "" {
			return nil, fmt.Errorf("sqlite3: missing path")
		}
		db, err := rewardsdb.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("sqlite3: %w", err)
		}
		if cur, to, err := db.Version(); err != nil {
			return nil, fmt.Errorf("sqlite3: migrate: %w", err)
		} else if cur > to {
			return nil, fmt.Errorf("sqlite3: migrate: database version %d is too new", cur)
		} else if cur != to {
			if err := db.MigrateUp(context.Background(), to); err != nil {
				return nil, fmt.Errorf("sqlite3: migrate (%d to %d): %w", cur, to, err)
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// Run runs the gateway, shutting it down gracefully when ctx is canceled. It
// must only ever be called once.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}

	s.Log.Info().Str("addr", s.Addr).Msg("votifier server listening")
	if pub, err := s.Protocol.PublicKeyPEM(); err == nil {
		s.Log.Info().Msg("public key for voting sites:\n" + pub)
	}

	// so operators see auth problems immediately rather than on first vote
	if _, err := s.Rcon.Exec(ctx, "list"); err != nil {
		s.Log.Warn().Err(err).Msg("rcon connection failed, votes may not be processed")
	} else {
		s.Log.Info().Msg("rcon connection verified")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx, ln.(*net.TCPListener)) })
	g.Go(func() error { return s.claimLoop(ctx) })
	g.Go(func() error { return s.joinLoop(ctx) })

	err = g.Wait()
	ln.Close()
	if c, ok := s.Rcon.(io.Closer); ok {
		c.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
	s.Log.Info().Msg("votifier server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// acceptLoop accepts connections with a short deadline so shutdown stays
// responsive, spawning a handler goroutine per connection.
func (s *Server) acceptLoop(ctx context.Context, ln *net.TCPListener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ln.SetDeadline(time.Now().Add(acceptTimeout))
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Err(err).Msg("accept failed")
			continue
		}
		s.m.connections_total.Inc()
		s.Log.Info().Str("remote", conn.RemoteAddr().String()).Msg("connection from voting site")

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs the Votifier exchange on a single connection: greeting
// out, one 256-byte block in, then close. No response is sent to the client.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	l := s.Log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	if _, err := conn.Write(s.Protocol.Greeting()); err != nil {
		l.Warn().Err(err).Msg("failed to send greeting")
		return
	}

	block := make([]byte, votifier.BlockSize)
	if _, err := io.ReadFull(conn, block); err != nil {
		l.Warn().Err(err).Msg("failed to receive vote block")
		return
	}

	vote, err := s.Protocol.Process(block)
	if err != nil {
		s.m.votes_total.bad_block.Inc()
		l.Err(err).Msg("failed to process vote block")
		return
	}
	l.Info().Stringer("vote", vote).Msg("received vote")

	if s.Dedup.IsDuplicate(vote.User, vote.Service) {
		s.m.votes_total.duplicate.Inc()
		l.Info().Str("username", vote.User).Str("service", vote.Service).Msg("duplicate vote rejected")
		return
	}
	s.Dedup.MarkProcessed(vote.User, vote.Service)

	s.deliverVote(ctx, l, vote)
}

// deliverVote hands the vote to the game, queueing a pending reward when the
// player is offline or the game is unreachable.
func (s *Server) deliverVote(ctx context.Context, l zerolog.Logger, vote votifier.Vote) {
	command := fmt.Sprintf("kubevote process %s %s", vote.User, sanitizeService(vote.Service))

	resp, err := s.Rcon.Exec(ctx, command)
	if err != nil {
		s.m.votes_total.rcon_error.Inc()
		l.Err(err).Str("username", vote.User).Msg("failed to process vote via rcon, saving pending reward")
		s.addPending(vote.User, vote.Service)
		return
	}
	l.Debug().Str("response", resp).Msg("rcon response")

	if lower := strings.ToLower(resp); strings.Contains(lower, "not found") || strings.Contains(lower, "no player") {
		s.m.votes_total.offline.Inc()
		l.Info().Str("username", vote.User).Msg("player is offline, saving pending reward")
		s.addPending(vote.User, vote.Service)
		return
	}
	s.m.votes_total.ok.Inc()
}

func (s *Server) addPending(username, service string) {
	if err := s.Store.Add(username, service); err != nil {
		s.Log.Err(err).Str("username", username).Msg("failed to save pending reward")
	}
}

// sanitizeService makes a service name usable as a single command argument.
func sanitizeService(service string) string {
	return strings.ReplaceAll(service, " ", "_")
}
