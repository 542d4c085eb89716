package votegw

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type gwMetrics struct {
	set               *metrics.Set
	connections_total *metrics.Counter
	votes_total       struct {
		ok         *metrics.Counter
		duplicate  *metrics.Counter
		offline    *metrics.Counter
		bad_block  *metrics.Counter
		rcon_error *metrics.Counter
	}
	claims_total    *metrics.Counter
	pending_rewards *metrics.Gauge
}

func (s *Server) initMetrics() {
	s.m.set = metrics.NewSet()
	s.m.connections_total = s.m.set.NewCounter(`votifier_connections_total`)
	s.m.votes_total.ok = s.m.set.NewCounter(`votifier_votes_total{result="ok"}`)
	s.m.votes_total.duplicate = s.m.set.NewCounter(`votifier_votes_total{result="duplicate"}`)
	s.m.votes_total.offline = s.m.set.NewCounter(`votifier_votes_total{result="offline"}`)
	s.m.votes_total.bad_block = s.m.set.NewCounter(`votifier_votes_total{result="bad_block"}`)
	s.m.votes_total.rcon_error = s.m.set.NewCounter(`votifier_votes_total{result="rcon_error"}`)
	s.m.claims_total = s.m.set.NewCounter(`votifier_claims_total`)
	s.m.pending_rewards = s.m.set.NewGauge(`votifier_pending_rewards`, func() float64 {
		if s.Store == nil {
			return 0
		}
		names, err := s.Store.AllPlayersWithPending()
		if err != nil {
			return 0
		}
		var n int
		for _, name := range names {
			c, err := s.Store.PendingCount(name)
			if err != nil {
				continue
			}
			n += c
		}
		return float64(n)
	})
}

// WritePrometheus writes gateway metrics in Prometheus text format to w.
func (s *Server) WritePrometheus(w io.Writer) {
	s.m.set.WritePrometheus(w)
}
