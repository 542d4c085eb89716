package bridge

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type brMetrics struct {
	set               *metrics.Set
	stats_polls_total struct {
		ok   *metrics.Counter
		fail *metrics.Counter
	}
	messages_relayed_total struct {
		to_game *metrics.Counter
		to_chat *metrics.Counter
	}
	topic_updates_total      *metrics.Counter
	status_transitions_total struct {
		online  *metrics.Counter
		offline *metrics.Counter
	}
}

func (b *Bridge) initMetrics() {
	b.m.set = metrics.NewSet()
	b.m.stats_polls_total.ok = b.m.set.NewCounter(`bridge_stats_polls_total{result="ok"}`)
	b.m.stats_polls_total.fail = b.m.set.NewCounter(`bridge_stats_polls_total{result="fail"}`)
	b.m.messages_relayed_total.to_game = b.m.set.NewCounter(`bridge_messages_relayed_total{direction="to_game"}`)
	b.m.messages_relayed_total.to_chat = b.m.set.NewCounter(`bridge_messages_relayed_total{direction="to_chat"}`)
	b.m.topic_updates_total = b.m.set.NewCounter(`bridge_topic_updates_total`)
	b.m.status_transitions_total.online = b.m.set.NewCounter(`bridge_status_transitions_total{to="online"}`)
	b.m.status_transitions_total.offline = b.m.set.NewCounter(`bridge_status_transitions_total{to="offline"}`)
}

// WritePrometheus writes bridge metrics in Prometheus text format to w.
func (b *Bridge) WritePrometheus(w io.Writer) {
	b.m.set.WritePrometheus(w)
}
