package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/event"
)

// Metrics observes domain events from the bus. Counting rides on the
// bus so the hot submit path never blocks on a metrics mutex.
type Metrics struct {
	sessionsCreated    prometheus.Counter
	sessionsEnded      prometheus.Counter
	activeSessions     prometheus.Gauge
	leaderboardUpdates prometheus.Counter
}

func RegisterMetrics(reg prometheus.Registerer, eb *event.Bus) *Metrics {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "egame_sessions_created_total",
			Help: "Number of game sessions created.",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "egame_sessions_ended_total",
			Help: "Number of game sessions terminated.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "egame_sessions_active",
			Help: "Number of currently active game sessions.",
		}),
		leaderboardUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "egame_leaderboard_updates_total",
			Help: "Number of leaderboard recomputations broadcast.",
		}),
	}

	reg.MustRegister(m.sessionsCreated, m.sessionsEnded, m.activeSessions, m.leaderboardUpdates)

	eb.Subscribe(domain.EventNameSessionCreated, func(context.Context, event.Event) error {
		m.sessionsCreated.Inc()
		m.activeSessions.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionEnded, func(context.Context, event.Event) error {
		m.sessionsEnded.Inc()
		m.activeSessions.Dec()
		return nil
	})

	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(context.Context, event.Event) error {
		m.leaderboardUpdates.Inc()
		return nil
	})

	return m
}
