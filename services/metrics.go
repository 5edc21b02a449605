package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	feeds          *prometheus.CounterVec
	evolutions     prometheus.Counter
	megaEvolutions prometheus.Counter
	adoptions      prometheus.Counter
	releases       prometheus.Counter
	decayWrites    prometheus.Counter
	decayFailures  prometheus.Counter
	sessions       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "feeds_total", Help: "Successful feed actions by food kind.",
		}, []string{"food"}),
		evolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "evolutions_total", Help: "Evolutions fired by feeding.",
		}),
		megaEvolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "mega_evolutions_total", Help: "Mega evolutions fired by feeding.",
		}),
		adoptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "adoptions_total", Help: "Creatures adopted.",
		}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "releases_total", Help: "Creatures released.",
		}),
		decayWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "decay_writes_total", Help: "Decay updates written to the store.",
		}),
		decayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokecare", Name: "decay_write_failures_total", Help: "Decay updates the store rejected.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokecare", Name: "live_sessions", Help: "Engines currently held by the session registry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.feeds, m.evolutions, m.megaEvolutions, m.adoptions, m.releases,
			m.decayWrites, m.decayFailures, m.sessions)
	}
	return m
}

func (m *Metrics) fed(food FoodKind) {
	if m != nil {
		m.feeds.WithLabelValues(string(food)).Inc()
	}
}

func (m *Metrics) evolved() {
	if m != nil {
		m.evolutions.Inc()
	}
}

func (m *Metrics) megaEvolved() {
	if m != nil {
		m.megaEvolutions.Inc()
	}
}

func (m *Metrics) adopted() {
	if m != nil {
		m.adoptions.Inc()
	}
}

func (m *Metrics) released() {
	if m != nil {
		m.releases.Inc()
	}
}

func (m *Metrics) decayWritten(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.decayWrites.Inc()
	} else {
		m.decayFailures.Inc()
	}
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}
