// Package metrics exports training counters to Prometheus.
package metrics

import (
	"qmaze/reinforcement"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qmaze"

// Recorder accumulates the stats of every training call.
type Recorder struct {
	TrainingCalls prometheus.Counter
	Episodes      prometheus.Counter
	Steps         prometheus.Counter
	GoalsReached  prometheus.Counter
	Seed          prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		TrainingCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_calls_total",
			Help:      "Number of completed training calls.",
		}),
		Episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Episodes run across all training calls.",
		}),
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Agent steps taken across all training calls.",
		}),
		GoalsReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_reached_total",
			Help:      "Episodes that ended on the goal cell.",
		}),
		Seed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prng_seed",
			Help:      "Persisted PRNG seed after the last training call.",
		}),
	}
	reg.MustRegister(r.TrainingCalls, r.Episodes, r.Steps, r.GoalsReached, r.Seed)
	return r
}

// Observe records one training call.
func (r *Recorder) Observe(stats reinforcement.Stats, seed uint32) {
	r.TrainingCalls.Inc()
	r.Episodes.Add(float64(stats.Episodes))
	r.Steps.Add(float64(stats.Steps))
	r.GoalsReached.Add(float64(stats.GoalsReached))
	r.Seed.Set(float64(seed))
}
