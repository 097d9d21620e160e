// Package metrics exports the progress of fixed-point computations to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/dflow/pkg/dbsp"
)

const namespace = "dflow"

var _ dbsp.Observer = &Metrics{}

// Metrics implements dbsp.Observer on top of Prometheus collectors.
type Metrics struct {
	rounds      *prometheus.CounterVec
	changes     *prometheus.CounterVec
	epochs      *prometheus.CounterVec
	convergence *prometheus.HistogramVec
}

// New creates the collectors and registers them. Collectors already registered by another
// instance are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of iteration rounds computed.",
		}, []string{"computation"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Number of records changed by iteration rounds.",
		}, []string{"computation"}),
		epochs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Number of epochs that reached a fixed point.",
		}, []string{"computation"}),
		convergence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rounds_to_convergence",
			Help:      "Round at which an epoch reached its fixed point.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"computation"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.rounds, err = register(reg, m.rounds)
	if err != nil {
		return nil, err
	}
	m.changes, err = register(reg, m.changes)
	if err != nil {
		return nil, err
	}
	m.epochs, err = register(reg, m.epochs)
	if err != nil {
		return nil, err
	}
	m.convergence, err = register(reg, m.convergence)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RoundCompleted implements dbsp.Observer.
func (m *Metrics) RoundCompleted(name string, _ dbsp.Time, changes int) {
	m.rounds.WithLabelValues(name).Inc()
	m.changes.WithLabelValues(name).Add(float64(changes))
}

// Converged implements dbsp.Observer.
func (m *Metrics) Converged(name string, t dbsp.Time) {
	m.epochs.WithLabelValues(name).Inc()
	m.convergence.WithLabelValues(name).Observe(float64(t.Round))
}
