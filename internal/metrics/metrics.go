package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"agrocert/certification-backend/internal/certification"
)

const namespace = "agrocert"

// Metrics records issuance transitions and verification outcomes
type Metrics struct {
	transitions   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuance",
			Name:      "transitions_total",
			Help:      "Issuance state transitions by target state.",
		}, []string{"to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuance",
			Name:      "failures_total",
			Help:      "Failed issuances by stage and error kind.",
		}, []string{"stage", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "issuance",
			Name:      "duration_seconds",
			Help:      "Time from start to a terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "requests_total",
			Help:      "Verification lookups by result.",
		}, []string{"result"}),
	}

	var err error
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.verifications, err = register(reg, m.verifications); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// OnEvent implements certification.Observer
func (m *Metrics) OnEvent(e certification.Event) {
	m.transitions.WithLabelValues(string(e.To)).Inc()
	switch e.To {
	case certification.StateDone:
		m.duration.WithLabelValues("done").Observe(e.Elapsed)
	case certification.StateFailed:
		kind := string(e.ErrorKind)
		if kind == "" {
			kind = "unknown"
		}
		m.failures.WithLabelValues(string(e.Stage), kind).Inc()
		m.duration.WithLabelValues("failed").Observe(e.Elapsed)
	}
}

// ObserveVerification counts one verification lookup
func (m *Metrics) ObserveVerification(err error) {
	result := "verified"
	if err != nil {
		result = string(certification.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	m.verifications.WithLabelValues(result).Inc()
}
