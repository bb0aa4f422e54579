package override

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Transitions *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "override",
			Name:      "operations_total",
			Help:      "Override service operations by action and outcome.",
		}, []string{"action", "outcome"}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.Transitions)
}

func (m *Metrics) observe(action Action, err error) {
	m.Transitions.WithLabelValues(string(action), outcome(err)).Inc()
}

func outcome(err error) string {
	var (
		ve *ValidationError
		te *TransitionError
		pe *PermissionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &te):
		return "conflict"
	case errors.As(err, &pe):
		return "denied"
	default:
		return "error"
	}
}
