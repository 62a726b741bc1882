package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "workspace_team"

// Metrics holds the team subsystem collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	invitations *prometheus.CounterVec
	acceptances *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Team operations by name and outcome (ok or the error kind).",
		}, []string{"operation", "outcome"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_created_total",
			Help:      "Invitations created, by kind (addressed or link).",
		}, []string{"kind"}),
		acceptances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitation_acceptances_total",
			Help:      "Invitation acceptance attempts by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.invitations, m.acceptances} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) InvitationCreated(addressed bool) {
	if m == nil {
		return
	}
	kind := "link"
	if addressed {
		kind = "addressed"
	}
	m.invitations.WithLabelValues(kind).Inc()
}

func (m *Metrics) AcceptanceAttempt(outcome string) {
	if m == nil {
		return
	}
	m.acceptances.WithLabelValues(outcome).Inc()
}
