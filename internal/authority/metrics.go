package authority

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeBootstrap = "bootstrap"
	outcomeMatch     = "match"
	outcomeNoMatch   = "no_match"
)

// Metrics exposes Prometheus collectors for credential checks and rights
// migrations. A nil *Metrics records nothing.
type Metrics struct {
	authorizations *prometheus.CounterVec
	logons         *prometheus.CounterVec
	migrations     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors against registerer, or against the
// default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_authorization_checks_total",
			Help: "Credential digest checks by outcome.",
		}, []string{"outcome"}),
		logons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_logons_total",
			Help: "Username and password logons by result.",
		}, []string{"result"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_rights_migrated_records_total",
			Help: "Administrator records visited by rights migrations.",
		}, []string{"result"}),
	}
	registerer.MustRegister(m.authorizations, m.logons, m.migrations)
	return m
}

func (m *Metrics) authorization(outcome string) {
	if m == nil {
		return
	}
	m.authorizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) logon(ok bool) {
	if m == nil {
		return
	}
	m.logons.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) migrated(ok bool) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
