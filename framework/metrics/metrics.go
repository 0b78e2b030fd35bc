package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/km-arc/go-singleton/framework/singleton"
)

// Metrics provides observability for singleton arenas and registries.
// Tracks slot transitions, creations, failures and the registry size.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	Created         *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	RegistryEntries prometheus.Gauge
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_transitions_total",
			Help: "Slot state transitions by property and new value",
		}, []string{"property", "value"}),
		Created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_created_total",
			Help: "Instances adopted by a slot, by construction path",
		}, []string{"path"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_failures_total",
			Help: "Guard and registry failures by cause",
		}, []string{"cause"}),
		RegistryEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "singleton_registry_entries",
			Help: "Keys currently present in the registry, including cleared ones",
		}),
	}
}

// Observe subscribes m to every event of a and returns the subscription so
// the caller can detach with a.Unobserve.
func (m *Metrics) Observe(a *singleton.Arena) singleton.Subscription {
	return a.Observe(m.record)
}

func (m *Metrics) record(ev singleton.Event) {
	switch ev.Property {
	case singleton.PropertyCurrentInstance:
		m.Created.WithLabelValues("constructor").Inc()
	case singleton.PropertyInstance:
		m.Created.WithLabelValues("accessor").Inc()
	case singleton.PropertyInitialized, singleton.PropertyDisposed, singleton.PropertyBlocked:
		v := "false"
		if b, _ := ev.Value.(bool); b {
			v = "true"
		}
		m.Transitions.WithLabelValues(ev.Property.String(), v).Inc()
	}
}

// RecordFailure counts err under its cause. Nil errors are ignored.
func (m *Metrics) RecordFailure(err error) {
	if err == nil {
		return
	}
	m.Failures.WithLabelValues(singleton.CauseOf(err).String()).Inc()
}

// SetRegistryEntries records the registry size.
func (m *Metrics) SetRegistryEntries(n int) {
	m.RegistryEntries.Set(float64(n))
}
