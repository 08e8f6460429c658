// Package metrics is the observability sink for slot state. Samples are
// fire-and-forget: a metrics failure must never block or fail a switch
// transaction, so the sink surface has no error returns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Sink accepts (team, slot, active, healthy) samples.
type Sink interface {
	Record(team string, slot models.Slot, active, healthy bool)
}

// PrometheusSink exposes slot state as gauges on /metrics.
type PrometheusSink struct {
	registry *prometheus.Registry
	active   *prometheus.GaugeVec
	healthy  *prometheus.GaugeVec
}

func NewPrometheusSink() *PrometheusSink {
	registry := prometheus.NewRegistry()

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jenkins_team_slot_active",
		Help: "1 when the slot is the team's active environment.",
	}, []string{"team", "slot"})

	healthy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jenkins_team_slot_healthy",
		Help: "1 when the slot's last health verdict was positive.",
	}, []string{"team", "slot"})

	registry.MustRegister(active, healthy)

	return &PrometheusSink{
		registry: registry,
		active:   active,
		healthy:  healthy,
	}
}

func (s *PrometheusSink) Record(team string, slot models.Slot, active, healthy bool) {
	s.active.WithLabelValues(team, string(slot)).Set(boolGauge(active))
	s.healthy.WithLabelValues(team, string(slot)).Set(boolGauge(healthy))
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NopSink discards every sample.
type NopSink struct{}

func (NopSink) Record(string, models.Slot, bool, bool) {}
