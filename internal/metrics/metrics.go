// Package metrics exposes prometheus counters for the repository, cache and
// event adapters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/event"
	"github.com/goliatone/go-repository-ports/repository"
)

var (
	_ repository.Observer = (*Metrics)(nil)
	_ cache.Observer      = (*Metrics)(nil)
	_ event.Observer      = (*Metrics)(nil)
)

// Metrics holds the adapter counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FiltersSkipped  *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// New registers every counter on a fresh registry, so containers built in
// the same process do not collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FiltersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repository_filters_skipped_total",
			Help: "Filter conditions dropped by lenient List calls",
		}, []string{"entity", "reason"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events pushed by topic",
		}, []string{"topic"}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Events pulled by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// Registry returns the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FilterSkipped(entity, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.FiltersSkipped.WithLabelValues(entity, reason).Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) EventConsumed(topic, outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(topic, outcome).Inc()
}
