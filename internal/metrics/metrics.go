package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dirwatch"

type Registry struct {
	registry *prometheus.Registry

	activeWatches   prometheus.Gauge
	watchesCreated  prometheus.Counter
	watchesReleased prometheus.Counter
	releaseFailures prometheus.Counter
	watchErrors     prometheus.Counter
	dirEvents       *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec

	batchReads *prometheus.CounterVec
}

var Default = NewRegistry()

// NewRegistry builds a registry with its own prometheus.Registry so tests
// and embedded servers never share collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		activeWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watches_active",
			Help:      "Directories currently watched",
		}),
		watchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watches_created_total",
			Help:      "Underlying directory watchers created",
		}),
		watchesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watches_released_total",
			Help:      "Underlying directory watchers released",
		}),
		releaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_release_failures_total",
			Help:      "Watcher releases that returned an error",
		}),
		watchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_errors_total",
			Help:      "Errors reported by underlying watchers",
		}),
		dirEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dir_events_total",
			Help:      "Normalized directory events by kind",
		}, []string{"kind"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published on an event bus",
		}, []string{"bus", "type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_dropped_total",
			Help:      "Events dropped for slow or closed subscribers",
		}, []string{"bus", "type"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_subscribers",
			Help:      "Current event bus subscribers",
		}, []string{"bus", "filtered"}),
		batchReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_reads_total",
			Help:      "Directory reads by outcome",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(
		r.activeWatches,
		r.watchesCreated,
		r.watchesReleased,
		r.releaseFailures,
		r.watchErrors,
		r.dirEvents,
		r.eventsPublished,
		r.eventsDropped,
		r.subscribers,
		r.batchReads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) SetActiveWatches(count int) {
	if r == nil {
		return
	}
	r.activeWatches.Set(float64(count))
}

func (r *Registry) IncWatchCreated() {
	if r == nil {
		return
	}
	r.watchesCreated.Inc()
}

func (r *Registry) IncWatchReleased(err error) {
	if r == nil {
		return
	}
	r.watchesReleased.Inc()
	if err != nil {
		r.releaseFailures.Inc()
	}
}

func (r *Registry) IncWatchError() {
	if r == nil {
		return
	}
	r.watchErrors.Inc()
}

func (r *Registry) IncDirEvent(kind string) {
	if r == nil {
		return
	}
	r.dirEvents.WithLabelValues(labelOrUnknown(kind)).Inc()
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventsPublished.WithLabelValues(labelOrUnknown(bus), labelOrUnknown(eventType)).Inc()
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventsDropped.WithLabelValues(labelOrUnknown(bus), labelOrUnknown(eventType)).Inc()
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	bus = labelOrUnknown(bus)
	r.subscribers.WithLabelValues(bus, "true").Set(float64(filtered))
	r.subscribers.WithLabelValues(bus, "false").Set(float64(unfiltered))
}

func (r *Registry) RecordDirectoryReads(succeeded, failed int) {
	if r == nil {
		return
	}
	r.batchReads.WithLabelValues("ok").Add(float64(succeeded))
	r.batchReads.WithLabelValues("error").Add(float64(failed))
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}
