// Package metrics exposes probe and selection counters in Prometheus format.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/938134/check-hosts/internal/model"
)

// Collector implements engine.Observer on a private registry.
type Collector struct {
	registry   *prometheus.Registry
	probes     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	selections *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkhosts",
			Name:      "probes_total",
			Help:      "Probe attempts by address family and result.",
		}, []string{"family", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkhosts",
			Name:      "probe_latency_seconds",
			Help:      "Latency of reachable probes.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"family"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkhosts",
			Name:      "probes_in_flight",
			Help:      "Probes currently running.",
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkhosts",
			Name:      "selections_total",
			Help:      "Selections by address family and whether a candidate was reachable.",
		}, []string{"family", "found"}),
	}
	c.registry.MustRegister(c.probes, c.latency, c.inFlight, c.selections)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ProbeStarted(model.Candidate) { c.inFlight.Inc() }

func (c *Collector) ProbeFinished(r model.ProbeResult) {
	c.inFlight.Dec()
	family := r.Candidate.Family().String()
	if !r.Reachable {
		c.probes.WithLabelValues(family, "unreachable").Inc()
		return
	}
	c.probes.WithLabelValues(family, "reachable").Inc()
	c.latency.WithLabelValues(family).Observe(r.Latency.Seconds())
}

func (c *Collector) Selected(f model.Family, o model.Outcome) {
	c.selections.WithLabelValues(f.String(), strconv.FormatBool(o.Found)).Inc()
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
