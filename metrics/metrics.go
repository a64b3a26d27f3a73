// Package metrics bundles the Prometheus metrics exported by the tracker and serves them over HTTP.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
)

// Collector holds every metric the ingest and evaluator loops update.
type Collector struct {
	gatherer prometheus.Gatherer

	ReportsReceived prometheus.Counter
	ReportsRejected prometheus.Counter
	TrackedEntities prometheus.Gauge
	PairsEvaluated  prometheus.Counter
	AlertsPublished *prometheus.CounterVec
	EvalDuration    prometheus.Histogram
}

// NewCollector registers the tracker metrics against reg, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		ReportsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtracker_reports_received_total",
			Help: "Position reports decoded and stored.",
		}),
		ReportsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtracker_reports_rejected_total",
			Help: "Inbound messages that failed to decode as a position report.",
		}),
		TrackedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dtracker_tracked_entities",
			Help: "Entities in the state table after the last evaluation.",
		}),
		PairsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtracker_pairs_evaluated_total",
			Help: "Entity pairs whose distance has been evaluated.",
		}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dtracker_alerts_published_total",
			Help: "Distance alerts published, labeled by kind.",
		}, []string{"kind"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dtracker_evaluation_duration_seconds",
			Help:    "Time taken by one evaluation tick, including publishing.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	for _, m := range []prometheus.Collector{
		c.ReportsReceived, c.ReportsRejected, c.TrackedEntities, c.PairsEvaluated, c.AlertsPublished, c.EvalDuration,
	} {
		if err := reg.Register(m); err != nil {
			return nil, errors.Wrap(err, "could not register metric")
		}
	}
	return c, nil
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Config is the optional "metrics" configuration block.
type Config struct {
	Listen string `json:"listen"`
}

// Serve starts the metrics HTTP endpoint if the configuration names a listen address. The returned channel receives
// the server error if it ever stops; it's nil when serving is disabled.
func (c *Collector) Serve(config json.RawMessage, ll logrus.Level) (chan error, error) {
	log := logger.New("metrics", ll)

	var conf Config
	if len(config) > 0 {
		if err := json.Unmarshal(config, &conf); err != nil {
			return nil, errors.Wrap(err, "could not parse metrics configuration")
		}
	}
	if conf.Listen == "" {
		log.Debug("metrics endpoint disabled")
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	result := make(chan error, 1)
	go func() {
		log.WithField("address", conf.Listen).Info("serving metrics")
		result <- errors.Wrap(srv.ListenAndServe(), "metrics endpoint stopped")
	}()
	return result, nil
}
