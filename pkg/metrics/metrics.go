// Package metrics exposes htraced's ambient Prometheus metrics: process
// health and the same write/drop counters pkg/metricssink tracks
// internally, mirrored here on every sink heartbeat so an operator's
// existing Prometheus scrape covers the daemon without bespoke tooling.
//
// This does not replace pkg/metricssink's access_totals() channel actor,
// which the REST server/stats endpoint still reads directly for a
// point-in-time snapshot; it gives the same numbers a second, pull-based
// home.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/ring"
)

// rateWindowSize is the number of heartbeat ticks IngestionRate smooths
// over, matching the teacher's rolling-window collector width.
const rateWindowSize = 10

// Metrics owns the process's Prometheus collectors. Register it with a
// prometheus.Registerer once at startup.
type Metrics struct {
	SpansWritten   *prometheus.CounterVec
	SpansDropped   *prometheus.CounterVec
	IngestedTotal  prometheus.Counter
	ShardQueueFull *prometheus.CounterVec
	QueryScanned   prometheus.Histogram
	IngestionRate  prometheus.Gauge

	rateWindow *ring.Buffer
}

// New constructs collectors, unregistered.
func New() *Metrics {
	return &Metrics{
		SpansWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "htraced",
			Name:      "spans_written_total",
			Help:      "Spans committed to a shard store, by origin address.",
		}, []string{"origin"}),
		SpansDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "htraced",
			Name:      "spans_dropped_total",
			Help:      "Spans dropped before or during commit, by origin address.",
		}, []string{"origin"}),
		IngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "htraced",
			Name:      "spans_ingested_total",
			Help:      "Spans accepted by the ingestor across all origins.",
		}),
		ShardQueueFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "htraced",
			Name:      "shard_queue_full_total",
			Help:      "Times a shard's write queue was full when a span arrived.",
		}, []string{"shard"}),
		QueryScanned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "htraced",
			Name:      "query_scanned_candidates",
			Help:      "Candidates scanned per shard to answer one query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		IngestionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "htraced",
			Name:      "ingestion_rate_spans_per_heartbeat",
			Help:      "Spans written per heartbeat tick, smoothed over the last ticks.",
		}),
		rateWindow: ring.New(rateWindowSize),
	}
}

// MustRegister registers every collector against reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.SpansWritten, m.SpansDropped, m.IngestedTotal, m.ShardQueueFull, m.QueryScanned, m.IngestionRate)
}

// ObserveHeartbeat replaces each origin's written/dropped counters with
// the sink's latest totals. Prometheus counters only go up, so this adds
// the delta since the last observed value rather than setting directly.
func (m *Metrics) ObserveHeartbeat(totals map[string]metricssink.Totals, prev map[string]metricssink.Totals) {
	var tickWritten int64
	for origin, t := range totals {
		p := prev[origin]
		if d := t.Written - p.Written; d > 0 {
			m.SpansWritten.WithLabelValues(origin).Add(float64(d))
			tickWritten += d
		}
		if d := t.Dropped - p.Dropped; d > 0 {
			m.SpansDropped.WithLabelValues(origin).Add(float64(d))
		}
	}
	m.rateWindow.Add(tickWritten)
	m.IngestionRate.Set(m.rateWindow.Average())
}
