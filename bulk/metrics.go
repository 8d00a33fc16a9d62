package bulk

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// Metrics exposes buffer activity to prometheus. Register it with a
// prometheus.Registerer; a nil *Metrics records nothing.
type Metrics struct {
	flushes   *prometheus.CounterVec
	documents *prometheus.CounterVec
	deletes   *prometheus.CounterVec
	buffered  prometheus.Gauge
	duration  prometheus.Histogram
}

// NewMetrics creates the buffer collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchsync",
			Subsystem: "bulk",
			Name:      "flushes_total",
			Help:      "Bulk flushes sent to the backend, by result.",
		}, []string{"result"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchsync",
			Subsystem: "bulk",
			Name:      "documents_total",
			Help:      "Documents leaving the buffer, by result.",
		}, []string{"result"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchsync",
			Subsystem: "bulk",
			Name:      "deletes_total",
			Help:      "Immediate deletes sent to the backend, by result.",
		}, []string{"result"}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "searchsync",
			Subsystem: "bulk",
			Name:      "buffered_documents",
			Help:      "Documents waiting for the next flush.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "searchsync",
			Subsystem: "bulk",
			Name:      "flush_duration_seconds",
			Help:      "Time spent in backend bulk upserts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.flushes.Describe(ch)
	m.documents.Describe(ch)
	m.deletes.Describe(ch)
	m.buffered.Describe(ch)
	m.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.flushes.Collect(ch)
	m.documents.Collect(ch)
	m.deletes.Collect(ch)
	m.buffered.Collect(ch)
	m.duration.Collect(ch)
}

func (m *Metrics) flushed(result string, docs int, seconds float64) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(result).Inc()
	switch result {
	case resultOK:
		m.documents.WithLabelValues("flushed").Add(float64(docs))
	case resultRejected:
		m.documents.WithLabelValues("dropped").Add(float64(docs))
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) deleted(result string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(result).Inc()
}

func (m *Metrics) setBuffered(n int) {
	if m == nil {
		return
	}
	m.buffered.Set(float64(n))
}
