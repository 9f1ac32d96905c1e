package deltacheckpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the iterator's Prometheus instrumentation. Wrap reg
// with prometheus.WrapRegistererWith to scope the metrics to a table
// or scan before passing it in.
type Metrics struct {
	rowsRead       prometheus.Counter
	entriesEmitted *prometheus.CounterVec
	rowsPruned     prometheus.Counter
	schemaErrors   prometheus.Counter
	pageSize       prometheus.Histogram
}

// NewMetrics registers the checkpoint iterator's metrics against reg.
// A nil reg registers against a throwaway registry, for callers that
// do not collect metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		rowsRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "delta_checkpoint_rows_read",
			Help: "Number of checkpoint rows the iterator has advanced past.",
		}),
		entriesEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "delta_checkpoint_entries_emitted",
			Help: "Number of log entries emitted, by action kind.",
		}, []string{"kind"}),
		rowsPruned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "delta_checkpoint_add_rows_pruned",
			Help: "Number of add rows dropped by the partition constraint after Parquet-level pruning.",
		}),
		schemaErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "delta_checkpoint_schema_errors",
			Help: "Number of schema violations encountered while scanning.",
		}),
		pageSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "delta_checkpoint_page_positions",
			Help:    "Number of row positions per page fetched from the page source.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

func (m *Metrics) observeEntry(kind ActionKind) {
	if m == nil {
		return
	}
	m.entriesEmitted.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeRows(n int) {
	if m == nil {
		return
	}
	m.rowsRead.Add(float64(n))
}

func (m *Metrics) observePruned() {
	if m == nil {
		return
	}
	m.rowsPruned.Inc()
}

func (m *Metrics) observeSchemaError() {
	if m == nil {
		return
	}
	m.schemaErrors.Inc()
}

func (m *Metrics) observePage(positions int) {
	if m == nil {
		return
	}
	m.pageSize.Observe(float64(positions))
}
