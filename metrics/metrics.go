package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of the query gateway and the export
// pipeline. A nil *Metrics records nothing.
type Metrics struct {
	QueryTotal         *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	QueryRowsRead      *prometheus.CounterVec
	QueryErrors        *prometheus.CounterVec
	ValidationWarnings *prometheus.CounterVec
	ExportBytes        *prometheus.CounterVec
	ExportErrors       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_query_total",
				Help: "Total number of executed statements",
			},
			[]string{"engine", "kind", "status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbharbor_query_duration_seconds",
				Help:    "Statement execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine", "kind"},
		),
		QueryRowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_query_rows_read_total",
				Help: "Total number of rows materialized from result sets",
			},
			[]string{"engine"},
		),
		QueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_query_errors_total",
				Help: "Total number of failed statements by error category",
			},
			[]string{"engine", "category"},
		),
		ValidationWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_validation_warnings_total",
				Help: "Total number of statement validation warnings",
			},
			[]string{"code"},
		),
		ExportBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_export_bytes_total",
				Help: "Total number of serialized export bytes",
			},
			[]string{"format"},
		),
		ExportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbharbor_export_errors_total",
				Help: "Total number of failed exports",
			},
			[]string{"format"},
		),
	}
}

func (m *Metrics) RecordQuery(engine, kind, status string, duration time.Duration, rowsRead int) {
	if m == nil {
		return
	}
	m.QueryTotal.WithLabelValues(engine, kind, status).Inc()
	m.QueryDuration.WithLabelValues(engine, kind).Observe(duration.Seconds())
	if status == "success" && rowsRead > 0 {
		m.QueryRowsRead.WithLabelValues(engine).Add(float64(rowsRead))
	}
}

func (m *Metrics) RecordQueryError(engine, category string) {
	if m == nil {
		return
	}
	m.QueryErrors.WithLabelValues(engine, category).Inc()
}

func (m *Metrics) RecordWarning(code string) {
	if m == nil {
		return
	}
	m.ValidationWarnings.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordExport(format string, size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ExportErrors.WithLabelValues(format).Inc()
		return
	}
	m.ExportBytes.WithLabelValues(format).Add(float64(size))
}
