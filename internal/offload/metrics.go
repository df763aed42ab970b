package offload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK        = "ok"
	statusError     = "error"
	statusCancelled = "cancelled"
)

// Metrics holds the prometheus collectors of a Pool.
type Metrics struct {
	submittedTotal *prometheus.CounterVec
	finishedTotal  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	inflight       prometheus.Gauge
}

// NewMetrics registers the pool collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offload_jobs_submitted_total",
				Help: "Jobs admitted to the offload pool.",
			},
			[]string{"job"},
		),
		finishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offload_jobs_finished_total",
				Help: "Jobs finished by the offload pool, by status.",
			},
			[]string{"job", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "offload_job_duration_seconds",
				Help:    "Running time of offloaded jobs.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"job"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "offload_jobs_inflight",
			Help: "Jobs currently running on a worker.",
		}),
	}
	for _, c := range []prometheus.Collector{m.submittedTotal, m.finishedTotal, m.duration, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) submitted(name string) {
	if m != nil {
		m.submittedTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) finished(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.finishedTotal.WithLabelValues(name, status).Inc()
	if status != statusCancelled {
		m.inflight.Dec()
		m.duration.WithLabelValues(name).Observe(d.Seconds())
	}
}
