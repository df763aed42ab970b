package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the render and excerpt caches.
type Metrics struct {
	conversions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	pages       prometheus.Counter
}

// NewMetrics registers the render collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_conversions_total",
				Help: "Document conversions by kind (pages, excerpt) and status.",
			},
			[]string{"kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "render_conversion_duration_seconds",
				Help:    "Time spent converting a document.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "render_pages_written_total",
			Help: "Page images written to the render cache.",
		}),
	}
	for _, c := range []prometheus.Collector{m.conversions, m.duration, m.pages} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.conversions.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) pagesWritten(n int) {
	if m != nil {
		m.pages.Add(float64(n))
	}
}
