package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RefreshTotal counts catalog+rate refresh outcomes.
	RefreshTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempt outcomes by rejection reason.
	CheckoutTotal *prometheus.CounterVec
	// SnapshotWriteTotal counts session snapshot persistence outcomes.
	SnapshotWriteTotal *prometheus.CounterVec
	// CartLines tracks the current number of cart lines.
	CartLines prometheus.Gauge
	// PayloadBytes records the size of generated payment payloads.
	PayloadBytes prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers the cashier domain
// collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Count of catalog and rate refresh outcomes.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		SnapshotWriteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_write_total",
			Help:      "Count of session snapshot write outcomes.",
		}, []string{"result"})
		CartLines = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_lines",
			Help:      "Current number of distinct cart lines.",
		})
		PayloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_payload_bytes",
			Help:      "Size distribution of generated payment payloads.",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096},
		})
		reg.MustRegister(RefreshTotal, CheckoutTotal, SnapshotWriteTotal, CartLines, PayloadBytes)
	})
}
