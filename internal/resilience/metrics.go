package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce  sync.Once
	breakerState *prometheus.GaugeVec
	fetchTotal   *prometheus.CounterVec
)

// MustRegisterMetrics installs the resilience collectors on the registry.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open).",
		}, []string{"upstream"})
		fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_total",
			Help:      "Count of upstream fetch attempts by outcome.",
		}, []string{"upstream", "result"})
		reg.MustRegister(breakerState, fetchTotal)
	})
}

func observeBreakerState(upstream string, state State) {
	if breakerState == nil || upstream == "" {
		return
	}
	breakerState.WithLabelValues(upstream).Set(float64(state))
}

func observeFetch(upstream, result string) {
	if fetchTotal == nil || upstream == "" {
		return
	}
	fetchTotal.WithLabelValues(upstream, result).Inc()
}
