package hbl

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsNodesExpanded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "histboost_nodes_expanded_total",
		Help: "Number of tree nodes converted from frontier to internal nodes.",
	})

	metricsHistogramsBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "histboost_histograms_built_total",
		Help: "Number of node histograms produced, by construction path.",
	}, []string{"path"})

	metricsAccelFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "histboost_accel_fallbacks_total",
		Help: "Number of times an accelerated histogram builder was abandoned for the CPU path.",
	})
)

func init() {
	prometheus.MustRegister(metricsNodesExpanded, metricsHistogramsBuilt, metricsAccelFallbacks)
}
