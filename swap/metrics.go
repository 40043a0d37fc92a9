package swap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	swapsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subswapd_swaps_created_total",
		Help: "Number of swaps created.",
	})

	swapsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subswapd_swaps_settled_total",
		Help: "Number of swaps settled, on-chain or manually.",
	})

	swapsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subswapd_swaps_canceled_total",
		Help: "Number of swaps canceled after a failed funding " +
			"broadcast.",
	})
)
