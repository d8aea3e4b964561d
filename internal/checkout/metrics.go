package checkout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftshop_checkout_items_total",
		Help: "Submitted order lines by outcome.",
	}, []string{"outcome"})

	reports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftshop_checkout_reports_total",
		Help: "Finished checkouts by report kind.",
	}, []string{"kind"})
)

func observe(r Report) {
	reports.WithLabelValues(string(r.Kind)).Inc()
	for _, res := range r.Results {
		itemOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	}
}
