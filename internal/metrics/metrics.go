// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderFetches counts prefetch cycles per venue and outcome.
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routingd",
		Name:      "provider_fetches_total",
		Help:      "Provider fetch cycles by venue and result.",
	}, []string{"venue", "result"})

	// QuoteRequests counts /quote/v2 requests by outcome.
	QuoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routingd",
		Name:      "quote_requests_total",
		Help:      "Quote requests by result (ok, empty, invalid).",
	}, []string{"result"})

	// RoutesConsidered observes how many cached quotes each route
	// search examined.
	RoutesConsidered = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "routingd",
		Name:      "route_quotes_considered",
		Help:      "Cached quotes considered per route search.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ExecutionTransitions counts execution state transitions.
	ExecutionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routingd",
		Name:      "execution_transitions_total",
		Help:      "Execution record state transitions.",
	}, []string{"status"})

	// DepositsConfirmed counts webhook-confirmed deposits.
	DepositsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "routingd",
		Name:      "deposits_confirmed_total",
		Help:      "Deposits confirmed through the webhook.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
