package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_exchange",
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Ledger mutations by operation, kind and outcome.",
		},
		[]string{"op", "kind", "outcome"},
	)

	ledgerCoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_exchange",
			Subsystem: "ledger",
			Name:      "coins_total",
			Help:      "Coins moved by successful ledger mutations.",
		},
		[]string{"op", "kind"},
	)

	boostImpressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_exchange",
			Subsystem: "boost",
			Name:      "impressions_total",
			Help:      "Boosted impression allocation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_exchange",
			Subsystem: "settlement",
			Name:      "decisions_total",
			Help:      "Deposit settlement decisions by outcome.",
		},
		[]string{"outcome"},
	)

	pushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_exchange",
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push channel deliveries by result.",
		},
		[]string{"result"},
	)

	pushListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coin_exchange",
			Subsystem: "push",
			Name:      "listeners",
			Help:      "Currently registered push listeners.",
		},
	)
)

func init() {
	Registry.MustRegister(
		ledgerMutations,
		ledgerCoins,
		boostImpressions,
		settlements,
		pushDeliveries,
		pushListeners,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordLedger counts one ledger mutation. Coins are only added on success.
func RecordLedger(op, kind string, amount int64, err error) {
	if err != nil {
		ledgerMutations.WithLabelValues(op, kind, "error").Inc()
		return
	}
	ledgerMutations.WithLabelValues(op, kind, "ok").Inc()
	ledgerCoins.WithLabelValues(op, kind).Add(float64(amount))
}

// RecordImpression counts one allocation attempt ("allocated", "exhausted", "none").
func RecordImpression(outcome string) {
	boostImpressions.WithLabelValues(outcome).Inc()
}

// RecordSettlement counts one settlement decision ("approved", "rejected", "duplicate").
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
}

// RecordPush counts one push delivery attempt ("delivered", "dropped", "offline").
func RecordPush(result string) {
	pushDeliveries.WithLabelValues(result).Inc()
}

// SetListeners reports the number of registered push listeners.
func SetListeners(n int) {
	pushListeners.Set(float64(n))
}
