package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine counts the settlement operations the engine performs. Transfer
// failures after commit are counted separately because they are never rolled
// back and need operator attention.
type Engine struct {
	DealsCreated       prometheus.Counter
	MilestonesReleased prometheus.Counter
	DisputesRaised     prometheus.Counter
	DisputesResolved   prometheus.Counter
	ArbitersRegistered prometheus.Counter
	ArbitersSlashed    prometheus.Counter
	TransferFailures   prometheus.Counter
}

func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Engine{
		DealsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_deals_created_total",
			Help: "Deals created and funded.",
		}),
		MilestonesReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_milestones_released_total",
			Help: "Milestone payouts released.",
		}),
		DisputesRaised: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_disputes_raised_total",
			Help: "Disputes opened on deals.",
		}),
		DisputesResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_disputes_resolved_total",
			Help: "Disputes closed by an arbiter ruling.",
		}),
		ArbitersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_arbiters_registered_total",
			Help: "Arbiter stake registrations, including top-ups.",
		}),
		ArbitersSlashed: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_arbiters_slashed_total",
			Help: "Admin slashes applied to arbiter stakes.",
		}),
		TransferFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_transfer_failures_total",
			Help: "Post-commit payout transfers that failed.",
		}),
	}
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
