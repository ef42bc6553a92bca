// Package metrics tracks process-lifetime counters, exposed both as
// prometheus metrics and as snapshots for the periodic status report.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the system counters. Counters are volatile by design:
// restarting the process resets them.
type Metrics struct {
	registry *prometheus.Registry

	transactionsProcessed prometheus.Counter
	rankingsExecuted      prometheus.Counter
	notificationsSent     prometheus.Counter
	errors                prometheus.Counter
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TransactionsProcessed uint64 `json:"transactions_processed"`
	RankingsExecuted      uint64 `json:"rankings_executed"`
	NotificationsSent     uint64 `json:"notifications_sent"`
	Errors                uint64 `json:"errors"`
}

// New creates a Metrics backed by its own registry, so tests can construct
// multiple instances without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		transactionsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranksystem_transactions_processed_total",
			Help: "Catalog transactions fully processed.",
		}),
		rankingsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranksystem_rankings_executed_total",
			Help: "Successful rank assignments.",
		}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranksystem_notifications_sent_total",
			Help: "Webhook notifications delivered.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranksystem_errors_total",
			Help: "External-call and processing failures.",
		}),
	}
}

// Registry returns the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncTransactionsProcessed() { m.transactionsProcessed.Inc() }
func (m *Metrics) IncRankingsExecuted()      { m.rankingsExecuted.Inc() }
func (m *Metrics) IncNotificationsSent()     { m.notificationsSent.Inc() }
func (m *Metrics) IncErrors()                { m.errors.Inc() }

// Snapshot reads the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TransactionsProcessed: counterValue(m.transactionsProcessed),
		RankingsExecuted:      counterValue(m.rankingsExecuted),
		NotificationsSent:     counterValue(m.notificationsSent),
		Errors:                counterValue(m.errors),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}
