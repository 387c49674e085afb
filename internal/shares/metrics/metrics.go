package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the shares module.
// Tracks allocation volumes and the durations of the atomic write paths.
type Metrics struct {
	PurchasesCompleted prometheus.Counter
	TransfersCompleted prometheus.Counter
	OversellRejections prometheus.Counter
	OffersCompleted    prometheus.Counter
	PurchaseDuration   prometheus.Histogram
	TransferDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all shares module metrics registered.
func New() *Metrics {
	return &Metrics{
		PurchasesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_purchases_completed_total",
			Help: "Total number of completed share purchases",
		}),
		TransfersCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_transfers_completed_total",
			Help: "Total number of completed share transfers",
		}),
		OversellRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_oversell_rejections_total",
			Help: "Total number of purchases rejected by the inventory bound",
		}),
		OffersCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_offers_completed_total",
			Help: "Total number of offers that sold out",
		}),
		PurchaseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareledger_purchase_duration_seconds",
			Help:    "Duration of PurchaseShares operations (atomic allocation path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareledger_transfer_duration_seconds",
			Help:    "Duration of TransferShares operations (atomic allocation path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementPurchases records a successful purchase.
func (m *Metrics) IncrementPurchases() {
	m.PurchasesCompleted.Inc()
}

// IncrementTransfers records a successful transfer.
func (m *Metrics) IncrementTransfers() {
	m.TransfersCompleted.Inc()
}

// IncrementOversellRejections records a purchase stopped by the inventory
// bound.
func (m *Metrics) IncrementOversellRejections() {
	m.OversellRejections.Inc()
}

// IncrementOffersCompleted records an offer selling out.
func (m *Metrics) IncrementOffersCompleted() {
	m.OffersCompleted.Inc()
}

// ObservePurchase records the duration of a PurchaseShares operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePurchase(start time.Time) {
	m.PurchaseDuration.Observe(time.Since(start).Seconds())
}

// ObserveTransfer records the duration of a TransferShares operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransfer(start time.Time) {
	m.TransferDuration.Observe(time.Since(start).Seconds())
}
