package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry core: entity creation,
// settlement volume, payment gateway failures and operation latency.
type Metrics struct {
	AssetsRegistered  *prometheus.CounterVec
	LicensesIssued    prometheus.Counter
	LicensesRevoked   prometheus.Counter
	Purchases         *prometheus.CounterVec
	PurchaseVolume    *prometheus.CounterVec
	Withdrawals       *prometheus.CounterVec
	PaymentFailures   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssetsRegistered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seisreg_assets_registered_total",
			Help: "Assets registered, by kind",
		}, []string{"kind"}),
		LicensesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "seisreg_licenses_issued_total",
			Help: "Licenses issued",
		}),
		LicensesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "seisreg_licenses_revoked_total",
			Help: "Licenses revoked (first revocation only)",
		}),
		Purchases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seisreg_purchases_total",
			Help: "Recorded purchases, by settlement method",
		}, []string{"method"}),
		PurchaseVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seisreg_purchase_volume_total",
			Help: "Sum of purchase amounts in base units, by settlement method",
		}, []string{"method"}),
		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seisreg_withdrawals_total",
			Help: "Withdrawal attempts, by settlement method and outcome",
		}, []string{"method", "outcome"}),
		PaymentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seisreg_payment_failures_total",
			Help: "Gateway-reported payment failures, by operation",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seisreg_operation_duration_seconds",
			Help:    "Duration of registry operations including gateway calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAssetRegistered(kind string) {
	m.AssetsRegistered.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordPurchase(method string, amount uint64) {
	m.Purchases.WithLabelValues(method).Inc()
	m.PurchaseVolume.WithLabelValues(method).Add(float64(amount))
}

func (m *Metrics) RecordWithdrawal(method, outcome string) {
	m.Withdrawals.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncrementPaymentFailure(operation string) {
	m.PaymentFailures.WithLabelValues(operation).Inc()
}
