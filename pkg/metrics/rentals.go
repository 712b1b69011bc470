package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OperationRent   = "rent"
	OperationReturn = "return"

	OutcomeSuccess = "success"
)

// RentalMetrics tracks rental workflow outcomes and loan book gauges.
type RentalMetrics struct {
	operations *prometheus.CounterVec
	active     prometheus.Gauge
	overdue    prometheus.Gauge
}

// NewRentalMetrics registers the rental workflow metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRentalMetrics(reg prometheus.Registerer) *RentalMetrics {
	if reg == nil {
		return &RentalMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_rental_operations_total",
		Help: "Rent and return attempts by outcome.",
	}, []string{"operation", "outcome"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "library_rentals_active",
		Help: "Unreturned rentals at the last snapshot.",
	})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "library_rentals_overdue",
		Help: "Unreturned rentals past their due date at the last snapshot.",
	})
	reg.MustRegister(operations, active, overdue)
	return &RentalMetrics{
		operations: operations,
		active:     active,
		overdue:    overdue,
	}
}

// RecordOperation counts a workflow attempt. outcome is OutcomeSuccess or the
// failure reason.
func (m *RentalMetrics) RecordOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// SetSnapshot publishes the active and overdue rental counts.
func (m *RentalMetrics) SetSnapshot(active, overdue int64) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Set(float64(active))
	m.overdue.Set(float64(overdue))
}
