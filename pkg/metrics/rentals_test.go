package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRentalMetricsRecordsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRentalMetrics(reg)

	m.RecordOperation(OperationRent, OutcomeSuccess)
	m.RecordOperation(OperationRent, OutcomeSuccess)
	m.RecordOperation(OperationReturn, "ALREADY_RETURNED")

	if got := testutil.ToFloat64(m.operations.WithLabelValues(OperationRent, OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successful rents, got %f", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(OperationReturn, "ALREADY_RETURNED")); got != 1 {
		t.Fatalf("expected 1 failed return, got %f", got)
	}
}

func TestRentalMetricsSnapshotGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRentalMetrics(reg)

	m.SetSnapshot(5, 2)

	if got := testutil.ToFloat64(m.active); got != 5 {
		t.Fatalf("expected active=5, got %f", got)
	}
	if got := testutil.ToFloat64(m.overdue); got != 2 {
		t.Fatalf("expected overdue=2, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	var nilRental *RentalMetrics
	nilRental.RecordOperation(OperationRent, OutcomeSuccess)
	nilRental.SetSnapshot(1, 1)

	NewRentalMetrics(nil).RecordOperation(OperationRent, OutcomeSuccess)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/api/v1/books", http.StatusOK, time.Millisecond)
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe(http.MethodPost, "/api/v1/rentals/rent", http.StatusCreated, 20*time.Millisecond)
	m.Observe(http.MethodPost, "", http.StatusNotFound, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/api/v1/rentals/rent", "201")); got != 1 {
		t.Fatalf("expected one rent request, got %f", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "unknown", "404")); got != 1 {
		t.Fatalf("expected unmatched route under unknown, got %f", got)
	}
}
