package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Number of bookings created",
		},
	)

	BookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Overlap rejections and lost write races, by operation",
		},
		[]string{"operation"},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Applied booking status transitions",
		},
		[]string{"from", "to"},
	)

	BookingOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operation_errors_total",
			Help: "Failed booking operations by error kind",
		},
		[]string{"operation", "kind"},
	)
)

func trackError(operation string, err error) {
	if err == nil {
		return
	}
	kind := string(KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	BookingOperationErrors.WithLabelValues(operation, kind).Inc()
}
