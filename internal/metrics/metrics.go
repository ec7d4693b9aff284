// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsOpened counts attendance sessions opened.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_opened_total",
		Help: "Attendance sessions opened.",
	})

	// Verifications counts verification outcomes by stable code; matches
	// count as code="ok".
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_verifications_total",
		Help: "Verification attempts by outcome code.",
	}, []string{"code"})

	// ScheduleConflicts counts rejected schedule proposals by dimension.
	ScheduleConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Schedule proposals rejected for overlap.",
	}, []string{"dimension"})

	// FaceRequestDuration observes recognition service round trips.
	FaceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "face_service_request_duration_seconds",
		Help:    "Recognition service request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
