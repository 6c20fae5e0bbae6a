package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters exported on /metrics.
var (
	Logins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_logins_total",
		Help: "Successful Google logins.",
	})
	Bindings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_bindings_total",
		Help: "Successful user-to-student bindings.",
	})
	CheckinsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_checkins_recorded_total",
		Help: "Attendance records created.",
	})
	CheckinsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_checkins_duplicate_total",
		Help: "Check-ins rejected by the daily uniqueness guard.",
	})
)
