package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Events counts audit entries written, labeled by event type and outcome.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_audit_events_total",
		Help: "Audit events appended, by event type and action.",
	}, []string{"event_type", "action"})

	// DroppedEvents counts events lost to a full buffer. Back-pressure here
	// means the store is too slow for the audit volume.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_audit_dropped_total",
		Help: "Audit events dropped because the dispatch buffer was full.",
	})

	// WriteErrors counts append failures. The auth operation itself is not
	// failed; this counter is the observability surface for that policy.
	WriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_audit_write_errors_total",
		Help: "Audit append failures.",
	})
)
