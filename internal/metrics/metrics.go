// Package metrics exposes session-lifecycle counters on the default
// prometheus registry, served by /metrics in cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsOpened counts accepted class-context initiations.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_opened_total",
		Help: "Attendance sessions opened after class-context acceptance.",
	})

	// DuplicatesRejected counts initiations rejected because the class
	// already had a session for the date.
	DuplicatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_duplicate_sessions_rejected_total",
		Help: "Initiations rejected due to an existing session for the class and date.",
	})

	// RosterEvents counts applied roster entries by capture method.
	RosterEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_roster_events_total",
		Help: "Roster entries applied, labeled by capture method.",
	}, []string{"method"})

	// SessionsFinalized counts completion signals.
	SessionsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_finalized_total",
		Help: "Sessions that reached the finalized state.",
	})

	// SessionsSubmitted counts successful submissions to persistence.
	SessionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_submitted_total",
		Help: "Finalized sessions submitted successfully.",
	})

	// CaptureAborts counts capture-source failures that returned a session
	// to method selection.
	CaptureAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_capture_aborts_total",
		Help: "Capture attempts aborted due to a source error.",
	})
)
