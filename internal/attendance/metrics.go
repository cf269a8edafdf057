package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	presenceConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_presence_confirmed_total",
		Help: "Attendance records created by student confirmation.",
	})
	heartbeatsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_heartbeats_accepted_total",
		Help: "Heartbeats whose delta was applied to the ledger.",
	})
	heartbeatsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_heartbeats_ignored_total",
		Help: "Heartbeats dropped by the sequence replay guard.",
	})
	heartbeatsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveclass_heartbeats_rejected_total",
		Help: "Heartbeats rejected before reaching the ledger.",
	}, []string{"reason"})
	fullyWatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_fully_watched_total",
		Help: "Records transitioned to fully watched.",
	})
	adminOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveclass_admin_overrides_total",
		Help: "Administrative presence corrections.",
	}, []string{"action"})
)
