package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitgate_sync_batches_total",
		Help: "Reconciled device sync batches by final status.",
	}, []string{"status"})

	SyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitgate_sync_events_total",
		Help: "Device attendance events by terminal disposition.",
	}, []string{"outcome"})
)
