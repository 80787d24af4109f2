package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_readings_ingested_total",
		Help: "Number of readings stored by the ingest endpoint.",
	})

	ReadingsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_readings_duplicate_total",
		Help: "Number of readings skipped as replays of already stored rows.",
	})

	BatchesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_batches_rejected_total",
		Help: "Number of batches rejected by validation.",
	})

	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_alerts_created_total",
		Help: "Number of alerts raised.",
	})

	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_alerts_resolved_total",
		Help: "Number of alerts resolved by a return to ok.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_events_dropped_total",
		Help: "Number of events dropped from slow subscriber queues.",
	})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_stream_subscribers",
		Help: "Number of connected stream subscribers.",
	})
)
