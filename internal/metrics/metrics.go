package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlarmsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_maintenance_alarms_fired_total",
			Help: "The total number of maintenance alarm triggers",
		})

	OperatingHourUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_operating_hour_updates_total",
			Help: "Operating hour readings by outcome",
		}, []string{"outcome"})

	OptimisticConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_machine_version_conflicts_total",
			Help: "Machine updates retried because the row version changed",
		})

	EventsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_events_evicted_total",
			Help: "Events dropped from a machine history by the soft cap",
		})

	HistoryQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_history_query_duration_seconds",
			Help:    "Latency of paginated history queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"})

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_notifications_total",
			Help: "Outbox intents processed by result",
		}, []string{"kind", "result"})

	MeterFeedReadings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_meter_feed_readings_total",
			Help: "Hour meter readings pulled from the upstream feed by outcome",
		}, []string{"outcome"})
)
