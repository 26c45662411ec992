package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for each committed tracker record.
const (
	outcomeHandled     = "handled"
	outcomeDropped     = "dropped"
	outcomeUndecodable = "undecodable"
)

// Outcomes recorded for each activity.completed event.
const (
	activityScored   = "scored"
	activityReplayed = "replayed"
	activityRejected = "rejected"
)

var (
	committedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "records_committed_total",
		Help:      "Tracker records whose offset was committed, by outcome (handled, dropped, undecodable).",
	}, []string{"outcome"})

	transientFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "transient_failures_total",
		Help:      "Handler attempts that failed with a retryable error while the offset was held.",
	}, []string{"event_type"})

	heldPartitions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "held",
		Help:      "1 while the consumer is holding its offset behind a failing tracker record.",
	})

	lastCommitted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "last_committed_record_timestamp_seconds",
		Help:      "Kafka timestamp of the most recently committed tracker record.",
	})

	trackerActivities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "activities_total",
		Help:      "activity.completed events by activity type and outcome (scored, replayed, rejected).",
	}, []string{"activity_type", "outcome"})

	ignoredEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "tracker_consumer",
		Name:      "ignored_events_total",
		Help:      "Tracker events that do not affect scoring, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(committedRecords, transientFailures, heldPartitions, lastCommitted, trackerActivities, ignoredEvents)
}

func recordCommitted(outcome string, at time.Time) {
	committedRecords.WithLabelValues(outcome).Inc()
	if !at.IsZero() {
		lastCommitted.Set(float64(at.Unix()))
	}
}

func recordTransientFailure(eventType string) {
	transientFailures.WithLabelValues(eventType).Inc()
}

func setHeld(held bool) {
	if held {
		heldPartitions.Set(1)
		return
	}
	heldPartitions.Set(0)
}

func recordActivity(activityType, outcome string) {
	trackerActivities.WithLabelValues(activityType, outcome).Inc()
}

func recordIgnored(eventType string) {
	ignoredEvents.WithLabelValues(eventType).Inc()
}
