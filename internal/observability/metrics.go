// Package observability registers the service-level Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "conquest_service",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted.",
	})

	experienceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "game",
		Name:      "experience_awarded_total",
		Help:      "Experience points awarded, including mission rewards, by activity type.",
	}, []string{"activity_type"})

	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "game",
		Name:      "level_ups_total",
		Help:      "Number of activities that moved a profile to a higher level.",
	})

	missionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "game",
		Name:      "missions_completed_total",
		Help:      "Number of daily missions completed by category.",
	}, []string{"category"})

	territoryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conquest_service",
		Subsystem: "game",
		Name:      "territory_actions_total",
		Help:      "Territory claims, conquests and defenses.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, experienceCounter, levelUpCounter, missionCounter, territoryCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordExperienceAwarded adds xp to the per-type counter.
func RecordExperienceAwarded(activityType string, xp int) {
	if xp <= 0 {
		return
	}
	experienceCounter.WithLabelValues(activityType).Add(float64(xp))
}

// RecordLevelUp counts one level-up.
func RecordLevelUp() {
	levelUpCounter.Inc()
}

// RecordMissionCompleted counts one completed mission.
func RecordMissionCompleted(category string) {
	missionCounter.WithLabelValues(category).Inc()
}

// RecordTerritoryAction counts a claim, conquest or defense.
func RecordTerritoryAction(action string) {
	territoryCounter.WithLabelValues(action).Inc()
}
