// Package events defines the payloads exchanged over Kafka by the
// gamification service.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityRecorded   = "activity.recorded"
	TypeLevelReached       = "level.reached"
	TypeTerritoryConquered = "territory.conquered"
	TypeMissionCompleted   = "mission.completed"
)

// TypeActivityCompleted is emitted by the tracker when a user finishes a session.
const TypeActivityCompleted = "activity.completed"

// Topics the outbox publishes to.
const (
	TopicGamification = "gamification_events"
	TopicTerritory    = "territory_events"
)

// Route tells the outbox where an event type goes.
type Route struct {
	Topic         string
	SchemaSubject string
}

var routes = map[string]Route{
	TypeActivityRecorded:   {Topic: TopicGamification, SchemaSubject: TopicGamification + "-activity_recorded-value"},
	TypeLevelReached:       {Topic: TopicGamification, SchemaSubject: TopicGamification + "-level_reached-value"},
	TypeMissionCompleted:   {Topic: TopicGamification, SchemaSubject: TopicGamification + "-mission_completed-value"},
	TypeTerritoryConquered: {Topic: TopicTerritory, SchemaSubject: TopicTerritory + "-territory_conquered-value"},
}

// RouteFor returns the routing metadata for an outbound event type.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}

// ActivityCompleted is the inbound tracker payload.
type ActivityCompleted struct {
	ActivityID           string    `json:"activity_id"`
	TenantID             string    `json:"tenant_id"`
	UserID               string    `json:"user_id"`
	ActivityType         string    `json:"activity_type"`
	DistanceKm           float64   `json:"distance_km"`
	DurationSec          int       `json:"duration_sec"`
	AvgSpeedKmh          float64   `json:"avg_speed_kmh,omitempty"`
	TerritoriesConquered int       `json:"territories_conquered"`
	StartedAt            time.Time `json:"started_at"`
	WeightKg             float64   `json:"weight_kg,omitempty"`
}

// ActivityRecorded is published once an activity has been scored.
type ActivityRecorded struct {
	ActivityID   string    `json:"activity_id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	DistanceKm   float64   `json:"distance_km"`
	DurationSec  int       `json:"duration_sec"`
	XPEarned     int       `json:"xp_earned"`
	MissionXP    int       `json:"mission_xp"`
	Calories     int       `json:"calories"`
	TotalXP      int       `json:"total_xp"`
	Level        int       `json:"level"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// LevelReached is published when a profile crosses a level threshold.
type LevelReached struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	Level         int       `json:"level"`
	Title         string    `json:"title"`
	TotalXP       int       `json:"total_xp"`
	ReachedAt     time.Time `json:"reached_at"`
}

// TerritoryConquered is published when a territory changes hands or is first claimed.
type TerritoryConquered struct {
	TerritoryID   string    `json:"territory_id"`
	TenantID      string    `json:"tenant_id"`
	OwnerID       string    `json:"owner_id"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	RadiusM       float64   `json:"radius_m"`
	SizeKm2       float64   `json:"size_km2"`
	ConquestCount int       `json:"conquest_count"`
	ConqueredAt   time.Time `json:"conquered_at"`
}

// MissionCompleted is published once per mission when its target is reached.
type MissionCompleted struct {
	MissionID   string    `json:"mission_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	MissionKey  string    `json:"mission_key"`
	Day         string    `json:"day"`
	XPReward    int       `json:"xp_reward"`
	CompletedAt time.Time `json:"completed_at"`
}
