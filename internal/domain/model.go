package domain

import (
	"time"

	"example.com/conquest/internal/game"
)

// Profile is a user's accumulated game state.
type Profile struct {
	TenantID         string
	UserID           string
	Experience       int
	Level            int
	TotalDistanceKm  float64
	TotalDurationSec int
	TotalCalories    int
	ActivityCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActivityAggregate is a scored activity as stored.
type ActivityAggregate struct {
	ID                   string
	TenantID             string
	UserID               string
	Type                 game.ActivityType
	DistanceKm           float64
	DurationSec          int
	AvgSpeedKmh          float64
	TerritoriesConquered int
	Calories             int
	XPEarned             int
	MissionXP            int
	Source               string
	StartedAt            time.Time
	CreatedAt            time.Time
}

// Telemetry converts the stored record back into engine input.
func (a ActivityAggregate) Telemetry() game.Activity {
	return game.Activity{
		Type:                 a.Type,
		DistanceKm:           a.DistanceKm,
		DurationSec:          a.DurationSec,
		AvgSpeedKmh:          a.AvgSpeedKmh,
		TerritoriesConquered: a.TerritoriesConquered,
	}
}

// TerritoryAggregate wraps the engine territory with identity and audit fields.
type TerritoryAggregate struct {
	ID       string
	TenantID string
	Name     string
	game.Territory
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MissionAggregate is one daily mission assigned to a user.
type MissionAggregate struct {
	ID       string
	TenantID string
	UserID   string
	Day      string
	game.Mission
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Event is an outbound message recorded in the same transaction as the state change.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	PartitionKey  string
	DedupeKey     string
	Payload       any
}

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// UserState is the locked view of one user handed to a UpdateUser callback.
// Profile is zero-valued (Level 0) when the user has no profile yet.
type UserState struct {
	Profile  Profile
	Missions []MissionAggregate
}

// UserChange is written back by UpdateUser. Nil fields are left untouched;
// Missions are upserted by ID.
type UserChange struct {
	Activity       *ActivityAggregate
	IdempotencyKey string
	Profile        *Profile
	Missions       []MissionAggregate
	Events         []Event
}

// TerritoryChange is written back by UpdateTerritory.
type TerritoryChange struct {
	Territory TerritoryAggregate
	Events    []Event
}
