package outbox

import "example.com/conquest/internal/events"

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["run", "walk", "bike"]},
    "distance_km": {"type": "number", "minimum": 0},
    "duration_sec": {"type": "integer", "minimum": 0},
    "xp_earned": {"type": "integer", "minimum": 0},
    "mission_xp": {"type": "integer", "minimum": 0},
    "calories": {"type": "integer", "minimum": 0},
    "total_xp": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 1},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "activity_type", "distance_km", "duration_sec", "xp_earned", "total_xp", "level", "recorded_at"],
  "additionalProperties": false
}`

const levelReachedSchema = `{
  "type": "object",
  "title": "LevelReached",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "previous_level": {"type": "integer", "minimum": 1},
    "level": {"type": "integer", "minimum": 1},
    "title": {"type": "string"},
    "total_xp": {"type": "integer", "minimum": 0},
    "reached_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "previous_level", "level", "title", "total_xp", "reached_at"],
  "additionalProperties": false
}`

const missionCompletedSchema = `{
  "type": "object",
  "title": "MissionCompleted",
  "properties": {
    "mission_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "mission_key": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "xp_reward": {"type": "integer", "minimum": 0},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["mission_id", "tenant_id", "user_id", "mission_key", "day", "xp_reward", "completed_at"],
  "additionalProperties": false
}`

const territoryConqueredSchema = `{
  "type": "object",
  "title": "TerritoryConquered",
  "properties": {
    "territory_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "owner_id": {"type": "string"},
    "previous_owner": {"type": "string"},
    "radius_m": {"type": "number", "minimum": 0},
    "size_km2": {"type": "number", "minimum": 0},
    "conquest_count": {"type": "integer", "minimum": 1},
    "conquered_at": {"type": "string", "format": "date-time"}
  },
  "required": ["territory_id", "tenant_id", "owner_id", "radius_m", "size_km2", "conquest_count", "conquered_at"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeActivityRecorded:   activityRecordedSchema,
	events.TypeLevelReached:       levelReachedSchema,
	events.TypeMissionCompleted:   missionCompletedSchema,
	events.TypeTerritoryConquered: territoryConqueredSchema,
}

func schemaFor(eventType string) (string, bool) {
	s, ok := schemaCatalog[eventType]
	return s, ok
}
