package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/game"
	"example.com/conquest/internal/persistence"
)

// CreateActivityRequest is the payload for POST /v1/activities. UserID
// defaults to the token subject; naming another user needs users:act_as.
type CreateActivityRequest struct {
	UserID               string    `json:"user_id"`
	ActivityType         string    `json:"activity_type"`
	DistanceKm           float64   `json:"distance_km"`
	DurationSec          int       `json:"duration_sec"`
	AvgSpeedKmh          float64   `json:"avg_speed_kmh"`
	TerritoriesConquered int       `json:"territories_conquered"`
	StartedAt            time.Time `json:"started_at"`
	WeightKg             float64   `json:"weight_kg"`
	Source               string    `json:"source"`
}

// CreateActivityResponse reports what the activity earned.
type CreateActivityResponse struct {
	Activity          ActivityView  `json:"activity"`
	XPEarned          int           `json:"xp_earned"`
	MissionXP         int           `json:"mission_xp"`
	TotalXP           int           `json:"total_xp"`
	Level             int           `json:"level"`
	PreviousLevel     int           `json:"previous_level"`
	LeveledUp         bool          `json:"leveled_up"`
	ProgressPercent   int           `json:"progress_percent"`
	CompletedMissions []MissionView `json:"completed_missions"`
	Replay            bool          `json:"idempotent_replay"`
}

// ActivityView exposes a stored activity.
type ActivityView struct {
	ActivityID           string    `json:"activity_id"`
	TenantID             string    `json:"tenant_id"`
	UserID               string    `json:"user_id"`
	ActivityType         string    `json:"activity_type"`
	DistanceKm           float64   `json:"distance_km"`
	DurationSec          int       `json:"duration_sec"`
	AvgSpeedKmh          float64   `json:"avg_speed_kmh"`
	TerritoriesConquered int       `json:"territories_conquered"`
	Calories             int       `json:"calories"`
	XPEarned             int       `json:"xp_earned"`
	MissionXP            int       `json:"mission_xp"`
	Source               string    `json:"source"`
	StartedAt            time.Time `json:"started_at"`
	CreatedAt            time.Time `json:"created_at"`
	Display              struct {
		Distance string `json:"distance"`
		Duration string `json:"duration"`
		Speed    string `json:"speed"`
		Pace     string `json:"pace"`
	} `json:"display"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := actingUser(w, claims, req.UserID)
	if !ok {
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	result, err := h.service.RecordActivity(r.Context(), domain.RecordActivityInput{
		TenantID:             claims.TenantID,
		UserID:               userID,
		Type:                 game.ActivityType(strings.ToLower(req.ActivityType)),
		DistanceKm:           req.DistanceKm,
		DurationSec:          req.DurationSec,
		AvgSpeedKmh:          req.AvgSpeedKmh,
		TerritoriesConquered: req.TerritoriesConquered,
		StartedAt:            req.StartedAt,
		WeightKg:             req.WeightKg,
		Source:               source,
		IdempotencyKey:       r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	policy := h.service.Policy()
	resp := CreateActivityResponse{
		Activity:          toActivityView(result.Activity),
		XPEarned:          result.Activity.XPEarned,
		MissionXP:         result.Activity.MissionXP,
		TotalXP:           result.Profile.Experience,
		Level:             result.Profile.Level,
		PreviousLevel:     result.PreviousLevel,
		LeveledUp:         result.LeveledUp(),
		ProgressPercent:   policy.LevelProgressPercent(result.Profile.Experience, result.Profile.Level),
		CompletedMissions: make([]MissionView, 0, len(result.CompletedMissions)),
		Replay:            result.Replayed,
	}
	for _, m := range result.CompletedMissions {
		resp.CompletedMissions = append(resp.CompletedMissions, toMissionView(m))
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	agg, err := h.service.GetActivity(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*agg))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	aggregates, next, err := h.service.ListActivities(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toActivityView(agg))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func toActivityView(agg domain.ActivityAggregate) ActivityView {
	view := ActivityView{
		ActivityID:           agg.ID,
		TenantID:             agg.TenantID,
		UserID:               agg.UserID,
		ActivityType:         string(agg.Type),
		DistanceKm:           agg.DistanceKm,
		DurationSec:          agg.DurationSec,
		AvgSpeedKmh:          agg.AvgSpeedKmh,
		TerritoriesConquered: agg.TerritoriesConquered,
		Calories:             agg.Calories,
		XPEarned:             agg.XPEarned,
		MissionXP:            agg.MissionXP,
		Source:               agg.Source,
		StartedAt:            agg.StartedAt,
		CreatedAt:            agg.CreatedAt,
	}
	view.Display.Distance = game.FormatDistance(agg.DistanceKm)
	view.Display.Duration = game.FormatDuration(agg.DurationSec)
	view.Display.Speed = game.FormatSpeed(agg.AvgSpeedKmh)
	view.Display.Pace = game.FormatPace(agg.AvgSpeedKmh)
	return view
}
