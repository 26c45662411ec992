package api

import (
	"net/http"
	"time"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/domain"
)

// ProfileResponse is the progression view of a user.
type ProfileResponse struct {
	UserID           string    `json:"user_id"`
	Experience       int       `json:"experience"`
	FormattedXP      string    `json:"formatted_xp"`
	Level            int       `json:"level"`
	Title            string    `json:"title"`
	ProgressPercent  int       `json:"progress_percent"`
	XPForNextLevel   int       `json:"xp_for_next_level"`
	Color            string    `json:"color"`
	TotalDistanceKm  float64   `json:"total_distance_km"`
	TotalDurationSec int       `json:"total_duration_sec"`
	TotalCalories    int       `json:"total_calories"`
	ActivityCount    int       `json:"activity_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProfilesRead)
	if !ok {
		return
	}

	view, err := h.service.GetProfile(r.Context(), claims.TenantID, r.PathValue("user_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(*view))
}

func toProfileResponse(v domain.ProfileView) ProfileResponse {
	return ProfileResponse{
		UserID:           v.UserID,
		Experience:       v.Experience,
		FormattedXP:      v.FormattedXP,
		Level:            v.Level,
		Title:            v.Title,
		ProgressPercent:  v.ProgressPercent,
		XPForNextLevel:   v.XPForNextLevel,
		Color:            v.Color,
		TotalDistanceKm:  v.TotalDistanceKm,
		TotalDurationSec: v.TotalDurationSec,
		TotalCalories:    v.TotalCalories,
		ActivityCount:    v.ActivityCount,
		UpdatedAt:        v.UpdatedAt,
	}
}
