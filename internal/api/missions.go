package api

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/game"
)

// MissionView exposes one daily mission.
type MissionView struct {
	MissionID       string     `json:"mission_id"`
	Key             string     `json:"key"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Icon            string     `json:"icon"`
	TargetValue     float64    `json:"target_value"`
	CurrentProgress float64    `json:"current_progress"`
	ProgressPercent int        `json:"progress_percent"`
	XPReward        int        `json:"xp_reward"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Day             string     `json:"day"`
}

// ListMissionsResponse packages today's missions.
type ListMissionsResponse struct {
	Items []MissionView `json:"items"`
}

// MotivationResponse carries one notification line.
type MotivationResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) listMissions(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeMissionsRead)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}

	missions, err := h.service.DailyMissions(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]MissionView, 0, len(missions))
	for _, m := range missions {
		items = append(items, toMissionView(m))
	}
	writeJSON(w, http.StatusOK, ListMissionsResponse{Items: items})
}

func (h *Handler) motivation(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeProfilesRead, auth.ScopeMissionsRead); !ok {
		return
	}

	kind := game.MessageKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = game.MessageMorning
		if time.Now().Hour() >= 12 {
			kind = game.MessageEvening
		}
	}
	msg := game.MotivationalMessage(kind, game.NewSource(rand.Uint64()))
	if msg == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown kind "+string(kind))
		return
	}
	writeJSON(w, http.StatusOK, MotivationResponse{Kind: string(kind), Message: msg})
}

func toMissionView(m domain.MissionAggregate) MissionView {
	percent := 0
	if m.TargetValue > 0 {
		percent = int(math.Min(100, math.Floor(m.CurrentProgress/m.TargetValue*100)))
	}
	return MissionView{
		MissionID:       m.ID,
		Key:             m.Key,
		Title:           m.Title,
		Description:     m.Description,
		Category:        string(m.Category),
		Icon:            m.Icon,
		TargetValue:     m.TargetValue,
		CurrentProgress: m.CurrentProgress,
		ProgressPercent: percent,
		XPReward:        m.XPReward,
		Completed:       m.CompletedAt != nil || m.Completed(),
		CompletedAt:     m.CompletedAt,
		Day:             m.Day,
	}
}
