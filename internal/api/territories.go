package api

import (
	"net/http"
	"strings"
	"time"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/domain"
)

// ClaimTerritoryRequest claims a new territory when TerritoryID is empty and
// challenges an existing one otherwise.
type ClaimTerritoryRequest struct {
	TerritoryID string  `json:"territory_id"`
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	DistanceKm  float64 `json:"distance_km"`
}

// TerritoryView exposes a territory with its derived state.
type TerritoryView struct {
	TerritoryID    string     `json:"territory_id"`
	Name           string     `json:"name,omitempty"`
	OwnerID        string     `json:"owner_id"`
	Color          string     `json:"color"`
	RadiusM        float64    `json:"radius_m"`
	SizeKm2        float64    `json:"size_km2"`
	ConqueredAt    time.Time  `json:"conquered_at"`
	LastDefendedAt *time.Time `json:"last_defended_at,omitempty"`
	ConquestCount  int        `json:"conquest_count"`
	IsProtected    bool       `json:"is_protected"`
	ProtectedUntil *time.Time `json:"protected_until,omitempty"`
}

// ClaimTerritoryResponse reports the outcome of a claim.
type ClaimTerritoryResponse struct {
	Territory     TerritoryView `json:"territory"`
	Action        string        `json:"action"`
	PreviousOwner string        `json:"previous_owner,omitempty"`
}

// ListTerritoriesResponse packages list results.
type ListTerritoriesResponse struct {
	Items []TerritoryView `json:"items"`
}

func (h *Handler) claimTerritory(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeTerritoriesWrite)
	if !ok {
		return
	}

	var req ClaimTerritoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := actingUser(w, claims, req.UserID)
	if !ok {
		return
	}

	result, err := h.service.ClaimTerritory(r.Context(), domain.ClaimTerritoryInput{
		TenantID:    claims.TenantID,
		UserID:      userID,
		TerritoryID: strings.TrimSpace(req.TerritoryID),
		Name:        req.Name,
		DistanceKm:  req.DistanceKm,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Action == domain.TerritoryClaimed {
		status = http.StatusCreated
	}
	writeJSON(w, status, ClaimTerritoryResponse{
		Territory:     toTerritoryView(result.Territory),
		Action:        string(result.Action),
		PreviousOwner: result.PreviousOwner,
	})
}

func (h *Handler) getTerritory(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeTerritoriesRead, auth.ScopeTerritoriesWrite)
	if !ok {
		return
	}

	view, err := h.service.GetTerritory(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTerritoryView(*view))
}

func (h *Handler) listTerritories(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeTerritoriesRead, auth.ScopeTerritoriesWrite)
	if !ok {
		return
	}

	views, err := h.service.ListTerritories(r.Context(), claims.TenantID, r.URL.Query().Get("owner_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]TerritoryView, 0, len(views))
	for _, v := range views {
		items = append(items, toTerritoryView(v))
	}
	writeJSON(w, http.StatusOK, ListTerritoriesResponse{Items: items})
}

func toTerritoryView(v domain.TerritoryView) TerritoryView {
	return TerritoryView{
		TerritoryID:    v.ID,
		Name:           v.Name,
		OwnerID:        v.OwnerID,
		Color:          v.Color,
		RadiusM:        v.RadiusM,
		SizeKm2:        v.SizeKm2,
		ConqueredAt:    v.ConqueredAt,
		LastDefendedAt: v.LastDefendedAt,
		ConquestCount:  v.ConquestCount,
		IsProtected:    v.IsProtected,
		ProtectedUntil: v.ProtectedUntil,
	}
}
