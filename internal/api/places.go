package api

import (
	"net/http"
	"strconv"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/places"
)

// SearchPlacesResponse lists autocomplete suggestions.
type SearchPlacesResponse struct {
	Items []places.Suggestion `json:"items"`
}

func (h *Handler) searchPlaces(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopePlacesRead); !ok {
		return
	}
	if h.places == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "places search is not configured")
		return
	}

	q := r.URL.Query()
	var bias *places.Circle
	if q.Get("lat") != "" || q.Get("lng") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			writeError(w, http.StatusBadRequest, "validation_failed", "lat and lng must be valid coordinates")
			return
		}
		radius := 500.0
		if raw := q.Get("radius_m"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "validation_failed", "radius_m must be positive")
				return
			}
			radius = parsed
		}
		bias = &places.Circle{Latitude: lat, Longitude: lng, RadiusM: radius}
	}

	suggestions, err := h.places.Search(r.Context(), q.Get("q"), bias)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []places.Suggestion{}
	}
	writeJSON(w, http.StatusOK, SearchPlacesResponse{Items: suggestions})
}
