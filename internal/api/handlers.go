// Package api exposes HTTP handlers for the conquest service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"example.com/conquest/internal/auth"
	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/game"
	"example.com/conquest/internal/persistence"
	"example.com/conquest/internal/places"
)

// PlaceSearcher is satisfied by *places.Client.
type PlaceSearcher interface {
	Search(ctx context.Context, input string, bias *places.Circle) ([]places.Suggestion, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	places  PlaceSearcher
}

// NewHandler builds a Handler. places may be nil, in which case the places
// endpoint answers 503.
func NewHandler(service *domain.Service, places PlaceSearcher) *Handler {
	return &Handler{service: service, places: places}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/activities", h.createActivity)
	mux.HandleFunc("GET /v1/activities", h.listActivities)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("GET /v1/profiles/{user_id}", h.getProfile)
	mux.HandleFunc("GET /v1/territories", h.listTerritories)
	mux.HandleFunc("GET /v1/territories/{id}", h.getTerritory)
	mux.HandleFunc("POST /v1/territories", h.claimTerritory)
	mux.HandleFunc("GET /v1/missions", h.listMissions)
	mux.HandleFunc("GET /v1/motivation", h.motivation)
	mux.HandleFunc("GET /v1/places", h.searchPlaces)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's claims when they hold one of scopes,
// otherwise it writes 401 or 403 and returns false.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// actingUser resolves the user a write applies to. An empty or matching
// user_id means the token subject; any other user needs auth.ScopeActAsUser.
func actingUser(w http.ResponseWriter, claims *auth.Claims, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == claims.Subject {
		return claims.Subject, true
	}
	if !claims.HasScope(auth.ScopeActAsUser) {
		writeError(w, http.StatusForbidden, "forbidden", "user_id must match the token subject without scope "+auth.ScopeActAsUser)
		return "", false
	}
	return requested, true
}

// writeServiceError maps domain and engine errors to problem responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, persistence.ErrInvalidCursor), errors.Is(err, places.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "not_found", "profile not found")
	case errors.Is(err, domain.ErrTerritoryNotFound):
		writeError(w, http.StatusNotFound, "not_found", "territory not found")
	case errors.Is(err, game.ErrTerritoryProtected):
		writeError(w, http.StatusConflict, "territory_protected", err.Error())
	case errors.Is(err, places.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		log.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}
