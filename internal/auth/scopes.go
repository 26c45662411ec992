package auth

// OAuth scopes checked by the HTTP handlers.
const (
	ScopeActivitiesWrite  = "activities:write"
	ScopeActivitiesRead   = "activities:read"
	ScopeProfilesRead     = "profiles:read"
	ScopeTerritoriesRead  = "territories:read"
	ScopeTerritoriesWrite = "territories:write"
	ScopeMissionsRead     = "missions:read"
	ScopePlacesRead       = "places:read"

	// ScopeActAsUser lets trusted services write on behalf of any user in
	// the tenant. Without it, writes always act as the token subject.
	ScopeActAsUser = "users:act_as"
)
