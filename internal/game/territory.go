package game

import (
	"errors"
	"math"
	"time"
)

// ErrTerritoryProtected is returned when a challenger attacks a territory
// still inside its protection window.
var ErrTerritoryProtected = errors.New("territory is protected")

// Territory is the scoring view of a claimed area. IsProtected is derived
// from LastDefendedAt and never stored.
type Territory struct {
	OwnerID        string
	RadiusM        float64
	SizeKm2        float64
	ConqueredAt    time.Time
	LastDefendedAt *time.Time
	ConquestCount  int
}

// TerritoryRadius returns the claim buffer in metres for a route of the given
// length: min(max, base + ln(d+1)*scale).
func (p Policy) TerritoryRadius(distanceKm float64) float64 {
	d := nonNegative(distanceKm)
	return math.Min(p.MaxBufferM, p.BaseBufferM+math.Log(d+1)*p.BufferScale)
}

// BufferAreaKm2 approximates the area covered by a straight route of
// distanceKm buffered on both sides by TerritoryRadius.
func (p Policy) BufferAreaKm2(distanceKm float64) float64 {
	d := nonNegative(distanceKm)
	r := p.TerritoryRadius(d) / 1000
	return d*2*r + math.Pi*r*r
}

// IsProtected reports whether a territory defended at lastDefendedAt is still
// shielded at now.
func (p Policy) IsProtected(lastDefendedAt *time.Time, now time.Time) bool {
	if lastDefendedAt == nil {
		return false
	}
	return now.Sub(*lastDefendedAt) < p.ProtectionWindow
}

// Claim creates a fresh territory for owner from a route of distanceKm.
func (p Policy) Claim(ownerID string, distanceKm float64, now time.Time) Territory {
	defended := now
	return Territory{
		OwnerID:        ownerID,
		RadiusM:        p.TerritoryRadius(distanceKm),
		SizeKm2:        p.BufferAreaKm2(distanceKm),
		ConqueredAt:    now,
		LastDefendedAt: &defended,
		ConquestCount:  1,
	}
}

// Challenge resolves an attempt by challengerID to take or hold t. The owner
// defending its own territory always succeeds; anyone else fails with
// ErrTerritoryProtected while the protection window is open.
func (p Policy) Challenge(t Territory, challengerID string, now time.Time) (Territory, error) {
	if t.OwnerID == challengerID {
		return t.Defend(now), nil
	}
	if p.IsProtected(t.LastDefendedAt, now) {
		return t, ErrTerritoryProtected
	}
	return t.Conquer(challengerID, now), nil
}

// Conquer hands the territory to newOwnerID.
func (t Territory) Conquer(newOwnerID string, now time.Time) Territory {
	defended := now
	t.OwnerID = newOwnerID
	t.ConqueredAt = now
	t.LastDefendedAt = &defended
	t.ConquestCount++
	return t
}

// Defend refreshes the protection window for the current owner.
func (t Territory) Defend(now time.Time) Territory {
	defended := now
	t.LastDefendedAt = &defended
	t.ConquestCount++
	return t
}

// TerritoryRadius applies the default policy.
func TerritoryRadius(distanceKm float64) float64 { return defaultPolicy.TerritoryRadius(distanceKm) }

// IsProtected applies the default 24h protection window.
func IsProtected(lastDefendedAt *time.Time, now time.Time) bool {
	return defaultPolicy.IsProtected(lastDefendedAt, now)
}
