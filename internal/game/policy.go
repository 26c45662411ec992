// Package game holds the scoring rules of the territory game: experience,
// levels, territory sizing and protection, daily missions and the cosmetic
// helpers derived from them. Everything here is pure; callers pass in "now"
// and random sources explicitly.
package game

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid game policy")

// LevelingPolicy selects the XP to level curve.
type LevelingPolicy string

const (
	// LevelingStepped accumulates level*StepXP per level.
	LevelingStepped LevelingPolicy = "stepped"
	// LevelingSmooth uses floor(sqrt(xp/SmoothDivisor)) + 1.
	LevelingSmooth LevelingPolicy = "smooth"
)

// IsValid reports whether the leveling policy is known.
func (l LevelingPolicy) IsValid() bool {
	switch l {
	case LevelingStepped, LevelingSmooth:
		return true
	default:
		return false
	}
}

// SpeedBonus grants Bonus XP when the average speed is strictly above AboveKmh.
// Tiers stack.
type SpeedBonus struct {
	AboveKmh float64 `yaml:"above_kmh"`
	Bonus    int     `yaml:"bonus"`
}

// Policy carries every tunable constant of the scoring rules.
type Policy struct {
	XPPerKm         float64                  `yaml:"xp_per_km"`
	TypeMultipliers map[ActivityType]float64 `yaml:"type_multipliers"`
	SpeedBonuses    []SpeedBonus             `yaml:"speed_bonuses"`
	XPPerConquest   int                      `yaml:"xp_per_conquest"`

	Leveling      LevelingPolicy `yaml:"leveling"`
	StepXP        int            `yaml:"step_xp"`
	SmoothDivisor int            `yaml:"smooth_divisor"`

	BaseBufferM      float64       `yaml:"base_buffer_m"`
	MaxBufferM       float64       `yaml:"max_buffer_m"`
	BufferScale      float64       `yaml:"buffer_scale"`
	ProtectionWindow time.Duration `yaml:"protection_window"`

	DailyMissionCount int `yaml:"daily_mission_count"`
}

// DefaultPolicy returns the canonical rule set: multiplier based XP with
// stepped levels.
func DefaultPolicy() Policy {
	return Policy{
		XPPerKm: 10,
		TypeMultipliers: map[ActivityType]float64{
			ActivityRun:  1.5,
			ActivityBike: 1.2,
			ActivityWalk: 1.0,
		},
		SpeedBonuses: []SpeedBonus{
			{AboveKmh: 10, Bonus: 50},
			{AboveKmh: 15, Bonus: 50},
		},
		XPPerConquest:     100,
		Leveling:          LevelingStepped,
		StepXP:            1200,
		SmoothDivisor:     100,
		BaseBufferM:       50,
		MaxBufferM:        200,
		BufferScale:       30,
		ProtectionWindow:  24 * time.Hour,
		DailyMissionCount: 3,
	}
}

// Validate checks that the policy can drive the engine without producing
// negative or undefined values.
func (p Policy) Validate() error {
	if p.XPPerKm < 0 {
		return fmt.Errorf("%w: xp_per_km must be >= 0", ErrInvalidPolicy)
	}
	for t, m := range p.TypeMultipliers {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown activity type %q", ErrInvalidPolicy, t)
		}
		if m < 0 {
			return fmt.Errorf("%w: multiplier for %s must be >= 0", ErrInvalidPolicy, t)
		}
	}
	for i, tier := range p.SpeedBonuses {
		if tier.Bonus < 0 || tier.AboveKmh < 0 {
			return fmt.Errorf("%w: speed bonus tier %d must be non-negative", ErrInvalidPolicy, i)
		}
	}
	if p.XPPerConquest < 0 {
		return fmt.Errorf("%w: xp_per_conquest must be >= 0", ErrInvalidPolicy)
	}
	if !p.Leveling.IsValid() {
		return fmt.Errorf("%w: leveling must be 'stepped' or 'smooth', got %q", ErrInvalidPolicy, p.Leveling)
	}
	if p.Leveling == LevelingStepped && p.StepXP <= 0 {
		return fmt.Errorf("%w: step_xp must be positive", ErrInvalidPolicy)
	}
	if p.Leveling == LevelingSmooth && p.SmoothDivisor <= 0 {
		return fmt.Errorf("%w: smooth_divisor must be positive", ErrInvalidPolicy)
	}
	if p.BaseBufferM < 0 || p.MaxBufferM < p.BaseBufferM {
		return fmt.Errorf("%w: buffers must satisfy 0 <= base <= max", ErrInvalidPolicy)
	}
	if p.BufferScale < 0 {
		return fmt.Errorf("%w: buffer_scale must be >= 0", ErrInvalidPolicy)
	}
	if p.ProtectionWindow < 0 {
		return fmt.Errorf("%w: protection_window must be >= 0", ErrInvalidPolicy)
	}
	if p.DailyMissionCount < 0 {
		return fmt.Errorf("%w: daily_mission_count must be >= 0", ErrInvalidPolicy)
	}
	return nil
}
