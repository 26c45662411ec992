package game

import "math"

// ActivityType is the kind of physical activity recorded by the tracker.
type ActivityType string

const (
	ActivityRun  ActivityType = "run"
	ActivityWalk ActivityType = "walk"
	ActivityBike ActivityType = "bike"
)

// IsValid reports whether the activity type is one the game scores.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityRun, ActivityWalk, ActivityBike:
		return true
	default:
		return false
	}
}

// Activity is one completed session as reported by the tracker.
type Activity struct {
	Type                 ActivityType
	DistanceKm           float64
	DurationSec          int
	AvgSpeedKmh          float64
	TerritoriesConquered int
}

// Speed returns the average speed in km/h. A supplied average wins over the
// derived one; without a duration there is no speed at all.
func (a Activity) Speed() float64 {
	if a.DurationSec <= 0 {
		return 0
	}
	if a.AvgSpeedKmh > 0 && !math.IsInf(a.AvgSpeedKmh, 0) {
		return a.AvgSpeedKmh
	}
	distance := nonNegative(a.DistanceKm)
	return distance / (float64(a.DurationSec) / 3600)
}

// Bounds on XP arithmetic. Totals stay within float64's exact integer range so
// level math never overflows.
const (
	MaxAward      = math.MaxInt32
	MaxExperience = 1<<53 - 1
)

// ExperienceAward computes the XP earned for one activity, capped at MaxAward.
func (p Policy) ExperienceAward(a Activity) int {
	distance := nonNegative(a.DistanceKm)

	base := math.Floor(distance * p.XPPerKm)
	multiplier, ok := p.TypeMultipliers[a.Type]
	if !ok {
		multiplier = 1
	}
	total := base * multiplier

	speed := a.Speed()
	for _, tier := range p.SpeedBonuses {
		if speed > tier.AboveKmh {
			total += float64(tier.Bonus)
		}
	}

	if a.TerritoriesConquered > 0 {
		total += float64(a.TerritoriesConquered) * float64(p.XPPerConquest)
	}

	switch {
	case !(total > 0):
		return 0
	case total >= MaxAward:
		return MaxAward
	}
	return int(math.Round(total))
}

// AddExperience adds award to total, saturating at MaxExperience.
func AddExperience(total, award int) int {
	total = max(total, 0)
	if award <= 0 {
		return total
	}
	if total >= MaxExperience-award {
		return MaxExperience
	}
	return total + award
}

// LevelForExperience converts an XP total into a level (>= 1). Totals above
// MaxExperience are treated as MaxExperience.
func (p Policy) LevelForExperience(totalXP int) int {
	if totalXP <= 0 {
		return 1
	}
	xp := float64(min(totalXP, MaxExperience))

	var level int
	switch {
	case p.Leveling == LevelingSmooth && p.SmoothDivisor > 0:
		level = int(math.Floor(math.Sqrt(xp/float64(p.SmoothDivisor)))) + 1
	case p.Leveling != LevelingSmooth && p.StepXP > 0:
		// inverse of StepXP*(L-1)*L/2
		level = int(math.Floor((1 + math.Sqrt(1+8*xp/float64(p.StepXP))) / 2))
	default:
		return 1
	}

	// Correct float rounding at level boundaries.
	totalXP = int(xp)
	for level > 1 && p.LevelFloor(level) > totalXP {
		level--
	}
	for p.LevelFloor(level+1) <= totalXP {
		level++
	}
	return max(level, 1)
}

// LevelFloor is the total XP at which level starts, saturating at math.MaxInt.
func (p Policy) LevelFloor(level int) int {
	if level <= 1 {
		return 0
	}
	n := float64(level - 1)
	var floor float64
	if p.Leveling == LevelingSmooth {
		floor = n * n * float64(p.SmoothDivisor)
	} else {
		// sum of k*StepXP for k in [1, level-1]
		floor = float64(p.StepXP) * n * (n + 1) / 2
	}
	if floor >= math.MaxInt64 {
		return math.MaxInt
	}
	return int(floor)
}

// XPForNextLevel is the total XP at which level+1 starts.
func (p Policy) XPForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return p.LevelFloor(level + 1)
}

// LevelProgressPercent reports how far totalXP is through currentLevel,
// clamped to [0, 100].
func (p Policy) LevelProgressPercent(totalXP, currentLevel int) int {
	if currentLevel < 1 {
		currentLevel = 1
	}
	floor := p.LevelFloor(currentLevel)
	span := p.XPForNextLevel(currentLevel) - floor
	if span <= 0 {
		return 0
	}
	percent := int(math.Floor(float64(totalXP-floor) / float64(span) * 100))
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var defaultPolicy = DefaultPolicy()

// ExperienceAward applies the default policy.
func ExperienceAward(a Activity) int { return defaultPolicy.ExperienceAward(a) }

// LevelForExperience applies the default policy.
func LevelForExperience(totalXP int) int { return defaultPolicy.LevelForExperience(totalXP) }

// LevelProgressPercent applies the default policy.
func LevelProgressPercent(totalXP, currentLevel int) int {
	return defaultPolicy.LevelProgressPercent(totalXP, currentLevel)
}
