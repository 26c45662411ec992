package game

import (
	"iter"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MissionCategory decides which activity metric advances a mission.
type MissionCategory string

const (
	MissionDistance  MissionCategory = "distance"
	MissionSpeed     MissionCategory = "speed"
	MissionTerritory MissionCategory = "territory"
	MissionTime      MissionCategory = "time"
)

// IsValid reports whether the category is known.
func (c MissionCategory) IsValid() bool {
	switch c {
	case MissionDistance, MissionSpeed, MissionTerritory, MissionTime:
		return true
	default:
		return false
	}
}

// MissionTemplate is one entry of the mission catalog.
type MissionTemplate struct {
	Key         string          `yaml:"key" json:"key"`
	Title       string          `yaml:"title" json:"title"`
	Description string          `yaml:"description" json:"description"`
	TargetValue float64         `yaml:"target_value" json:"target_value"`
	XPReward    int             `yaml:"xp_reward" json:"xp_reward"`
	Icon        string          `yaml:"icon" json:"icon"`
	Category    MissionCategory `yaml:"category" json:"category"`
}

// MissionSeed is a freshly selected mission with no progress.
type MissionSeed struct {
	MissionTemplate
}

// Mission tracks progress against a seed.
type Mission struct {
	MissionSeed
	CurrentProgress float64
}

// Completed reports whether the target has been reached.
func (m Mission) Completed() bool {
	return m.CurrentProgress >= m.TargetValue
}

// MissionCompleted is the function form of Mission.Completed.
func MissionCompleted(m Mission) bool {
	return m.Completed()
}

// Advance applies one activity to the mission and returns the updated value.
// Speed missions keep the best speed seen; the others accumulate.
func (m Mission) Advance(a Activity) Mission {
	switch m.Category {
	case MissionDistance:
		m.CurrentProgress += nonNegative(a.DistanceKm)
	case MissionTime:
		if a.DurationSec > 0 {
			m.CurrentProgress += float64(a.DurationSec) / 60
		}
	case MissionTerritory:
		if a.TerritoriesConquered > 0 {
			m.CurrentProgress += float64(a.TerritoriesConquered)
		}
	case MissionSpeed:
		m.CurrentProgress = math.Max(m.CurrentProgress, a.Speed())
	}
	return m
}

// DefaultCatalog returns the built-in daily mission templates.
func DefaultCatalog() []MissionTemplate {
	return []MissionTemplate{
		{Key: "morning_run", Title: "Morning Run", Description: "Run 3 km today", TargetValue: 3, XPReward: 100, Icon: "Sunrise", Category: MissionDistance},
		{Key: "conqueror", Title: "Conqueror", Description: "Conquer 2 territories", TargetValue: 2, XPReward: 150, Icon: "Flag", Category: MissionTerritory},
		{Key: "sprinter", Title: "Sprinter", Description: "Reach an average speed of 12 km/h", TargetValue: 12, XPReward: 120, Icon: "Zap", Category: MissionSpeed},
		{Key: "endurance", Title: "Endurance", Description: "Keep moving for 30 minutes", TargetValue: 30, XPReward: 130, Icon: "Timer", Category: MissionTime},
		{Key: "explorer", Title: "Explorer", Description: "Cover 5 km in any activity", TargetValue: 5, XPReward: 150, Icon: "Compass", Category: MissionDistance},
	}
}

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// NewSource returns a deterministic random source for mission selection.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// DailySeed derives a stable seed for a user on the UTC day containing day.
func DailySeed(userID string, day time.Time) uint64 {
	return xxhash.Sum64String(userID + "|" + day.UTC().Format(time.DateOnly))
}

// DefaultMissionCount is used when GenerateDailyMissions gets count <= 0.
const DefaultMissionCount = 3

// GenerateDailyMissions picks count templates from catalog without
// replacement. Selection runs when the sequence is first ranged over, and the
// sequence is one-shot: ranging over it again yields nothing. The catalog is
// never reordered.
func GenerateDailyMissions(catalog []MissionTemplate, count int, rng Shuffler) iter.Seq[MissionSeed] {
	if count <= 0 {
		count = DefaultMissionCount
	}
	if count > len(catalog) {
		count = len(catalog)
	}

	consumed := false
	return func(yield func(MissionSeed) bool) {
		if consumed {
			return
		}
		consumed = true

		order := make([]int, len(catalog))
		for i := range order {
			order[i] = i
		}
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for _, idx := range order[:count] {
			if !yield(MissionSeed{MissionTemplate: catalog[idx]}) {
				return
			}
		}
	}
}
