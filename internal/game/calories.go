package game

import "math"

// DefaultWeightKg is assumed when the profile carries no weight.
const DefaultWeightKg = 70.0

var metValues = map[ActivityType]float64{
	ActivityWalk: 3.5,
	ActivityRun:  8.0,
	ActivityBike: 6.0,
}

// CaloriesBurned estimates kcal from the MET of the activity type, body
// weight and duration.
func CaloriesBurned(t ActivityType, durationSec int, weightKg float64) int {
	if durationSec <= 0 {
		return 0
	}
	if weightKg <= 0 || math.IsNaN(weightKg) {
		weightKg = DefaultWeightKg
	}
	met, ok := metValues[t]
	if !ok {
		return 0
	}
	hours := float64(durationSec) / 3600
	return int(math.Floor(met * weightKg * hours))
}
