package game

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// FormatDuration renders seconds as "1h 5m" or "5m 3s".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}

// FormatDistance renders sub-kilometre distances in metres, the rest in km.
func FormatDistance(km float64) string {
	km = nonNegative(km)
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Floor(km*1000)))
	}
	return fmt.Sprintf("%.2fkm", km)
}

// FormatSpeed renders km/h with one decimal.
func FormatSpeed(kmh float64) string {
	return fmt.Sprintf("%.1f km/h", nonNegative(kmh))
}

// FormatPace converts km/h into a min/km pace such as "5:00".
func FormatPace(kmh float64) string {
	kmh = nonNegative(kmh)
	if kmh == 0 {
		return "--:--"
	}
	minPerKm := 60 / kmh
	minutes := math.Floor(minPerKm)
	seconds := math.Floor((minPerKm - minutes) * 60)
	return fmt.Sprintf("%d:%02d", int(minutes), int(seconds))
}

// FormatExperience renders an XP total with thousands separators.
func FormatExperience(xp int) string {
	return humanize.Comma(int64(xp)) + " XP"
}
