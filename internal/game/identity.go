package game

import "unicode/utf16"

// OwnerPalette is the fixed set of territory colours.
var OwnerPalette = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#8B5CF6", // purple
	"#F59E0B", // amber
	"#EF4444", // red
	"#06B6D4", // cyan
	"#EC4899", // pink
}

// ColorForOwner maps an owner id onto OwnerPalette by summing its UTF-16 code
// units, so ids outside the BMP hash as their surrogate pairs. Different ids
// may share a colour.
func ColorForOwner(ownerID string) string {
	sum := 0
	for _, unit := range utf16.Encode([]rune(ownerID)) {
		sum += int(unit)
	}
	return OwnerPalette[sum%len(OwnerPalette)]
}

type titleTier struct {
	below int
	title string
}

var titleTiers = []titleTier{
	{below: 10, title: "Beginner"},
	{below: 25, title: "Explorer"},
	{below: 50, title: "Conqueror"},
	{below: 75, title: "Dominator"},
	{below: 100, title: "Legend"},
}

// TitleForLevel returns the honorific for a level. Levels below 1 get the
// lowest tier.
func TitleForLevel(level int) string {
	for _, tier := range titleTiers {
		if level < tier.below {
			return tier.title
		}
	}
	return "Emperor"
}
