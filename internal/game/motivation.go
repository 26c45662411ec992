package game

// MessageKind selects a family of notification copy.
type MessageKind string

const (
	MessageMorning       MessageKind = "morning"
	MessageEvening       MessageKind = "evening"
	MessageTerritoryLost MessageKind = "territory_lost"
	MessageRanking       MessageKind = "ranking"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

var motivationalMessages = map[MessageKind][]string{
	MessageMorning: {
		"Good morning, conqueror! Your city is waiting.",
		"Time to dominate! Which territories will you take today?",
		"New day, new conquests. Let's go!",
		"The city is yours. Prove it today.",
	},
	MessageEvening: {
		"Rush hour. How about taking the avenue on your way home?",
		"Your territory won't defend itself. Run now!",
		"Finish the day with an epic conquest.",
		"Last chance to climb the ranking today!",
	},
	MessageTerritoryLost: {
		"Someone took your territory! Will you let it go?",
		"Territory lost! Time to win it back.",
		"You have been challenged. Show them who is in charge.",
		"Your territory was invaded. Defend it now!",
	},
	MessageRanking: {
		"You are climbing! Keep it up.",
		"Careful! You dropped in the ranking. Take your spot back!",
		"You are in the Top 10! Keep the pace.",
		"Almost in the Top 5. Run more!",
	},
}

// MotivationalMessage picks one message of the given kind. Unknown kinds
// return an empty string.
func MotivationalMessage(kind MessageKind, rng Picker) string {
	options := motivationalMessages[kind]
	if len(options) == 0 {
		return ""
	}
	return options[rng.IntN(len(options))]
}
