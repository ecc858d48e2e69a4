package display

import "chessroom/internal/server/core"

// Terminal color codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

// Prompt returns a colored prompt string
func Prompt(text string) string {
	return Yellow + text + Yellow + " > " + Reset
}

// SideName returns the colored name of a side
func SideName(s core.Side) string {
	switch s {
	case core.SideA:
		return Blue + "White" + Reset
	case core.SideB:
		return Red + "Black" + Reset
	default:
		return "nobody"
	}
}
