package constants

import (
	"strings"
)

type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

var allDifficulties = []Difficulty{
	Easy,
	Medium,
	Hard,
}

func DifficultiesAsStringSlice() []string {
	result := make([]string, len(allDifficulties))
	for i, d := range allDifficulties {
		result[i] = string(d)
	}
	return result
}

// CanonicalizeDifficulty maps loose difficulty labels onto the three-level
// enum. Unknown or empty input falls back to Medium with ok=false.
func CanonicalizeDifficulty(input string) (Difficulty, bool) {
	if input == "" {
		return Medium, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Difficulty{
		"basic":        Easy,
		"beginner":     Easy,
		"simple":       Easy,
		"intermediate": Medium,
		"moderate":     Medium,
		"average":      Medium,
		"advanced":     Hard,
		"difficult":    Hard,
		"expert":       Hard,
	}

	if d, ok := synonyms[normalized]; ok {
		return d, true
	}

	for _, d := range allDifficulties {
		if normalized == strings.ToLower(string(d)) {
			return d, true
		}
	}

	return Medium, false
}
