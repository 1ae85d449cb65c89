package domain

import "strings"

// Difficulty is the difficulty label attached to a question attempt.
// Labels are normalized to lower case; labels outside the closed set are
// kept verbatim for echoing but score as FallbackDifficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// FallbackDifficulty is used for missing or unrecognized difficulty labels.
const FallbackDifficulty = DifficultyMedium

// ParseDifficulty normalizes a raw label. An empty label yields FallbackDifficulty.
func ParseDifficulty(s string) Difficulty {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FallbackDifficulty
	}
	return Difficulty(s)
}

// Known reports whether d is one of easy, medium or hard.
func (d Difficulty) Known() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Effective returns the difficulty used for scoring.
func (d Difficulty) Effective() Difficulty {
	if d.Known() {
		return d
	}
	return FallbackDifficulty
}

// BaseScore returns the maximum points available for a question of this
// difficulty: 10, 20 or 30.
func (d Difficulty) BaseScore() float64 {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	default:
		return FallbackDifficulty.BaseScore()
	}
}

func (d Difficulty) String() string {
	return string(d)
}
