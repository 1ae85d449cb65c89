package scoring

import (
	"math"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// Scorer converts a single attempt into a bounded question score. It has no
// knowledge of other questions.
type Scorer struct {
	penaltyRate float64
}

// NewScorer creates a scorer for the given policy.
func NewScorer(p Policy) *Scorer {
	return &Scorer{penaltyRate: p.TimePenaltyRate}
}

// Score returns the rounded result record together with the unrounded
// percentage. Termination decisions must use the unrounded value: 39.996
// is low even though it displays as 40.
//
// Quality is not clamped; values outside [0,1] flow through the arithmetic.
func (s *Scorer) Score(a domain.QuestionAttempt) (domain.QuestionResult, float64) {
	difficulty := a.Difficulty
	if difficulty == "" {
		difficulty = domain.FallbackDifficulty
	}
	base := difficulty.BaseScore()
	raw := base * a.AnswerQuality

	var penalty float64
	if a.OverTime() {
		penalty = raw * s.penaltyRate
	}

	final := math.Max(0, raw-penalty)

	var percentage float64
	if base > 0 {
		percentage = final / base * 100
	}

	return domain.QuestionResult{
		QuestionID:      a.QuestionID,
		Difficulty:      difficulty,
		BaseScore:       base,
		AnswerQuality:   a.AnswerQuality,
		TimeTaken:       a.TimeTaken,
		MaxTime:         a.MaxTime,
		RawScore:        round2(raw),
		TimePenalty:     round2(penalty),
		FinalScore:      round2(final),
		ScorePercentage: round2(percentage),
	}, percentage
}
