package scoring

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// Policy holds the constants of the scoring model. A Policy is a value:
// engines copy it at construction and never change it afterwards.
type Policy struct {
	// TimePenaltyRate is the flat share of the raw score deducted when a
	// question runs over its time budget.
	TimePenaltyRate float64 `yaml:"time_penalty_rate" json:"time_penalty_rate"`

	// LowScoreThreshold is the pass mark in percent. Questions below it
	// extend the termination streak.
	LowScoreThreshold float64 `yaml:"low_score_threshold" json:"low_score_threshold"`

	// TerminationStreak is the number of consecutive low scores that ends
	// the interview.
	TerminationStreak int `yaml:"termination_streak" json:"termination_streak"`

	// HighScoreThreshold and TrendWindow drive the recorded difficulty trend.
	HighScoreThreshold float64 `yaml:"high_score_threshold" json:"high_score_threshold"`
	TrendWindow        int     `yaml:"trend_window" json:"trend_window"`

	Weights Weights `yaml:"weights" json:"weights"`
	Tiers   Tiers   `yaml:"tiers" json:"tiers"`
}

// Weights combine the three sub-metrics into the final score.
type Weights struct {
	Accuracy       float64 `yaml:"accuracy" json:"accuracy"`
	TimeEfficiency float64 `yaml:"time_efficiency" json:"time_efficiency"`
	Consistency    float64 `yaml:"consistency" json:"consistency"`
}

// Tiers are the minimum final scores of each recommendation.
type Tiers struct {
	StrongHire float64 `yaml:"strong_hire" json:"strong_hire"`
	Hire       float64 `yaml:"hire" json:"hire"`
	Borderline float64 `yaml:"borderline" json:"borderline"`
}

// DefaultPolicy returns the standard scoring model.
func DefaultPolicy() Policy {
	return Policy{
		TimePenaltyRate:    0.20,
		LowScoreThreshold:  40,
		TerminationStreak:  3,
		HighScoreThreshold: 80,
		TrendWindow:        2,
		Weights: Weights{
			Accuracy:       0.6,
			TimeEfficiency: 0.2,
			Consistency:    0.2,
		},
		Tiers: Tiers{
			StrongHire: 85,
			Hire:       70,
			Borderline: 50,
		},
	}
}

// Validate checks that the policy describes a usable model.
func (p Policy) Validate() error {
	if p.TimePenaltyRate < 0 || p.TimePenaltyRate > 1 {
		return fmt.Errorf("%w: time_penalty_rate %v outside [0,1]", domain.ErrInvalidPolicy, p.TimePenaltyRate)
	}
	if p.LowScoreThreshold < 0 || p.LowScoreThreshold > 100 {
		return fmt.Errorf("%w: low_score_threshold %v outside [0,100]", domain.ErrInvalidPolicy, p.LowScoreThreshold)
	}
	if p.HighScoreThreshold < p.LowScoreThreshold {
		return fmt.Errorf("%w: high_score_threshold %v below low_score_threshold %v",
			domain.ErrInvalidPolicy, p.HighScoreThreshold, p.LowScoreThreshold)
	}
	if p.TerminationStreak < 1 {
		return fmt.Errorf("%w: termination_streak must be at least 1", domain.ErrInvalidPolicy)
	}
	if p.TrendWindow < 1 {
		return fmt.Errorf("%w: trend_window must be at least 1", domain.ErrInvalidPolicy)
	}

	w := p.Weights
	if w.Accuracy < 0 || w.TimeEfficiency < 0 || w.Consistency < 0 {
		return fmt.Errorf("%w: weights must be non-negative", domain.ErrInvalidPolicy)
	}
	if sum := w.Accuracy + w.TimeEfficiency + w.Consistency; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: weights sum to %v, want 1", domain.ErrInvalidPolicy, sum)
	}

	t := p.Tiers
	if !(t.StrongHire >= t.Hire && t.Hire >= t.Borderline && t.Borderline >= 0) {
		return fmt.Errorf("%w: tiers must satisfy strong_hire >= hire >= borderline >= 0", domain.ErrInvalidPolicy)
	}
	return nil
}

// Recommend maps a final score to a tier. The first matching tier from the
// top wins.
func (p Policy) Recommend(finalScore float64) domain.Recommendation {
	switch {
	case finalScore >= p.Tiers.StrongHire:
		return domain.RecommendationStrongHire
	case finalScore >= p.Tiers.Hire:
		return domain.RecommendationHire
	case finalScore >= p.Tiers.Borderline:
		return domain.RecommendationBorderline
	default:
		return domain.RecommendationNotReady
	}
}

// IsLow reports whether a question percentage counts toward the streak.
func (p Policy) IsLow(percentage float64) bool {
	return percentage < p.LowScoreThreshold
}
