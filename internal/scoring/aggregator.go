package scoring

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// Aggregator turns the results of a finished walk into a report. It reads
// the context and never modifies it, so repeated calls give equal reports.
type Aggregator struct {
	policy Policy
}

// NewAggregator creates an aggregator for the given policy.
func NewAggregator(p Policy) *Aggregator {
	return &Aggregator{policy: p}
}

// Aggregate builds the report. It returns domain.ErrNoQuestionsProcessed
// when the context holds no results.
func (a *Aggregator) Aggregate(ctx *InterviewContext) (*domain.InterviewReport, error) {
	if len(ctx.Results) == 0 {
		return nil, domain.ErrNoQuestionsProcessed
	}

	metrics, err := a.Metrics(ctx.Results)
	if err != nil {
		return nil, err
	}

	w := a.policy.Weights
	finalScore := round1(metrics.Accuracy*w.Accuracy +
		metrics.TimeEfficiency*w.TimeEfficiency +
		metrics.Consistency*w.Consistency)
	if !finite(finalScore) {
		return nil, fmt.Errorf("final score: %w", domain.ErrNonFiniteScore)
	}

	report := &domain.InterviewReport{
		InterviewID:    ctx.InterviewID,
		CandidateID:    ctx.CandidateID,
		Role:           ctx.Role,
		FinalScore:     finalScore,
		Recommendation: a.policy.Recommend(finalScore),
		Metrics: domain.Metrics{
			Accuracy:       round1(metrics.Accuracy),
			TimeEfficiency: round1(metrics.TimeEfficiency),
			Consistency:    round1(metrics.Consistency),
		},
		Questions: a.breakdown(ctx.Results),
		Status:    ctx.State,
		StateLog:  append([]domain.StateLogEntry(nil), ctx.StateLog...),
	}
	if ctx.TerminationReason != nil {
		reason := *ctx.TerminationReason
		report.TerminationReason = &reason
	}

	return report, nil
}

// Metrics computes the unrounded sub-metrics over a non-empty result list.
func (a *Aggregator) Metrics(results []domain.QuestionResult) (domain.Metrics, error) {
	if len(results) == 0 {
		return domain.Metrics{}, domain.ErrNoQuestionsProcessed
	}

	accuracy := accuracy(results)
	if !finite(accuracy) {
		return domain.Metrics{}, fmt.Errorf("accuracy: %w", domain.ErrNonFiniteScore)
	}

	efficiency, err := timeEfficiency(results)
	if err != nil {
		return domain.Metrics{}, err
	}

	consistency := consistency(results)
	if !finite(consistency) {
		return domain.Metrics{}, fmt.Errorf("consistency: %w", domain.ErrNonFiniteScore)
	}

	return domain.Metrics{
		Accuracy:       accuracy,
		TimeEfficiency: efficiency,
		Consistency:    consistency,
	}, nil
}

// accuracy is points obtained over points available, so harder questions
// weigh more than a plain mean of percentages would give them.
func accuracy(results []domain.QuestionResult) float64 {
	var obtained, available float64
	for _, r := range results {
		obtained += r.FinalScore
		available += r.BaseScore
	}
	if available <= 0 {
		return 0
	}
	return obtained / available * 100
}

// timeEfficiency averages per-question efficiency. Within budget scores 100;
// beyond it the overrun ratio is subtracted, so double the budget scores 0.
func timeEfficiency(results []domain.QuestionResult) (float64, error) {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.TimeTaken <= r.MaxTime {
			scores = append(scores, 100)
			continue
		}
		ratio := (r.TimeTaken - r.MaxTime) / r.MaxTime
		if !finite(ratio) {
			return 0, fmt.Errorf("time efficiency of question %s (max_time %v): %w",
				r.QuestionID, r.MaxTime, domain.ErrNonFiniteScore)
		}
		scores = append(scores, math.Max(0, 100-ratio*100))
	}
	return mean(scores), nil
}

// consistency is 100 minus the population standard deviation of the
// question percentages. A single question is perfectly consistent.
func consistency(results []domain.QuestionResult) float64 {
	if len(results) < 2 {
		return 100
	}
	percentages := make([]float64, len(results))
	for i, r := range results {
		percentages[i] = r.ScorePercentage
	}
	return math.Max(0, 100-populationStdDev(percentages))
}

func (a *Aggregator) breakdown(results []domain.QuestionResult) []domain.QuestionBreakdown {
	out := make([]domain.QuestionBreakdown, 0, len(results))
	for _, r := range results {
		status := domain.StatusPassed
		if a.policy.IsLow(r.ScorePercentage) {
			status = domain.StatusFailed
		}
		out = append(out, domain.QuestionBreakdown{
			QuestionID:      r.QuestionID,
			Difficulty:      r.Difficulty,
			ScorePercentage: round1(r.ScorePercentage),
			TimeTaken:       r.TimeTaken,
			TimeLimit:       r.MaxTime,
			Status:          status,
			Penalties:       domain.Penalties{Time: r.TimePenalty},
		})
	}
	return out
}
