package scoring

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// Engine scores interviews. It holds only immutable configuration and is
// safe for concurrent use; every call works on its own InterviewContext.
type Engine struct {
	policy     Policy
	scorer     *Scorer
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewEngine validates the policy and creates an engine. A nil logger falls
// back to slog.Default.
func NewEngine(p Policy, logger *slog.Logger) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		policy:     p,
		scorer:     NewScorer(p),
		aggregator: NewAggregator(p),
		logger:     logger,
	}, nil
}

// NewDefaultEngine creates an engine with DefaultPolicy.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultPolicy(), nil)
	if err != nil {
		panic(fmt.Sprintf("default policy invalid: %v", err))
	}
	return e
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Walk scores questions in input order until the input is exhausted or the
// low-score streak reaches the termination limit. The question that finds
// the streak already at the limit is neither scored nor logged.
func (e *Engine) Walk(req *domain.InterviewRequest) *InterviewContext {
	ctx := NewInterviewContext(req)
	ctx.start()

	for _, q := range req.Questions {
		if ctx.ConsecutiveLowScores >= e.policy.TerminationStreak {
			ctx.terminate(domain.ReasonPoorPerformance)
			break
		}
		result, percentage := e.scorer.Score(q.Attempt())
		ctx.record(result, percentage, e.policy)
	}

	ctx.finish(e.policy.TerminationStreak)
	return ctx
}

// Aggregate builds the report for a finished walk.
func (e *Engine) Aggregate(ctx *InterviewContext) (*domain.InterviewReport, error) {
	return e.aggregator.Aggregate(ctx)
}

// Process walks and aggregates one interview.
func (e *Engine) Process(req *domain.InterviewRequest) (*domain.InterviewReport, error) {
	ctx := e.Walk(req)

	report, err := e.aggregator.Aggregate(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuestionsProcessed) {
			e.logger.Debug("interview produced no results",
				"candidate_id", ctx.CandidateID,
				"status", ctx.State,
			)
			return nil, err
		}
		return nil, fmt.Errorf("aggregate interview %s: %w", ctx.InterviewID, err)
	}

	e.logger.Debug("interview scored",
		"candidate_id", report.CandidateID,
		"status", report.Status,
		"questions", len(report.Questions),
		"final_score", report.FinalScore,
		"recommendation", report.Recommendation,
	)
	return report, nil
}

// Score processes req and converts the empty-interview error into its
// error-shaped outcome. Any other error is returned unchanged.
func (e *Engine) Score(req *domain.InterviewRequest) (domain.Outcome, error) {
	report, err := e.Process(req)
	if errors.Is(err, domain.ErrNoQuestionsProcessed) {
		return domain.NoQuestionsProcessed(), nil
	}
	if err != nil {
		return domain.Outcome{}, err
	}
	return domain.ReportOutcome(report), nil
}
