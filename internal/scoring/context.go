package scoring

import (
	"github.com/felixgeelhaar/readiness/internal/domain"
)

// InterviewContext carries all mutable state of one scoring call. A fresh
// context is built per call and discarded once the report is produced.
type InterviewContext struct {
	InterviewID string
	CandidateID string
	Role        string

	State             domain.InterviewState
	Results           []domain.QuestionResult
	StateLog          []domain.StateLogEntry
	TerminationReason *domain.TerminationReason

	ConsecutiveLowScores  int
	ConsecutiveHighScores int
	DifficultyTrend       int
}

// NewInterviewContext creates a context in the NOT_STARTED state. The
// candidate id doubles as the interview id.
func NewInterviewContext(req *domain.InterviewRequest) *InterviewContext {
	candidate := req.Candidate()
	return &InterviewContext{
		InterviewID: candidate,
		CandidateID: candidate,
		Role:        req.RoleName(),
		State:       domain.StateNotStarted,
		Results:     make([]domain.QuestionResult, 0, len(req.Questions)),
		StateLog:    make([]domain.StateLogEntry, 0, len(req.Questions)),
	}
}

func (c *InterviewContext) start() {
	c.State = domain.StateInProgress
}

// record appends a scored question and advances the counters. percentage is
// the unrounded value.
func (c *InterviewContext) record(result domain.QuestionResult, percentage float64, p Policy) {
	c.Results = append(c.Results, result)

	if p.IsLow(percentage) {
		c.ConsecutiveLowScores++
	} else {
		c.ConsecutiveLowScores = 0
	}
	if percentage >= p.HighScoreThreshold {
		c.ConsecutiveHighScores++
	} else {
		c.ConsecutiveHighScores = 0
	}

	switch {
	case c.ConsecutiveHighScores >= p.TrendWindow:
		c.DifficultyTrend = 1
	case c.ConsecutiveLowScores >= p.TrendWindow:
		c.DifficultyTrend = -1
	default:
		c.DifficultyTrend = 0
	}

	c.StateLog = append(c.StateLog, domain.StateLogEntry{
		QuestionID:     result.QuestionID,
		ScorePercent:   round1(percentage),
		ConsecutiveLow: c.ConsecutiveLowScores,
		Difficulty:     result.Difficulty,
		Trend:          c.DifficultyTrend,
	})
}

// terminate moves the context to TERMINATED. The reason is set only once.
func (c *InterviewContext) terminate(reason domain.TerminationReason) {
	c.State = domain.StateTerminated
	if c.TerminationReason == nil {
		c.TerminationReason = &reason
	}
}

// finish performs the closing transition. A streak completed by the last
// processed question still terminates the interview.
func (c *InterviewContext) finish(streak int) {
	if c.State != domain.StateTerminated && c.ConsecutiveLowScores >= streak {
		c.terminate(domain.ReasonPoorPerformance)
	}
	if c.State != domain.StateTerminated {
		c.State = domain.StateCompleted
	}
}
