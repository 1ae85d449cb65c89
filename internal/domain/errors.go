package domain

import "errors"

// NoQuestionsProcessedMessage is the wire message of the empty-interview outcome.
const NoQuestionsProcessedMessage = "No questions processed"

// Scoring errors
var (
	// ErrNoQuestionsProcessed is returned when an interview produced no
	// question results to aggregate.
	ErrNoQuestionsProcessed = errors.New("no questions processed")

	// ErrNonFiniteScore is returned when arithmetic on the inputs produced
	// NaN or an infinity, which cannot be reported.
	ErrNonFiniteScore = errors.New("non-finite score")
)

// Request errors
var (
	ErrInvalidRequest     = errors.New("invalid interview request")
	ErrMissingCandidateID = errors.New("candidate_id is required")
	ErrMissingQuestions   = errors.New("questions is required")
)

// Policy errors
var (
	ErrInvalidPolicy = errors.New("invalid scoring policy")
)
