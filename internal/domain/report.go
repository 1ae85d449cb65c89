package domain

// InterviewState is the lifecycle state of a single scoring call.
type InterviewState string

const (
	StateNotStarted InterviewState = "NOT_STARTED"
	StateInProgress InterviewState = "IN_PROGRESS"
	StateCompleted  InterviewState = "COMPLETED"
	StateTerminated InterviewState = "TERMINATED"
)

func (s InterviewState) Valid() bool {
	switch s {
	case StateNotStarted, StateInProgress, StateCompleted, StateTerminated:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s InterviewState) Terminal() bool {
	return s == StateCompleted || s == StateTerminated
}

func (s InterviewState) String() string {
	return string(s)
}

// TerminationReason explains why an interview was cut short.
type TerminationReason string

const (
	ReasonPoorPerformance TerminationReason = "POOR_PERFORMANCE"
)

func (r TerminationReason) String() string {
	return string(r)
}

// Recommendation is the hire tier derived from the final score.
type Recommendation string

const (
	RecommendationStrongHire Recommendation = "Strong Hire"
	RecommendationHire       Recommendation = "Hire"
	RecommendationBorderline Recommendation = "Borderline"
	RecommendationNotReady   Recommendation = "Not Ready"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationStrongHire, RecommendationHire, RecommendationBorderline, RecommendationNotReady:
		return true
	}
	return false
}

func (r Recommendation) String() string {
	return string(r)
}

// QuestionStatus is the pass/fail label of a scored question.
type QuestionStatus string

const (
	StatusPassed QuestionStatus = "Passed"
	StatusFailed QuestionStatus = "Failed"
)

// QuestionResult is the scored form of one attempt. Numeric fields are
// rounded to two decimals.
type QuestionResult struct {
	QuestionID      QuestionID
	Difficulty      Difficulty
	BaseScore       float64
	AnswerQuality   float64
	TimeTaken       float64
	MaxTime         float64
	RawScore        float64
	TimePenalty     float64
	FinalScore      float64
	ScorePercentage float64
}

// StateLogEntry records the tracker state after one scored question.
// It is an audit trail only.
type StateLogEntry struct {
	QuestionID     QuestionID `json:"question_id"`
	ScorePercent   float64    `json:"score_percent"`
	ConsecutiveLow int        `json:"consecutive_low"`
	Difficulty     Difficulty `json:"difficulty"`
	Trend          int        `json:"trend"`
}

// Metrics are the three weighted sub-scores, each on a 0-100 scale.
type Metrics struct {
	Accuracy       float64 `json:"accuracy"`
	TimeEfficiency float64 `json:"time_efficiency"`
	Consistency    float64 `json:"consistency"`
}

// Penalties lists the deductions applied to a question.
type Penalties struct {
	Time float64 `json:"time"`
}

// QuestionBreakdown is the per-question section of the report.
type QuestionBreakdown struct {
	QuestionID      QuestionID     `json:"question_id"`
	Difficulty      Difficulty     `json:"difficulty"`
	ScorePercentage float64        `json:"score_percentage"`
	TimeTaken       float64        `json:"time_taken"`
	TimeLimit       float64        `json:"time_limit"`
	Status          QuestionStatus `json:"status"`
	Penalties       Penalties      `json:"penalties"`
}

// InterviewReport is the final readiness report for one interview.
type InterviewReport struct {
	InterviewID       string              `json:"interview_id"`
	CandidateID       string              `json:"candidate_id"`
	Role              string              `json:"role"`
	FinalScore        float64             `json:"final_score"`
	Recommendation    Recommendation      `json:"recommendation"`
	Metrics           Metrics             `json:"metrics"`
	TerminationReason *TerminationReason  `json:"termination_reason"`
	Questions         []QuestionBreakdown `json:"questions"`
	Status            InterviewState      `json:"status"`
	StateLog          []StateLogEntry     `json:"state_log"`
}

// Terminated reports whether the interview ended early.
func (r *InterviewReport) Terminated() bool {
	return r.Status == StateTerminated
}

// Outcome is what a caller receives: either a report or, for an interview
// with nothing to aggregate, an error-shaped result. Exactly one is set.
type Outcome struct {
	*InterviewReport
	Error string `json:"error,omitempty"`
}

// ReportOutcome wraps a report.
func ReportOutcome(r *InterviewReport) Outcome {
	return Outcome{InterviewReport: r}
}

// NoQuestionsProcessed returns the outcome for an interview with no results.
func NoQuestionsProcessed() Outcome {
	return Outcome{Error: NoQuestionsProcessedMessage}
}

// Empty reports whether the outcome carries no report.
func (o Outcome) Empty() bool {
	return o.InterviewReport == nil
}
