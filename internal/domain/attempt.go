package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Defaults applied to absent request fields.
const (
	DefaultRole          = "Software Engineer"
	DefaultTimeTaken     = 0.0
	DefaultMaxTime       = 60.0
	DefaultAnswerQuality = 0.0

	// UnknownCandidate is used when a request reaches the engine without a
	// candidate id. Transports reject such requests before that happens.
	UnknownCandidate = "UNKNOWN"
)

// -----------------------------------------------------------------------------
// QuestionID - opaque identifier echoed back exactly as supplied
// -----------------------------------------------------------------------------

// QuestionID holds the raw JSON token of a question id. Callers send both
// numbers and strings; the token is preserved so the report echoes it verbatim.
type QuestionID struct {
	raw json.RawMessage
}

// NewQuestionID creates a string question id.
func NewQuestionID(s string) QuestionID {
	b, _ := json.Marshal(s)
	return QuestionID{raw: b}
}

// IsZero reports whether the id was absent or null.
func (id QuestionID) IsZero() bool {
	return len(id.raw) == 0
}

// String returns the id as text: strings unquoted, numbers as written.
func (id QuestionID) String() string {
	if id.IsZero() {
		return ""
	}
	if id.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(id.raw, &s); err == nil {
			return s
		}
	}
	return string(id.raw)
}

func (id QuestionID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *QuestionID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		id.raw = nil
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return fmt.Errorf("question_id: %w", err)
	}
	id.raw = buf.Bytes()
	return nil
}

// -----------------------------------------------------------------------------
// Request payload
// -----------------------------------------------------------------------------

// QuestionInput is one question entry as received on the wire. Pointer fields
// distinguish an absent value from an explicit zero.
type QuestionInput struct {
	QuestionID    QuestionID `json:"question_id"`
	Difficulty    *string    `json:"difficulty,omitempty"`
	TimeTaken     *float64   `json:"time_taken,omitempty"`
	MaxTime       *float64   `json:"max_time,omitempty"`
	AnswerQuality *float64   `json:"answer_quality,omitempty"`
}

// Attempt resolves the input into an attempt, substituting defaults for
// absent fields. It never fails.
func (q QuestionInput) Attempt() QuestionAttempt {
	a := QuestionAttempt{
		QuestionID:    q.QuestionID,
		Difficulty:    FallbackDifficulty,
		TimeTaken:     DefaultTimeTaken,
		MaxTime:       DefaultMaxTime,
		AnswerQuality: DefaultAnswerQuality,
	}
	if q.Difficulty != nil {
		a.Difficulty = ParseDifficulty(*q.Difficulty)
	}
	if q.TimeTaken != nil {
		a.TimeTaken = *q.TimeTaken
	}
	if q.MaxTime != nil {
		a.MaxTime = *q.MaxTime
	}
	if q.AnswerQuality != nil {
		a.AnswerQuality = *q.AnswerQuality
	}
	return a
}

// InterviewRequest is the payload scored by the engine.
type InterviewRequest struct {
	CandidateID string          `json:"candidate_id"`
	Role        *string         `json:"role,omitempty"`
	Questions   []QuestionInput `json:"questions"`
}

// Validate performs the transport-boundary checks. Individual question
// entries are never rejected; their missing fields are defaulted instead.
func (r *InterviewRequest) Validate() error {
	if strings.TrimSpace(r.CandidateID) == "" {
		return ErrMissingCandidateID
	}
	if r.Questions == nil {
		return ErrMissingQuestions
	}
	return nil
}

// Candidate returns the candidate id, or UnknownCandidate when empty.
func (r *InterviewRequest) Candidate() string {
	if r.CandidateID == "" {
		return UnknownCandidate
	}
	return r.CandidateID
}

// RoleName returns the role, or DefaultRole when the field was absent.
func (r *InterviewRequest) RoleName() string {
	if r.Role == nil {
		return DefaultRole
	}
	return *r.Role
}

// Attempts resolves every question entry in input order.
func (r *InterviewRequest) Attempts() []QuestionAttempt {
	attempts := make([]QuestionAttempt, 0, len(r.Questions))
	for _, q := range r.Questions {
		attempts = append(attempts, q.Attempt())
	}
	return attempts
}

// DecodeInterviewRequest parses a JSON payload. Unknown fields are ignored.
func DecodeInterviewRequest(data []byte) (*InterviewRequest, error) {
	var req InterviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &req, nil
}

// -----------------------------------------------------------------------------
// QuestionAttempt
// -----------------------------------------------------------------------------

// QuestionAttempt is one candidate submission with all defaults resolved.
type QuestionAttempt struct {
	QuestionID    QuestionID
	Difficulty    Difficulty
	TimeTaken     float64
	MaxTime       float64
	AnswerQuality float64
}

// OverTime reports whether the attempt exceeded its time budget.
func (a QuestionAttempt) OverTime() bool {
	return a.TimeTaken > a.MaxTime
}
