package mcp

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/readiness/internal/domain"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

// Server exposes the scoring engine as MCP tools
type Server struct {
	mcpServer *server.Server
	engine    *scoring.Engine
}

// Config contains configuration for the MCP server
type Config struct {
	Engine  *scoring.Engine
	Version string
}

// NewServer creates a new MCP server. A nil engine falls back to the
// default scoring policy.
func NewServer(cfg Config) *Server {
	engine := cfg.Engine
	if engine == nil {
		engine = scoring.NewDefaultEngine()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{engine: engine}

	s.mcpServer = server.New(server.Info{
		Name:    "readiness",
		Version: version,
	}, server.WithInstructions(`
Readiness scores a completed technical interview and recommends a hiring tier.

Available tools:
- readiness_score: Score an interview (questions in the order they were asked)
- readiness_tiers: Show the scoring weights, pass mark and recommendation tiers

Each question has a difficulty (easy, medium, hard), the seconds taken, the
seconds allowed and an answer quality between 0 and 1. Three consecutive
questions below the pass mark end the interview early.
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("readiness_score").
		Description("Score a completed interview and return the readiness report.").
		Handler(s.handleScore)

	s.mcpServer.Tool("readiness_tiers").
		Description("Describe the scoring model: weights, pass mark and recommendation tiers.").
		Handler(s.handleTiers)
}

// Input/Output types for tools

type QuestionArg struct {
	QuestionID    string   `json:"question_id" jsonschema:"description=Question identifier echoed in the report"`
	Difficulty    string   `json:"difficulty,omitempty" jsonschema:"description=Question difficulty,enum=easy,enum=medium,enum=hard"`
	TimeTaken     *float64 `json:"time_taken,omitempty" jsonschema:"description=Seconds spent on the question"`
	MaxTime       *float64 `json:"max_time,omitempty" jsonschema:"description=Seconds allowed for the question"`
	AnswerQuality *float64 `json:"answer_quality,omitempty" jsonschema:"description=Answer quality between 0 and 1"`
}

type ScoreInput struct {
	CandidateID string        `json:"candidate_id" jsonschema:"required,description=Candidate identifier"`
	Role        string        `json:"role,omitempty" jsonschema:"description=Role interviewed for"`
	Questions   []QuestionArg `json:"questions" jsonschema:"required,description=Questions in the order they were asked"`
}

type ScoreOutput struct {
	Summary string                  `json:"summary"`
	Report  *domain.InterviewReport `json:"report,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

type TiersInput struct{}

type TiersOutput struct {
	Policy      scoring.Policy `json:"policy"`
	Description string         `json:"description"`
}

// request converts tool arguments into the engine's request shape.
func (in ScoreInput) request() *domain.InterviewRequest {
	req := &domain.InterviewRequest{
		CandidateID: in.CandidateID,
		Questions:   make([]domain.QuestionInput, 0, len(in.Questions)),
	}
	if in.Role != "" {
		role := in.Role
		req.Role = &role
	}
	for _, q := range in.Questions {
		qi := domain.QuestionInput{
			TimeTaken:     q.TimeTaken,
			MaxTime:       q.MaxTime,
			AnswerQuality: q.AnswerQuality,
		}
		if q.QuestionID != "" {
			qi.QuestionID = domain.NewQuestionID(q.QuestionID)
		}
		if q.Difficulty != "" {
			d := q.Difficulty
			qi.Difficulty = &d
		}
		req.Questions = append(req.Questions, qi)
	}
	return req
}

func (s *Server) handleScore(ctx context.Context, input ScoreInput) (ScoreOutput, error) {
	if err := ctx.Err(); err != nil {
		return ScoreOutput{}, err
	}

	req := input.request()
	if err := req.Validate(); err != nil {
		return ScoreOutput{}, fmt.Errorf("invalid interview: %w", err)
	}

	outcome, err := s.engine.Score(req)
	if err != nil {
		return ScoreOutput{}, fmt.Errorf("scoring failed: %w", err)
	}

	if outcome.Empty() {
		return ScoreOutput{Summary: outcome.Error, Error: outcome.Error}, nil
	}
	return ScoreOutput{
		Summary: summarize(outcome.InterviewReport),
		Report:  outcome.InterviewReport,
	}, nil
}

func (s *Server) handleTiers(ctx context.Context, input TiersInput) (TiersOutput, error) {
	p := s.engine.Policy()
	return TiersOutput{
		Policy: p,
		Description: fmt.Sprintf(
			"final = %.0f%% accuracy + %.0f%% time efficiency + %.0f%% consistency; "+
				"Strong Hire >= %g, Hire >= %g, Borderline >= %g, otherwise Not Ready; "+
				"questions below %g%% fail and %d failures in a row end the interview",
			p.Weights.Accuracy*100, p.Weights.TimeEfficiency*100, p.Weights.Consistency*100,
			p.Tiers.StrongHire, p.Tiers.Hire, p.Tiers.Borderline,
			p.LowScoreThreshold, p.TerminationStreak,
		),
	}, nil
}

// summarize renders a one-paragraph overview of a report.
func summarize(r *domain.InterviewReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %g, %s.", r.CandidateID, r.Role, r.FinalScore, r.Recommendation)
	fmt.Fprintf(&b, " Accuracy %g, time efficiency %g, consistency %g.",
		r.Metrics.Accuracy, r.Metrics.TimeEfficiency, r.Metrics.Consistency)
	if r.TerminationReason != nil {
		fmt.Fprintf(&b, " Terminated after %d questions: %s.", len(r.Questions), *r.TerminationReason)
	}
	return b.String()
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
