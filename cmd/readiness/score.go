package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/readiness/internal/config"
	"github.com/felixgeelhaar/readiness/internal/domain"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

type scoreFlags struct {
	format string
	out    string
	failOn string
}

func newScoreCmd() *cobra.Command {
	f := &scoreFlags{}

	cmd := &cobra.Command{
		Use:   "score <file|->",
		Short: "Score an interview payload locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runScore(cfg, args[0], f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	addOutputFlags(cmd, f)
	return cmd
}

func addOutputFlags(cmd *cobra.Command, f *scoreFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.format, "format", "text", "Output format: text or json")
	flags.StringVar(&f.out, "out", "", "Output file path (default: stdout)")
	flags.StringVar(&f.failOn, "fail-on", "", "Exit 2 if the recommendation is at or below this tier (e.g. Borderline)")
}

// loadConfig reads the file named by --config, or the default location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, exitError(3, "failed to load config: %v", err)
	}
	return cfg, nil
}

func runScore(cfg *config.Config, path string, f *scoreFlags, stdin io.Reader, stdout io.Writer) error {
	req, err := readRequest(path, stdin)
	if err != nil {
		return err
	}

	engine, err := scoring.NewEngine(cfg.Scoring, nil)
	if err != nil {
		return exitError(3, "invalid scoring policy: %v", err)
	}

	outcome, err := engine.Score(req)
	if err != nil {
		return exitError(4, "scoring failed: %v", err)
	}

	return emit(outcome, f, stdout)
}

// readRequest loads and validates a payload from path, or stdin for "-".
func readRequest(path string, stdin io.Reader) (*domain.InterviewRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, exitError(3, "failed to read interview: %v", err)
	}

	req, err := domain.DecodeInterviewRequest(data)
	if err != nil {
		return nil, exitError(3, "invalid interview: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, exitError(3, "invalid interview: %v", err)
	}
	return req, nil
}

// emit renders the outcome and applies --fail-on.
func emit(outcome domain.Outcome, f *scoreFlags, stdout io.Writer) error {
	var output string
	switch f.format {
	case "json":
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		output = string(data) + "\n"
	case "text":
		output = renderText(outcome)
	default:
		return exitError(3, "unknown format: %s", f.format)
	}

	if f.out != "" {
		if err := os.WriteFile(f.out, []byte(output), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else {
		fmt.Fprint(stdout, output)
	}

	if f.failOn != "" && !outcome.Empty() {
		threshold, ok := tierRank(domain.Recommendation(f.failOn))
		if !ok {
			return exitError(3, "unknown tier for --fail-on: %s", f.failOn)
		}
		if rank, _ := tierRank(outcome.Recommendation); rank >= threshold {
			return exitError(2, "recommendation %s meets fail threshold %s", outcome.Recommendation, f.failOn)
		}
	}
	return nil
}

// tierRank orders recommendations from best (0) to worst. Matching ignores
// case so "not ready" works on the command line.
func tierRank(r domain.Recommendation) (int, bool) {
	tiers := []domain.Recommendation{
		domain.RecommendationStrongHire,
		domain.RecommendationHire,
		domain.RecommendationBorderline,
		domain.RecommendationNotReady,
	}
	for i, t := range tiers {
		if strings.EqualFold(string(t), string(r)) {
			return i, true
		}
	}
	return 0, false
}

// renderText formats an outcome for a terminal.
func renderText(outcome domain.Outcome) string {
	if outcome.Empty() {
		return outcome.Error + "\n"
	}
	r := outcome.InterviewReport

	var b strings.Builder
	fmt.Fprintf(&b, "Candidate:      %s (%s)\n", r.CandidateID, r.Role)
	fmt.Fprintf(&b, "Final score:    %g / 100\n", r.FinalScore)
	fmt.Fprintf(&b, "Recommendation: %s\n", r.Recommendation)
	fmt.Fprintf(&b, "Status:         %s\n", r.Status)
	if r.TerminationReason != nil {
		fmt.Fprintf(&b, "Terminated:     %s after %d questions\n", *r.TerminationReason, len(r.Questions))
	}

	b.WriteString("\nMetrics\n")
	fmt.Fprintf(&b, "  Accuracy         %g\n", r.Metrics.Accuracy)
	fmt.Fprintf(&b, "  Time efficiency  %g\n", r.Metrics.TimeEfficiency)
	fmt.Fprintf(&b, "  Consistency      %g\n", r.Metrics.Consistency)

	b.WriteString("\nQuestions\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tDifficulty\tScore\tTime\tStatus\tPenalty")
	for _, q := range r.Questions {
		penalty := "-"
		if q.Penalties.Time > 0 {
			penalty = fmt.Sprintf("%g", q.Penalties.Time)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%g%%\t%g/%g\t%s\t%s\n",
			q.QuestionID, q.Difficulty, q.ScorePercentage, q.TimeTaken, q.TimeLimit, q.Status, penalty)
	}
	tw.Flush()

	return b.String()
}
