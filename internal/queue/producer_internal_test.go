package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// fakePublisher fails the first failN publishes with err.
type fakePublisher struct {
	mu     sync.Mutex
	failN  int
	err    error
	calls  int
	queues []string
	sent   []any
}

func (f *fakePublisher) PublishJSON(ctx context.Context, queue string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.failN {
		return f.err
	}
	f.queues = append(f.queues, queue)
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		BreakerThreshold: 10,
		BreakerTimeout:   time.Minute,
	}
}

func TestIsRetryablePublishError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not connected", ErrNotConnected, true},
		{"broker error", errors.New("channel closed"), true},
		{"encode", fmt.Errorf("%w: bad value", ErrEncode), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("publish: %w", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryablePublishError(tt.err); got != tt.want {
				t.Errorf("isRetryablePublishError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewProducer_Defaults(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, DefaultQueues(), ProducerConfig{})

	if err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()}); err != nil {
		t.Fatalf("PublishResult() error = %v", err)
	}
	if got := pub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestProducer_PublishScoreJob(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, DefaultQueues(), testProducerConfig())

	job := &ScoreJob{Request: domain.InterviewRequest{CandidateID: "C1", Questions: []domain.QuestionInput{}}}
	if err := p.PublishScoreJob(t.Context(), job); err != nil {
		t.Fatalf("PublishScoreJob() error = %v", err)
	}

	if job.ID == uuid.Nil {
		t.Error("job id should be assigned")
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt should be assigned")
	}
	if len(pub.queues) != 1 || pub.queues[0] != DefaultJobQueue {
		t.Errorf("queues = %v, want [%s]", pub.queues, DefaultJobQueue)
	}
}

func TestProducer_PublishResult_CustomQueue(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, Queues{Jobs: "jobs", Results: "results"}, testProducerConfig())

	result := &ScoreResult{JobID: uuid.New(), Status: StatusCompleted}
	if err := p.PublishResult(t.Context(), result); err != nil {
		t.Fatalf("PublishResult() error = %v", err)
	}

	if result.CompletedAt.IsZero() {
		t.Error("CompletedAt should be assigned")
	}
	if len(pub.queues) != 1 || pub.queues[0] != "results" {
		t.Errorf("queues = %v, want [results]", pub.queues)
	}
}

func TestProducer_RetriesTransientFailures(t *testing.T) {
	pub := &fakePublisher{failN: 2, err: ErrNotConnected}
	p := NewProducer(pub, DefaultQueues(), testProducerConfig())

	if err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()}); err != nil {
		t.Fatalf("PublishResult() error = %v, want success on third attempt", err)
	}
	if got := pub.callCount(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestProducer_GivesUpAfterMaxAttempts(t *testing.T) {
	pub := &fakePublisher{failN: 100, err: ErrNotConnected}
	p := NewProducer(pub, DefaultQueues(), testProducerConfig())

	err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()})
	if err == nil {
		t.Fatal("PublishResult() should fail")
	}
	if got := pub.callCount(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestProducer_EncodeErrorNotRetried(t *testing.T) {
	pub := &fakePublisher{failN: 100, err: fmt.Errorf("%w: unsupported type", ErrEncode)}
	p := NewProducer(pub, DefaultQueues(), testProducerConfig())

	if err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()}); err == nil {
		t.Fatal("PublishResult() should fail")
	}
	if got := pub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestProducer_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	pub := &fakePublisher{failN: 100, err: ErrNotConnected}
	cfg := testProducerConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerThreshold = 2
	p := NewProducer(pub, DefaultQueues(), cfg)

	for i := 0; i < 2; i++ {
		if err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()}); err == nil {
			t.Fatalf("publish %d should fail", i)
		}
	}
	before := pub.callCount()

	if err := p.PublishResult(t.Context(), &ScoreResult{JobID: uuid.New()}); err == nil {
		t.Fatal("publish with open breaker should fail")
	}
	if got := pub.callCount(); got != before {
		t.Errorf("calls = %d, want %d while the breaker is open", got, before)
	}
}
