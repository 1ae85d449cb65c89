package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/readiness/internal/domain"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

// recordingAcker records how a delivery was settled.
type recordingAcker struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
	reject  bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reject = true
	a.requeue = requeue
	return nil
}

// capturePublisher collects published results.
type capturePublisher struct {
	mu      sync.Mutex
	err     error
	results []*ScoreResult
}

func (p *capturePublisher) PublishResult(ctx context.Context, result *ScoreResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.results = append(p.results, result)
	return nil
}

func (p *capturePublisher) last(t *testing.T) *ScoreResult {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		t.Fatal("no result published")
	}
	return p.results[len(p.results)-1]
}

func delivery(t *testing.T, acker amqp.Acknowledger, body any) amqp.Delivery {
	t.Helper()

	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal delivery: %v", err)
		}
	}
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: raw}
}

func testEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	return scoring.NewDefaultEngine()
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func hardJob() *ScoreJob {
	return NewScoreJob(domain.InterviewRequest{
		CandidateID: "C2",
		Role:        str("Backend Engineer"),
		Questions: []domain.QuestionInput{{
			QuestionID:    domain.NewQuestionID("1"),
			Difficulty:    str("hard"),
			TimeTaken:     f64(130),
			MaxTime:       f64(100),
			AnswerQuality: f64(0.8),
		}},
	})
}

func TestScoreHandler(t *testing.T) {
	handler := ScoreHandler(testEngine(t))

	t.Run("completed", func(t *testing.T) {
		job := hardJob()
		result, err := handler(t.Context(), job)
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if result.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", result.Status)
		}
		if result.JobID != job.ID {
			t.Errorf("JobID = %s, want %s", result.JobID, job.ID)
		}
		if result.Report == nil || result.Report.FinalScore != 72.4 {
			t.Errorf("Report = %+v, want final score 72.4", result.Report)
		}
	})

	t.Run("empty interview", func(t *testing.T) {
		job := NewScoreJob(domain.InterviewRequest{CandidateID: "C4", Questions: []domain.QuestionInput{}})
		result, err := handler(t.Context(), job)
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if result.Status != StatusEmpty {
			t.Errorf("Status = %q, want empty", result.Status)
		}
		if result.Error != domain.NoQuestionsProcessedMessage {
			t.Errorf("Error = %q, want %q", result.Error, domain.NoQuestionsProcessedMessage)
		}
		if result.Report != nil {
			t.Error("empty result should carry no report")
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		job := NewScoreJob(domain.InterviewRequest{Questions: []domain.QuestionInput{}})
		if _, err := handler(t.Context(), job); !errors.Is(err, domain.ErrMissingCandidateID) {
			t.Errorf("handler error = %v, want ErrMissingCandidateID", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if _, err := handler(ctx, hardJob()); !errors.Is(err, context.Canceled) {
			t.Errorf("handler error = %v, want context.Canceled", err)
		}
	})
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, nil, nil, ConsumerConfig{})
	def := DefaultConsumerConfig()

	if c.workers != def.Workers || c.prefetch != def.Prefetch || c.jobTimeout != def.JobTimeout {
		t.Errorf("consumer = {%d %d %v}, want defaults {%d %d %v}",
			c.workers, c.prefetch, c.jobTimeout, def.Workers, def.Prefetch, def.JobTimeout)
	}
}

func TestProcessMessage(t *testing.T) {
	engine := testEngine(t)

	t.Run("scores and acks", func(t *testing.T) {
		pub := &capturePublisher{}
		c := NewConsumer(nil, ScoreHandler(engine), pub, ConsumerConfig{})
		acker := &recordingAcker{}
		job := hardJob()

		c.processMessage(t.Context(), 0, delivery(t, acker, job))

		if !acker.acked {
			t.Error("message should be acked")
		}
		result := pub.last(t)
		if result.JobID != job.ID {
			t.Errorf("JobID = %s, want %s", result.JobID, job.ID)
		}
		if result.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", result.Status)
		}
		if result.CompletedAt.IsZero() {
			t.Error("CompletedAt should be set")
		}
		if result.Report.Recommendation != domain.RecommendationHire {
			t.Errorf("Recommendation = %q, want Hire", result.Report.Recommendation)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		pub := &capturePublisher{}
		c := NewConsumer(nil, ScoreHandler(engine), pub, ConsumerConfig{})
		acker := &recordingAcker{}

		c.processMessage(t.Context(), 0, delivery(t, acker, `{"id":`))

		if !acker.reject || acker.requeue {
			t.Errorf("acker = %+v, want reject without requeue", acker)
		}
		if len(pub.results) != 0 {
			t.Error("nothing should be published for a malformed job")
		}
	})

	t.Run("invalid request publishes failure", func(t *testing.T) {
		pub := &capturePublisher{}
		c := NewConsumer(nil, ScoreHandler(engine), pub, ConsumerConfig{})
		acker := &recordingAcker{}
		job := NewScoreJob(domain.InterviewRequest{CandidateID: "C5"})

		c.processMessage(t.Context(), 0, delivery(t, acker, job))

		if !acker.acked {
			t.Error("message should be acked")
		}
		result := pub.last(t)
		if result.Status != StatusFailed {
			t.Errorf("Status = %q, want failed", result.Status)
		}
		if !strings.Contains(result.Error, "questions") {
			t.Errorf("Error = %q, want missing questions", result.Error)
		}
	})

	t.Run("empty interview", func(t *testing.T) {
		pub := &capturePublisher{}
		c := NewConsumer(nil, ScoreHandler(engine), pub, ConsumerConfig{})
		acker := &recordingAcker{}
		job := NewScoreJob(domain.InterviewRequest{CandidateID: "C4", Questions: []domain.QuestionInput{}})

		c.processMessage(t.Context(), 0, delivery(t, acker, job))

		if got := pub.last(t).Status; got != StatusEmpty {
			t.Errorf("Status = %q, want empty", got)
		}
	})

	t.Run("handler timeout", func(t *testing.T) {
		pub := &capturePublisher{}
		slow := func(ctx context.Context, job *ScoreJob) (*ScoreResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		c := NewConsumer(nil, slow, pub, ConsumerConfig{JobTimeout: 10 * time.Millisecond})
		acker := &recordingAcker{}

		c.processMessage(t.Context(), 0, delivery(t, acker, hardJob()))

		result := pub.last(t)
		if result.Status != StatusFailed || result.Error != "scoring timed out" {
			t.Errorf("result = {%q %q}, want failed / scoring timed out", result.Status, result.Error)
		}
	})

	t.Run("nil result is a failure", func(t *testing.T) {
		pub := &capturePublisher{}
		none := func(ctx context.Context, job *ScoreJob) (*ScoreResult, error) { return nil, nil }
		c := NewConsumer(nil, none, pub, ConsumerConfig{})

		c.processMessage(t.Context(), 0, delivery(t, &recordingAcker{}, hardJob()))

		if got := pub.last(t).Status; got != StatusFailed {
			t.Errorf("Status = %q, want failed", got)
		}
	})

	t.Run("publish failure requeues once", func(t *testing.T) {
		pub := &capturePublisher{err: ErrNotConnected}
		c := NewConsumer(nil, ScoreHandler(engine), pub, ConsumerConfig{})

		first := &recordingAcker{}
		c.processMessage(t.Context(), 0, delivery(t, first, hardJob()))
		if !first.nacked || !first.requeue || first.acked {
			t.Errorf("first delivery = %+v, want nack with requeue", first)
		}

		second := &recordingAcker{}
		msg := delivery(t, second, hardJob())
		msg.Redelivered = true
		c.processMessage(t.Context(), 0, msg)
		if !second.acked || second.nacked {
			t.Errorf("redelivery = %+v, want ack", second)
		}
	})
}

func TestFailedResult(t *testing.T) {
	id := uuid.New()

	r := failedResult(id, errors.New("boom"))
	if r.JobID != id || r.Status != StatusFailed || r.Error != "boom" {
		t.Errorf("failedResult = %+v", r)
	}

	r = failedResult(id, context.DeadlineExceeded)
	if r.Error != "scoring timed out" {
		t.Errorf("Error = %q, want scoring timed out", r.Error)
	}
}

func TestResultConsumer_Dispatch(t *testing.T) {
	rc := NewResultConsumer(nil)
	id := uuid.New()

	var got *ScoreResult
	rc.Subscribe(id.String(), func(r *ScoreResult) { got = r })

	t.Run("subscribed", func(t *testing.T) {
		acker := &recordingAcker{}
		rc.dispatch(delivery(t, acker, ScoreResult{JobID: id, Status: StatusCompleted}))

		if !acker.acked {
			t.Error("dispatched result should be acked")
		}
		if got == nil || got.JobID != id {
			t.Errorf("handler got %+v, want job %s", got, id)
		}
	})

	t.Run("unknown job requeued", func(t *testing.T) {
		acker := &recordingAcker{}
		rc.dispatch(delivery(t, acker, ScoreResult{JobID: uuid.New(), Status: StatusCompleted}))

		if !acker.nacked || !acker.requeue {
			t.Errorf("acker = %+v, want nack with requeue", acker)
		}
	})

	t.Run("malformed rejected", func(t *testing.T) {
		acker := &recordingAcker{}
		rc.dispatch(delivery(t, acker, `not json`))

		if !acker.reject || acker.requeue {
			t.Errorf("acker = %+v, want reject without requeue", acker)
		}
	})

	t.Run("unsubscribed", func(t *testing.T) {
		rc.Unsubscribe(id.String())
		acker := &recordingAcker{}
		rc.dispatch(delivery(t, acker, ScoreResult{JobID: id}))

		if !acker.nacked {
			t.Error("result for unsubscribed job should be nacked")
		}
	})
}

func TestResultConsumer_Await(t *testing.T) {
	t.Run("delivers result", func(t *testing.T) {
		rc := NewResultConsumer(nil)
		id := uuid.New()
		wait := rc.Await(id.String())

		go rc.dispatch(delivery(t, &recordingAcker{}, ScoreResult{JobID: id, Status: StatusEmpty}))

		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		result, err := wait(ctx)
		if err != nil {
			t.Fatalf("wait error = %v", err)
		}
		if result.Status != StatusEmpty {
			t.Errorf("Status = %q, want empty", result.Status)
		}

		rc.handlersMu.RLock()
		defer rc.handlersMu.RUnlock()
		if len(rc.handlers) != 0 {
			t.Error("Await should unsubscribe when done")
		}
	})

	t.Run("context ends", func(t *testing.T) {
		rc := NewResultConsumer(nil)
		wait := rc.Await(uuid.New().String())

		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		defer cancel()
		if _, err := wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("wait error = %v, want deadline exceeded", err)
		}
	})
}

func TestStartWithoutConnection(t *testing.T) {
	conn := &Connection{queues: DefaultQueues()}

	if err := NewConsumer(conn, nil, nil, ConsumerConfig{}).Start(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Consumer.Start() = %v, want ErrNotConnected", err)
	}
	if err := NewResultConsumer(conn).Start(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ResultConsumer.Start() = %v, want ErrNotConnected", err)
	}
}
