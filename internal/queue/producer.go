package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
)

// Publisher sends a JSON message to a named queue. *Connection implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// ProducerConfig tunes the resilience wrapped around publishing.
type ProducerConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// BreakerThreshold is the number of consecutive failed publishes that
	// opens the circuit; BreakerTimeout is how long it stays open.
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// DefaultProducerConfig returns sensible defaults
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxAttempts:      3,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Producer publishes score jobs and results
type Producer struct {
	pub     Publisher
	queues  Queues
	breaker circuitbreaker.CircuitBreaker[struct{}]
	retrier retry.Retry[struct{}]
}

// NewProducer creates a producer that retries transient publish failures and
// stops trying for a while once the broker keeps failing.
func NewProducer(pub Publisher, queues Queues, cfg ProducerConfig) *Producer {
	def := DefaultProducerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	p := &Producer{
		pub:    pub,
		queues: queues,
	}

	p.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.BreakerThreshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			slog.Warn("publish circuit breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	p.retrier = retry.New[struct{}](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryablePublishError,
	})

	return p
}

func isRetryablePublishError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrEncode) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (p *Producer) publish(ctx context.Context, queue string, data any) error {
	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.pub.PublishJSON(ctx, queue, data)
		})
	})
	return err
}

// PublishScoreJob publishes an interview to the job queue
func (p *Producer) PublishScoreJob(ctx context.Context, job *ScoreJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.publish(ctx, p.queues.Jobs, job); err != nil {
		return fmt.Errorf("failed to publish score job: %w", err)
	}

	slog.Info("published score job",
		"job_id", job.ID,
		"candidate_id", job.Request.CandidateID,
		"questions", len(job.Request.Questions),
	)

	return nil
}

// PublishResult publishes a score result to the result queue
func (p *Producer) PublishResult(ctx context.Context, result *ScoreResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.publish(ctx, p.queues.Results, result); err != nil {
		return fmt.Errorf("failed to publish score result: %w", err)
	}

	slog.Info("published score result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration", result.Duration,
	)

	return nil
}
