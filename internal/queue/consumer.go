package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/readiness/internal/scoring"
)

// JobHandler scores one job
type JobHandler func(ctx context.Context, job *ScoreJob) (*ScoreResult, error)

// ResultPublisher delivers results. *Producer implements it.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *ScoreResult) error
}

// ScoreHandler returns a JobHandler that validates the request and runs it
// through engine. An empty interview yields a StatusEmpty result rather than
// an error.
func ScoreHandler(engine *scoring.Engine) JobHandler {
	return func(ctx context.Context, job *ScoreJob) (*ScoreResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := job.Request.Validate(); err != nil {
			return nil, err
		}

		outcome, err := engine.Score(&job.Request)
		if err != nil {
			return nil, err
		}

		if outcome.Empty() {
			return &ScoreResult{
				JobID:  job.ID,
				Status: StatusEmpty,
				Error:  outcome.Error,
			}, nil
		}
		return &ScoreResult{
			JobID:  job.ID,
			Status: StatusCompleted,
			Report: outcome.InterviewReport,
		}, nil
	}
}

// Consumer consumes score jobs from the job queue
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	publisher  ResultPublisher
	workers    int
	prefetch   int
	jobTimeout time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers    int           // Number of concurrent workers
	Prefetch   int           // Prefetch count
	JobTimeout time.Duration // Deadline for a single job
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:    3,
		Prefetch:   1,
		JobTimeout: 10 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler JobHandler, publisher ResultPublisher, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	return &Consumer{
		conn:       conn,
		handler:    handler,
		publisher:  publisher,
		workers:    cfg.Workers,
		prefetch:   cfg.Prefetch,
		jobTimeout: cfg.JobTimeout,
	}
}

// Start subscribes to the job queue and runs the workers in the background.
// After a broker reconnect the consumer subscribes again.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	msgs, err := c.subscribe()
	if err != nil {
		c.cancelFunc()
		return err
	}

	slog.Info("starting score queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	c.wg.Add(1)
	go c.supervise(ctx, msgs)

	return nil
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.conn.Queues().Jobs,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Consumer) supervise(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		c.runWorkers(ctx, msgs)
		if ctx.Err() != nil {
			return
		}

		slog.Warn("delivery channel closed, resubscribing")
		next, err := c.resubscribe(ctx)
		if err != nil {
			slog.Error("consumer giving up", "error", err)
			return
		}
		msgs = next
	}
}

func (c *Consumer) resubscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectBackoff(attempt)):
		}

		msgs, err := c.subscribe()
		if err == nil {
			return msgs, nil
		}
		slog.Warn("resubscribe failed", "error", err, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("resubscribe failed after %d attempts", maxReconnectAttempts)
}

func (c *Consumer) runWorkers(ctx context.Context, msgs <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, msgs)
		}(i)
	}
	wg.Wait()
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	slog.Debug("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Debug("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single delivery. Malformed messages are rejected
// without requeue. A result that cannot be published sends the job back to
// the queue once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var job ScoreJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		slog.Error("failed to unmarshal job",
			"worker_id", workerID,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing score job",
		"worker_id", workerID,
		"job_id", job.ID,
		"candidate_id", job.Request.CandidateID,
	)

	jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	result, err := c.handler(jobCtx, &job)
	duration := time.Since(start)

	if err == nil && result == nil {
		err = errors.New("handler returned no result")
	}
	if err != nil {
		slog.Error("job processing failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
			"duration", duration,
		)
		result = failedResult(job.ID, err)
	} else {
		slog.Info("job completed",
			"worker_id", workerID,
			"job_id", job.ID,
			"status", result.Status,
			"duration", duration,
		)
	}

	result.JobID = job.ID
	result.Duration = duration
	result.CompletedAt = time.Now()
	if result.Status == "" {
		result.Status = StatusCompleted
	}

	if err := c.publisher.PublishResult(ctx, result); err != nil {
		slog.Error("failed to publish result",
			"worker_id", workerID,
			"job_id", job.ID,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		if !msg.Redelivered {
			_ = msg.Nack(false, true)
			return
		}
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
		)
	}
}

func failedResult(jobID uuid.UUID, err error) *ScoreResult {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "scoring timed out"
	}
	return &ScoreResult{
		JobID:  jobID,
		Status: StatusFailed,
		Error:  msg,
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// ResultConsumer consumes score results and routes them to subscribers by job id
type ResultConsumer struct {
	conn       *Connection
	handlers   map[string]ResultHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ResultHandler handles the result of a specific job
type ResultHandler func(result *ScoreResult)

// NewResultConsumer creates a result consumer
func NewResultConsumer(conn *Connection) *ResultConsumer {
	return &ResultConsumer{
		conn:     conn,
		handlers: make(map[string]ResultHandler),
	}
}

// Subscribe registers a handler for results of a specific job
func (rc *ResultConsumer) Subscribe(jobID string, handler ResultHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[jobID] = handler
}

// Unsubscribe removes a handler
func (rc *ResultConsumer) Unsubscribe(jobID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, jobID)
}

// Start begins consuming results
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ctx, rc.cancelFunc = context.WithCancel(ctx)

	ch := rc.conn.Channel()
	if ch == nil {
		rc.cancelFunc()
		return ErrNotConnected
	}

	msgs, err := ch.Consume(
		rc.conn.Queues().Results,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		rc.cancelFunc()
		return fmt.Errorf("failed to start result consumer: %w", err)
	}

	rc.wg.Add(1)
	go rc.consume(ctx, msgs)

	return nil
}

func (rc *ResultConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			rc.dispatch(msg)
		}
	}
}

// dispatch hands a result to its subscriber. Results nobody waits for are
// requeued so another client can pick them up.
func (rc *ResultConsumer) dispatch(msg amqp.Delivery) {
	var result ScoreResult
	if err := json.Unmarshal(msg.Body, &result); err != nil {
		slog.Error("failed to unmarshal result", "error", err)
		_ = msg.Reject(false)
		return
	}

	rc.handlersMu.RLock()
	handler, ok := rc.handlers[result.JobID.String()]
	rc.handlersMu.RUnlock()

	if !ok {
		_ = msg.Nack(false, true)
		return
	}

	handler(&result)
	_ = msg.Ack(false)
}

// Await blocks until the result for jobID arrives or ctx ends. The
// subscription is registered before returning the wait function so a fast
// worker cannot publish ahead of it.
func (rc *ResultConsumer) Await(jobID string) func(ctx context.Context) (*ScoreResult, error) {
	ch := make(chan *ScoreResult, 1)
	rc.Subscribe(jobID, func(result *ScoreResult) {
		select {
		case ch <- result:
		default:
		}
	})

	return func(ctx context.Context) (*ScoreResult, error) {
		defer rc.Unsubscribe(jobID)
		select {
		case result := <-ch:
			return result, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("await job %s: %w", jobID, ctx.Err())
		}
	}
}

// Stop stops the result consumer
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}

var (
	_ ResultPublisher = (*Producer)(nil)
	_ Publisher       = (*Connection)(nil)
)
