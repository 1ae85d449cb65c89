package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/readiness/internal/domain"
)

// Default queue names
const (
	DefaultJobQueue    = "readiness.interviews"
	DefaultResultQueue = "readiness.reports"
)

var (
	// ErrNotConnected is returned when publishing without an open channel.
	ErrNotConnected = errors.New("not connected to RabbitMQ")

	// ErrEncode is returned when a message cannot be marshalled. It is
	// never retried.
	ErrEncode = errors.New("encode message")
)

// Queues names the job and result queues.
type Queues struct {
	Jobs    string
	Results string
}

// DefaultQueues returns the standard queue names.
func DefaultQueues() Queues {
	return Queues{Jobs: DefaultJobQueue, Results: DefaultResultQueue}
}

// ScoreJob is an interview waiting to be scored
type ScoreJob struct {
	ID        uuid.UUID               `json:"id"`
	Request   domain.InterviewRequest `json:"request"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewScoreJob wraps a request in a job with a fresh id.
func NewScoreJob(req domain.InterviewRequest) *ScoreJob {
	return &ScoreJob{
		ID:        uuid.New(),
		Request:   req,
		CreatedAt: time.Now(),
	}
}

// ResultStatus is the outcome class of a scored job.
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusFailed    ResultStatus = "failed"
	StatusEmpty     ResultStatus = "empty"
)

// ScoreResult is published to the result queue once a job is handled
type ScoreResult struct {
	JobID       uuid.UUID               `json:"job_id"`
	Status      ResultStatus            `json:"status"`
	Report      *domain.InterviewReport `json:"report,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Duration    time.Duration           `json:"duration"`
	CompletedAt time.Time               `json:"completed_at"`
}

// Outcome converts the result back into what a synchronous caller receives.
// Failed results have no outcome.
func (r *ScoreResult) Outcome() (domain.Outcome, error) {
	switch r.Status {
	case StatusCompleted:
		return domain.ReportOutcome(r.Report), nil
	case StatusEmpty:
		return domain.NoQuestionsProcessed(), nil
	default:
		return domain.Outcome{}, fmt.Errorf("job %s failed: %s", r.JobID, r.Error)
	}
}

const (
	maxReconnectAttempts = 10
	maxBackoff           = 30 * time.Second
)

// reconnectBackoff returns the delay before the given zero-based attempt.
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	backoff := time.Duration(1<<attempt) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	queues     Queues
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials RabbitMQ and declares the queues
func NewConnection(amqpURL string, queues Queues) (*Connection, error) {
	c := &Connection{
		url:    amqpURL,
		queues: queues,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// Queues returns the queue names this connection declared.
func (c *Connection) Queues() Queues {
	return c.queues
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareQueues(channel, c.queues); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel

	go c.handleReconnect(conn)

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func declareQueues(ch *amqp.Channel, queues Queues) error {
	_, err := ch.QueueDeclare(
		queues.Jobs,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(300000), // 5 minutes
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare job queue: %w", err)
	}

	_, err = ch.QueueDeclare(
		queues.Results,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl": int32(600000), // 10 minutes
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare result queue: %w", err)
	}

	return nil
}

// handleReconnect waits for conn to close and redials with capped
// exponential backoff.
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	c.mu.RLock()
	closed, reconnects := c.closed, c.reconnects
	c.mu.RUnlock()
	if closed {
		return
	}

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", reconnects,
	)

	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		time.Sleep(reconnectBackoff(attempt))

		c.mu.Lock()
		c.reconnects++
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", attempt+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ", "attempts", maxReconnectAttempts)
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL masks the password for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Redacted()
}
