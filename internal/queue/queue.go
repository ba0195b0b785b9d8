package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TopicInboundReplies carries JSON-encoded model.InboundReply events.
const TopicInboundReplies = "inbound_replies"

// Handler processes one message body. A non-nil error asks the queue to
// retry the message.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	// Subscribe registers handler and returns immediately. Delivery stops
	// when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// PublishJSON encodes payload and publishes it.
func PublishJSON(ctx context.Context, q Queue, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return q.Publish(ctx, topic, body)
}

type subscription struct {
	ctx     context.Context
	handler Handler
}

// InMemoryQueue delivers to every subscriber of a topic on its own
// goroutine, retrying failed handlers with linear backoff.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration

	logger   *zap.Logger
	mu       sync.Mutex
	handlers map[string][]subscription
	wg       sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		logger:     logger,
		handlers:   make(map[string][]subscription),
	}
}

// JobPayload wraps a message body with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(_ context.Context, topic string, body []byte) error {
	q.mu.Lock()
	subs := q.handlers[topic]
	q.mu.Unlock()

	if len(subs) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, sub := range subs {
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		q.wg.Add(1)
		go func(sub subscription) {
			defer q.wg.Done()
			q.processJob(sub, job)
		}(sub)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(sub subscription, job JobPayload) {
	log := q.logger.With(zap.String("topic", job.Topic))
	for {
		if sub.ctx.Err() != nil {
			log.Warn("subscriber gone, dropping job")
			return
		}
		err := sub.handler(sub.ctx, job.Body)
		if err == nil {
			log.Debug("job processed", zap.Int("attempts", job.RetryCount+1))
			return // ACK
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.Error("job permanently failed", zap.Int("attempts", job.RetryCount), zap.Error(err))
			return // No requeue
		}
		log.Warn("job failed, retrying", zap.Int("attempt", job.RetryCount), zap.Int("max_retries", job.MaxRetries), zap.Error(err))

		select {
		case <-time.After(time.Duration(job.RetryCount) * q.Backoff):
		case <-sub.ctx.Done():
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], subscription{ctx: ctx, handler: handler})
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
