package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// Channel is the subset of *amqp.Channel the queue uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

// AMQPQueue maps topics onto durable RabbitMQ queues. Failed deliveries are
// republished with an incremented retry header until MaxRetries, then
// dropped.
type AMQPQueue struct {
	MaxRetries int

	conn    *amqp.Connection
	ch      Channel
	logger  *zap.Logger
	pubMu   sync.Mutex
	wg      sync.WaitGroup
	closeCh chan *amqp.Error

	mu        sync.Mutex
	declared  map[string]bool
	consumers []string
}

// DialAMQP connects to the broker at url.
func DialAMQP(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	q := NewAMQPQueue(ch, logger)
	q.conn = conn
	q.closeCh = conn.NotifyClose(make(chan *amqp.Error, 1))
	return q, nil
}

// NewAMQPQueue wraps an already open channel.
func NewAMQPQueue(ch Channel, logger *zap.Logger) *AMQPQueue {
	return &AMQPQueue{
		MaxRetries: 3,
		ch:         ch,
		logger:     logger,
		declared:   make(map[string]bool),
	}
}

// NotifyClose reports an unexpected connection loss. It is nil for queues
// built with NewAMQPQueue.
func (q *AMQPQueue) NotifyClose() <-chan *amqp.Error {
	return q.closeCh
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if retries > 0 {
		msg.Headers = amqp.Table{retryHeader: int32(retries)}
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if err := q.ch.Publish("", topic, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	if err := q.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	consumer := "dripline-" + topic
	deliveries, err := q.ch.Consume(topic, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	q.mu.Lock()
	q.consumers = append(q.consumers, consumer)
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.consume(ctx, topic, deliveries, handler)
	}()
	return nil
}

func (q *AMQPQueue) consume(ctx context.Context, topic string, deliveries <-chan amqp.Delivery, handler Handler) {
	log := q.logger.With(zap.String("topic", topic))
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			q.handle(ctx, log, topic, d, handler)
		}
	}
}

func (q *AMQPQueue) handle(ctx context.Context, log *zap.Logger, topic string, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries >= q.MaxRetries {
		log.Error("delivery permanently failed", zap.Int("attempts", retries+1), zap.Error(err))
		_ = d.Ack(false)
		return
	}
	log.Warn("delivery failed, requeueing", zap.Int("attempt", retries+1), zap.Error(err))
	if perr := q.publish(topic, d.Body, retries+1); perr != nil {
		log.Error("requeue failed", zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// Close cancels consumers, waits for in-flight handlers and closes the
// channel and connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	consumers := q.consumers
	q.consumers = nil
	q.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		if err := q.ch.Cancel(c, false); err != nil {
			errs = append(errs, err)
		}
	}
	q.wg.Wait()
	if err := q.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Queue = (*AMQPQueue)(nil)
