package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the transport uses
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// MessageHandler processes incoming messages
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer consumes one queue, acking each delivery after its handler succeeds
type Consumer struct {
	ch             Channel
	prefetchCount  int
	consumerTag    string
	handlerTimeout time.Duration
	requeue        bool
	logger         *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.consumerTag = tag
	}
}

// WithHandlerTimeout bounds each handler call
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithRequeueOnError requeues deliveries whose handler failed instead of rejecting them
func WithRequeueOnError(requeue bool) ConsumerOption {
	return func(c *Consumer) {
		c.requeue = requeue
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a consumer on ch
func NewConsumer(ch Channel, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		ch:             ch,
		prefetchCount:  10,
		handlerTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Subscribe starts consuming queue; handler runs for each delivery until ctx
// is done or Stop is called
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return &ConsumerError{Queue: queue, ConsumerTag: c.consumerTag, Op: "subscribe",
			Err: fmt.Errorf("already subscribed"), Timestamp: time.Now()}
	}

	if err := c.ch.Qos(c.prefetchCount, 0, false); err != nil {
		return &ConsumerError{Queue: queue, ConsumerTag: c.consumerTag, Op: "qos", Err: err, Timestamp: time.Now()}
	}

	deliveries, err := c.ch.Consume(queue, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return &ConsumerError{Queue: queue, ConsumerTag: c.consumerTag, Op: "consume", Err: err, Timestamp: time.Now()}
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.processMessages(consumerCtx, queue, deliveries, handler, c.done)

	c.logger.Info("subscribed to queue",
		"queue", queue,
		"consumerTag", c.consumerTag,
		"prefetchCount", c.prefetchCount,
	)
	return nil
}

// Done is closed once message processing stops
func (c *Consumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Stop cancels consumption and waits for the in-flight delivery
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Consumer) processMessages(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler MessageHandler, done chan struct{}) {
	defer func() {
		close(done)
		c.logger.Info("consumer stopped", "queue", queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", queue)
				return
			}

			if err := c.handleMessage(ctx, delivery, handler); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", queue,
					"messageId", delivery.MessageId,
				)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) error {
	msgCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	err := handler(msgCtx, delivery)
	if err != nil {
		if nackErr := delivery.Nack(false, c.requeue); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
		}
		return err
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack message", "error", ackErr)
	}
	return nil
}

// DeclareQueue declares a durable queue
func DeclareQueue(ch Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}
