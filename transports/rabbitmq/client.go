package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/aopdemo/contracts"
	"github.com/glimte/aopdemo/internal/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DirectReplyTo is RabbitMQ's pseudo-queue for request/reply without a reply queue
const DirectReplyTo = "amq.rabbitmq.reply-to"

// ErrClientClosed is returned by Invoke after Close
var ErrClientClosed = errors.New("invocation client closed")

// Client sends invocation requests and waits for their replies
type Client struct {
	ch      rabbitmq.Channel
	queue   string
	appID   string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *contracts.InvocationReply
	closed  bool
	done    chan struct{}
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithClientQueue sets the queue requests are published to
func WithClientQueue(queue string) ClientOption {
	return func(c *Client) {
		c.queue = queue
	}
}

// WithAppID sets the AppId requests carry
func WithAppID(appID string) ClientOption {
	return func(c *Client) {
		c.appID = appID
	}
}

// WithTimeout bounds the wait for a reply when ctx has no deadline
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient starts consuming direct replies on ch
func NewClient(ch rabbitmq.Channel, options ...ClientOption) (*Client, error) {
	c := &Client{
		ch:      ch,
		queue:   DefaultQueue,
		appID:   "aopdemo-cli",
		timeout: 30 * time.Second,
		logger:  slog.Default(),
		pending: make(map[string]chan *contracts.InvocationReply),
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	replies, err := ch.Consume(DirectReplyTo, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume replies: %w", err)
	}
	go c.dispatchReplies(replies)

	return c, nil
}

// Invoke requests the operation mapped to path and returns its reply
func (c *Client) Invoke(ctx context.Context, path, acceptLanguage string) (*contracts.InvocationReply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	correlationID := uuid.New().String()
	replyCh := make(chan *contracts.InvocationReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[correlationID] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		MessageId:     uuid.New().String(),
		ReplyTo:       DirectReplyTo,
		AppId:         c.appID,
		Timestamp:     time.Now().UTC(),
		Type:          path,
	}
	if acceptLanguage != "" {
		msg.Headers = amqp.Table{HeaderAcceptLanguage: acceptLanguage}
	}

	if err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, msg); err != nil {
		return nil, fmt.Errorf("failed to publish request for %s: %w", path, err)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for reply to %s: %w", path, ctx.Err())
	}
}

func (c *Client) dispatchReplies(replies <-chan amqp.Delivery) {
	for delivery := range replies {
		var reply contracts.InvocationReply
		if err := json.Unmarshal(delivery.Body, &reply); err != nil {
			c.logger.Error("failed to decode reply", "correlationId", delivery.CorrelationId, "error", err)
			continue
		}

		c.mu.Lock()
		replyCh, ok := c.pending[delivery.CorrelationId]
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("reply without pending request", "correlationId", delivery.CorrelationId)
			continue
		}
		select {
		case replyCh <- &reply:
		default:
			c.logger.Warn("duplicate reply", "correlationId", delivery.CorrelationId)
		}
	}
}

// Close stops waiting for replies; the channel is left to its owner
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
