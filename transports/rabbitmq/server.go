// Package rabbitmq exposes the controller mappings as AMQP request/reply.
//
// A request is a message on the invocation queue whose Type names a mapping
// path. The reply, a JSON contracts.InvocationReply, goes to the request's
// ReplyTo queue with its CorrelationId.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/contracts"
	"github.com/glimte/aopdemo/controller"
	"github.com/glimte/aopdemo/internal/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/text/language"
)

const (
	// DefaultQueue receives invocation requests
	DefaultQueue = "aopdemo.invocations"

	// HeaderAcceptLanguage carries the locale of a request
	HeaderAcceptLanguage = "Accept-Language"

	// ClientMethod is the method recorded on the web request of AMQP invocations
	ClientMethod = "AMQP"
)

// Invoker calls an operation by name; *aop.Proxy implements it
type Invoker interface {
	Invoke(ctx context.Context, name string, args ...any) (any, error)
}

// Server consumes invocation requests and publishes their replies
type Server struct {
	ch            rabbitmq.Channel
	invoker       Invoker
	queue         string
	defaultLocale language.Tag
	consumer      *rabbitmq.Consumer
	logger        *slog.Logger
}

// ServerOption configures the server
type ServerOption func(*serverConfig)

type serverConfig struct {
	queue           string
	defaultLocale   language.Tag
	logger          *slog.Logger
	consumerOptions []rabbitmq.ConsumerOption
}

// WithQueue sets the queue requests are consumed from
func WithQueue(queue string) ServerOption {
	return func(c *serverConfig) {
		c.queue = queue
	}
}

// WithDefaultLocale sets the locale used when a request carries none
func WithDefaultLocale(locale language.Tag) ServerOption {
	return func(c *serverConfig) {
		c.defaultLocale = locale
	}
}

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// WithConsumerOptions passes options to the underlying consumer
func WithConsumerOptions(opts ...rabbitmq.ConsumerOption) ServerOption {
	return func(c *serverConfig) {
		c.consumerOptions = append(c.consumerOptions, opts...)
	}
}

// NewServer creates a server serving invoker over ch
func NewServer(ch rabbitmq.Channel, invoker Invoker, options ...ServerOption) *Server {
	cfg := &serverConfig{
		queue:         DefaultQueue,
		defaultLocale: language.AmericanEnglish,
		logger:        slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	consumerOptions := append([]rabbitmq.ConsumerOption{
		rabbitmq.WithConsumerLogger(cfg.logger),
	}, cfg.consumerOptions...)

	return &Server{
		ch:            ch,
		invoker:       invoker,
		queue:         cfg.queue,
		defaultLocale: cfg.defaultLocale,
		consumer:      rabbitmq.NewConsumer(ch, consumerOptions...),
		logger:        cfg.logger,
	}
}

// Start declares the queue and begins consuming
func (s *Server) Start(ctx context.Context) error {
	if err := rabbitmq.DeclareQueue(s.ch, s.queue); err != nil {
		return err
	}
	if err := s.consumer.Subscribe(ctx, s.queue, s.handle); err != nil {
		return fmt.Errorf("failed to start invocation server: %w", err)
	}
	s.logger.Info("invocation server started", "queue", s.queue)
	return nil
}

// Done is closed when the server stops consuming
func (s *Server) Done() <-chan struct{} {
	return s.consumer.Done()
}

// Stop stops consuming and waits for the in-flight request
func (s *Server) Stop() {
	s.consumer.Stop()
	s.logger.Info("invocation server stopped", "queue", s.queue)
}

// handle replies to every request it can parse; only publish failures are
// returned so the delivery gets rejected
func (s *Server) handle(ctx context.Context, delivery amqp.Delivery) error {
	start := time.Now()

	mapping, ok := controller.Lookup(delivery.Type)
	var result any
	var err error
	if !ok {
		err = fmt.Errorf("%w: %q", aop.ErrNoSuchOperation, delivery.Type)
	} else {
		locale := controller.ResolveLocale(headerString(delivery.Headers, HeaderAcceptLanguage), s.defaultLocale)
		request := &controller.WebRequest{
			URI:    s.queue + "/" + mapping.Path,
			Client: client(delivery),
			Method: ClientMethod,
		}
		result, err = s.invoker.Invoke(ctx, mapping.Operation, mapping.Args(locale, request)...)
	}

	reply := contracts.NewInvocationReply(mapping.Operation, result, err, time.Since(start))
	reply.CorrelationID = delivery.CorrelationId

	if err != nil {
		s.logger.Warn("invocation failed",
			"path", delivery.Type,
			"correlationId", delivery.CorrelationId,
			"error", err,
		)
	}

	if delivery.ReplyTo == "" {
		s.logger.Debug("request has no reply queue, dropping reply",
			"path", delivery.Type,
			"correlationId", delivery.CorrelationId,
		)
		return nil
	}
	return s.reply(ctx, delivery.ReplyTo, reply)
}

func (s *Server) reply(ctx context.Context, replyTo string, reply *contracts.InvocationReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: reply.CorrelationID,
		MessageId:     uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		Type:          reply.Type,
		Body:          body,
	}
	if err := s.ch.PublishWithContext(ctx, "", replyTo, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish reply to %s: %w", replyTo, err)
	}
	return nil
}

func headerString(headers amqp.Table, key string) string {
	if headers == nil {
		return ""
	}
	switch v := headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func client(delivery amqp.Delivery) string {
	if delivery.AppId != "" {
		return delivery.AppId
	}
	return delivery.ReplyTo
}
