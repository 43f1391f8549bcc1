package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/aopdemo/health"
	"github.com/glimte/aopdemo/internal/rabbitmq"
	rmqtransport "github.com/glimte/aopdemo/transports/rabbitmq"
)

// invocationService keeps an invocation server running across reconnects
type invocationService struct {
	ctx     context.Context
	cm      *rabbitmq.ConnectionManager
	newSrv  func(ch rabbitmq.Channel) *rmqtransport.Server
	logger  *slog.Logger
	mu      sync.Mutex
	server  *rmqtransport.Server
	channel rabbitmq.Channel
}

func (a *App) startInvocationService(ctx context.Context) (*invocationService, error) {
	cm := rabbitmq.NewConnectionManager(a.cfg.AMQP.URL, rabbitmq.WithLogger(a.logger))
	if err := cm.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	svc := &invocationService{
		ctx:    ctx,
		cm:     cm,
		logger: a.logger,
		newSrv: func(ch rabbitmq.Channel) *rmqtransport.Server {
			return rmqtransport.NewServer(ch, a.proxy,
				rmqtransport.WithQueue(a.cfg.AMQP.Queue),
				rmqtransport.WithDefaultLocale(a.locale),
				rmqtransport.WithServerLogger(a.logger),
				rmqtransport.WithConsumerOptions(rabbitmq.WithPrefetchCount(a.cfg.AMQP.Prefetch)),
			)
		},
	}

	if err := svc.start(); err != nil {
		_ = cm.Close()
		return nil, err
	}

	cm.AddStateListener(svc)
	a.health.Register(health.NewAMQPChecker(cm, rabbitmq.SanitizeURL(a.cfg.AMQP.URL)))
	return svc, nil
}

func (s *invocationService) start() error {
	ch, err := s.cm.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	server := s.newSrv(ch)
	if err := server.Start(s.ctx); err != nil {
		_ = ch.Close()
		return err
	}

	s.mu.Lock()
	s.server, s.channel = server, ch
	s.mu.Unlock()
	return nil
}

func (s *invocationService) stop() {
	s.mu.Lock()
	server, ch := s.server, s.channel
	s.server, s.channel = nil, nil
	s.mu.Unlock()

	if server != nil {
		server.Stop()
	}
	if ch != nil {
		_ = ch.Close()
	}
}

func (s *invocationService) close() {
	s.stop()
	if err := s.cm.Close(); err != nil {
		s.logger.Warn("failed to close broker connection", "error", err)
	}
}

// OnConnected restarts the server on the new connection
func (s *invocationService) OnConnected() {
	if s.ctx.Err() != nil {
		return
	}
	s.stop()
	if err := s.start(); err != nil {
		s.logger.Error("failed to restart invocation server", "error", err)
	}
}

func (s *invocationService) OnDisconnected(err error) {
	s.logger.Warn("broker connection lost", "error", err)
}

func (s *invocationService) OnReconnecting(attempt int) {
	s.logger.Info("reconnecting to broker", "attempt", attempt)
}
