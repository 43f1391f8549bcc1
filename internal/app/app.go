// Package app assembles the dispatcher, aspects, controller and transports
// described by a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/aspects"
	"github.com/glimte/aopdemo/controller"
	"github.com/glimte/aopdemo/health"
	"github.com/glimte/aopdemo/internal/config"
	"github.com/glimte/aopdemo/internal/metrics"
	"github.com/glimte/aopdemo/internal/observability"
	"github.com/glimte/aopdemo/transports/httpapi"
	"golang.org/x/text/language"
)

// Aspect orders of the infrastructure aspects. They wrap the console aspects,
// so metrics also count throttled calls.
const (
	MetricsOrder  = -30
	TracingOrder  = -20
	ThrottleOrder = -10
)

// HealthPath serves the health report
const HealthPath = "/health"

// App is the assembled application
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	console    io.Writer
	traceOut   io.Writer
	locale     language.Tag
	dispatcher *aop.Dispatcher
	proxy      *aop.Proxy
	metrics    *metrics.Collector
	tracing    *observability.Tracing
	health     *health.Registry
}

// Option configures the App
type Option func(*App)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithConsole sets where the console aspects write
func WithConsole(out io.Writer) Option {
	return func(a *App) {
		a.console = out
	}
}

// WithTraceOutput sets where finished spans are written
func WithTraceOutput(out io.Writer) Option {
	return func(a *App) {
		a.traceOut = out
	}
}

// New builds the application from cfg
func New(ctx context.Context, cfg *config.Config, options ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   slog.Default(),
		console:  os.Stdout,
		traceOut: os.Stderr,
		health:   health.NewRegistry(),
	}
	for _, opt := range options {
		opt(a)
	}

	locale, err := language.Parse(cfg.HTTP.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("invalid default locale %q: %w", cfg.HTTP.DefaultLocale, err)
	}
	a.locale = locale

	a.dispatcher = aop.NewDispatcher(aop.WithLogger(a.logger))
	if err := a.registerAspects(ctx); err != nil {
		return nil, err
	}

	userController := controller.NewUserController(
		controller.WithUserListDelay(cfg.Controller.UserListDelay),
		controller.WithLogger(a.logger),
	)
	a.proxy, err = a.dispatcher.Weave(userController)
	if err != nil {
		return nil, fmt.Errorf("failed to weave user controller: %w", err)
	}

	a.health.Register(health.NewProxyChecker(a.proxy, a.dispatcher.Bindings))

	a.logger.Info("application assembled",
		"target", userController.TypeName(),
		"bindings", len(a.dispatcher.Bindings()),
	)
	return a, nil
}

func (a *App) registerAspects(ctx context.Context) error {
	controllers := aspects.Controllers()
	var registered []*aop.Aspect

	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		registered = append(registered, aop.NewMetricsAspect(MetricsOrder, controllers, a.metrics))
	}

	if a.cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(ctx, a.cfg.Tracing.ServiceName, a.traceOut)
		if err != nil {
			return err
		}
		a.tracing = tracing
		registered = append(registered, aop.NewTracingAspect(TracingOrder, controllers, tracing.Tracer()))
	}

	if a.cfg.Throttle.Enabled {
		throttle := aop.NewThrottle(a.cfg.Throttle.RequestsPerSecond, a.cfg.Throttle.Burst)
		registered = append(registered, aop.NewThrottleAspect(ThrottleOrder, controllers, throttle))
	}

	if a.cfg.Console.Enabled {
		registered = append(registered,
			aspects.NewControllerAspect(a.console, a.cfg.Console.ControllerOrder),
			aspects.NewOrderingAspect(a.console, a.cfg.Console.OrderingOrder),
		)
	}

	if err := a.dispatcher.Register(registered...); err != nil {
		return fmt.Errorf("failed to register aspects: %w", err)
	}
	return nil
}

// Dispatcher returns the dispatcher with every configured aspect registered
func (a *App) Dispatcher() *aop.Dispatcher {
	return a.dispatcher
}

// Proxy returns the woven user controller
func (a *App) Proxy() *aop.Proxy {
	return a.proxy
}

// DefaultLocale returns the configured fallback locale
func (a *App) DefaultLocale() language.Tag {
	return a.locale
}

// Invoke calls the operation mapped to path as a transport would
func (a *App) Invoke(ctx context.Context, path string, locale language.Tag) (any, error) {
	mapping, ok := controller.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", aop.ErrNoSuchOperation, path)
	}
	request := &controller.WebRequest{
		URI:    a.cfg.HTTP.BasePath + "/" + path,
		Client: "cli",
		Method: "CLI",
	}
	return a.proxy.Invoke(ctx, mapping.Operation, mapping.Args(locale, request)...)
}

// Handler returns the HTTP handler serving the mappings, metrics and health
func (a *App) Handler() http.Handler {
	options := []httpapi.Option{
		httpapi.WithBasePath(a.cfg.HTTP.BasePath),
		httpapi.WithDefaultLocale(a.locale),
		httpapi.WithLogger(a.logger),
		httpapi.WithHandler(HealthPath, health.NewHandler(a.health, 5*time.Second)),
	}
	if a.metrics != nil {
		options = append(options, httpapi.WithHandler(a.cfg.Metrics.Path, a.metrics.Handler()))
	}
	return httpapi.NewHandler(a.proxy, options...)
}

// Run serves HTTP, and AMQP when enabled, until ctx is done
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.AMQP.Enabled {
		svc, err := a.startInvocationService(ctx)
		if err != nil {
			return err
		}
		defer svc.close()
	}

	server := httpapi.NewServer(a.cfg.HTTP.Addr, a.Handler(), a.cfg.HTTP.ShutdownTimeout, a.logger)
	return server.Run(ctx)
}

// Close flushes tracing
func (a *App) Close(ctx context.Context) error {
	if a.tracing == nil {
		return nil
	}
	if err := a.tracing.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to shut down tracing: %w", err)
	}
	return nil
}
