// Package controller holds the endpoint set whose operations are intercepted.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/contracts"
	"golang.org/x/text/language"
)

// TypeName is the declaring type name pointcuts see for UserController
const TypeName = "controller.UserController"

// DefaultUserListDelay is how long UserList blocks
const DefaultUserListDelay = 2500 * time.Millisecond

// UserController exposes placeholder user endpoints
type UserController struct {
	delay  time.Duration
	logger *slog.Logger
}

// Option configures the controller
type Option func(*UserController)

// WithUserListDelay sets how long UserList blocks
func WithUserListDelay(delay time.Duration) Option {
	return func(c *UserController) {
		c.delay = delay
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *UserController) {
		c.logger = logger
	}
}

// NewUserController creates the controller
func NewUserController(options ...Option) *UserController {
	c := &UserController{
		delay:  DefaultUserListDelay,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// UserList blocks for the configured delay. It does not observe ctx.
func (c *UserController) UserList(ctx context.Context) error {
	c.logger.Debug("user list sleeping", "delay", c.delay)
	time.Sleep(c.delay)
	return nil
}

// UserListBefore takes the request locale and description so that argument
// logging has something to print
func (c *UserController) UserListBefore(ctx context.Context, locale language.Tag, request *WebRequest) error {
	return nil
}

// UserListAfterReturning returns a fixed string
func (c *UserController) UserListAfterReturning(ctx context.Context) string {
	return "Testing after-returning advice (OK)"
}

// UserListThrowing always fails
func (c *UserController) UserListThrowing(ctx context.Context) (string, error) {
	return "", contracts.NewOperationError("Testing after-throwing advice (controlled exception)")
}

// UserListAfterCleanUp returns a fixed string
func (c *UserController) UserListAfterCleanUp(ctx context.Context) string {
	return "Testing after advice to clean up resources (OK)"
}

// UserListAfterCleanUpException always fails
func (c *UserController) UserListAfterCleanUpException(ctx context.Context) (string, error) {
	return "", contracts.NewOperationError("Testing after advice to clean up resources (controlled exception)")
}

// UserListRuntime returns a fixed string
func (c *UserController) UserListRuntime(ctx context.Context) string {
	return "Testing making a class implement an interface at runtime using an introduction (returning normally)"
}

// TypeName implements aop.Target
func (c *UserController) TypeName() string {
	return TypeName
}

// Operations implements aop.Target
func (c *UserController) Operations() []aop.Operation {
	return []aop.Operation{
		{Name: "UserList", Method: func(ctx context.Context, args ...any) (any, error) {
			return nil, c.UserList(ctx)
		}},
		{Name: "UserListBefore", Method: func(ctx context.Context, args ...any) (any, error) {
			locale, request, err := localeAndRequest(args)
			if err != nil {
				return nil, err
			}
			return nil, c.UserListBefore(ctx, locale, request)
		}},
		{Name: "UserListAfterReturning", Method: func(ctx context.Context, args ...any) (any, error) {
			return c.UserListAfterReturning(ctx), nil
		}},
		{Name: "UserListThrowing", Method: func(ctx context.Context, args ...any) (any, error) {
			return failed(c.UserListThrowing(ctx))
		}},
		{Name: "UserListAfterCleanUp", Method: func(ctx context.Context, args ...any) (any, error) {
			return c.UserListAfterCleanUp(ctx), nil
		}},
		{Name: "UserListAfterCleanUpException", Method: func(ctx context.Context, args ...any) (any, error) {
			return failed(c.UserListAfterCleanUpException(ctx))
		}},
		{Name: "UserListRuntime", Method: func(ctx context.Context, args ...any) (any, error) {
			return c.UserListRuntime(ctx), nil
		}},
	}
}

func failed(result string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return result, nil
}

func localeAndRequest(args []any) (language.Tag, *WebRequest, error) {
	if len(args) != 2 {
		return language.Und, nil, fmt.Errorf("expected locale and request, got %d arguments", len(args))
	}
	locale, ok := args[0].(language.Tag)
	if !ok {
		return language.Und, nil, fmt.Errorf("expected language.Tag, got %T", args[0])
	}
	request, ok := args[1].(*WebRequest)
	if !ok {
		return language.Und, nil, fmt.Errorf("expected *WebRequest, got %T", args[1])
	}
	return locale, request, nil
}
