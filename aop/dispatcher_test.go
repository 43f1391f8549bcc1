package aop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

var errControlled = errors.New("controlled failure")

type testController struct {
	rec *recorder
}

func (c *testController) TypeName() string {
	return "controller.TestController"
}

func (c *testController) Operations() []Operation {
	return []Operation{
		{Name: "Echo", Method: func(ctx context.Context, args ...any) (any, error) {
			c.rec.add("body:Echo")
			return fmt.Sprint(args...), nil
		}},
		{Name: "Fail", Method: func(ctx context.Context, args ...any) (any, error) {
			c.rec.add("body:Fail")
			return nil, errControlled
		}},
		{Name: "Sleep", Method: func(ctx context.Context, args ...any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		}},
	}
}

type otherTarget struct{}

func (otherTarget) TypeName() string { return "service.Other" }

func (otherTarget) Operations() []Operation {
	return []Operation{{Name: "Run", Method: func(ctx context.Context, args ...any) (any, error) { return "ran", nil }}}
}

func recordingAspect(name string, order int, rec *recorder, pointcut Pointcut) *Aspect {
	return NewAspect(name, order,
		Around("around", pointcut, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
			rec.add("%s:around-start", name)
			result, err := proceed(ctx)
			rec.add("%s:around-end", name)
			return result, err
		}),
		Before("before", pointcut, func(ctx context.Context, jp *JoinPoint) error {
			rec.add("%s:before%v", name, jp.Args)
			return nil
		}),
		AfterReturning("afterReturning", pointcut, func(ctx context.Context, jp *JoinPoint, result any) error {
			rec.add("%s:returning=%v", name, result)
			return nil
		}),
		AfterThrowing("afterThrowing", pointcut, func(ctx context.Context, jp *JoinPoint, err error) error {
			rec.add("%s:throwing=%v", name, err)
			return nil
		}),
		After("after", pointcut, func(ctx context.Context, jp *JoinPoint) error {
			rec.add("%s:after", name)
			return nil
		}),
	)
}

func weave(t *testing.T, rec *recorder, aspects ...*Aspect) *Proxy {
	t.Helper()
	dispatcher := NewDispatcher(WithLogger(slog.Default())).MustRegister(aspects...)
	proxy, err := dispatcher.Weave(&testController{rec: rec})
	require.NoError(t, err)
	return proxy
}

func TestDispatcher(t *testing.T) {
	controllers := Within("controller.*")

	t.Run("Invoke without aspects calls the operation", func(t *testing.T) {
		rec := &recorder{}
		proxy := weave(t, rec)

		result, err := proxy.Invoke(context.Background(), "Echo", "a", "b")

		require.NoError(t, err)
		assert.Equal(t, "ab", result)
		assert.Equal(t, []string{"body:Echo"}, rec.events)
	})

	t.Run("Before receives the arguments exactly once before the body", func(t *testing.T) {
		rec := &recorder{}
		var seen [][]any
		proxy := weave(t, rec, NewAspect("args", 1,
			Before("logArguments", controllers, func(ctx context.Context, jp *JoinPoint) error {
				seen = append(seen, jp.Args)
				rec.add("before")
				return nil
			}),
		))

		_, err := proxy.Invoke(context.Background(), "Echo", "en-US", 42)

		require.NoError(t, err)
		assert.Equal(t, [][]any{{"en-US", 42}}, seen)
		assert.Equal(t, []string{"before", "body:Echo"}, rec.events)
	})

	t.Run("Successful invocation runs returning then after and never throwing", func(t *testing.T) {
		rec := &recorder{}
		proxy := weave(t, rec, recordingAspect("A", 1, rec, controllers))

		result, err := proxy.Invoke(context.Background(), "Echo", "ok")

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, []string{
			"A:around-start",
			"A:before[ok]",
			"body:Echo",
			"A:returning=ok",
			"A:after",
			"A:around-end",
		}, rec.events)
	})

	t.Run("Failed invocation runs throwing then after and propagates the same error", func(t *testing.T) {
		rec := &recorder{}
		var thrown error
		aspect := recordingAspect("A", 1, rec, controllers).Advise(
			AfterThrowing("capture", controllers, func(ctx context.Context, jp *JoinPoint, err error) error {
				thrown = err
				return nil
			}),
		)
		proxy := weave(t, rec, aspect)

		result, err := proxy.Invoke(context.Background(), "Fail")

		assert.Nil(t, result)
		assert.Same(t, errControlled, err)
		assert.Same(t, errControlled, thrown)
		assert.Equal(t, []string{
			"A:around-start",
			"A:before[]",
			"body:Fail",
			"A:throwing=controlled failure",
			"A:after",
			"A:around-end",
		}, rec.events)
	})

	t.Run("Aspects run in ascending order per phase", func(t *testing.T) {
		rec := &recorder{}
		// registered out of order on purpose
		proxy := weave(t, rec,
			recordingAspect("Three", 3, rec, controllers),
			recordingAspect("One", 1, rec, controllers),
		)

		_, err := proxy.Invoke(context.Background(), "Echo", "x")

		require.NoError(t, err)
		assert.Equal(t, []string{
			"One:around-start",
			"Three:around-start",
			"One:before[x]",
			"Three:before[x]",
			"body:Echo",
			"One:returning=x",
			"Three:returning=x",
			"One:after",
			"Three:after",
			"Three:around-end",
			"One:around-end",
		}, rec.events)
	})

	t.Run("Around measures the wrapped call", func(t *testing.T) {
		rec := &recorder{}
		var measured time.Duration
		proxy := weave(t, rec, NewAspect("timing", 1,
			Around("time", controllers, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
				start := time.Now()
				result, err := proceed(ctx)
				measured = time.Since(start)
				return result, err
			}),
		))

		_, err := proxy.Invoke(context.Background(), "Sleep")

		require.NoError(t, err)
		assert.GreaterOrEqual(t, measured, 20*time.Millisecond)
		assert.Less(t, measured, 2*time.Second)
	})

	t.Run("Around can replace the call", func(t *testing.T) {
		rec := &recorder{}
		proxy := weave(t, rec, NewAspect("replace", 1,
			Around("replace", controllers, func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error) {
				return "replaced", nil
			}),
		))

		result, err := proxy.Invoke(context.Background(), "Fail")

		require.NoError(t, err)
		assert.Equal(t, "replaced", result)
		assert.Empty(t, rec.events)
	})

	t.Run("Failing before advice aborts the chain", func(t *testing.T) {
		rec := &recorder{}
		adviceErr := errors.New("advice broke")
		proxy := weave(t, rec,
			NewAspect("broken", 1,
				Before("explode", controllers, func(ctx context.Context, jp *JoinPoint) error {
					return adviceErr
				}),
			),
			recordingAspect("B", 2, rec, controllers),
		)

		_, err := proxy.Invoke(context.Background(), "Echo")

		require.Error(t, err)
		var ae *AdviceError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "broken", ae.Aspect)
		assert.Equal(t, "explode", ae.Advice)
		assert.Equal(t, PhaseBefore, ae.Phase)
		assert.ErrorIs(t, err, adviceErr)
		assert.Equal(t, []string{"B:around-start", "B:around-end"}, rec.events)
	})

	t.Run("Failing after-throwing advice skips after advice", func(t *testing.T) {
		rec := &recorder{}
		proxy := weave(t, rec, NewAspect("broken", 1,
			AfterThrowing("explode", controllers, func(ctx context.Context, jp *JoinPoint, err error) error {
				return errors.New("cannot log")
			}),
			After("cleanUp", controllers, func(ctx context.Context, jp *JoinPoint) error {
				rec.add("after")
				return nil
			}),
		))

		_, err := proxy.Invoke(context.Background(), "Fail")

		assert.True(t, IsAdviceError(err))
		assert.NotContains(t, rec.events, "after")
	})

	t.Run("Pointcut limits advices to matching operations", func(t *testing.T) {
		rec := &recorder{}
		proxy := weave(t, rec, NewAspect("echoOnly", 1,
			Before("echo", Execution("controller.*", "Echo"), func(ctx context.Context, jp *JoinPoint) error {
				rec.add("before:%s", jp.Signature.Name)
				return nil
			}),
		))

		_, _ = proxy.Invoke(context.Background(), "Fail")
		_, _ = proxy.Invoke(context.Background(), "Echo")

		assert.Equal(t, []string{"body:Fail", "before:Echo", "body:Echo"}, rec.events)
	})

	t.Run("Join point is available from the context", func(t *testing.T) {
		dispatcher := NewDispatcher()
		jp := NewJoinPoint(Signature{DeclaringType: "controller.X", Name: "Y"}, nil, nil)

		result, err := dispatcher.Dispatch(context.Background(), jp, func(ctx context.Context, args ...any) (any, error) {
			current, ok := JoinPointFromContext(ctx)
			require.True(t, ok)
			return current.ID, nil
		})

		require.NoError(t, err)
		assert.Equal(t, jp.ID, result)
		assert.NotEmpty(t, jp.ID)
	})

	t.Run("Unknown operation returns ErrNoSuchOperation", func(t *testing.T) {
		proxy := weave(t, &recorder{})

		_, err := proxy.Invoke(context.Background(), "Missing")

		assert.ErrorIs(t, err, ErrNoSuchOperation)
	})

	t.Run("Failed join point is logged with its elapsed time", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		proxy, err := NewDispatcher(WithLogger(logger)).Weave(&testController{rec: &recorder{}})
		require.NoError(t, err)

		_, err = proxy.Invoke(context.Background(), "Fail")

		require.ErrorIs(t, err, errControlled)
		assert.Contains(t, logs.String(), `msg="join point failed"`)
		assert.Contains(t, logs.String(), "elapsed=")
	})

	t.Run("Bindings are sorted by order", func(t *testing.T) {
		dispatcher := NewDispatcher().MustRegister(
			NewAspect("late", 3, Before("b", nil, func(ctx context.Context, jp *JoinPoint) error { return nil })),
			NewAspect("early", 1, After("a", nil, func(ctx context.Context, jp *JoinPoint) error { return nil })),
		)

		bindings := dispatcher.Bindings()

		require.Len(t, bindings, 2)
		assert.Equal(t, "early", bindings[0].Aspect)
		assert.Equal(t, "late", bindings[1].Aspect)
		assert.Equal(t, "1 early.a [after]", bindings[0].String())
	})
}

func TestRegister(t *testing.T) {
	noop := func(ctx context.Context, jp *JoinPoint) error { return nil }

	t.Run("Advice without a function is rejected", func(t *testing.T) {
		dispatcher := NewDispatcher()

		err := dispatcher.Register(NewAspect("A", 1, Before("b", nil, nil)))

		require.ErrorIs(t, err, ErrInvalidAspect)
		assert.Contains(t, err.Error(), "A.b")
		assert.Contains(t, err.Error(), "before advice has no function")
		assert.Empty(t, dispatcher.Bindings())
	})

	t.Run("Rejected registration leaves invocations working", func(t *testing.T) {
		dispatcher := NewDispatcher()
		require.Error(t, dispatcher.Register(
			NewAspect("valid", 1, Before("b", nil, noop)),
			NewAspect("broken", 2, Around("a", nil, nil)),
		))

		proxy, err := dispatcher.Weave(&testController{rec: &recorder{}})
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			result, err := proxy.Invoke(context.Background(), "Echo", "x")
			require.NoError(t, err)
			assert.Equal(t, "x", result)
		})
		assert.Empty(t, dispatcher.Aspects())
	})

	t.Run("Every phase requires its function", func(t *testing.T) {
		advices := []Advice{
			Around("around", nil, nil),
			Before("before", nil, nil),
			AfterReturning("afterReturning", nil, nil),
			AfterThrowing("afterThrowing", nil, nil),
			After("after", nil, nil),
		}
		for _, advice := range advices {
			err := NewDispatcher().Register(NewAspect("A", 1, advice))
			assert.ErrorIs(t, err, ErrInvalidAspect, advice.Name())
		}
	})

	t.Run("Malformed pointcut is rejected", func(t *testing.T) {
		err := NewDispatcher().Register(NewAspect("A", 1, Before("b", Execution("controller.[", "*"), noop)))

		require.ErrorIs(t, err, ErrInvalidAspect)
		assert.Contains(t, err.Error(), "controller.[")
	})

	t.Run("Malformed nested pointcut is rejected", func(t *testing.T) {
		pointcut := And(Within("controller.*"), Or(Execution("*", "User["), Within("service.*")))

		err := NewDispatcher().Register(NewAspect("A", 1, Before("b", pointcut, noop)))

		assert.ErrorIs(t, err, ErrInvalidAspect)
	})

	t.Run("Nil and unnamed aspects are rejected", func(t *testing.T) {
		assert.ErrorIs(t, NewDispatcher().Register(nil), ErrInvalidAspect)
		assert.ErrorIs(t, NewDispatcher().Register(NewAspect("", 1)), ErrInvalidAspect)
	})

	t.Run("Introduction without a factory is rejected", func(t *testing.T) {
		aspect := NewAspect("A", 1).Introduce(DeclareParents[fmt.Stringer]("controller.*", nil))

		assert.ErrorIs(t, NewDispatcher().Register(aspect), ErrInvalidAspect)
	})

	t.Run("MustRegister panics on an invalid aspect", func(t *testing.T) {
		assert.Panics(t, func() {
			NewDispatcher().MustRegister(NewAspect("A", 1, After("a", nil, nil)))
		})
	})

	t.Run("Aspects are listed by order", func(t *testing.T) {
		dispatcher := NewDispatcher().MustRegister(
			NewAspect("late", 3, Before("b", nil, noop)),
			NewAspect("early", 1, After("a", nil, noop)),
		)

		aspects := dispatcher.Aspects()

		require.Len(t, aspects, 2)
		assert.Equal(t, "early", aspects[0].Name())
		assert.Equal(t, "late", aspects[1].Name())
	})
}

func TestWeave(t *testing.T) {
	t.Run("Weave rejects nil targets", func(t *testing.T) {
		var target *testController

		_, err := NewDispatcher().Weave(target)

		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("Signatures lists operations sorted by name", func(t *testing.T) {
		proxy := weave(t, &recorder{})

		signatures := proxy.Signatures()

		require.Len(t, signatures, 3)
		assert.Equal(t, "controller.TestController.Echo()", signatures[0].String())
		assert.Equal(t, "Fail", signatures[1].Name)
		assert.Equal(t, "Sleep", signatures[2].Name)
	})
}
