package aop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet(name string) string
}

type defaultGreeter struct {
	rec *recorder
}

func (g *defaultGreeter) Greet(name string) string {
	g.rec.add("greet:%s", name)
	return "hello " + name
}

type selfGreeter struct {
	otherTarget
}

func (selfGreeter) Greet(name string) string {
	return "self " + name
}

func TestIntroduction(t *testing.T) {
	t.Run("Introduced capability is available to a scoped before advice", func(t *testing.T) {
		rec := &recorder{}
		aspect := NewAspect("introducer", 1,
			Before("greetFirst", And(Within("controller.*"), This[greeter]()), func(ctx context.Context, jp *JoinPoint) error {
				g, ok := CapabilityOf[greeter](jp.This)
				require.True(t, ok)
				g.Greet(jp.Signature.Name)
				return nil
			}),
		).Introduce(DeclareParents[greeter]("controller.*", func() greeter {
			return &defaultGreeter{rec: rec}
		}))

		proxy := weave(t, rec, aspect)
		_, err := proxy.Invoke(context.Background(), "Echo")

		require.NoError(t, err)
		assert.Equal(t, []string{"greet:Echo", "body:Echo"}, rec.events)
	})

	t.Run("Targets outside the pattern get no capability", func(t *testing.T) {
		called := false
		dispatcher := NewDispatcher().MustRegister(
			NewAspect("introducer", 1,
				Before("scoped", This[greeter](), func(ctx context.Context, jp *JoinPoint) error {
					called = true
					return nil
				}),
			).Introduce(DeclareParents[greeter]("controller.*", func() greeter { return &defaultGreeter{rec: &recorder{}} })),
		)

		proxy, err := dispatcher.Weave(otherTarget{})
		require.NoError(t, err)

		result, err := proxy.Invoke(context.Background(), "Run")

		require.NoError(t, err)
		assert.Equal(t, "ran", result)
		assert.False(t, called)
		_, ok := CapabilityOf[greeter](proxy)
		assert.False(t, ok)
	})

	t.Run("Capability implemented by the target itself matches This", func(t *testing.T) {
		proxy, err := NewDispatcher().Weave(selfGreeter{})
		require.NoError(t, err)

		g, ok := CapabilityOf[greeter](proxy)

		require.True(t, ok)
		assert.Equal(t, "self x", g.Greet("x"))
	})

	t.Run("Factory runs once per woven target", func(t *testing.T) {
		created := 0
		dispatcher := NewDispatcher().MustRegister(NewAspect("introducer", 1).Introduce(
			DeclareParents[greeter]("controller.*", func() greeter {
				created++
				return &defaultGreeter{rec: &recorder{}}
			}),
		))

		proxy, err := dispatcher.Weave(&testController{rec: &recorder{}})
		require.NoError(t, err)
		_, _ = proxy.Invoke(context.Background(), "Echo")
		_, _ = proxy.Invoke(context.Background(), "Echo")

		assert.Equal(t, 1, created)
	})
}

func TestPointcuts(t *testing.T) {
	jp := &JoinPoint{Signature: Signature{DeclaringType: "controller.UserController", Name: "UserList"}}

	t.Run("Execution matches owner and method patterns", func(t *testing.T) {
		assert.True(t, Execution("controller.*", "*").Matches(jp))
		assert.True(t, Execution("controller.UserController", "User*").Matches(jp))
		assert.False(t, Execution("service.*", "*").Matches(jp))
		assert.False(t, Execution("controller.*", "Other").Matches(jp))
		assert.True(t, Execution("", "").Matches(jp))
	})

	t.Run("Malformed patterns never match", func(t *testing.T) {
		pc := Execution("controller.[", "*")

		assert.False(t, pc.Matches(jp))
		assert.Error(t, pc.Validate())
		assert.NoError(t, Within("controller.*").Validate())
	})

	t.Run("Combinators", func(t *testing.T) {
		yes := PointcutFunc(func(*JoinPoint) bool { return true })
		no := PointcutFunc(func(*JoinPoint) bool { return false })

		assert.True(t, And(yes, yes).Matches(jp))
		assert.False(t, And(yes, no).Matches(jp))
		assert.True(t, Or(no, yes).Matches(jp))
		assert.False(t, Or(no, no).Matches(jp))
		assert.True(t, Not(no).Matches(jp))
		assert.True(t, And().Matches(jp))
	})

	t.Run("This without a target does not match", func(t *testing.T) {
		assert.False(t, This[greeter]().Matches(jp))
	})

	t.Run("String renders an execution expression", func(t *testing.T) {
		assert.Equal(t, "execution(controller.*.*(..))", Within("controller.*").String())
	})
}
