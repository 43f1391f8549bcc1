// Package aspects defines the console aspects applied to the controllers.
package aspects

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/service"
)

// ControllerPattern selects every controller type
const ControllerPattern = "controller.*"

// IntroducedMessage is logged through the introduced Logging capability
const IntroducedMessage = "This is displayed just before a controller method is executed."

// Controllers matches every operation of every controller
func Controllers() aop.Pointcut {
	return aop.Within(ControllerPattern)
}

// console serializes writes so lines of concurrent invocations do not interleave
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	if out == nil {
		out = os.Stdout
	}
	return &console{out: out}
}

func (c *console) println(lines ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
}

func header(jp *aop.JoinPoint) string {
	return fmt.Sprintf("-----%s-----", jp.Signature)
}

// NewControllerAspect creates the aspect that profiles controller methods,
// logs their arguments, return values and errors, runs the cleanup advice and
// introduces the Logging capability onto every controller
func NewControllerAspect(out io.Writer, order int) *aop.Aspect {
	c := newConsole(out)
	controllers := Controllers()

	return aop.NewAspect("ControllerAspect", order,
		aop.Around("doBasicProfiling", controllers, func(ctx context.Context, jp *aop.JoinPoint, proceed aop.Proceed) (any, error) {
			start := time.Now()
			result, err := proceed(ctx)
			elapsed := time.Since(start)

			c.println(fmt.Sprintf("%s took %d ms", jp.Signature, elapsed.Milliseconds()))
			return result, err
		}),
		aop.Before("logArguments", controllers, func(ctx context.Context, jp *aop.JoinPoint) error {
			c.println(append([]any{header(jp)}, jp.Args...)...)
			return nil
		}),
		aop.AfterReturning("logReturnValue", controllers, func(ctx context.Context, jp *aop.JoinPoint, result any) error {
			c.println(header(jp), fmt.Sprintf("returnValue=%v", result))
			return nil
		}),
		aop.AfterThrowing("logException", controllers, func(ctx context.Context, jp *aop.JoinPoint, err error) error {
			c.println(header(jp), fmt.Sprintf("exception message:%s", err.Error()))
			return nil
		}),
		aop.After("cleanUp", controllers, func(ctx context.Context, jp *aop.JoinPoint) error {
			c.println(header(jp))
			return nil
		}),
		aop.Before("logControllerMethod", aop.And(controllers, aop.This[service.Logging]()), func(ctx context.Context, jp *aop.JoinPoint) error {
			logging, ok := aop.CapabilityOf[service.Logging](jp.This)
			if !ok {
				return fmt.Errorf("%s does not carry the logging capability", jp.Signature.DeclaringType)
			}
			logging.Log(IntroducedMessage)
			return nil
		}),
	).Introduce(aop.DeclareParents[service.Logging](ControllerPattern, func() service.Logging {
		return service.NewConsoleLogging(c)
	}))
}

// Write lets the introduced logging share the aspect's console
func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}
