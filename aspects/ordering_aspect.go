package aspects

import (
	"context"
	"io"

	"github.com/glimte/aopdemo/aop"
)

// NewOrderingAspect creates a second aspect whose before advice shows where
// it runs relative to the controller aspect
func NewOrderingAspect(out io.Writer, order int) *aop.Aspect {
	c := newConsole(out)

	return aop.NewAspect("OrderingAspect", order,
		aop.Before("advice2", Controllers(), func(ctx context.Context, jp *aop.JoinPoint) error {
			c.println("advice2")
			return nil
		}),
	)
}
