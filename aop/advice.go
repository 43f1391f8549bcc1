package aop

import (
	"context"
	"fmt"
)

// Phase is the point relative to an invocation at which an advice runs
type Phase int

const (
	PhaseAround Phase = iota
	PhaseBefore
	PhaseAfterReturning
	PhaseAfterThrowing
	PhaseAfter
)

var phaseNames = map[Phase]string{
	PhaseAround:         "around",
	PhaseBefore:         "before",
	PhaseAfterReturning: "after-returning",
	PhaseAfterThrowing:  "after-throwing",
	PhaseAfter:          "after",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Proceed continues the invocation past an around advice
type Proceed func(ctx context.Context) (any, error)

// AroundFunc wraps the invocation. Skipping proceed skips the operation.
type AroundFunc func(ctx context.Context, jp *JoinPoint, proceed Proceed) (any, error)

// BeforeFunc runs before the operation with its arguments available on jp
type BeforeFunc func(ctx context.Context, jp *JoinPoint) error

// AfterReturningFunc runs after the operation returned without error
type AfterReturningFunc func(ctx context.Context, jp *JoinPoint, result any) error

// AfterThrowingFunc runs after the operation returned an error
type AfterThrowingFunc func(ctx context.Context, jp *JoinPoint, err error) error

// AfterFunc runs after the operation regardless of its outcome
type AfterFunc func(ctx context.Context, jp *JoinPoint) error

// Advice is a named behavior bound to a pointcut at one phase.
// Use the phase constructors (Around, Before, ...) to create one.
type Advice struct {
	name     string
	phase    Phase
	pointcut Pointcut

	around         AroundFunc
	before         BeforeFunc
	afterReturning AfterReturningFunc
	afterThrowing  AfterThrowingFunc
	after          AfterFunc
}

// Name returns the advice name for logging and debugging
func (a Advice) Name() string {
	return a.name
}

// Phase returns the phase the advice runs at
func (a Advice) Phase() Phase {
	return a.phase
}

// Pointcut returns the selector of the advice
func (a Advice) Pointcut() Pointcut {
	return a.pointcut
}

func (a Advice) validate() error {
	var missing bool
	switch a.phase {
	case PhaseAround:
		missing = a.around == nil
	case PhaseBefore:
		missing = a.before == nil
	case PhaseAfterReturning:
		missing = a.afterReturning == nil
	case PhaseAfterThrowing:
		missing = a.afterThrowing == nil
	case PhaseAfter:
		missing = a.after == nil
	default:
		return fmt.Errorf("unknown %s", a.phase)
	}
	if missing {
		return fmt.Errorf("%s advice has no function", a.phase)
	}
	return validatePointcut(a.pointcut)
}

// Around creates an around advice
func Around(name string, pointcut Pointcut, fn AroundFunc) Advice {
	return Advice{name: name, phase: PhaseAround, pointcut: pointcut, around: fn}
}

// Before creates a before advice
func Before(name string, pointcut Pointcut, fn BeforeFunc) Advice {
	return Advice{name: name, phase: PhaseBefore, pointcut: pointcut, before: fn}
}

// AfterReturning creates an after-returning advice
func AfterReturning(name string, pointcut Pointcut, fn AfterReturningFunc) Advice {
	return Advice{name: name, phase: PhaseAfterReturning, pointcut: pointcut, afterReturning: fn}
}

// AfterThrowing creates an after-throwing advice
func AfterThrowing(name string, pointcut Pointcut, fn AfterThrowingFunc) Advice {
	return Advice{name: name, phase: PhaseAfterThrowing, pointcut: pointcut, afterThrowing: fn}
}

// After creates an after (finally) advice
func After(name string, pointcut Pointcut, fn AfterFunc) Advice {
	return Advice{name: name, phase: PhaseAfter, pointcut: pointcut, after: fn}
}
