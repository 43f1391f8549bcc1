package aop

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Pointcut selects the join points an advice applies to
type Pointcut interface {
	// Matches returns true if the advice should run at jp
	Matches(jp *JoinPoint) bool
}

// PointcutFunc is a function adapter for Pointcut
type PointcutFunc func(jp *JoinPoint) bool

// Matches implements Pointcut
func (f PointcutFunc) Matches(jp *JoinPoint) bool {
	return f(jp)
}

// ExecutionPointcut matches operation executions by declaring type and name
type ExecutionPointcut struct {
	ownerPattern  string
	methodPattern string
}

// Execution creates a pointcut matching any operation whose declaring type
// matches ownerPattern and whose name matches methodPattern. Patterns use
// path.Match syntax, so "controller.*" matches every type of package controller.
func Execution(ownerPattern, methodPattern string) *ExecutionPointcut {
	return &ExecutionPointcut{ownerPattern: ownerPattern, methodPattern: methodPattern}
}

// Within matches every operation of the types matching ownerPattern
func Within(ownerPattern string) *ExecutionPointcut {
	return Execution(ownerPattern, "*")
}

// Matches implements Pointcut
func (p *ExecutionPointcut) Matches(jp *JoinPoint) bool {
	return matchPattern(p.ownerPattern, jp.Signature.DeclaringType) &&
		matchPattern(p.methodPattern, jp.Signature.Name)
}

// String returns the pointcut expression
func (p *ExecutionPointcut) String() string {
	return fmt.Sprintf("execution(%s.%s(..))", p.ownerPattern, p.methodPattern)
}

// Validate reports a malformed pattern
func (p *ExecutionPointcut) Validate() error {
	for _, pattern := range []string{p.ownerPattern, p.methodPattern} {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// validatePointcut checks every pointcut of a composition that can report a
// malformed expression
func validatePointcut(pointcut Pointcut) error {
	if v, ok := pointcut.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

func validateAll(pointcuts []Pointcut) error {
	var errs []error
	for _, pc := range pointcuts {
		if pc == nil {
			errs = append(errs, errors.New("nil pointcut in composition"))
			continue
		}
		errs = append(errs, validatePointcut(pc))
	}
	return errors.Join(errs...)
}

func matchPattern(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	// path.Match treats '/' specially; type names never contain it
	ok, err := path.Match(pattern, strings.ReplaceAll(name, "/", "."))
	return err == nil && ok
}

// This matches join points whose target carries capability T, either by
// implementing it directly or through an introduction.
func This[T any]() Pointcut {
	return PointcutFunc(func(jp *JoinPoint) bool {
		if jp.This == nil {
			return false
		}
		_, ok := CapabilityOf[T](jp.This)
		return ok
	})
}

// AndPointcut combines pointcuts with AND logic
type AndPointcut struct {
	pointcuts []Pointcut
}

// And creates a pointcut that matches when all pointcuts match
func And(pointcuts ...Pointcut) *AndPointcut {
	return &AndPointcut{pointcuts: pointcuts}
}

// Matches implements Pointcut
func (p *AndPointcut) Matches(jp *JoinPoint) bool {
	for _, pc := range p.pointcuts {
		if !pc.Matches(jp) {
			return false
		}
	}
	return true
}

// Validate reports a malformed nested pointcut
func (p *AndPointcut) Validate() error {
	return validateAll(p.pointcuts)
}

// OrPointcut combines pointcuts with OR logic
type OrPointcut struct {
	pointcuts []Pointcut
}

// Or creates a pointcut that matches when at least one pointcut matches
func Or(pointcuts ...Pointcut) *OrPointcut {
	return &OrPointcut{pointcuts: pointcuts}
}

// Matches implements Pointcut
func (p *OrPointcut) Matches(jp *JoinPoint) bool {
	for _, pc := range p.pointcuts {
		if pc.Matches(jp) {
			return true
		}
	}
	return false
}

// Validate reports a malformed nested pointcut
func (p *OrPointcut) Validate() error {
	return validateAll(p.pointcuts)
}

// Not inverts a pointcut
func Not(pointcut Pointcut) Pointcut {
	return PointcutFunc(func(jp *JoinPoint) bool {
		return !pointcut.Matches(jp)
	})
}
