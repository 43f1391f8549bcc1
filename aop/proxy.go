package aop

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"sort"
)

// Method is the body of an operation
type Method func(ctx context.Context, args ...any) (any, error)

// Operation is a named method exposed by a target
type Operation struct {
	Name   string
	Method Method
}

// Target is a value whose operations can be intercepted
type Target interface {
	// TypeName returns the declaring type name used by pointcuts, e.g. "controller.UserController"
	TypeName() string

	// Operations returns the interceptable operations of the target
	Operations() []Operation
}

// Introduction attaches a capability with a default implementation to every
// target whose type name matches a pattern
type Introduction struct {
	ownerPattern string
	capability   reflect.Type
	factory      func() any
}

// DeclareParents creates an introduction of capability T onto the targets
// matching ownerPattern. factory is called once per woven target.
func DeclareParents[T any](ownerPattern string, factory func() T) Introduction {
	introduction := Introduction{
		ownerPattern: ownerPattern,
		capability:   reflect.TypeFor[T](),
	}
	if factory != nil {
		introduction.factory = func() any { return factory() }
	}
	return introduction
}

// Capability returns the introduced interface type
func (i Introduction) Capability() reflect.Type {
	return i.capability
}

// OwnerPattern returns the type name pattern the capability is introduced onto
func (i Introduction) OwnerPattern() string {
	return i.ownerPattern
}

func (i Introduction) validate() error {
	if i.capability == nil || i.factory == nil {
		return fmt.Errorf("introduction onto %q has no capability factory", i.ownerPattern)
	}
	if _, err := path.Match(i.ownerPattern, ""); err != nil {
		return fmt.Errorf("introduction pattern %q: %w", i.ownerPattern, err)
	}
	return nil
}

// Applies reports whether the introduction targets typeName
func (i Introduction) Applies(typeName string) bool {
	return matchPattern(i.ownerPattern, typeName)
}

// Proxy is a woven target. Invocations through the proxy are dispatched with
// the registered advices.
type Proxy struct {
	target       Target
	dispatcher   *Dispatcher
	operations   map[string]Operation
	capabilities map[reflect.Type]any
}

// Target returns the underlying target
func (p *Proxy) Target() Target {
	return p.target
}

// Invoke calls the named operation through the advice chain
func (p *Proxy) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	op, ok := p.operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchOperation, p.target.TypeName(), name)
	}

	jp := NewJoinPoint(Signature{DeclaringType: p.target.TypeName(), Name: op.Name}, p, args)
	return p.dispatcher.Dispatch(ctx, jp, op.Method)
}

// Signatures returns the signatures of every operation, sorted by name
func (p *Proxy) Signatures() []Signature {
	signatures := make([]Signature, 0, len(p.operations))
	for name := range p.operations {
		signatures = append(signatures, Signature{DeclaringType: p.target.TypeName(), Name: name})
	}
	sort.Slice(signatures, func(i, j int) bool {
		return signatures[i].Name < signatures[j].Name
	})
	return signatures
}

// CapabilityOf returns capability T of a woven target, checking introduced
// capabilities first and then the target itself
func CapabilityOf[T any](p *Proxy) (T, bool) {
	var zero T
	if p == nil {
		return zero, false
	}
	if impl, ok := p.capabilities[reflect.TypeFor[T]()]; ok {
		if capability, ok := impl.(T); ok {
			return capability, true
		}
	}
	if capability, ok := any(p.target).(T); ok {
		return capability, true
	}
	return zero, false
}
