package aop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Dispatcher holds the sorted advice bindings and runs them around every
// invocation made through the proxies it weaves. Aspects are registered at
// setup time; dispatching is safe for concurrent use.
type Dispatcher struct {
	mu            sync.RWMutex
	bindings      []Binding
	introductions []Introduction
	aspects       map[string]*Aspect
	names         []string
	seq           int
	logger        *slog.Logger
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher without aspects
func NewDispatcher(options ...Option) *Dispatcher {
	d := &Dispatcher{
		bindings: make([]Binding, 0),
		aspects:  make(map[string]*Aspect),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d
}

// Register validates aspects, adds their advices and re-sorts the binding
// list by ascending order. Bindings of equal order keep registration and
// declaration order. Nothing is registered when any aspect is invalid.
func (d *Dispatcher) Register(aspects ...*Aspect) error {
	var errs []error
	for _, aspect := range aspects {
		if aspect == nil {
			errs = append(errs, fmt.Errorf("%w: aspect is nil", ErrInvalidAspect))
			continue
		}
		if err := aspect.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, aspect := range aspects {
		if _, exists := d.aspects[aspect.name]; exists {
			d.logger.Warn("aspect registered twice", "aspect", aspect.name)
		} else {
			d.names = append(d.names, aspect.name)
		}
		d.aspects[aspect.name] = aspect

		advices := aspect.Advices()
		for _, advice := range advices {
			d.bindings = append(d.bindings, Binding{
				Aspect: aspect.name,
				Order:  aspect.order,
				Advice: advice,
				seq:    d.seq,
			})
			d.seq++
		}
		introductions := aspect.Introductions()
		d.introductions = append(d.introductions, introductions...)

		d.logger.Debug("registered aspect",
			"aspect", aspect.name,
			"order", aspect.order,
			"advices", len(advices),
			"introductions", len(introductions),
		)
	}

	sort.SliceStable(d.bindings, func(i, j int) bool {
		if d.bindings[i].Order != d.bindings[j].Order {
			return d.bindings[i].Order < d.bindings[j].Order
		}
		return d.bindings[i].seq < d.bindings[j].seq
	})

	return nil
}

// MustRegister is like Register but panics on an invalid aspect. It returns
// the dispatcher for chaining.
func (d *Dispatcher) MustRegister(aspects ...*Aspect) *Dispatcher {
	if err := d.Register(aspects...); err != nil {
		panic(err)
	}
	return d
}

// Aspects returns the registered aspects ordered by ascending order, then by
// first registration
func (d *Dispatcher) Aspects() []*Aspect {
	d.mu.RLock()
	defer d.mu.RUnlock()

	aspects := make([]*Aspect, 0, len(d.names))
	for _, name := range d.names {
		aspects = append(aspects, d.aspects[name])
	}
	sort.SliceStable(aspects, func(i, j int) bool {
		return aspects[i].order < aspects[j].order
	})
	return aspects
}

// Bindings returns the sorted binding list
func (d *Dispatcher) Bindings() []Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Binding(nil), d.bindings...)
}

// Weave wraps target in a proxy and attaches the introductions whose pattern
// matches the target type
func (d *Dispatcher) Weave(target Target) (*Proxy, error) {
	if target == nil || (reflect.ValueOf(target).Kind() == reflect.Pointer && reflect.ValueOf(target).IsNil()) {
		return nil, fmt.Errorf("%w: target is nil", ErrInvalidTarget)
	}

	proxy := &Proxy{
		target:       target,
		dispatcher:   d,
		operations:   make(map[string]Operation),
		capabilities: make(map[reflect.Type]any),
	}

	for _, op := range target.Operations() {
		if op.Name == "" || op.Method == nil {
			return nil, fmt.Errorf("%w: %s has an unnamed or empty operation", ErrInvalidTarget, target.TypeName())
		}
		if _, exists := proxy.operations[op.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate operation %s.%s", ErrInvalidTarget, target.TypeName(), op.Name)
		}
		proxy.operations[op.Name] = op
	}

	d.mu.RLock()
	introductions := append([]Introduction(nil), d.introductions...)
	d.mu.RUnlock()

	for _, introduction := range introductions {
		if !introduction.Applies(target.TypeName()) {
			continue
		}
		if _, exists := proxy.capabilities[introduction.capability]; exists {
			continue
		}
		proxy.capabilities[introduction.capability] = introduction.factory()

		d.logger.Debug("introduced capability",
			"target", target.TypeName(),
			"capability", introduction.capability.String(),
		)
	}

	return proxy, nil
}

// plan holds the bindings matching one join point, partitioned by phase
type plan struct {
	around         []Binding
	before         []Binding
	afterReturning []Binding
	afterThrowing  []Binding
	after          []Binding
}

func (p *plan) size() int {
	return len(p.around) + len(p.before) + len(p.afterReturning) + len(p.afterThrowing) + len(p.after)
}

func (d *Dispatcher) plan(jp *JoinPoint) *plan {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := &plan{}
	for _, binding := range d.bindings {
		pointcut := binding.Advice.pointcut
		if pointcut != nil && !pointcut.Matches(jp) {
			continue
		}
		switch binding.Advice.phase {
		case PhaseAround:
			p.around = append(p.around, binding)
		case PhaseBefore:
			p.before = append(p.before, binding)
		case PhaseAfterReturning:
			p.afterReturning = append(p.afterReturning, binding)
		case PhaseAfterThrowing:
			p.afterThrowing = append(p.afterThrowing, binding)
		case PhaseAfter:
			p.after = append(p.after, binding)
		}
	}
	return p
}

// Dispatch runs method at jp with every matching advice. Around advices wrap
// the call with the lowest order outermost; before, after-returning or
// after-throwing, and after advices run in that sequence, each phase in
// ascending order.
func (d *Dispatcher) Dispatch(ctx context.Context, jp *JoinPoint, method Method) (any, error) {
	if method == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchOperation, jp.Signature)
	}

	ctx = WithJoinPoint(ctx, jp)
	p := d.plan(jp)

	d.logger.Debug("dispatching join point",
		"joinPointId", jp.ID,
		"signature", jp.Signature.String(),
		"advices", p.size(),
	)

	proceed := Proceed(func(ctx context.Context) (any, error) {
		return d.invoke(ctx, jp, method, p)
	})

	// Build the around chain in reverse order
	for i := len(p.around) - 1; i >= 0; i-- {
		binding := p.around[i]
		next := proceed
		proceed = func(ctx context.Context) (any, error) {
			return binding.Advice.around(ctx, jp, next)
		}
	}

	result, err := proceed(ctx)
	if err != nil {
		d.logger.Debug("join point failed",
			"joinPointId", jp.ID,
			"signature", jp.Signature.String(),
			"elapsed", time.Since(jp.StartedAt),
			"error", err,
		)
	}
	return result, err
}

func (d *Dispatcher) invoke(ctx context.Context, jp *JoinPoint, method Method, p *plan) (any, error) {
	for _, binding := range p.before {
		if err := binding.Advice.before(ctx, jp); err != nil {
			return nil, d.adviceFailed(jp, binding, err)
		}
	}

	result, err := method(ctx, jp.Args...)

	if err != nil {
		for _, binding := range p.afterThrowing {
			if adviceErr := binding.Advice.afterThrowing(ctx, jp, err); adviceErr != nil {
				return nil, d.adviceFailed(jp, binding, adviceErr)
			}
		}
	} else {
		for _, binding := range p.afterReturning {
			if adviceErr := binding.Advice.afterReturning(ctx, jp, result); adviceErr != nil {
				return nil, d.adviceFailed(jp, binding, adviceErr)
			}
		}
	}

	for _, binding := range p.after {
		if adviceErr := binding.Advice.after(ctx, jp); adviceErr != nil {
			return nil, d.adviceFailed(jp, binding, adviceErr)
		}
	}

	return result, err
}

func (d *Dispatcher) adviceFailed(jp *JoinPoint, binding Binding, err error) error {
	d.logger.Error("advice failed",
		"joinPointId", jp.ID,
		"signature", jp.Signature.String(),
		"aspect", binding.Aspect,
		"advice", binding.Advice.name,
		"phase", binding.Advice.phase.String(),
		"error", err,
	)
	return &AdviceError{
		Aspect:    binding.Aspect,
		Advice:    binding.Advice.name,
		Phase:     binding.Advice.phase,
		Signature: jp.Signature,
		Err:       err,
	}
}
