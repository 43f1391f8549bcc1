package aop

import (
	"errors"
	"fmt"
)

// Aspect is a named collection of advices and introductions sharing one
// execution order. Lower orders run first within every phase.
type Aspect struct {
	name          string
	order         int
	advices       []Advice
	introductions []Introduction
}

// NewAspect creates an aspect with the given order
func NewAspect(name string, order int, advices ...Advice) *Aspect {
	return &Aspect{
		name:    name,
		order:   order,
		advices: advices,
	}
}

// Name returns the aspect name
func (a *Aspect) Name() string {
	return a.name
}

// Order returns the aspect order
func (a *Aspect) Order() int {
	return a.order
}

// Advise adds advices to the aspect
func (a *Aspect) Advise(advices ...Advice) *Aspect {
	a.advices = append(a.advices, advices...)
	return a
}

// Introduce adds introductions to the aspect
func (a *Aspect) Introduce(introductions ...Introduction) *Aspect {
	a.introductions = append(a.introductions, introductions...)
	return a
}

// Advices returns the advices in declaration order
func (a *Aspect) Advices() []Advice {
	return append([]Advice(nil), a.advices...)
}

// Introductions returns the declared introductions
func (a *Aspect) Introductions() []Introduction {
	return append([]Introduction(nil), a.introductions...)
}

func (a *Aspect) validate() error {
	if a.name == "" {
		return fmt.Errorf("%w: aspect has no name", ErrInvalidAspect)
	}

	var errs []error
	for _, advice := range a.advices {
		if err := advice.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s.%s: %w", ErrInvalidAspect, a.name, advice.name, err))
		}
	}
	for _, introduction := range a.introductions {
		if err := introduction.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidAspect, a.name, err))
		}
	}
	return errors.Join(errs...)
}

// Binding is one advice of a registered aspect, positioned in the
// dispatcher's sorted binding list
type Binding struct {
	Aspect string
	Order  int
	Advice Advice

	seq int
}

// String renders the binding for listings
func (b Binding) String() string {
	return fmt.Sprintf("%d %s.%s [%s]", b.Order, b.Aspect, b.Advice.Name(), b.Advice.Phase())
}
