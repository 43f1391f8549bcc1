package aop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// JoinPointContextKey is the key for storing the current join point
	JoinPointContextKey contextKey = "aopdemo:aop:joinpoint"
)

// Signature identifies an operation by its declaring type and name
type Signature struct {
	DeclaringType string
	Name          string
}

// String renders the signature as DeclaringType.Name()
func (s Signature) String() string {
	return fmt.Sprintf("%s.%s()", s.DeclaringType, s.Name)
}

// JoinPoint describes one invocation of an operation on a woven target
type JoinPoint struct {
	ID        string
	Signature Signature
	Args      []any
	This      *Proxy
	StartedAt time.Time
}

// NewJoinPoint creates a join point with a fresh ID
func NewJoinPoint(sig Signature, this *Proxy, args []any) *JoinPoint {
	return &JoinPoint{
		ID:        uuid.New().String(),
		Signature: sig,
		Args:      args,
		This:      this,
		StartedAt: time.Now(),
	}
}

// JoinPointFromContext retrieves the join point being dispatched
func JoinPointFromContext(ctx context.Context) (*JoinPoint, bool) {
	value := ctx.Value(JoinPointContextKey)
	if value == nil {
		return nil, false
	}
	jp, ok := value.(*JoinPoint)
	return jp, ok
}

// WithJoinPoint adds the join point to the context
func WithJoinPoint(ctx context.Context, jp *JoinPoint) context.Context {
	return context.WithValue(ctx, JoinPointContextKey, jp)
}
