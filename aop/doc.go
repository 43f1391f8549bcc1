// Package aop provides explicit, registration-based method interception.
//
// Targets expose their operations through the Target interface and are woven
// into a Proxy by a Dispatcher. Every call made through the proxy becomes a
// JoinPoint, and the advices registered on the dispatcher run around it:
//   - Around: wraps the call and decides whether to Proceed
//   - Before: runs before the call with the arguments
//   - AfterReturning: runs when the call returned without error
//   - AfterThrowing: runs when the call returned an error
//   - After: runs after every call, following the returning/throwing advices
//
// Advices are grouped into aspects. An aspect's order positions all of its
// advices: lower orders run first within each phase, and a lower-order
// around advice wraps a higher-order one.
//
// Example usage:
//
//	controllers := aop.Within("controller.*")
//
//	aspect := aop.NewAspect("Profiling", 1,
//		aop.Around("time", controllers, func(ctx context.Context, jp *aop.JoinPoint, proceed aop.Proceed) (any, error) {
//			start := time.Now()
//			result, err := proceed(ctx)
//			fmt.Printf("%s took %d ms\n", jp.Signature, time.Since(start).Milliseconds())
//			return result, err
//		}),
//	)
//
//	dispatcher := aop.NewDispatcher().MustRegister(aspect)
//	proxy, err := dispatcher.Weave(userController)
//	result, err := proxy.Invoke(ctx, "UserListRuntime")
//
// Introductions attach a capability to matching targets when they are woven.
// A before advice scoped with This[T] can fetch it with CapabilityOf[T].
//
// An error returned by a before, after-returning, after-throwing or after
// advice stops the remaining advices of the invocation and is returned to the
// caller as an *AdviceError. Errors returned by the operation itself reach the
// caller unchanged.
package aop
