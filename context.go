package kinetic

import "context"

// ResolveCtx is passed to every factory. It carries the ambient
// cancellation context, gives access to scope-level tags, and is the only
// way a factory can register cleanup for the value it produces.
type ResolveCtx struct {
	ctx    context.Context
	scope  host
	target AnyExecutor
}

// Context returns the cancellation context the resolution was started
// with (the one given to Resolve, Controller.Get, or Execute).
func (ctx *ResolveCtx) Context() context.Context {
	if ctx.ctx == nil {
		return context.Background()
	}
	return ctx.ctx
}

// OnCleanup registers fn to run when the value this factory produced is
// released, updated away, or the owning scope is disposed. Cleanups run
// in LIFO order relative to other cleanups registered for the same
// executor.
func (ctx *ResolveCtx) OnCleanup(fn func() error) {
	ctx.scope.registerCleanup(ctx.target, fn)
}

// GetTag retrieves a typed tag value set on the enclosing scope or pod.
func GetTag[T any](ctx *ResolveCtx, tag Tag[T]) (T, bool) {
	return tag.Find(ctx.scope)
}

// GetTagOrDefault retrieves a typed scope tag or returns defaultVal.
func GetTagOrDefault[T any](ctx *ResolveCtx, tag Tag[T], defaultVal T) T {
	if val, ok := tag.Find(ctx.scope); ok {
		return val
	}
	return defaultVal
}
