package kinetic

import "context"

// ResolutionState is the state of an executor's value within a resolver:
// unresolved until first requested, pending while the factory runs,
// then resolved or rejected.
type ResolutionState int

const (
	StateUnresolved ResolutionState = iota
	StatePending
	StateResolved
	StateRejected
)

func (s ResolutionState) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// host is implemented by both Scope and Pod. It is the uniform resolver
// surface Controller uses, so a dependent never needs to know whether the
// value behind its accessor lives in a scope's cache or a pod's overlay.
type host interface {
	tagContainer
	resolveDependency(ctx context.Context, owner AnyExecutor, dep Dependency) (any, error)
	peekValue(exec AnyExecutor) (any, bool)
	updateValue(ctx context.Context, exec AnyExecutor, newVal any) error
	releaseValue(exec AnyExecutor, soft bool) error
	reloadValue(ctx context.Context, exec AnyExecutor) (any, error)
	subscribeValue(exec AnyExecutor, cb func(any)) func()
	stateOf(exec AnyExecutor) ResolutionState
	registerCleanup(exec AnyExecutor, fn func() error)
}

// Controller is the per-dependency handle passed to a factory: the uniform
// Accessor surface for default, reactive, lazy, and static dependencies
// alike. Whether Get triggers a fresh factory call or returns a hot cache
// entry depends entirely on the dependency's mode and the resolver's prior
// work, not on the shape of Controller itself.
type Controller[T any] struct {
	dep   Dependency
	host  host
	owner AnyExecutor
}

// Get resolves the dependency's current value, reusing a cached result
// when one already exists.
func (c *Controller[T]) Get(ctx context.Context) (T, error) {
	val, err := c.host.resolveDependency(ctx, c.owner, c.dep)
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// Peek returns the cached value without triggering resolution.
func (c *Controller[T]) Peek() (T, bool) {
	val, ok := c.host.peekValue(c.dep.executor())
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// Update sets a new value directly and cascades to reactive dependents.
func (c *Controller[T]) Update(ctx context.Context, newVal T) error {
	return c.host.updateValue(ctx, c.dep.executor(), newVal)
}

// UpdateFunc derives the new value from the previous one, resolving it
// first if it is not already cached.
func (c *Controller[T]) UpdateFunc(ctx context.Context, fn func(T) T) error {
	prev, err := c.Get(ctx)
	if err != nil {
		return err
	}
	return c.Update(ctx, fn(prev))
}

// Release runs the entry's cleanups and drops the cached value. A soft
// release additionally releases any upstream dependency whose reverse-edge
// set becomes empty once this entry is gone (this entry was its last
// reactive dependent); a hard release (soft=false) touches only this
// entry.
func (c *Controller[T]) Release(soft bool) error {
	return c.host.releaseValue(c.dep.executor(), soft)
}

// Reload releases and immediately re-resolves.
func (c *Controller[T]) Reload(ctx context.Context) (T, error) {
	val, err := c.host.reloadValue(ctx, c.dep.executor())
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// IsCached reports whether the value is presently cached without
// resolving it.
func (c *Controller[T]) IsCached() bool {
	return c.host.stateOf(c.dep.executor()) == StateResolved
}

// State returns the dependency's current resolution state.
func (c *Controller[T]) State() ResolutionState {
	return c.host.stateOf(c.dep.executor())
}

// Subscribe registers cb to run whenever the dependency's value changes.
// The returned func unsubscribes.
func (c *Controller[T]) Subscribe(cb func(T)) func() {
	return c.host.subscribeValue(c.dep.executor(), func(v any) {
		cb(v.(T))
	})
}

// ensureEager forces resolution before the factory body runs, for every
// mode except lazy: default and reactive dependencies must already be
// resolved by the time a factory reads them, and static dependencies must
// be hot so their accessor never blocks on first use.
func ensureEager(ctx context.Context, host host, owner AnyExecutor, dep Dependency) error {
	if dep.mode() == ModeLazy {
		return nil
	}
	_, err := host.resolveDependency(ctx, owner, dep)
	return err
}
