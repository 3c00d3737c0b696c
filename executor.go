package kinetic

// Executor is an immutable node in the dependency graph: a factory plus the
// dependencies it needs and the tags describing it. Executors are values —
// never mutated after construction — and are keyed by object identity.
type Executor[T any] struct {
	factory func(*ResolveCtx) (T, error)
	deps    []Dependency
	tagBag  tagBag
}

// AnyExecutor is the type-erased view of an Executor used by the scope's
// cache, reverse-dependency graph, and tag bag, all of which are keyed on
// descriptor identity rather than on T.
type AnyExecutor interface {
	tagContainer
	resolveAny(ctx *ResolveCtx) (any, error)
	dependencies() []Dependency
}

func (e *Executor[T]) dependencies() []Dependency { return e.deps }
func (e *Executor[T]) getTags(key any) []any       { return e.tagBag.getTags(key) }
func (e *Executor[T]) setTag(key any, val any)      { e.tagBag.setTag(key, val) }

func (e *Executor[T]) resolveAny(ctx *ResolveCtx) (any, error) {
	return e.factory(ctx)
}

// DependencyMode selects how a dependency edge behaves during resolution.
type DependencyMode int

const (
	// ModeDefault resolves to the factory's value with no reactive tracking.
	ModeDefault DependencyMode = iota
	// ModeReactive resolves to the value and registers the dependent for
	// re-resolution whenever the source updates.
	ModeReactive
	// ModeLazy resolves to an Accessor without triggering the source factory.
	ModeLazy
	// ModeStatic resolves to an Accessor, eagerly triggering the source
	// factory (the accessor is already hot when the dependent observes it).
	ModeStatic
)

// Dependency pairs an executor with the variant it should be resolved as.
// Every *Executor[T] is itself a Dependency in ModeDefault; .Reactive(),
// .Lazy(), and .Static() wrap it with a different mode while preserving
// identity.
type Dependency interface {
	executor() AnyExecutor
	mode() DependencyMode
}

type dependencyVariant struct {
	exec AnyExecutor
	m    DependencyMode
}

func (d dependencyVariant) executor() AnyExecutor  { return d.exec }
func (d dependencyVariant) mode() DependencyMode    { return d.m }

func (e *Executor[T]) executor() AnyExecutor { return e }
func (e *Executor[T]) mode() DependencyMode  { return ModeDefault }

// Reactive returns a dependency edge that re-runs the dependent whenever e
// is updated.
func (e *Executor[T]) Reactive() Dependency {
	return dependencyVariant{exec: e, m: ModeReactive}
}

// Lazy returns a dependency edge resolving to an Accessor without forcing e.
func (e *Executor[T]) Lazy() Dependency {
	return dependencyVariant{exec: e, m: ModeLazy}
}

// Static returns a dependency edge resolving to an Accessor, eagerly
// resolving e at the time the dependent is resolved.
func (e *Executor[T]) Static() Dependency {
	return dependencyVariant{exec: e, m: ModeStatic}
}

// ExecutorOption configures an Executor at construction time.
type ExecutorOption func(AnyExecutor)

// WithTag returns an option that tags an executor.
func WithTag[T any](tag Tag[T], val T) ExecutorOption {
	return func(e AnyExecutor) {
		tag.Set(e, val)
	}
}

// Provide creates a dependency-free executor. The factory receives a
// ResolveCtx for registering cleanups and reading scope tags.
func Provide[T any](factory func(*ResolveCtx) (T, error), opts ...ExecutorOption) *Executor[T] {
	e := &Executor[T]{
		factory: factory,
		tagBag:  newTagBag(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
