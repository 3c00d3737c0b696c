package kinetic

//go:generate go run codegen/main.go -w

func Derive1[T any, D1 any](
	d1 Dependency,
	factory func(*ResolveCtx, *Controller[D1]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		if err := ensureEager(ctx.Context(), ctx.scope, exec, d1); err != nil {
			return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d1.executor(), Cause: err}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive2[T any, D1 any, D2 any](
	d1 Dependency,
	d2 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive3[T any, D1 any, D2 any, D3 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive4[T any, D1 any, D2 any, D3 any, D4 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive5[T any, D1 any, D2 any, D3 any, D4 any, D5 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	d5 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4], *Controller[D5]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4, d5} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		ctrl5 := &Controller[D5]{dep: d5, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4, ctrl5)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4, d5}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive6[T any, D1 any, D2 any, D3 any, D4 any, D5 any, D6 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	d5 Dependency,
	d6 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4], *Controller[D5], *Controller[D6]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4, d5, d6} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		ctrl5 := &Controller[D5]{dep: d5, host: ctx.scope, owner: exec}
		ctrl6 := &Controller[D6]{dep: d6, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4, ctrl5, ctrl6)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4, d5, d6}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive7[T any, D1 any, D2 any, D3 any, D4 any, D5 any, D6 any, D7 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	d5 Dependency,
	d6 Dependency,
	d7 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4], *Controller[D5], *Controller[D6], *Controller[D7]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4, d5, d6, d7} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		ctrl5 := &Controller[D5]{dep: d5, host: ctx.scope, owner: exec}
		ctrl6 := &Controller[D6]{dep: d6, host: ctx.scope, owner: exec}
		ctrl7 := &Controller[D7]{dep: d7, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4, ctrl5, ctrl6, ctrl7)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4, d5, d6, d7}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive8[T any, D1 any, D2 any, D3 any, D4 any, D5 any, D6 any, D7 any, D8 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	d5 Dependency,
	d6 Dependency,
	d7 Dependency,
	d8 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4], *Controller[D5], *Controller[D6], *Controller[D7], *Controller[D8]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4, d5, d6, d7, d8} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		ctrl5 := &Controller[D5]{dep: d5, host: ctx.scope, owner: exec}
		ctrl6 := &Controller[D6]{dep: d6, host: ctx.scope, owner: exec}
		ctrl7 := &Controller[D7]{dep: d7, host: ctx.scope, owner: exec}
		ctrl8 := &Controller[D8]{dep: d8, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4, ctrl5, ctrl6, ctrl7, ctrl8)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4, d5, d6, d7, d8}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

func Derive9[T any, D1 any, D2 any, D3 any, D4 any, D5 any, D6 any, D7 any, D8 any, D9 any](
	d1 Dependency,
	d2 Dependency,
	d3 Dependency,
	d4 Dependency,
	d5 Dependency,
	d6 Dependency,
	d7 Dependency,
	d8 Dependency,
	d9 Dependency,
	factory func(*ResolveCtx, *Controller[D1], *Controller[D2], *Controller[D3], *Controller[D4], *Controller[D5], *Controller[D6], *Controller[D7], *Controller[D8], *Controller[D9]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		for _, d := range []Dependency{d1, d2, d3, d4, d5, d6, d7, d8, d9} {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
		}
		ctrl1 := &Controller[D1]{dep: d1, host: ctx.scope, owner: exec}
		ctrl2 := &Controller[D2]{dep: d2, host: ctx.scope, owner: exec}
		ctrl3 := &Controller[D3]{dep: d3, host: ctx.scope, owner: exec}
		ctrl4 := &Controller[D4]{dep: d4, host: ctx.scope, owner: exec}
		ctrl5 := &Controller[D5]{dep: d5, host: ctx.scope, owner: exec}
		ctrl6 := &Controller[D6]{dep: d6, host: ctx.scope, owner: exec}
		ctrl7 := &Controller[D7]{dep: d7, host: ctx.scope, owner: exec}
		ctrl8 := &Controller[D8]{dep: d8, host: ctx.scope, owner: exec}
		ctrl9 := &Controller[D9]{dep: d9, host: ctx.scope, owner: exec}
		return factory(ctx, ctrl1, ctrl2, ctrl3, ctrl4, ctrl5, ctrl6, ctrl7, ctrl8, ctrl9)
	}
	exec = &Executor[T]{factory: wrapped, deps: []Dependency{d1, d2, d3, d4, d5, d6, d7, d8, d9}, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

// DeriveList builds an executor depending on an ordered list of
// same-shaped dependencies. factory receives one Controller[D] per entry,
// in the order deps were given.
func DeriveList[T any, D any](
	deps []Dependency,
	factory func(*ResolveCtx, []*Controller[D]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		ctrls := make([]*Controller[D], len(deps))
		for i, d := range deps {
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
			ctrls[i] = &Controller[D]{dep: d, host: ctx.scope, owner: exec}
		}
		return factory(ctx, ctrls)
	}
	exec = &Executor[T]{factory: wrapped, deps: append([]Dependency{}, deps...), tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

// DeriveMap builds an executor depending on a keyed mapping of
// same-shaped dependencies. factory receives one Controller[D] per key.
func DeriveMap[T any, D any](
	deps map[string]Dependency,
	factory func(*ResolveCtx, map[string]*Controller[D]) (T, error),
	opts ...ExecutorOption,
) *Executor[T] {
	var exec *Executor[T]
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	wrapped := func(ctx *ResolveCtx) (T, error) {
		var zero T
		ctrls := make(map[string]*Controller[D], len(deps))
		for _, k := range keys {
			d := deps[k]
			if err := ensureEager(ctx.Context(), ctx.scope, exec, d); err != nil {
				return zero, &DependencyResolutionError{Executor: exec, FailingDependency: d.executor(), Cause: err}
			}
			ctrls[k] = &Controller[D]{dep: d, host: ctx.scope, owner: exec}
		}
		return factory(ctx, ctrls)
	}
	flat := make([]Dependency, 0, len(deps))
	for _, k := range keys {
		flat = append(flat, deps[k])
	}
	exec = &Executor[T]{factory: wrapped, deps: flat, tagBag: newTagBag()}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}
