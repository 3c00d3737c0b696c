package kinetic

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pod is a short-lived child of a Scope: its own cache, reverse-dependency
// graph, presets, and cleanups. A read for a descriptor not yet resolved (or
// overridden) locally falls through to the parent's already-resolved value;
// every write — resolve, update, cleanup registration — lands exclusively in
// the pod. The pod never mutates the parent's cache or reverse-edges.
type Pod struct {
	parent     *Scope
	cache      *valueCache
	graph      *reactiveGraph
	presets    map[AnyExecutor]presetBinding
	tags       tagBag
	sf         singleflight.Group
	extensions []Extension

	cleanupMu sync.Mutex
	cleanups  map[AnyExecutor][]func() error

	orderMu sync.Mutex
	order   []AnyExecutor
	seen    map[AnyExecutor]bool

	updateMu       sync.Mutex
	updating       bool
	pendingUpdates []pendingUpdate

	mu       sync.RWMutex
	disposed bool
}

// PodOption configures a Pod at creation time.
type PodOption func(*Pod)

// WithPodPreset binds a descriptor to a fixed value or a replacement
// executor, scoped strictly to the pod.
func WithPodPreset[T any](original *Executor[T], replacement any) PodOption {
	return func(p *Pod) { applyPreset[T](p.presets, original, replacement) }
}

// WithPodTag sets a tag readable by every factory resolved within the pod.
func WithPodTag[T any](tag Tag[T], val T) PodOption {
	return func(p *Pod) { tag.Set(p, val) }
}

// WithPodExtension layers an extension onto the pod, appended after the
// parent scope's own list. It observes only operations that land in this
// pod and is disposed with it.
func WithPodExtension(ext Extension) PodOption {
	return func(p *Pod) { p.extensions = append(p.extensions, ext) }
}

// Pod spawns a new pod layered on s. Every extension visible to the pod
// (the scope's plus the pod's own) gets its InitPod hook called once.
func (s *Scope) Pod(opts ...PodOption) *Pod {
	p := &Pod{
		parent:   s,
		cache:    newValueCache(),
		graph:    newReactiveGraph(),
		presets:  make(map[AnyExecutor]presetBinding),
		tags:     newTagBag(),
		cleanups: make(map[AnyExecutor][]func() error),
		seen:     make(map[AnyExecutor]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, ext := range p.extensionSnapshot() {
		if err := ext.InitPod(p); err != nil {
			s.notifyError(err)
		}
	}
	return p
}

// Use layers ext onto the pod after creation and runs its InitPod hook.
func (p *Pod) Use(ext Extension) error {
	p.mu.Lock()
	p.extensions = append(p.extensions, ext)
	p.mu.Unlock()
	return ext.InitPod(p)
}

// Parent returns the scope this pod was spawned from.
func (p *Pod) Parent() *Scope { return p.parent }

// extensionSnapshot returns the parent scope's extensions (in the parent's
// Order-sorted order) followed by the pod's own, in the order they were added.
func (p *Pod) extensionSnapshot() []Extension {
	base := p.parent.extensionSnapshot()
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Extension, 0, len(base)+len(p.extensions))
	out = append(out, base...)
	out = append(out, p.extensions...)
	return out
}

func (p *Pod) wrapExtensions(ctx context.Context, next func() (any, error), op *Operation) func() (any, error) {
	return chainExtensions(p.extensionSnapshot(), ctx, next, op)
}

// notifyErrorFor fans err out to the pod's own extensions first, then to the
// parent scope's extensions and error observers.
func (p *Pod) notifyErrorFor(err error, op *Operation) {
	p.mu.RLock()
	own := make([]Extension, len(p.extensions))
	copy(own, p.extensions)
	p.mu.RUnlock()
	for _, ext := range own {
		func() {
			defer func() { recover() }()
			ext.OnError(err, op, p.parent)
		}()
	}
	p.parent.notifyErrorFor(err, op)
}

// DisposePod tears down pod's local cleanups and cache without touching any
// parent entry.
func (s *Scope) DisposePod(p *Pod) error {
	return p.dispose()
}

func (p *Pod) getTags(key any) []any { return p.tags.getTags(key) }

func (p *Pod) setTag(key any, val any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags.setTag(key, val)
}

func (p *Pod) isDisposed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disposed
}

// lookupPreset checks the pod's own presets first, then falls back to the
// parent scope's, so a binding anywhere on the ancestry chain substitutes
// for the original factory.
func (p *Pod) lookupPreset(exec AnyExecutor) (presetBinding, bool) {
	p.mu.RLock()
	pb, ok := p.presets[exec]
	p.mu.RUnlock()
	if ok {
		return pb, true
	}
	return p.parent.lookupPreset(exec)
}

func (p *Pod) localPreset(exec AnyExecutor) (presetBinding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pb, ok := p.presets[exec]
	return pb, ok
}

func (p *Pod) markSeen(exec AnyExecutor) {
	p.orderMu.Lock()
	defer p.orderMu.Unlock()
	if !p.seen[exec] {
		p.seen[exec] = true
		p.order = append(p.order, exec)
	}
}

// registerCleanup implements host.
func (p *Pod) registerCleanup(exec AnyExecutor, fn func() error) {
	p.cleanupMu.Lock()
	defer p.cleanupMu.Unlock()
	p.cleanups[exec] = append(p.cleanups[exec], fn)
}

func (p *Pod) runCleanups(exec AnyExecutor, stage string) {
	p.cleanupMu.Lock()
	fns := p.cleanups[exec]
	delete(p.cleanups, exec)
	p.cleanupMu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			cerr := &CleanupError{Executor: exec, Cause: err, Context: stage}
			handled := false
			for _, ext := range p.extensionSnapshot() {
				if ext.OnCleanupError(cerr) {
					handled = true
					break
				}
			}
			if !handled {
				p.notifyErrorFor(cerr, &Operation{Kind: OpResolve, Executor: exec, Scope: p.parent, Pod: p})
			}
		}
	}
}

// resolveDependency implements host, identically to Scope's: the mode only
// decides whether a reactive edge is recorded in the pod's own graph.
func (p *Pod) resolveDependency(ctx context.Context, owner AnyExecutor, dep Dependency) (any, error) {
	exec := dep.executor()
	if dep.mode() == ModeReactive && owner != nil {
		p.graph.addEdge(owner, exec)
	}
	return p.resolveEntry(ctx, exec)
}

// resolveEntry mirrors Scope.resolveEntry, with one addition: a local miss
// that is not locally overridden reads through to the parent's resolved
// cache before invoking a factory of its own.
func (p *Pod) resolveEntry(ctx context.Context, exec AnyExecutor) (any, error) {
	if p.isDisposed() {
		return nil, &ScopeDisposedError{Op: "resolve"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry, ok := p.cache.load(exec); ok {
		if state, value, cause := entry.snapshot(); state == StateResolved {
			return value, nil
		} else if state == StateRejected {
			return nil, cause
		}
	}
	if _, overridden := p.localPreset(exec); !overridden {
		if val, ok := p.parent.peekValue(exec); ok {
			return val, nil
		}
	}

	newCtx, err := pushResolveStack(ctx, exec)
	if err != nil {
		return nil, err
	}

	v, err, _ := p.sf.Do(executorKey(exec), func() (any, error) {
		entry := p.cache.getOrCreate(exec)
		if state, value, _ := entry.snapshot(); state == StateResolved {
			return value, nil
		}

		op := &Operation{Kind: OpResolve, Executor: exec, Scope: p.parent, Pod: p}

		if pb, ok := p.lookupPreset(exec); ok {
			val, perr := p.resolvePresetBinding(newCtx, exec, pb)
			if perr != nil {
				entry.transition(StateRejected, nil, perr)
				p.notifyErrorFor(perr, op)
				return nil, perr
			}
			p.markSeen(exec)
			entry.transition(StateResolved, val, nil)
			p.parent.notifyChange("resolve:pod", exec, val)
			return val, nil
		}

		next := func() (any, error) {
			rc := &ResolveCtx{ctx: newCtx, scope: p, target: exec}
			val, ferr := exec.resolveAny(rc)
			if ferr != nil {
				if isStructuredError(ferr) {
					return nil, ferr
				}
				return nil, newFactoryExecutionError(exec, ferr)
			}
			return val, nil
		}
		result, rerr := p.wrapExtensions(newCtx, next, op)()
		if rerr != nil {
			entry.transition(StateRejected, nil, rerr)
			p.notifyErrorFor(rerr, op)
			return nil, rerr
		}
		p.markSeen(exec)
		entry.transition(StateResolved, result, nil)
		p.parent.notifyChange("resolve:pod", exec, result)
		return result, nil
	})
	return v, err
}

func (p *Pod) resolvePresetBinding(ctx context.Context, exec AnyExecutor, pb presetBinding) (any, error) {
	if pb.hasValue {
		return pb.value, nil
	}
	return p.resolveEntry(ctx, pb.exec)
}

// peekValue implements host: local cache first, then the parent's resolved
// value for descriptors not overridden in the pod.
func (p *Pod) peekValue(exec AnyExecutor) (any, bool) {
	if entry, ok := p.cache.load(exec); ok {
		if state, value, _ := entry.snapshot(); state == StateResolved {
			return value, true
		}
	}
	if _, overridden := p.localPreset(exec); overridden {
		return nil, false
	}
	return p.parent.peekValue(exec)
}

// stateOf implements host.
func (p *Pod) stateOf(exec AnyExecutor) ResolutionState {
	if entry, ok := p.cache.load(exec); ok {
		state, _, _ := entry.snapshot()
		if state != StateUnresolved {
			return state
		}
	}
	if _, overridden := p.localPreset(exec); !overridden {
		if st := p.parent.stateOf(exec); st == StateResolved {
			return st
		}
	}
	return StateUnresolved
}

// updateValue implements host. Writes land exclusively in the pod, even if
// the descriptor's current value was only ever observed through the
// parent's cache. As with Scope, an update re-entered during its own
// reactive cascade is queued and applied FIFO after the cascade completes
// rather than deadlocking on the in-flight one.
func (p *Pod) updateValue(ctx context.Context, exec AnyExecutor, newVal any) error {
	if p.isDisposed() {
		return &ScopeDisposedError{Op: "update"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.updateMu.Lock()
	if p.updating {
		p.pendingUpdates = append(p.pendingUpdates, pendingUpdate{ctx: ctx, exec: exec, newVal: newVal})
		p.updateMu.Unlock()
		return nil
	}
	p.updating = true
	p.updateMu.Unlock()

	err := p.applyUpdate(ctx, exec, newVal)

	for {
		p.updateMu.Lock()
		if len(p.pendingUpdates) == 0 {
			p.updating = false
			p.updateMu.Unlock()
			return err
		}
		queued := p.pendingUpdates[0]
		p.pendingUpdates = p.pendingUpdates[1:]
		p.updateMu.Unlock()
		p.applyUpdate(queued.ctx, queued.exec, queued.newVal)
	}
}

func (p *Pod) applyUpdate(ctx context.Context, exec AnyExecutor, newVal any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	op := &Operation{Kind: OpUpdate, Executor: exec, Scope: p.parent, Pod: p}
	next := func() (any, error) {
		p.runCleanups(exec, "update")
		p.markSeen(exec)
		p.cache.getOrCreate(exec).transition(StateResolved, newVal, nil)
		p.parent.notifyChange("update:pod", exec, newVal)

		dependents := p.graph.findDependents(exec)
		for _, dep := range dependents {
			p.runCleanups(dep, "reactive")
			p.cache.delete(dep)
		}
		for _, dep := range dependents {
			if _, err := p.resolveEntry(ctx, dep); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	_, err := p.wrapExtensions(ctx, next, op)()
	if err != nil {
		p.notifyErrorFor(err, op)
	}
	return err
}

// reloadValue implements host.
func (p *Pod) reloadValue(ctx context.Context, exec AnyExecutor) (any, error) {
	if err := p.releaseValue(exec, false); err != nil {
		return nil, err
	}
	return p.resolveEntry(ctx, exec)
}

// releaseValue implements host, scoped to the pod's own cache and graph.
func (p *Pod) releaseValue(exec AnyExecutor, soft bool) error {
	if p.isDisposed() {
		return &ScopeDisposedError{Op: "release"}
	}
	p.runCleanups(exec, "release")
	p.cache.delete(exec)
	upstream := p.graph.removeTarget(exec)

	if soft {
		for _, dependency := range upstream {
			if !p.graph.hasDependents(dependency) {
				if entry, ok := p.cache.load(dependency); ok {
					if state, _, _ := entry.snapshot(); state == StateResolved {
						p.releaseValue(dependency, true)
					}
				}
			}
		}
	}
	return nil
}

// subscribeValue implements host, scoped to the pod's own cache entry.
func (p *Pod) subscribeValue(exec AnyExecutor, cb func(any)) func() {
	entry := p.cache.getOrCreate(exec)
	idx := entry.addSubscriber(cb)

	var cancelled bool
	var mu sync.Mutex
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		entry.removeSubscriber(idx)
	}
}

// dispose releases every pod-local entry in reverse creation order,
// touching nothing in the parent scope.
func (p *Pod) dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.orderMu.Lock()
	order := make([]AnyExecutor, len(p.order))
	copy(order, p.order)
	p.orderMu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		p.runCleanups(order[i], "dispose")
		p.cache.delete(order[i])
	}

	exts := p.extensionSnapshot()

	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()

	for i := len(exts) - 1; i >= 0; i-- {
		if err := exts[i].DisposePod(p); err != nil {
			p.parent.notifyError(err)
		}
	}
	return nil
}

// Entries returns a snapshot of every descriptor resolved locally in the
// pod (not including values only visible by fallthrough to the parent).
func (p *Pod) Entries() []AnyExecutor {
	var out []AnyExecutor
	p.cache.rangeEntries(func(key AnyExecutor, entry *cacheEntry) bool {
		if state, _, _ := entry.snapshot(); state == StateResolved {
			out = append(out, key)
		}
		return true
	})
	return out
}

// ExportReactiveGraph returns a snapshot of the reactive dependency edges
// recorded against this pod alone (not the parent scope's), for the
// graph-debug extension and tests. A descriptor resolved reactively inside
// the pod gets its own edge here even if the same descriptor also has edges
// in the parent scope's graph — pod and parent graphs are never merged by
// the runtime itself.
func (p *Pod) ExportReactiveGraph() map[AnyExecutor][]AnyExecutor {
	return p.graph.snapshot()
}
