package kinetic

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Scope is the long-lived resolution context: a cache of resolved values, a
// reverse-dependency graph for .Reactive() edges, the registered extension
// pipeline, and the cleanup/observer bookkeeping needed for Dispose.
type Scope struct {
	mu         sync.RWMutex
	cache      *valueCache
	graph      *reactiveGraph
	extensions []Extension
	presets    map[AnyExecutor]presetBinding
	tags       tagBag
	sf         singleflight.Group

	cleanupMu sync.Mutex
	cleanups  map[AnyExecutor][]func() error

	orderMu sync.Mutex
	order   []AnyExecutor
	seen    map[AnyExecutor]bool

	updateMu       sync.Mutex
	updating       bool
	pendingUpdates []pendingUpdate
	disposed       bool

	obsMu        sync.Mutex
	onChangeCbs  []func(kind string, exec AnyExecutor, value any)
	onReleaseCbs []func(exec AnyExecutor)
	onErrorCbs   []func(err error)

	pools *poolManager

	execTree    *ExecutionTree
	execIDMu    sync.Mutex
	execIDNext  uint64
}

type presetBinding struct {
	value    any
	exec     AnyExecutor
	hasValue bool
}

// ScopeOption configures a Scope at construction time.
type ScopeOption func(*Scope)

// WithScopeTag sets a tag readable from every factory resolved in the scope.
func WithScopeTag[T any](tag Tag[T], val T) ScopeOption {
	return func(s *Scope) { tag.Set(s, val) }
}

// WithExtension registers an extension at scope construction.
func WithExtension(ext Extension) ScopeOption {
	return func(s *Scope) {
		if err := s.Use(ext); err != nil {
			panic(err)
		}
	}
}

// WithPreset binds a descriptor to a fixed value or a replacement executor,
// skipping the original factory whenever the descriptor is resolved in this
// scope (or any pod spawned from it, unless the pod overrides it again).
func WithPreset[T any](original *Executor[T], replacement any) ScopeOption {
	return func(s *Scope) {
		applyPreset[T](s.presets, original, replacement)
	}
}

func applyPreset[T any](presets map[AnyExecutor]presetBinding, original *Executor[T], replacement any) {
	switch r := replacement.(type) {
	case T:
		presets[original] = presetBinding{value: r, hasValue: true}
	case *Executor[T]:
		presets[original] = presetBinding{exec: r, hasValue: false}
	default:
		panic(fmt.Sprintf("kinetic: preset must be a value of type %T or *Executor[%T]", *new(T), *new(T)))
	}
}

// WithPooling opts this scope into object pooling for per-resolution
// bookkeeping. It is off by default: the teacher's pool manager is a global
// singleton, which is a latent data race across independently-disposed
// scopes, so pooling here is scoped to one Scope instance.
func WithPooling() ScopeOption {
	return func(s *Scope) { s.pools = newPoolManager() }
}

// WithExecutionTreeLimit bounds the number of flow-execution nodes a scope
// retains for inspection (see GetExecutionTree), evicting the oldest root
// subtree once the limit is exceeded. Default 10000.
func WithExecutionTreeLimit(limit int) ScopeOption {
	return func(s *Scope) { s.execTree = newExecutionTree(limit) }
}

// NewScope creates a scope ready to resolve executors.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		cache:    newValueCache(),
		graph:    newReactiveGraph(),
		presets:  make(map[AnyExecutor]presetBinding),
		tags:     newTagBag(),
		cleanups: make(map[AnyExecutor][]func() error),
		seen:     make(map[AnyExecutor]bool),
		execTree: newExecutionTree(10000),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// generateExecutionID returns a per-scope monotonically increasing
// execution identifier for ExecutionCtx nodes.
func (s *Scope) generateExecutionID() string {
	s.execIDMu.Lock()
	defer s.execIDMu.Unlock()
	s.execIDNext++
	return strconv.FormatUint(s.execIDNext, 10)
}

// GetExecutionTree returns the scope's bounded record of past flow
// executions, for observability.
func (s *Scope) GetExecutionTree() *ExecutionTree {
	return s.execTree
}

func executorKey(exec AnyExecutor) string {
	return strconv.FormatUint(uint64(reflect.ValueOf(exec).Pointer()), 16)
}

// tagContainer

func (s *Scope) getTags(key any) []any { return s.tags.getTags(key) }
func (s *Scope) setTag(key any, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags.setTag(key, val)
}

func (s *Scope) isDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Use registers ext, sorts the extension list by Order (lower runs closer
// to the real operation), and runs ext.Init once.
func (s *Scope) Use(ext Extension) error {
	s.mu.Lock()
	s.extensions = append(s.extensions, ext)
	sort.SliceStable(s.extensions, func(i, j int) bool {
		return s.extensions[i].Order() < s.extensions[j].Order()
	})
	s.mu.Unlock()
	return ext.Init(s)
}

func (s *Scope) extensionSnapshot() []Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Extension, len(s.extensions))
	copy(out, s.extensions)
	return out
}

func (s *Scope) wrapExtensions(ctx context.Context, next func() (any, error), op *Operation) func() (any, error) {
	return chainExtensions(s.extensionSnapshot(), ctx, next, op)
}

// chainExtensions composes the Wrap hooks around next in the order of exts
// (Use keeps a scope's list sorted by Order, registration order among equal
// Orders): the first extension is innermost and the last becomes the
// outermost layer. The operation's own cancellation context is handed to
// every Wrap so an extension can honor the same deadline the resolver does.
func chainExtensions(exts []Extension, ctx context.Context, next func() (any, error), op *Operation) func() (any, error) {
	wrapped := next
	for i := 0; i < len(exts); i++ {
		ext := exts[i]
		inner := wrapped
		wrapped = func() (any, error) {
			return ext.Wrap(ctx, inner, op)
		}
	}
	return wrapped
}

// OnChange registers cb to run after every successful resolve or update.
// kind is "resolve" or "update", or "resolve:pod" / "update:pod" for a
// change made inside one of this scope's pods. Returns a cancel thunk.
func (s *Scope) OnChange(cb func(kind string, exec AnyExecutor, value any)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onChangeCbs = append(s.onChangeCbs, cb)
	idx := len(s.onChangeCbs) - 1
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if idx < len(s.onChangeCbs) {
			s.onChangeCbs[idx] = nil
		}
	}
}

// OnRelease registers cb to run whenever an entry is released. Returns a
// cancel thunk.
func (s *Scope) OnRelease(cb func(exec AnyExecutor)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onReleaseCbs = append(s.onReleaseCbs, cb)
	idx := len(s.onReleaseCbs) - 1
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if idx < len(s.onReleaseCbs) {
			s.onReleaseCbs[idx] = nil
		}
	}
}

// OnError registers cb to observe every resolve/update failure. An
// observer that panics must not corrupt scope state; it is recovered and
// dropped.
func (s *Scope) OnError(cb func(err error)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onErrorCbs = append(s.onErrorCbs, cb)
	idx := len(s.onErrorCbs) - 1
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if idx < len(s.onErrorCbs) {
			s.onErrorCbs[idx] = nil
		}
	}
}

func (s *Scope) notifyChange(kind string, exec AnyExecutor, value any) {
	s.obsMu.Lock()
	cbs := make([]func(string, AnyExecutor, any), len(s.onChangeCbs))
	copy(cbs, s.onChangeCbs)
	s.obsMu.Unlock()
	for _, cb := range cbs {
		if cb == nil {
			continue
		}
		func() {
			defer func() { recover() }()
			cb(kind, exec, value)
		}()
	}
}

func (s *Scope) notifyRelease(exec AnyExecutor) {
	s.obsMu.Lock()
	cbs := make([]func(AnyExecutor), len(s.onReleaseCbs))
	copy(cbs, s.onReleaseCbs)
	s.obsMu.Unlock()
	for _, cb := range cbs {
		if cb == nil {
			continue
		}
		func() {
			defer func() { recover() }()
			cb(exec)
		}()
	}
}

func (s *Scope) notifyError(err error) {
	s.notifyErrorFor(err, nil)
}

func (s *Scope) notifyErrorFor(err error, op *Operation) {
	exts := s.extensionSnapshot()
	for _, ext := range exts {
		func() {
			defer func() { recover() }()
			ext.OnError(err, op, s)
		}()
	}
	s.obsMu.Lock()
	cbs := make([]func(error), len(s.onErrorCbs))
	copy(cbs, s.onErrorCbs)
	s.obsMu.Unlock()
	for _, cb := range cbs {
		if cb == nil {
			continue
		}
		func() {
			defer func() { recover() }()
			cb(err)
		}()
	}
}

func (s *Scope) markSeen(exec AnyExecutor) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	if !s.seen[exec] {
		s.seen[exec] = true
		s.order = append(s.order, exec)
	}
}

// registerCleanup implements host.
func (s *Scope) registerCleanup(exec AnyExecutor, fn func() error) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	s.cleanups[exec] = append(s.cleanups[exec], fn)
}

func (s *Scope) runCleanups(exec AnyExecutor, stage string) {
	s.cleanupMu.Lock()
	fns := s.cleanups[exec]
	delete(s.cleanups, exec)
	s.cleanupMu.Unlock()

	if len(fns) == 0 {
		return
	}
	exts := s.extensionSnapshot()
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			cerr := &CleanupError{Executor: exec, Cause: err, Context: stage}
			handled := false
			for _, ext := range exts {
				if ext.OnCleanupError(cerr) {
					handled = true
					break
				}
			}
			if !handled {
				s.notifyError(cerr)
			}
		}
	}
}

type stackKey struct{}

func pushResolveStack(ctx context.Context, exec AnyExecutor) (context.Context, error) {
	stack, _ := ctx.Value(stackKey{}).([]AnyExecutor)
	for i, e := range stack {
		if e == exec {
			path := append(append([]AnyExecutor{}, stack[i:]...), exec)
			return ctx, &DependencyCycleError{Path: path}
		}
	}
	next := make([]AnyExecutor, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, exec)
	return context.WithValue(ctx, stackKey{}, next), nil
}

// lookupPreset returns the scope-level binding that overrides the given
// executor's factory entirely, if one was configured.
func (s *Scope) lookupPreset(exec AnyExecutor) (presetBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[exec]
	return p, ok
}

// resolveDependency implements host. The dependency's mode only changes
// *when* the value is computed (ensureEager skips lazy deps so the
// Controller a factory receives resolves on first Get instead) and whether
// a reactive edge is recorded; the returned value itself is always the
// dependency's resolved T, since Controller[T] is itself the Accessor a
// lazy/static dependency exposes to its factory.
func (s *Scope) resolveDependency(ctx context.Context, owner AnyExecutor, dep Dependency) (any, error) {
	exec := dep.executor()
	if dep.mode() == ModeReactive && owner != nil {
		s.graph.addEdge(owner, exec)
	}
	return s.resolveEntry(ctx, exec)
}

// resolveEntry runs the resolution state machine: cache hit, shared
// pending via singleflight, preset substitution, extension-wrapped factory
// invocation, then cache write + notification.
func (s *Scope) resolveEntry(ctx context.Context, exec AnyExecutor) (any, error) {
	if s.isDisposed() {
		return nil, &ScopeDisposedError{Op: "resolve"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry, ok := s.cache.load(exec); ok {
		if state, value, cause := entry.snapshot(); state == StateResolved {
			return value, nil
		} else if state == StateRejected {
			return nil, cause
		}
	}

	newCtx, err := pushResolveStack(ctx, exec)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.sf.Do(executorKey(exec), func() (any, error) {
		entry := s.cache.getOrCreate(exec)
		if state, value, _ := entry.snapshot(); state == StateResolved {
			return value, nil
		}

		op := &Operation{Kind: OpResolve, Executor: exec, Scope: s}

		if p, ok := s.lookupPreset(exec); ok {
			val, perr := s.resolvePresetBinding(newCtx, exec, p)
			if perr != nil {
				entry.transition(StateRejected, nil, perr)
				s.notifyErrorFor(perr, op)
				return nil, perr
			}
			s.markSeen(exec)
			entry.transition(StateResolved, val, nil)
			s.notifyChange("resolve", exec, val)
			return val, nil
		}

		next := func() (any, error) {
			var rc *ResolveCtx
			if s.pools != nil {
				rc = s.pools.acquireResolveCtx(newCtx, s, exec)
				defer s.pools.releaseResolveCtx(rc)
			} else {
				rc = &ResolveCtx{ctx: newCtx, scope: s, target: exec}
			}
			val, ferr := exec.resolveAny(rc)
			if ferr != nil {
				if isStructuredError(ferr) {
					return nil, ferr
				}
				return nil, newFactoryExecutionError(exec, ferr)
			}
			return val, nil
		}
		result, rerr := s.wrapExtensions(newCtx, next, op)()
		if rerr != nil {
			entry.transition(StateRejected, nil, rerr)
			s.notifyErrorFor(rerr, op)
			return nil, rerr
		}
		s.markSeen(exec)
		entry.transition(StateResolved, result, nil)
		s.notifyChange("resolve", exec, result)
		return result, nil
	})
	return v, err
}

func (s *Scope) resolvePresetBinding(ctx context.Context, exec AnyExecutor, p presetBinding) (any, error) {
	if p.hasValue {
		return p.value, nil
	}
	return s.resolveEntry(ctx, p.exec)
}

// peekValue implements host.
func (s *Scope) peekValue(exec AnyExecutor) (any, bool) {
	entry, ok := s.cache.load(exec)
	if !ok {
		return nil, false
	}
	state, value, _ := entry.snapshot()
	if state != StateResolved {
		return nil, false
	}
	return value, true
}

// stateOf implements host.
func (s *Scope) stateOf(exec AnyExecutor) ResolutionState {
	entry, ok := s.cache.load(exec)
	if !ok {
		return StateUnresolved
	}
	state, _, _ := entry.snapshot()
	return state
}

// pendingUpdate is one queued update call: an update issued while another
// update's reactive cascade is still running (a dependent factory calling
// Update on its own resolver, or a second goroutine racing in) cannot run
// inline, so it is parked and applied once the in-flight cascade settles.
type pendingUpdate struct {
	ctx    context.Context
	exec   AnyExecutor
	newVal any
}

// updateValue implements host: cleanup the current entry, write the new
// value, then cascade to every transitive reactive dependent so each
// re-runs once. An update re-entered during its own cascade is queued and
// applied in FIFO order after the cascade completes; the nested caller
// observes nil, and a queued update that later fails reports through the
// error observers instead.
func (s *Scope) updateValue(ctx context.Context, exec AnyExecutor, newVal any) error {
	if s.isDisposed() {
		return &ScopeDisposedError{Op: "update"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.updateMu.Lock()
	if s.updating {
		s.pendingUpdates = append(s.pendingUpdates, pendingUpdate{ctx: ctx, exec: exec, newVal: newVal})
		s.updateMu.Unlock()
		return nil
	}
	s.updating = true
	s.updateMu.Unlock()

	err := s.applyUpdate(ctx, exec, newVal)

	for {
		s.updateMu.Lock()
		if len(s.pendingUpdates) == 0 {
			s.updating = false
			s.updateMu.Unlock()
			return err
		}
		queued := s.pendingUpdates[0]
		s.pendingUpdates = s.pendingUpdates[1:]
		s.updateMu.Unlock()
		s.applyUpdate(queued.ctx, queued.exec, queued.newVal)
	}
}

func (s *Scope) applyUpdate(ctx context.Context, exec AnyExecutor, newVal any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	op := &Operation{Kind: OpUpdate, Executor: exec, Scope: s}
	next := func() (any, error) {
		s.runCleanups(exec, "update")
		s.markSeen(exec)
		s.cache.getOrCreate(exec).transition(StateResolved, newVal, nil)
		s.notifyChange("update", exec, newVal)

		dependents := s.graph.findDependents(exec)
		for _, dep := range dependents {
			s.runCleanups(dep, "reactive")
			s.cache.delete(dep)
		}
		for _, dep := range dependents {
			if _, err := s.resolveEntry(ctx, dep); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	_, err := s.wrapExtensions(ctx, next, op)()
	if err != nil {
		s.notifyErrorFor(err, op)
	}
	return err
}

// reloadValue implements host: release then re-resolve.
func (s *Scope) reloadValue(ctx context.Context, exec AnyExecutor) (any, error) {
	if err := s.releaseValue(exec, false); err != nil {
		return nil, err
	}
	return s.resolveEntry(ctx, exec)
}

// releaseValue implements host: LIFO cleanups, cache removal, reverse-edge
// teardown, and (if soft) cascading release to any dependency whose last
// reactive dependent was exec.
func (s *Scope) releaseValue(exec AnyExecutor, soft bool) error {
	if s.isDisposed() {
		return &ScopeDisposedError{Op: "release"}
	}
	s.runCleanups(exec, "release")
	s.cache.delete(exec)
	upstream := s.graph.removeTarget(exec)
	s.notifyRelease(exec)

	if soft {
		for _, dependency := range upstream {
			if !s.graph.hasDependents(dependency) {
				if entry, ok := s.cache.load(dependency); ok {
					if state, _, _ := entry.snapshot(); state == StateResolved {
						s.releaseValue(dependency, true)
					}
				}
			}
		}
	}
	return nil
}

// subscribeValue implements host.
func (s *Scope) subscribeValue(exec AnyExecutor, cb func(any)) func() {
	entry := s.cache.getOrCreate(exec)
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

// Dispose releases every entry in reverse creation order and marks the
// scope dead; further operations fail with ScopeDisposedError.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.orderMu.Lock()
	order := make([]AnyExecutor, len(s.order))
	copy(order, s.order)
	s.orderMu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		s.runCleanups(order[i], "dispose")
		s.cache.delete(order[i])
	}

	s.mu.Lock()
	s.disposed = true
	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	s.mu.Unlock()

	for _, ext := range exts {
		if err := ext.Dispose(s); err != nil {
			return fmt.Errorf("kinetic: disposing extension %s: %w", ext.Name(), err)
		}
	}
	return nil
}

// Entries returns a snapshot of every currently resolved executor, for
// inspection only.
func (s *Scope) Entries() []AnyExecutor {
	var out []AnyExecutor
	s.cache.rangeEntries(func(key AnyExecutor, entry *cacheEntry) bool {
		if state, _, _ := entry.snapshot(); state == StateResolved {
			out = append(out, key)
		}
		return true
	})
	return out
}

// ExportReactiveGraph returns a snapshot of the scope's reactive dependency
// edges (downstream per executor), for the graph-debug extension and tests.
func (s *Scope) ExportReactiveGraph() map[AnyExecutor][]AnyExecutor {
	return s.graph.snapshot()
}

// Resolve resolves e to its value within h (a *Scope or a *Pod), computing
// it via the factory chain on first resolve and returning the cached value
// thereafter.
func Resolve[T any](ctx context.Context, h host, e *Executor[T]) (T, error) {
	val, err := h.resolveDependency(ctx, nil, e)
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// Update writes a new value for e within h and cascades to reactive
// dependents.
func Update[T any](ctx context.Context, h host, e *Executor[T], newVal T) error {
	return h.updateValue(ctx, e, newVal)
}

// UpdateFunc derives the new value for e from its previous value.
func UpdateFunc[T any](ctx context.Context, h host, e *Executor[T], fn func(T) T) error {
	prev, err := Resolve(ctx, h, e)
	if err != nil {
		return err
	}
	return Update(ctx, h, e, fn(prev))
}

// Release invalidates e's cached value within h.
func Release[T any](h host, e *Executor[T], soft bool) error {
	return h.releaseValue(e, soft)
}
