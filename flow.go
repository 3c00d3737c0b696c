package kinetic

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kinetic-run/kinetic/schema"
)

// AnyFlow is the type-erased view of a Handler an extension's OnFlowStart
// sees: enough to identify and tag the flow without knowing its In/Out/Err.
type AnyFlow interface {
	tagContainer
	Name() string
	Dependencies() []Dependency
}

// Definition binds a name and optional version to the three schema
// contracts a handler's input, success payload, and error payload must
// satisfy. Definitions are immutable once built.
type Definition[In, Out, Err any] struct {
	name    string
	version string
	input   schema.Contract
	success schema.Contract
	failure schema.Contract
	tags    tagBag
}

// DefinitionOption configures a Definition at construction time.
type DefinitionOption func(*definitionConfig)

type definitionConfig struct {
	version string
	tags    tagBag
}

func (c *definitionConfig) getTags(key any) []any  { return c.tags.getTags(key) }
func (c *definitionConfig) setTag(key any, val any) { c.tags.setTag(key, val) }

// WithVersion sets a definition's version string.
func WithVersion(v string) DefinitionOption {
	return func(c *definitionConfig) { c.version = v }
}

// WithDefinitionTag attaches a tag to a definition, inherited by every
// handler bound to it.
func WithDefinitionTag[T any](tag Tag[T], val T) DefinitionOption {
	return func(c *definitionConfig) { tag.Set(c, val) }
}

// Define creates a flow definition. input/success/failure are schema
// contracts validating the handler's input, ok payload, and ko payload
// respectively; pass schema.Custom[T]() for any of them to skip validation.
func Define[In, Out, Err any](name string, input, success, failure schema.Contract, opts ...DefinitionOption) *Definition[In, Out, Err] {
	cfg := &definitionConfig{tags: newTagBag()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Definition[In, Out, Err]{
		name:    name,
		version: cfg.version,
		input:   input,
		success: success,
		failure: failure,
		tags:    cfg.tags,
	}
}

// Name returns the definition's name.
func (d *Definition[In, Out, Err]) Name() string { return d.name }

// Version returns the definition's version, or the empty string.
func (d *Definition[In, Out, Err]) Version() string { return d.version }

// HandlerFunc is the body of a flow: given the resolved dependencies (in
// the order passed to Handler), the execution context, and the validated
// input, it must return a Result.
type HandlerFunc[In, Out, Err any] func(ctx *ExecutionCtx, deps []any, input In) Result[Out, Err]

// Handler binds a Definition to a dependency list and a function.
type Handler[In, Out, Err any] struct {
	def  *Definition[In, Out, Err]
	deps []Dependency
	fn   HandlerFunc[In, Out, Err]
}

// Handler binds d to deps (resolved within the executing pod before fn
// runs) and fn.
func (d *Definition[In, Out, Err]) Handler(deps []Dependency, fn HandlerFunc[In, Out, Err]) *Handler[In, Out, Err] {
	return &Handler[In, Out, Err]{def: d, deps: deps, fn: fn}
}

func (h *Handler[In, Out, Err]) Name() string                { return h.def.name }
func (h *Handler[In, Out, Err]) Dependencies() []Dependency   { return h.deps }
func (h *Handler[In, Out, Err]) getTags(key any) []any        { return h.def.tags.getTags(key) }
func (h *Handler[In, Out, Err]) setTag(key any, val any)      { h.def.tags.setTag(key, val) }

// Result is the discriminated ok/ko envelope every flow handler returns.
type Result[Out, Err any] struct {
	ok     bool
	data   Out
	koData Err
	cause  error
}

// IsOk reports whether the result is the ok variant.
func (r Result[Out, Err]) IsOk() bool { return r.ok }

// IsKo reports whether the result is the ko variant.
func (r Result[Out, Err]) IsKo() bool { return !r.ok }

// OkData returns the success payload. Zero value if the result is ko.
func (r Result[Out, Err]) OkData() Out { return r.data }

// KoData returns the failure payload. Zero value if the result is ok.
func (r Result[Out, Err]) KoData() Err { return r.koData }

// Cause returns the underlying error for a ko result, or nil for ok.
func (r Result[Out, Err]) Cause() error { return r.cause }

func okResult[Out, Err any](data Out) Result[Out, Err] {
	return Result[Out, Err]{ok: true, data: data}
}

func koResult[Out, Err any](data Err, cause error) Result[Out, Err] {
	return Result[Out, Err]{ok: false, koData: data, cause: cause}
}

func koSchemaResult[Out, Err any](verr error) Result[Out, Err] {
	var zero Err
	return Result[Out, Err]{ok: false, koData: zero, cause: verr}
}

// Ok validates value against ctx's success contract and wraps it as the ok
// variant of Result[Out, Err]; a validation failure collapses to ko
// carrying a SchemaError.
func Ok[Out, Err any](ctx *ExecutionCtx, value Out) Result[Out, Err] {
	if ctx.successContract != nil {
		validated, err := ctx.successContract.Validate(value)
		if err != nil {
			return koSchemaResult[Out, Err](toSchemaError(err))
		}
		if typed, ok := validated.(Out); ok {
			return okResult[Out, Err](typed)
		}
	}
	return okResult[Out, Err](value)
}

// Ko validates data against ctx's failure contract and wraps it as the ko
// variant of Result[Out, Err], preserving cause for chaining.
func Ko[Out, Err any](ctx *ExecutionCtx, data Err, cause error) Result[Out, Err] {
	if ctx.failureContract != nil {
		validated, err := ctx.failureContract.Validate(data)
		if err != nil {
			return koSchemaResult[Out, Err](toSchemaError(err))
		}
		if typed, ok := validated.(Err); ok {
			return koResult[Out, Err](typed, cause)
		}
	}
	return koResult[Out, Err](data, cause)
}

func toSchemaError(err error) error {
	if ve, ok := err.(*schema.ValidationError); ok {
		issues := make([]SchemaIssue, len(ve.Issues))
		for i, iss := range ve.Issues {
			issues[i] = SchemaIssue{Message: iss.Message, Path: iss.Path}
		}
		return &SchemaError{Issues: issues}
	}
	return &SchemaError{Issues: []SchemaIssue{{Message: err.Error()}}}
}

// ExecutionCtx is the DataStore-backed context passed through a flow
// invocation: tag-keyed scratch data (ctx.Set/Get), a per-execution journal
// (ctx.Run), the pod the invocation resolves against, and the parent/depth
// bookkeeping extensions can inspect.
type ExecutionCtx struct {
	id       string
	parent   *ExecutionCtx
	pod      *Pod
	scope    *Scope
	data     *DataStore
	ctx      context.Context
	depth    int

	successContract schema.Contract
	failureContract schema.Contract

	journalMu *sync.Mutex
	journal   map[string]journalEntry
}

type journalEntry struct {
	value any
	err   error
}

// Set stores value under key in this execution's local data store.
func (e *ExecutionCtx) Set(key any, value any) { e.data.Set(key, value) }

// Get reads key from this execution's local data store.
func (e *ExecutionCtx) Get(key any) (any, bool) {
	return e.data.Get(key)
}

// Data returns the execution's backing store, for ordered iteration.
func (e *ExecutionCtx) Data() *DataStore { return e.data }

// GetFromParent walks up the parent chain for key.
func (e *ExecutionCtx) GetFromParent(key any) (any, bool) {
	for cur := e.parent; cur != nil; cur = cur.parent {
		if v, ok := cur.data.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// GetFromScope reads a tag from the owning scope.
func (e *ExecutionCtx) GetFromScope(key any) (any, bool) {
	vals := e.scope.getTags(key)
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Lookup checks this execution's data, then its ancestors, then the scope.
func (e *ExecutionCtx) Lookup(key any) (any, bool) {
	if v, ok := e.Get(key); ok {
		return v, true
	}
	if v, ok := e.GetFromParent(key); ok {
		return v, true
	}
	return e.GetFromScope(key)
}

// Context returns the cancellation context this execution is running with.
func (e *ExecutionCtx) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Pod returns the pod this execution resolves dependencies against.
func (e *ExecutionCtx) Pod() *Pod { return e.pod }

// Depth returns the sub-flow nesting depth (0 for a top-level execution).
func (e *ExecutionCtx) Depth() int { return e.depth }

// Parent returns the execution context this one was spawned from via
// ExecuteSub/ExecuteFunc/ExecuteParallel. For a top-level execution it is
// the seeding context Execute creates (no flow name, depth -1), whose own
// Parent is nil.
func (e *ExecutionCtx) Parent() *ExecutionCtx { return e.parent }

func (e *ExecutionCtx) child(ctx context.Context) *ExecutionCtx {
	return &ExecutionCtx{
		id:        e.scope.generateExecutionID(),
		parent:    e,
		pod:       e.pod,
		scope:     e.scope,
		data:      NewDataStore(),
		ctx:       ctx,
		depth:     e.depth + 1,
		journalMu: e.journalMu,
		journal:   e.journal,
	}
}

// finalize snapshots this execution into an ExecutionNode. The node's parent
// is the nearest ancestor that is itself a flow invocation; the seeding
// context Execute creates around the first handler carries no flow name and
// is never recorded, so a top-level flow lands as a tree root.
func (e *ExecutionCtx) finalize() *ExecutionNode {
	parentID := ""
	for cur := e.parent; cur != nil; cur = cur.parent {
		if _, ok := cur.data.Get(flowNameTag); ok {
			parentID = cur.id
			break
		}
	}
	node := &ExecutionNode{ID: e.id, ParentID: parentID, Tags: make(map[any]any)}
	e.data.Range(func(k, v any) bool {
		node.Tags[k] = v
		return true
	})
	return node
}

// Run journals fn under key: the first call invokes fn and records the
// outcome; any subsequent call with the same key returns the recorded
// outcome without calling fn again. The journal belongs to one top-level
// Execute call and is shared by every context spawned inside it (sub-flows,
// ExecuteFunc, parallel items); a separate Execute call starts empty.
func Run[T any](ctx *ExecutionCtx, key string, fn func() (T, error)) (T, error) {
	ctx.journalMu.Lock()
	if entry, ok := ctx.journal[key]; ok {
		ctx.journalMu.Unlock()
		val, _ := entry.value.(T)
		return val, entry.err
	}
	ctx.journalMu.Unlock()

	val, err := fn()

	ctx.journalMu.Lock()
	ctx.journal[key] = journalEntry{value: val, err: err}
	ctx.journalMu.Unlock()
	return val, err
}

// ExecutionNode is a finalized, immutable snapshot of one ExecutionCtx,
// recorded into the owning scope's ExecutionTree once the flow settles.
type ExecutionNode struct {
	ID       string
	ParentID string
	Tags     map[any]any
}

func (n *ExecutionNode) GetTag(tag any) (any, bool) {
	v, ok := n.Tags[tag]
	return v, ok
}

func (n *ExecutionNode) GetAllTags() map[any]any { return n.Tags }

// ExecutionTree is a bounded, evicting record of past flow executions kept
// by a Scope for observability (graph-debug/logging extensions, tests).
type ExecutionTree struct {
	mu       sync.RWMutex
	nodes    map[string]*ExecutionNode
	byParent map[string][]string
	roots    []string
	limit    int
}

func newExecutionTree(limit int) *ExecutionTree {
	return &ExecutionTree{
		nodes:    make(map[string]*ExecutionNode),
		byParent: make(map[string][]string),
		limit:    limit,
	}
}

func (t *ExecutionTree) addNode(node *ExecutionNode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes[node.ID] = node
	if node.ParentID == "" {
		t.roots = append(t.roots, node.ID)
	} else {
		t.byParent[node.ParentID] = append(t.byParent[node.ParentID], node.ID)
	}
	if len(t.nodes) > t.limit && len(t.roots) > 0 {
		oldest := t.roots[0]
		t.roots = t.roots[1:]
		t.removeSubtree(oldest)
	}
}

func (t *ExecutionTree) removeSubtree(id string) {
	delete(t.nodes, id)
	children := t.byParent[id]
	delete(t.byParent, id)
	for _, child := range children {
		t.removeSubtree(child)
	}
}

func (t *ExecutionTree) GetNode(id string) *ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

func (t *ExecutionTree) GetChildren(id string) []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.byParent[id]
	out := make([]*ExecutionNode, 0, len(ids))
	for _, cid := range ids {
		if n := t.nodes[cid]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (t *ExecutionTree) GetRoots() []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ExecutionNode, 0, len(t.roots))
	for _, rid := range t.roots {
		if n := t.nodes[rid]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (t *ExecutionTree) Filter(predicate func(*ExecutionNode) bool) []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*ExecutionNode
	for _, n := range t.nodes {
		if predicate(n) {
			out = append(out, n)
		}
	}
	return out
}

func (t *ExecutionTree) Walk(rootID string, visitor func(*ExecutionNode) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walkLocked(rootID, visitor)
}

func (t *ExecutionTree) walkLocked(id string, visitor func(*ExecutionNode) bool) {
	node := t.nodes[id]
	if node == nil || !visitor(node) {
		return
	}
	for _, child := range t.byParent[id] {
		t.walkLocked(child, visitor)
	}
}

var (
	flowNameTag   = NewTag[string]("flow.name")
	timeoutTag    = NewTag[time.Duration]("flow.timeout")
	startTimeTag  = NewTag[time.Time]("exec.start_time")
	endTimeTag    = NewTag[time.Time]("exec.end_time")
	statusTag     = NewTag[ExecutionStatus]("exec.status")
	errorTag      = NewTag[error]("exec.error")
	panicStackTag = NewTag[[]byte]("exec.panic_stack")
)

func FlowName() Tag[string]       { return flowNameTag }
func Timeout() Tag[time.Duration] { return timeoutTag }
func StartTime() Tag[time.Time]   { return startTimeTag }
func EndTime() Tag[time.Time]     { return endTimeTag }
func Status() Tag[ExecutionStatus] { return statusTag }
func ErrorTag() Tag[error]        { return errorTag }
func PanicStack() Tag[[]byte]     { return panicStackTag }

// ExecutionStatus tracks where a flow invocation ended up: running, then
// succeeded, ko-returned, or thrown (the handler panicked).
type ExecutionStatus int

const (
	ExecutionStatusRunning ExecutionStatus = iota
	ExecutionStatusSucceeded
	ExecutionStatusKo
	ExecutionStatusThrown
)

// ExecuteOption configures a top-level flow.Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	scope            *Scope
	pod              *Pod
	extensions       []Extension
	initialContext   [][2]any
	autoDisposeScope bool
}

// WithExecuteScope runs the flow against an existing scope instead of
// creating a fresh one.
func WithExecuteScope(s *Scope) ExecuteOption {
	return func(c *executeConfig) { c.scope = s }
}

// WithExecutePod runs the flow directly in an existing pod instead of
// spawning a new one.
func WithExecutePod(p *Pod) ExecuteOption {
	return func(c *executeConfig) { c.pod = p }
}

// WithExecuteExtensions layers additional extensions onto the executing pod,
// after the scope's own. They observe only operations landing in that pod
// and are disposed with it.
func WithExecuteExtensions(exts ...Extension) ExecuteOption {
	return func(c *executeConfig) { c.extensions = append(c.extensions, exts...) }
}

// WithInitialContext seeds the execution's data store with ordered key/value
// pairs.
func WithInitialContext(pairs ...[2]any) ExecuteOption {
	return func(c *executeConfig) { c.initialContext = append(c.initialContext, pairs...) }
}

// WithInitialContextStore seeds the execution's data store from an existing
// DataStore, preserving its insertion order.
func WithInitialContextStore(ds *DataStore) ExecuteOption {
	return func(c *executeConfig) {
		ds.Range(func(k, v any) bool {
			c.initialContext = append(c.initialContext, [2]any{k, v})
			return true
		})
	}
}

// WithAutoDisposeScope disposes the scope flow.Execute implicitly created
// (when no WithExecuteScope/WithExecutePod was given) once execution
// settles. Default false: callers that let Execute create a scope keep
// owning its lifecycle, same as every other scope in the library.
func WithAutoDisposeScope() ExecuteOption {
	return func(c *executeConfig) { c.autoDisposeScope = true }
}

// Execute runs handler against input: spawn a pod, validate input, resolve
// dependencies, invoke the handler through the extension pipeline with
// panic recovery, and always return a Result — a thrown handler never
// escapes as a Go panic or error.
func Execute[In, Out, Err any](ctx context.Context, handler *Handler[In, Out, Err], input In, opts ...ExecuteOption) Result[Out, Err] {
	cfg := &executeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ownsScope := cfg.scope == nil && cfg.pod == nil
	scope := cfg.scope
	if scope == nil && cfg.pod == nil {
		scope = NewScope()
	}
	pod := cfg.pod
	if pod == nil {
		pod = scope.Pod()
	} else {
		scope = pod.parent
	}
	for _, ext := range cfg.extensions {
		_ = pod.Use(ext)
	}
	if ownsScope && cfg.autoDisposeScope {
		defer scope.Dispose()
	}

	// The root context only seeds data and anchors the journal; it is not a
	// flow invocation itself. Its depth of -1 puts the first handler's own
	// context at depth 0.
	root := &ExecutionCtx{
		id:        scope.generateExecutionID(),
		pod:       pod,
		scope:     scope,
		data:      NewDataStore(),
		ctx:       ctx,
		depth:     -1,
		journalMu: &sync.Mutex{},
		journal:   make(map[string]journalEntry),
	}
	for _, kv := range cfg.initialContext {
		root.Set(kv[0], kv[1])
	}

	validated, verr := handler.def.input.Validate(input)
	if verr != nil {
		return koSchemaResult[Out, Err](toSchemaError(verr))
	}
	typedInput, ok := validated.(In)
	if !ok {
		typedInput = input
	}

	return handler.invoke(root, typedInput)
}

func (h *Handler[In, Out, Err]) invoke(parent *ExecutionCtx, input In) Result[Out, Err] {
	child := parent.child(parent.ctx)
	child.successContract = h.def.success
	child.failureContract = h.def.failure
	child.Set(flowNameTag, h.def.name)
	child.Set(startTimeTag, time.Now())
	child.Set(statusTag, ExecutionStatusRunning)

	finish := func(result Result[Out, Err]) Result[Out, Err] {
		child.Set(endTimeTag, time.Now())
		switch {
		case result.IsOk():
			child.Set(statusTag, ExecutionStatusSucceeded)
		default:
			var uerr *UncaughtHandlerError
			if errors.As(result.Cause(), &uerr) {
				child.Set(statusTag, ExecutionStatusThrown)
			} else {
				child.Set(statusTag, ExecutionStatusKo)
			}
			child.Set(errorTag, result.Cause())
		}
		child.scope.execTree.addNode(child.finalize())
		return result
	}

	resolved := make([]any, len(h.deps))
	for i, dep := range h.deps {
		val, err := child.pod.resolveDependency(child.Context(), nil, dep)
		if err != nil {
			return finish(koSchemaResult[Out, Err](&DependencyResolutionError{FailingDependency: dep.executor(), Cause: err}))
		}
		resolved[i] = val
	}

	exts := child.pod.extensionSnapshot()
	for _, ext := range exts {
		if err := ext.OnFlowStart(child, h); err != nil {
			return finish(koSchemaResult[Out, Err](err))
		}
	}

	result := runHandlerSafely(child, h.fn, resolved, input)

	for i := len(exts) - 1; i >= 0; i-- {
		exts[i].OnFlowEnd(child, result, result.Cause())
	}

	return finish(result)
}

func runHandlerSafely[In, Out, Err any](ctx *ExecutionCtx, fn HandlerFunc[In, Out, Err], deps []any, input In) (result Result[Out, Err]) {
	type outcome struct {
		result Result[Out, Err]
		panic  any
		stack  []byte
	}
	// A context that expired during dependency resolution is reported as ko
	// here rather than racing the handler's own send below.
	if err := ctx.Context().Err(); err != nil {
		var zeroErr Err
		return koResult[Out, Err](zeroErr, err)
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panic: r, stack: debug.Stack()}
			}
		}()
		done <- outcome{result: fn(ctx, deps, input)}
	}()

	select {
	case o := <-done:
		if o.panic != nil {
			ctx.Set(panicStackTag, o.stack)
			uerr := newUncaughtHandlerError(o.panic)
			exts := ctx.pod.extensionSnapshot()
			for _, ext := range exts {
				if err := ext.OnFlowPanic(ctx, o.panic, o.stack); err != nil {
					uerr.Recovered = fmt.Sprintf("%v (extension: %v)", uerr.Recovered, err)
				}
			}
			var zeroErr Err
			return koResult[Out, Err](zeroErr, uerr)
		}
		return o.result
	case <-ctx.Context().Done():
		var zeroErr Err
		return koResult[Out, Err](zeroErr, ctx.Context().Err())
	}
}

// ExecuteSub runs handler as a sub-flow of parent's execution: same pod,
// depth+1, sharing parent's journal.
func ExecuteSub[In, Out, Err any](parent *ExecutionCtx, handler *Handler[In, Out, Err], input In) Result[Out, Err] {
	validated, verr := handler.def.input.Validate(input)
	if verr != nil {
		return koSchemaResult[Out, Err](toSchemaError(verr))
	}
	typedInput, ok := validated.(In)
	if !ok {
		typedInput = input
	}
	return handler.invoke(parent, typedInput)
}

// ExecuteFunc runs a plain function as a sub-flow: it receives parent's
// execution context directly (no input validation, no dependency
// resolution) and must return (Out, error); a returned error is mapped
// through errMapper (or discarded into Cause alone if errMapper is nil).
func ExecuteFunc[Out, Err any](parent *ExecutionCtx, fn func(*ExecutionCtx) (Out, error), errMapper func(error) Err) Result[Out, Err] {
	child := parent.child(parent.ctx)
	val, err := fn(child)
	if err != nil {
		var ed Err
		if errMapper != nil {
			ed = errMapper(err)
		}
		return koResult[Out, Err](ed, err)
	}
	return okResult[Out, Err](val)
}

// ParallelFailureMode selects how ExecuteParallel reacts to item failures.
type ParallelFailureMode int

const (
	// ParallelContinue runs every item to completion regardless of failures.
	ParallelContinue ParallelFailureMode = iota
	// ParallelFailFast cancels the remaining items' contexts as soon as one
	// item fails; items that had not yet completed are left out of Results.
	ParallelFailFast
	// ParallelFailAll runs every item like Continue, but ExecuteParallel
	// itself reports an aggregate error if any item failed.
	ParallelFailAll
)

// ParallelOutcome classifies an ExecuteParallel run.
type ParallelOutcome string

const (
	OutcomeAllOk   ParallelOutcome = "all-ok"
	OutcomeAllKo   ParallelOutcome = "all-ko"
	OutcomePartial ParallelOutcome = "partial"
)

// ParallelStats summarizes an ExecuteParallel run.
type ParallelStats struct {
	Total     int
	Succeeded int
	Failed    int
}

// ParallelResult is ExecuteParallel's return value: Results is
// index-aligned with the items passed in (a slot left zero-value if
// ParallelFailFast cancelled before that item completed). FailAll is set
// when the run used ParallelFailAll and at least one item failed: it
// carries Results verbatim, so the aggregate failure's cause is the array
// of individual results.
type ParallelResult[Out, Err any] struct {
	Outcome ParallelOutcome
	Results []Result[Out, Err]
	Stats   ParallelStats
	FailAll *ParallelError[Out, Err]
}

// ParallelItem is one unit of work for ExecuteParallel: a closure over a
// bound handler/input pair (via ExecuteSub) or a plain function (via
// ExecuteFunc), so items can share a Out/Err type while differing freely
// in how each computes its Result.
type ParallelItem[Out, Err any] func(*ExecutionCtx) Result[Out, Err]

// ParallelOption configures an ExecuteParallel call.
type ParallelOption[Out, Err any] func(*parallelConfig[Out, Err])

type parallelConfig[Out, Err any] struct {
	failureMode    ParallelFailureMode
	onItemComplete func(Result[Out, Err], int)
}

// WithParallelFailureMode sets the failure mode (default ParallelContinue).
func WithParallelFailureMode[Out, Err any](mode ParallelFailureMode) ParallelOption[Out, Err] {
	return func(c *parallelConfig[Out, Err]) { c.failureMode = mode }
}

// WithOnItemComplete registers a callback invoked once per collected item, in
// completion order (which may differ from index order). Under
// ParallelFailFast, items that complete after the first failure are not
// reported.
func WithOnItemComplete[Out, Err any](cb func(Result[Out, Err], int)) ParallelOption[Out, Err] {
	return func(c *parallelConfig[Out, Err]) { c.onItemComplete = cb }
}

// ExecuteParallel runs items concurrently against ctx's pod, aligning
// Results with items by index. ParallelFailFast cancels each item's context
// as soon as the first failure completes; items that had not finished by
// then are left as zero-value Results and excluded from Succeeded/Failed.
func ExecuteParallel[Out, Err any](ctx *ExecutionCtx, items []ParallelItem[Out, Err], opts ...ParallelOption[Out, Err]) ParallelResult[Out, Err] {
	cfg := &parallelConfig[Out, Err]{failureMode: ParallelContinue}
	for _, opt := range opts {
		opt(cfg)
	}

	childCtx, cancel := context.WithCancel(ctx.Context())
	defer cancel()

	type outcome struct {
		idx int
		res Result[Out, Err]
	}
	done := make(chan outcome, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item ParallelItem[Out, Err]) {
			defer wg.Done()
			child := ctx.child(childCtx)
			done <- outcome{idx: i, res: item(child)}
		}(i, item)
	}
	go func() { wg.Wait(); close(done) }()

	results := make([]Result[Out, Err], len(items))
	succeeded, failed := 0, 0

	for o := range done {
		results[o.idx] = o.res
		if o.res.IsOk() {
			succeeded++
		} else {
			failed++
		}
		if cfg.onItemComplete != nil {
			cfg.onItemComplete(o.res, o.idx)
		}
		if cfg.failureMode == ParallelFailFast && o.res.IsKo() {
			cancel()
			break
		}
	}

	outcomeKind := OutcomeAllOk
	switch {
	case failed > 0 && succeeded == 0:
		outcomeKind = OutcomeAllKo
	case failed > 0:
		outcomeKind = OutcomePartial
	}

	stats := ParallelStats{Total: len(items), Succeeded: succeeded, Failed: failed}
	out := ParallelResult[Out, Err]{
		Outcome: outcomeKind,
		Results: results,
		Stats:   stats,
	}
	if cfg.failureMode == ParallelFailAll && failed > 0 {
		out.FailAll = &ParallelError[Out, Err]{Stats: stats, Results: results}
	}
	return out
}

// ParallelError aggregates a ParallelFailAll outcome's failures. Results is
// the same index-aligned slice ExecuteParallel returned, carried as the
// cause of the aggregated failure.
type ParallelError[Out, Err any] struct {
	Stats   ParallelStats
	Results []Result[Out, Err]
}

func (e *ParallelError[Out, Err]) Error() string {
	return fmt.Sprintf("kinetic: %d of %d parallel items failed", e.Stats.Failed, e.Stats.Total)
}

// CheckParallelFailAll returns res.FailAll as an error if ExecuteParallel
// ran in ParallelFailAll mode and any item failed, nil otherwise. Provided
// for callers that want a plain `if err := ...; err != nil` check instead of
// inspecting FailAll directly.
func CheckParallelFailAll[Out, Err any](res ParallelResult[Out, Err]) error {
	if res.FailAll == nil {
		return nil
	}
	return res.FailAll
}
