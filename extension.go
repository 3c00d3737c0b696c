package kinetic

import "context"

// Extension is the single hook surface for the resolve/update pipeline and
// the flow-execution pipeline. One interface, two invocation shapes: Wrap
// intercepts resolve/update, the OnFlow* trio intercepts flow execution.
type Extension interface {
	// Name identifies the extension in logs and graph-debug output.
	Name() string

	// Order determines wrapping order: lower runs closer to the real
	// operation, higher runs closer to the caller. Extensions added to a
	// pod are not sorted by Order; they wrap outside the scope's list, in
	// the order they were added.
	Order() int

	// Init runs once when the extension is registered to a scope.
	Init(scope *Scope) error

	// InitPod runs once for each pod spawned from a scope the extension is
	// registered to (or the pod the extension itself is layered onto).
	InitPod(pod *Pod) error

	// DisposePod runs once when a pod the extension observed via InitPod is
	// disposed.
	DisposePod(pod *Pod) error

	// Wrap intercepts a resolve or update operation. Implementations call
	// next() to continue the chain.
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError observes an error produced by a resolve or update operation.
	OnError(err error, op *Operation, scope *Scope)

	// OnCleanupError observes a cleanup callback failure. Returning true
	// marks the error handled, suppressing the default log-and-continue.
	OnCleanupError(err *CleanupError) bool

	// Flow execution hooks.
	OnFlowStart(execCtx *ExecutionCtx, flow AnyFlow) error
	OnFlowEnd(execCtx *ExecutionCtx, result any, err error) error
	OnFlowPanic(execCtx *ExecutionCtx, recovered any, stack []byte) error

	// Dispose runs once when the owning scope is disposed.
	Dispose(scope *Scope) error
}

// BaseExtension gives every hook a no-op default so an extension can embed
// it and override only what it needs.
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(scope *Scope) error {
	return nil
}

func (e *BaseExtension) InitPod(pod *Pod) error {
	return nil
}

func (e *BaseExtension) DisposePod(pod *Pod) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, scope *Scope) {
}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool {
	return false
}

func (e *BaseExtension) OnFlowStart(execCtx *ExecutionCtx, flow AnyFlow) error {
	return nil
}

func (e *BaseExtension) OnFlowEnd(execCtx *ExecutionCtx, result any, err error) error {
	return nil
}

func (e *BaseExtension) OnFlowPanic(execCtx *ExecutionCtx, recovered any, stack []byte) error {
	return nil
}

func (e *BaseExtension) Dispose(scope *Scope) error {
	return nil
}

// Operation describes the resolve/update call an Extension.Wrap is
// currently intercepting. Pod is non-nil when the call originated inside a
// Pod (the operation is still reported against Scope, the pod's parent,
// since pod errors and changes fan out through the parent's extension
// list — see Pod.resolveEntry/updateValue).
type Operation struct {
	Kind     OperationKind
	Executor AnyExecutor
	Scope    *Scope
	Pod      *Pod
}

// OperationKind distinguishes a resolve from an update inside Wrap/OnError.
type OperationKind string

const (
	OpResolve OperationKind = "resolve"
	OpUpdate  OperationKind = "update"
)
