package kinetic

import (
	"fmt"
	"runtime/debug"
)

// ScopeDisposedError is returned by any operation attempted on a scope or
// pod after Dispose has run.
type ScopeDisposedError struct {
	Op string
}

func (e *ScopeDisposedError) Error() string {
	return fmt.Sprintf("kinetic: scope disposed, cannot %s", e.Op)
}

// FactoryExecutionError wraps an error returned by an executor's factory
// function during resolution. A panic raised inside a factory is not
// recovered by the resolver.
type FactoryExecutionError struct {
	Executor   AnyExecutor
	Cause      error
	StackTrace []byte
}

func (e *FactoryExecutionError) Error() string {
	return fmt.Sprintf("kinetic: factory failed for executor %p: %v", e.Executor, e.Cause)
}

func (e *FactoryExecutionError) Unwrap() error { return e.Cause }

func newFactoryExecutionError(exec AnyExecutor, cause error) *FactoryExecutionError {
	return &FactoryExecutionError{Executor: exec, Cause: cause, StackTrace: debug.Stack()}
}

// DependencyResolutionError is raised when a dependency fails to resolve,
// wrapping the dependency's own error as Cause.
type DependencyResolutionError struct {
	Executor          AnyExecutor
	FailingDependency AnyExecutor
	Cause             error
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("kinetic: resolving dependency %p of executor %p: %v", e.FailingDependency, e.Executor, e.Cause)
}

func (e *DependencyResolutionError) Unwrap() error { return e.Cause }

// DependencyCycleError reports a cycle discovered during resolution, with
// the full path of executors from the start of the cycle back to itself.
type DependencyCycleError struct {
	Path []AnyExecutor
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("kinetic: dependency cycle detected (%d executors in cycle)", len(e.Path))
}

// DependencyShapeError is raised when a resolved dependency value does not
// match the shape the call site expected (e.g. a keyed-mapping dependency
// missing an expected key).
type DependencyShapeError struct {
	Expected string
	Got      string
}

func (e *DependencyShapeError) Error() string {
	return fmt.Sprintf("kinetic: dependency shape mismatch: expected %s, got %s", e.Expected, e.Got)
}

// SchemaIssue describes a single validation failure.
type SchemaIssue struct {
	Message string
	Path    []string
}

// SchemaError wraps validation failures from the schema adapter contract
// used to validate flow inputs, success payloads, and error payloads.
type SchemaError struct {
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 0 {
		return "kinetic: schema validation failed"
	}
	return fmt.Sprintf("kinetic: schema validation failed: %s", e.Issues[0].Message)
}

// TagNotFoundError is raised by Tag.Get when the tag is absent and has no
// configured default.
type TagNotFoundError struct {
	Key string
}

func (e *TagNotFoundError) Error() string {
	return fmt.Sprintf("kinetic: tag %q not found", e.Key)
}

// UncaughtHandlerError wraps a panic recovered from a flow handler. It is
// placed as the Cause of the synthetic ko Result produced for that panic.
type UncaughtHandlerError struct {
	Recovered  any
	StackTrace []byte
}

func (e *UncaughtHandlerError) Error() string {
	return fmt.Sprintf("kinetic: flow handler panicked: %v", e.Recovered)
}

func newUncaughtHandlerError(recovered any) *UncaughtHandlerError {
	return &UncaughtHandlerError{Recovered: recovered, StackTrace: debug.Stack()}
}

// CleanupError reports a failure from a cleanup callback registered via
// ResolveCtx.OnCleanup. Context is "release", "update", "reactive", or
// "dispose".
type CleanupError struct {
	Executor AnyExecutor
	Cause    error
	Context  string
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("kinetic: cleanup failed for executor %p during %s: %v", e.Executor, e.Context, e.Cause)
}

func (e *CleanupError) Unwrap() error { return e.Cause }

// isStructuredError reports whether err is already one of the taxonomy
// types above, so the resolver doesn't re-wrap it in a FactoryExecutionError
// on its way back up a dependency chain (e.g. a DependencyResolutionError
// raised two levels down should surface unchanged, not nested again).
func isStructuredError(err error) bool {
	switch err.(type) {
	case *ScopeDisposedError, *FactoryExecutionError, *DependencyResolutionError,
		*DependencyCycleError, *DependencyShapeError, *SchemaError, *TagNotFoundError:
		return true
	default:
		return false
	}
}
