package kinetic

// Accessor returns a handle over e within h without forcing resolution. h is
// typically a *Scope or a *Pod. The returned Controller is the same Accessor
// surface a factory receives for its own dependencies: Get forces resolution
// and returns the value, Peek checks without forcing, Subscribe observes
// changes, and Update/Release/Reload mutate the underlying entry.
func Accessor[T any](h host, e *Executor[T]) *Controller[T] {
	return &Controller[T]{dep: e, host: h}
}
