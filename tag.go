package kinetic

// Tag is a type-safe key for metadata attached to executors, scopes, pods,
// and flow execution contexts.
type Tag[T any] struct {
	key   string
	deflt *T
}

// TagOption configures a Tag at construction time.
type TagOption[T any] func(*Tag[T])

// WithTagDefault sets the value returned by Find/Get when the tag is absent
// from a container.
func WithTagDefault[T any](val T) TagOption[T] {
	return func(t *Tag[T]) {
		v := val
		t.deflt = &v
	}
}

// NewTag creates a new tag identified by key, optionally carrying a default.
func NewTag[T any](key string, opts ...TagOption[T]) Tag[T] {
	t := Tag[T]{key: key}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Key returns the tag's string identity (for debugging and error messages).
func (t Tag[T]) Key() string {
	return t.key
}

// tagContainer is implemented by anything that can carry tagged metadata:
// executors, scopes, pods, and flow definitions.
type tagContainer interface {
	getTags(key any) []any
	setTag(key any, val any)
}

// Find returns the first tagged value on container, the tag's default if
// one was configured and no value is present, or false.
func (t Tag[T]) Find(container tagContainer) (T, bool) {
	vals := container.getTags(t)
	if len(vals) > 0 {
		return vals[0].(T), true
	}
	if t.deflt != nil {
		return *t.deflt, true
	}
	var zero T
	return zero, false
}

// Get retrieves the tag value or panics with TagNotFoundError if absent and
// no default is configured.
func (t Tag[T]) Get(container tagContainer) T {
	val, ok := t.Find(container)
	if !ok {
		panic(&TagNotFoundError{Key: t.key})
	}
	return val
}

// GetOrDefault retrieves the tag value or returns defaultVal if absent.
func (t Tag[T]) GetOrDefault(container tagContainer, defaultVal T) T {
	if val, ok := t.Find(container); ok {
		return val
	}
	return defaultVal
}

// Some returns every tagged value on container in insertion order.
func (t Tag[T]) Some(container tagContainer) []T {
	vals := container.getTags(t)
	result := make([]T, len(vals))
	for i, v := range vals {
		result[i] = v.(T)
	}
	return result
}

// Set appends a tagged value to container. It does not replace prior values
// for the same tag — repeated Set calls accumulate, consistent with Some's
// "all occurrences" contract.
func (t Tag[T]) Set(container tagContainer, val T) {
	container.setTag(t, val)
}

// Preset returns a setter that applies val to any container, for use at
// scope/executor construction time.
func (t Tag[T]) Preset(val T) func(tagContainer) {
	return func(c tagContainer) {
		t.Set(c, val)
	}
}

// tagBag is the shared ordered multimap backing scopes, pods, executors, and
// flow definitions. Insertion order is preserved per key for Some().
type tagBag struct {
	values map[any][]any
}

func newTagBag() tagBag {
	return tagBag{values: make(map[any][]any)}
}

func (b *tagBag) getTags(key any) []any {
	return b.values[key]
}

func (b *tagBag) setTag(key any, val any) {
	b.values[key] = append(b.values[key], val)
}
