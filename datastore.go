package kinetic

// DataStore is an insertion-ordered key/value map. Keys are opaque
// comparable values (strings, tags, or any other comparable type). It backs
// the flow execution context; Keys returns keys in first-set order, which
// Range and ExecutionCtx.finalize rely on.
type DataStore struct {
	keys   []any
	values map[any]any
}

// NewDataStore creates an empty store, optionally seeded with ordered
// key/value pairs.
func NewDataStore(seed ...[2]any) *DataStore {
	ds := &DataStore{values: make(map[any]any)}
	for _, kv := range seed {
		ds.Set(kv[0], kv[1])
	}
	return ds
}

// Set writes value under key. The first Set for a key fixes its position in
// insertion order; later Sets overwrite the value in place.
func (ds *DataStore) Set(key any, value any) {
	if _, exists := ds.values[key]; !exists {
		ds.keys = append(ds.keys, key)
	}
	ds.values[key] = value
}

// Get reads the value stored under key.
func (ds *DataStore) Get(key any) (any, bool) {
	v, ok := ds.values[key]
	return v, ok
}

// Delete removes key and its insertion-order slot.
func (ds *DataStore) Delete(key any) {
	if _, exists := ds.values[key]; !exists {
		return
	}
	delete(ds.values, key)
	for i, k := range ds.keys {
		if k == key {
			ds.keys = append(ds.keys[:i], ds.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored keys.
func (ds *DataStore) Len() int { return len(ds.keys) }

// Keys returns the stored keys in insertion order.
func (ds *DataStore) Keys() []any {
	out := make([]any, len(ds.keys))
	copy(out, ds.keys)
	return out
}

// reset clears the store in place, retaining allocated capacity for reuse.
func (ds *DataStore) reset() {
	ds.keys = ds.keys[:0]
	for k := range ds.values {
		delete(ds.values, k)
	}
}

// Range calls fn for each key/value pair in insertion order, stopping early
// if fn returns false.
func (ds *DataStore) Range(fn func(key any, value any) bool) {
	for _, k := range ds.keys {
		if !fn(k, ds.values[k]) {
			return
		}
	}
}
