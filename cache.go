package kinetic

import (
	"sync"
)

// cacheEntry is one slot in a scope's or pod's value cache: the resolved
// value (if State is StateResolved), the rejection cause (if StateRejected),
// and registered change subscribers. The entry object itself is stable for
// the lifetime of the (scope, executor) pair between deletes, so a
// subscription survives an update (which transitions the same entry)
// without needing to be re-registered.
type cacheEntry struct {
	mu    sync.Mutex
	state ResolutionState
	value any
	err   error
	subs  []func(any)
}

// transition moves the entry to state/value/err and fans the new value out
// to every live subscriber, in registration order.
func (e *cacheEntry) transition(state ResolutionState, value any, err error) {
	e.mu.Lock()
	e.state, e.value, e.err = state, value, err
	cbs := make([]func(any), len(e.subs))
	copy(cbs, e.subs)
	e.mu.Unlock()

	if state == StateResolved {
		for _, cb := range cbs {
			if cb != nil {
				cb(value)
			}
		}
	}
}

func (e *cacheEntry) snapshot() (ResolutionState, any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.value, e.err
}

func (e *cacheEntry) addSubscriber(cb func(any)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, cb)
	return len(e.subs) - 1
}

func (e *cacheEntry) removeSubscriber(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx >= 0 && idx < len(e.subs) {
		e.subs[idx] = nil
	}
}

// valueCache is the sync.Map-backed store used by both Scope and Pod,
// keyed on executor identity rather than on T (Go generics can't key a
// single map on heterogeneous T, so the type assertion happens at the
// Controller boundary instead).
type valueCache struct {
	data sync.Map
}

func newValueCache() *valueCache {
	return &valueCache{}
}

func (c *valueCache) load(key AnyExecutor) (*cacheEntry, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*cacheEntry), true
}

// getOrCreate returns the existing entry for key, or installs a fresh
// unresolved one. Used so a subscriber registered before first resolve
// still observes the eventual transition.
func (c *valueCache) getOrCreate(key AnyExecutor) *cacheEntry {
	if v, ok := c.data.Load(key); ok {
		return v.(*cacheEntry)
	}
	fresh := &cacheEntry{state: StateUnresolved}
	actual, _ := c.data.LoadOrStore(key, fresh)
	return actual.(*cacheEntry)
}

func (c *valueCache) delete(key AnyExecutor) {
	c.data.Delete(key)
}

func (c *valueCache) rangeEntries(fn func(key AnyExecutor, entry *cacheEntry) bool) {
	c.data.Range(func(key, value any) bool {
		return fn(key.(AnyExecutor), value.(*cacheEntry))
	})
}

func (c *valueCache) size() int {
	count := 0
	c.data.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
