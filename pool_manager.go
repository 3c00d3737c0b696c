package kinetic

import (
	"context"
	"sync"
)

// poolManager pools the short-lived per-resolution and per-execution
// objects (ResolveCtx, ExecutionCtx) a high-throughput scope allocates over
// and over. It is opt-in per Scope via WithPooling, never a package-level
// singleton: a shared global pool would let two independently-disposed
// scopes hand each other recycled objects across goroutines, which is a
// latent data race the moment one scope's resolve writes into a struct the
// other scope is still reading.
type poolManager struct {
	resolveCtxPool   sync.Pool
	executionCtxPool sync.Pool

	metrics poolMetrics
}

// poolMetrics tracks pool hit/miss counts, exposed for diagnostics via
// Scope.PoolMetrics.
type poolMetrics struct {
	mu                 sync.Mutex
	resolveCtxHits     uint64
	resolveCtxMisses   uint64
	executionCtxHits   uint64
	executionCtxMisses uint64
}

// PoolMetrics is a point-in-time copy of a scope's pool hit/miss counters.
type PoolMetrics struct {
	ResolveCtxHits     uint64
	ResolveCtxMisses   uint64
	ExecutionCtxHits   uint64
	ExecutionCtxMisses uint64
}

// newPoolManager leaves the pools' New hooks unset so Get returning nil
// distinguishes a pool miss from a recycled object; the hit/miss counters
// depend on that.
func newPoolManager() *poolManager {
	return &poolManager{}
}

func (pm *poolManager) acquireResolveCtx(ctx context.Context, scope host, target AnyExecutor) *ResolveCtx {
	rc, _ := pm.resolveCtxPool.Get().(*ResolveCtx)
	pm.metrics.mu.Lock()
	if rc != nil {
		pm.metrics.resolveCtxHits++
	} else {
		pm.metrics.resolveCtxMisses++
	}
	pm.metrics.mu.Unlock()
	if rc == nil {
		rc = &ResolveCtx{}
	}
	rc.ctx = ctx
	rc.scope = scope
	rc.target = target
	return rc
}

func (pm *poolManager) releaseResolveCtx(rc *ResolveCtx) {
	if rc == nil {
		return
	}
	rc.ctx, rc.scope, rc.target = nil, nil, nil
	pm.resolveCtxPool.Put(rc)
}

func (pm *poolManager) acquireExecutionCtx(id string, parent *ExecutionCtx, scope *Scope, ctx context.Context) *ExecutionCtx {
	ec, _ := pm.executionCtxPool.Get().(*ExecutionCtx)
	pm.metrics.mu.Lock()
	if ec != nil {
		pm.metrics.executionCtxHits++
	} else {
		pm.metrics.executionCtxMisses++
	}
	pm.metrics.mu.Unlock()
	if ec == nil {
		ec = &ExecutionCtx{data: NewDataStore()}
	} else {
		ec.data.reset()
	}
	ec.id = id
	ec.parent = parent
	ec.scope = scope
	ec.ctx = ctx
	return ec
}

func (pm *poolManager) releaseExecutionCtx(ec *ExecutionCtx) {
	if ec == nil {
		return
	}
	ec.id, ec.parent, ec.scope, ec.ctx = "", nil, nil, nil
	pm.executionCtxPool.Put(ec)
}

func (pm *poolManager) snapshot() PoolMetrics {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()
	return PoolMetrics{
		ResolveCtxHits:     pm.metrics.resolveCtxHits,
		ResolveCtxMisses:   pm.metrics.resolveCtxMisses,
		ExecutionCtxHits:   pm.metrics.executionCtxHits,
		ExecutionCtxMisses: pm.metrics.executionCtxMisses,
	}
}

// PoolMetrics returns a snapshot of this scope's pool hit/miss counters.
// Zero value if WithPooling was never applied.
func (s *Scope) PoolMetrics() PoolMetrics {
	if s.pools == nil {
		return PoolMetrics{}
	}
	return s.pools.snapshot()
}
