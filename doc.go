// Package kinetic provides a graph-based dependency resolution and reactive
// execution runtime for Go.
//
// # Overview
//
// Kinetic organizes code around three core concepts:
//
//  1. Executors: immutable units of computation with explicit dependencies
//  2. Scopes and Pods: lifecycle managers that resolve, cache, and
//     isolate executor values
//  3. Flows: validated, schema-bounded request/response handlers with
//     hierarchical execution contexts
//
// # Basic Usage
//
// Create executors to define your application graph:
//
//	scope := kinetic.NewScope()
//
//	config := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (*Config, error) {
//	    return &Config{Port: 8080}, nil
//	})
//
//	server := kinetic.Derive1(
//	    config,
//	    func(ctx *kinetic.ResolveCtx, cfg *kinetic.Controller[*Config]) (*Server, error) {
//	        c, _ := cfg.Get(ctx.Context())
//	        return NewServer(c.Port), nil
//	    },
//	)
//
// Access values through controllers:
//
//	serverCtrl := kinetic.Accessor(scope, server)
//	srv, err := serverCtrl.Get(context.Background())
//
// # Dependency Modes
//
// Dependencies can be resolved in different modes:
//
//	// Default: resolve once, cache forever.
//	service := kinetic.Derive1(
//	    config,
//	    func(ctx *kinetic.ResolveCtx, cfg *kinetic.Controller[*Config]) (*Service, error) {
//	        // Only called once.
//	        return nil, nil
//	    },
//	)
//
//	// Reactive: invalidate and re-resolve when the dependency changes.
//	counter := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (int, error) {
//	    return 0, nil
//	})
//
//	doubled := kinetic.Derive1(
//	    counter.Reactive(),
//	    func(ctx *kinetic.ResolveCtx, c *kinetic.Controller[int]) (int, error) {
//	        val, _ := c.Get(ctx.Context())
//	        return val * 2, nil
//	    },
//	)
//
//	counterCtrl := kinetic.Accessor(scope, counter)
//	counterCtrl.Update(context.Background(), 5) // triggers re-resolution of doubled
//
//	// Lazy: defer resolution until the factory explicitly calls Get.
//	logger := kinetic.Derive1(
//	    config.Lazy(),
//	    func(ctx *kinetic.ResolveCtx, cfg *kinetic.Controller[*Config]) (*Logger, error) {
//	        return nil, nil // cfg only resolves if cfg.Get is called
//	    },
//	)
//
// # Controllers
//
// Controller is the Accessor surface for every dependency mode and for
// values held by a Scope or Pod directly:
//
//	ctrl := kinetic.Accessor(scope, executor)
//
//	val, err := ctrl.Get(ctx)         // resolves and caches the value
//	val, ok := ctrl.Peek()            // cached value, no resolution
//	err = ctrl.Update(ctx, newVal)    // sets a new value, cascades reactively
//	err = ctrl.Release(false)         // invalidates the cached value
//	val, err = ctrl.Reload(ctx)       // invalidate then re-resolve
//	cached := ctrl.IsCached()
//
// # Flows
//
// Flows bind a Definition (name, schema contracts) to a dependency list and
// a handler function returning a totalized Result:
//
//	db := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (*DB, error) {
//	    return OpenDB(), nil
//	})
//
//	fetchUserDef := kinetic.Define[int, *User, string](
//	    "fetchUser", schema.Custom[int](), schema.Custom[*User](), schema.Custom[string](),
//	)
//	fetchUser := fetchUserDef.Handler(
//	    []kinetic.Dependency{db},
//	    func(ctx *kinetic.ExecutionCtx, deps []any, userID int) kinetic.Result[*User, string] {
//	        database := deps[0].(*DB)
//	        user, err := database.Query(userID)
//	        if err != nil {
//	            return kinetic.Ko[*User, string](ctx, err.Error(), err)
//	        }
//	        return kinetic.Ok[*User, string](ctx, user)
//	    },
//	)
//
//	result := kinetic.Execute(context.Background(), fetchUser, 123, kinetic.WithExecuteScope(scope))
//	if result.IsOk() {
//	    user := result.OkData()
//	}
//
// Sub-flows share the parent execution's pod and journal:
//
//	orders := kinetic.ExecuteSub(execCtx, fetchOrdersFlow, userID)
//
// # Execution Context
//
// ExecutionCtx provides data isolation and hierarchical lookups:
//
//	execCtx.Set(someKey, "value")             // current context only
//	val, ok := execCtx.Get(someKey)           // current context only
//	val, ok = execCtx.GetFromParent(someKey)  // walk upward
//	val, ok = execCtx.GetFromScope(someKey)   // scope tags
//	val, ok = execCtx.Lookup(someKey)         // self, then parents, then scope
//
// Run journals a computation once per top-level execution (sub-flows share
// the journal):
//
//	total, err := kinetic.Run(execCtx, "charge-card", func() (int, error) {
//	    return chargeCard(amount)
//	})
//
// # Tags
//
// Tags provide type-safe metadata for executors, scopes, pods, and
// definitions:
//
//	versionTag := kinetic.NewTag[string]("version")
//
//	exec := kinetic.Provide(
//	    func(ctx *kinetic.ResolveCtx) (int, error) { return 42, nil },
//	    kinetic.WithTag(versionTag, "1.0.0"),
//	)
//
//	version, ok := versionTag.Find(exec)
//
// # Extensions
//
// Extensions provide cross-cutting concerns through lifecycle hooks:
//
//	type LoggingExtension struct {
//	    kinetic.BaseExtension
//	}
//
//	func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *kinetic.Operation) (any, error) {
//	    result, err := next()
//	    return result, err
//	}
//
//	scope := kinetic.NewScope(
//	    kinetic.WithExtension(&LoggingExtension{BaseExtension: kinetic.NewBaseExtension("logging")}),
//	)
//
// # Resource Cleanup
//
// Register cleanup functions for automatic resource management:
//
//	db := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (*DB, error) {
//	    database := OpenDB()
//	    ctx.OnCleanup(func() error { return database.Close() })
//	    return database, nil
//	})
//
// Cleanups run in LIFO order when a reactive dependent is invalidated, the
// value is released or updated away, or the owning scope is disposed.
//
// # Testing with Presets
//
// Replace executors with test doubles, scoped to a Scope or a Pod:
//
//	testScope := kinetic.NewScope(
//	    kinetic.WithPreset(realDB, mockDB),         // value preset
//	    kinetic.WithPreset(realDB, mockDBExecutor), // executor preset
//	)
//
// # Pods
//
// A Pod is a short-lived overlay on a Scope: writes land in the pod only,
// reads fall through to the parent scope's already-resolved cache.
//
//	pod := scope.Pod(kinetic.WithPodPreset(realDB, mockDB))
//	defer scope.DisposePod(pod)
//
// # Execution Tree
//
// Query execution history for observability:
//
//	tree := scope.GetExecutionTree()
//	for _, root := range tree.GetRoots() {
//	    tree.Walk(root.ID, func(node *kinetic.ExecutionNode) bool {
//	        name, _ := node.GetTag(kinetic.FlowName())
//	        fmt.Printf("flow: %v\n", name)
//	        return true
//	    })
//	}
//
// # Parallel Execution
//
// Run multiple flow invocations concurrently, with index-aligned results:
//
//	out := kinetic.ExecuteParallel(execCtx, items,
//	    kinetic.WithParallelFailureMode[Out, string](kinetic.ParallelFailFast),
//	)
//
// # Best Practices
//
//  1. Use executors for long-lived resources (DB connections, configs, services)
//  2. Use flows for short-span, schema-validated operations
//  3. Prefer default dependencies unless reactivity is actually needed
//  4. Use tags for metadata, not data passing — use the execution context for data
//  5. Register cleanup functions for every resource that needs disposal
//  6. Use extensions for cross-cutting concerns (logging, metrics, tracing)
//  7. Use presets for testing to replace real dependencies with mocks
//
// # Thread Safety
//
// All operations are thread-safe: Scopes and Pods can be accessed
// concurrently, Controllers can be used from multiple goroutines, and
// flows can execute in parallel via ExecuteParallel.
package kinetic
