package extensions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	kinetic "github.com/kinetic-run/kinetic"
	"github.com/kinetic-run/kinetic/schema"
)

func TestGraphDebugExtension_OnError(t *testing.T) {
	var buf bytes.Buffer
	multiWriter := io.MultiWriter(&buf, os.Stdout)
	handler := NewHumanHandler(multiWriter, slog.LevelError)

	scope := kinetic.NewScope(
		kinetic.WithExtension(NewGraphDebugExtension(handler)),
	)
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	storage := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "storage", nil
		},
		kinetic.WithTag(nameTag, "Storage"),
	)

	userService := kinetic.Derive1(
		storage.Reactive(),
		func(ctx *kinetic.ResolveCtx, s *kinetic.Controller[string]) (string, error) {
			return "", fmt.Errorf("type assertion failed: expected *User, got *string")
		},
		kinetic.WithTag(nameTag, "UserService"),
	)

	_, err := kinetic.Resolve(context.Background(), scope, userService)
	if err == nil {
		t.Fatal("Expected error but got nil")
	}

	output := buf.String()

	if !strings.Contains(output, strings.Repeat("=", 70)) {
		t.Error("Expected separator line")
	}
	if !strings.Contains(output, "[GraphDebug] Dependency Resolution Error") {
		t.Error("Expected '[GraphDebug] Dependency Resolution Error' header")
	}
	if !strings.Contains(output, "Failed Executor: UserService") {
		t.Error("Expected 'Failed Executor: UserService'")
	}
	if !strings.Contains(output, "Error: kinetic: factory failed for executor") || !strings.Contains(output, "type assertion failed: expected *User, got *string") {
		t.Error("Expected error message in human-readable format")
	}
	if !strings.Contains(output, "Operation: resolve") {
		t.Error("Expected 'Operation: resolve'")
	}
	if !strings.Contains(output, "Dependency Graph:") {
		t.Error("Expected 'Dependency Graph:' section")
	}
	if !strings.Contains(output, "Storage") {
		t.Error("Expected 'Storage' in dependency graph")
	}
	if !strings.Contains(output, "UserService") {
		t.Error("Expected 'UserService' in dependency graph")
	}
	if !strings.Contains(output, "FAILED") {
		t.Error("Expected 'FAILED' status indicator")
	}
	if !strings.Contains(output, "Error Details:") {
		t.Error("Expected 'Error Details:' section")
	}
}

func TestGraphDebugExtension_TracksResolvedExecutors(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	scope := kinetic.NewScope(
		kinetic.WithExtension(ext),
	)
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	storage := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "storage", nil
		},
		kinetic.WithTag(nameTag, "Storage"),
	)

	service := kinetic.Derive1(
		storage.Reactive(),
		func(ctx *kinetic.ResolveCtx, s *kinetic.Controller[string]) (string, error) {
			val, _ := s.Get(ctx.Context())
			return "service-" + val, nil
		},
		kinetic.WithTag(nameTag, "Service"),
	)

	_, err := kinetic.Resolve(context.Background(), scope, service)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !ext.resolvedExecutors[storage] {
		t.Error("Expected storage to be tracked as resolved")
	}
	if !ext.resolvedExecutors[service] {
		t.Error("Expected service to be tracked as resolved")
	}
}

func TestGraphDebugExtension_ExportReactiveGraph(t *testing.T) {
	scope := kinetic.NewScope()
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	config := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "config", nil
		},
		kinetic.WithTag(nameTag, "Config"),
	)

	storage := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "storage", nil
		},
		kinetic.WithTag(nameTag, "Storage"),
	)

	service := kinetic.Derive2(
		config.Reactive(),
		storage.Reactive(),
		func(ctx *kinetic.ResolveCtx, c *kinetic.Controller[string], s *kinetic.Controller[string]) (string, error) {
			cfg, _ := c.Get(ctx.Context())
			store, _ := s.Get(ctx.Context())
			return cfg + "-" + store, nil
		},
		kinetic.WithTag(nameTag, "Service"),
	)

	_, err := kinetic.Resolve(context.Background(), scope, service)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	graph := scope.ExportReactiveGraph()
	if len(graph) == 0 {
		t.Error("Expected non-empty dependency graph")
	}

	configDeps, hasConfig := graph[config]
	if !hasConfig {
		t.Error("Expected config in dependency graph")
	}
	foundService := false
	for _, dep := range configDeps {
		if dep == service {
			foundService = true
			break
		}
	}
	if !foundService {
		t.Error("Expected service to be dependent of config")
	}

	storageDeps, hasStorage := graph[storage]
	if !hasStorage {
		t.Error("Expected storage in dependency graph")
	}
	foundService = false
	for _, dep := range storageDeps {
		if dep == service {
			foundService = true
			break
		}
	}
	if !foundService {
		t.Error("Expected service to be dependent of storage")
	}
}

func TestGraphDebugExtension_OnFlowPanic(t *testing.T) {
	var buf bytes.Buffer
	multiWriter := io.MultiWriter(&buf, os.Stdout)
	handler := NewHumanHandler(multiWriter, slog.LevelError)

	scope := kinetic.NewScope(
		kinetic.WithExtension(NewGraphDebugExtension(handler)),
	)
	defer scope.Dispose()

	dummy := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (string, error) {
		return "dummy", nil
	})

	def := kinetic.Define[int, string, string](
		"PanicFlow", schema.Custom[int](), schema.Custom[string](), schema.Custom[string](),
	)
	panicFlow := def.Handler([]kinetic.Dependency{dummy}, func(execCtx *kinetic.ExecutionCtx, deps []any, input int) kinetic.Result[string, string] {
		panic("simulated panic")
	})

	result := kinetic.Execute(context.Background(), panicFlow, 0, kinetic.WithExecuteScope(scope))
	if result.IsOk() {
		t.Error("Expected panic result but got ok")
	}

	output := buf.String()

	if !strings.Contains(output, strings.Repeat("=", 70)) {
		t.Error("Expected separator line")
	}
	if !strings.Contains(output, "[GraphDebug] Flow Panic") {
		t.Error("Expected '[GraphDebug] Flow Panic' header")
	}
	if !strings.Contains(output, "Panic: simulated panic") {
		t.Error("Expected 'Panic: simulated panic'")
	}
	if !strings.Contains(output, "Flow Path: PanicFlow") {
		t.Error("Expected 'Flow Path: PanicFlow'")
	}
	if !strings.Contains(output, "Depth: 0") {
		t.Error("Expected 'Depth: 0' for a top-level flow")
	}
	if !strings.Contains(output, "Stack Trace:") {
		t.Error("Expected 'Stack Trace:' section")
	}
	if !strings.Contains(output, "goroutine") {
		t.Error("Expected goroutine information in stack trace")
	}
	if strings.Contains(output, "\\n") {
		t.Error("Expected actual newlines, not escaped \\n characters")
	}
}

func TestGraphDebugExtension_GetExecutorName(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	nameTag := kinetic.NewTag[string]("executor.name")

	namedExec := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "value", nil
		},
		kinetic.WithTag(nameTag, "NamedExecutor"),
	)

	name := ext.getExecutorName(namedExec)
	if name != "NamedExecutor" {
		t.Errorf("Expected 'NamedExecutor', got '%s'", name)
	}

	unnamedExec := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "value", nil
		},
	)

	name = ext.getExecutorName(unnamedExec)
	if !strings.HasPrefix(name, "Executor_") {
		t.Errorf("Expected name to start with 'Executor_', got '%s'", name)
	}
}

func TestSilentHandler(t *testing.T) {
	handler := NewSilentHandler()

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected SilentHandler to be disabled for Debug level")
	}
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected SilentHandler to be disabled for Info level")
	}
	if handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("Expected SilentHandler to be disabled for Error level")
	}

	record := slog.Record{}
	if err := handler.Handle(context.Background(), record); err != nil {
		t.Errorf("Expected Handle to return nil, got %v", err)
	}

	withAttrs := handler.WithAttrs([]slog.Attr{})
	if withAttrs != handler {
		t.Error("Expected WithAttrs to return self")
	}

	withGroup := handler.WithGroup("test")
	if withGroup != handler {
		t.Error("Expected WithGroup to return self")
	}

	ext := NewGraphDebugExtension(handler)
	scope := kinetic.NewScope(
		kinetic.WithExtension(ext),
	)
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	failingExec := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "", fmt.Errorf("intentional error")
		},
		kinetic.WithTag(nameTag, "FailingExecutor"),
	)

	_, err := kinetic.Resolve(context.Background(), scope, failingExec)
	if err == nil {
		t.Error("Expected error from failing executor")
	}
}

func TestGraphDebugExtension_ComplexDependencyGraph(t *testing.T) {
	handler := NewHumanHandler(os.Stdout, slog.LevelError)

	scope := kinetic.NewScope(
		kinetic.WithExtension(NewGraphDebugExtension(handler)),
	)
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	dbConfig := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (string, error) {
		return "db-config", nil
	}, kinetic.WithTag(nameTag, "DBConfig"))

	cacheConfig := kinetic.Provide(func(ctx *kinetic.ResolveCtx) (string, error) {
		return "cache-config", nil
	}, kinetic.WithTag(nameTag, "CacheConfig"))

	database := kinetic.Derive1(dbConfig.Reactive(),
		func(ctx *kinetic.ResolveCtx, cfg *kinetic.Controller[string]) (string, error) {
			val, _ := cfg.Get(ctx.Context())
			return "db:" + val, nil
		}, kinetic.WithTag(nameTag, "Database"))

	cache := kinetic.Derive1(cacheConfig.Reactive(),
		func(ctx *kinetic.ResolveCtx, cfg *kinetic.Controller[string]) (string, error) {
			val, _ := cfg.Get(ctx.Context())
			return "cache:" + val, nil
		}, kinetic.WithTag(nameTag, "Cache"))

	userRepo := kinetic.Derive1(database.Reactive(),
		func(ctx *kinetic.ResolveCtx, db *kinetic.Controller[string]) (string, error) {
			val, _ := db.Get(ctx.Context())
			return "repo:" + val, nil
		}, kinetic.WithTag(nameTag, "UserRepository"))

	userService := kinetic.Derive2(userRepo.Reactive(), cache.Reactive(),
		func(ctx *kinetic.ResolveCtx, repo *kinetic.Controller[string], c *kinetic.Controller[string]) (string, error) {
			r, _ := repo.Get(ctx.Context())
			cv, _ := c.Get(ctx.Context())
			return "", fmt.Errorf("service unavailable: %s/%s", r, cv)
		}, kinetic.WithTag(nameTag, "UserService"))

	_, err := kinetic.Resolve(context.Background(), scope, userService)
	if err == nil {
		t.Fatal("Expected error from UserService")
	}

	graph := scope.ExportReactiveGraph()
	if len(graph) == 0 {
		t.Fatal("Expected non-empty dependency graph")
	}
	if _, ok := graph[dbConfig]; !ok {
		t.Error("Expected DBConfig in dependency graph")
	}
	if _, ok := graph[cacheConfig]; !ok {
		t.Error("Expected CacheConfig in dependency graph")
	}
}

func TestGraphDebugExtension_PodLocalEdgesMarked(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHumanHandler(&buf, slog.LevelError)

	scope := kinetic.NewScope(
		kinetic.WithExtension(NewGraphDebugExtension(handler)),
	)
	defer scope.Dispose()

	nameTag := kinetic.NewTag[string]("executor.name")

	config := kinetic.Provide(
		func(ctx *kinetic.ResolveCtx) (string, error) {
			return "config", nil
		},
		kinetic.WithTag(nameTag, "Config"),
	)

	service := kinetic.Derive1(
		config.Reactive(),
		func(ctx *kinetic.ResolveCtx, c *kinetic.Controller[string]) (string, error) {
			return "", fmt.Errorf("pod-scoped failure")
		},
		kinetic.WithTag(nameTag, "PodService"),
	)

	pod := scope.Pod()
	defer scope.DisposePod(pod)

	_, err := kinetic.Resolve(context.Background(), pod, service)
	if err == nil {
		t.Fatal("Expected error resolving PodService in pod")
	}

	output := buf.String()
	if !strings.Contains(output, "Scope: pod") {
		t.Error("Expected the render to flag the error as pod-originated")
	}
	if !strings.Contains(output, "[pod]") {
		t.Error("Expected the pod-local reactive edge to be marked with [pod]")
	}

	// The scope's own graph never sees an edge resolved only inside the pod.
	if edges := scope.ExportReactiveGraph()[config]; len(edges) != 0 {
		t.Error("Expected pod-local resolve to leave the parent scope's graph untouched")
	}
	if edges := pod.ExportReactiveGraph()[config]; len(edges) == 0 {
		t.Error("Expected the pod's own graph to record the reactive edge")
	}
}
