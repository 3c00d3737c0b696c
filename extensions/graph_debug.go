package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"

	kinetic "github.com/kinetic-run/kinetic"
)

// GraphDebugExtension logs a scope's (and, where relevant, a pod's) reactive
// dependency graph whenever a resolve/update fails or a flow handler panics.
//
// Usage:
//
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
type GraphDebugExtension struct {
	kinetic.BaseExtension
	nameTag kinetic.Tag[string]

	resolvedExecutors map[kinetic.AnyExecutor]bool
	failedExecutors   map[kinetic.AnyExecutor]error
	logger            *slog.Logger
}

// NewGraphDebugExtension creates a graph debug extension logging through
// logHandler (use NewHumanHandler for formatted console output, or any
// other slog.Handler for structured logging).
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension:     kinetic.NewBaseExtension("graph-debug"),
		nameTag:           kinetic.NewTag[string]("executor.name"),
		resolvedExecutors: make(map[kinetic.AnyExecutor]bool),
		failedExecutors:   make(map[kinetic.AnyExecutor]error),
		logger:            slog.New(logHandler),
	}
}

// Wrap records every resolve's pass/fail outcome so the next error render
// can mark neighboring executors as resolved, failed, or still pending.
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *kinetic.Operation) (any, error) {
	result, err := next()
	if op.Kind != kinetic.OpResolve {
		return result, err
	}
	if err == nil {
		e.resolvedExecutors[op.Executor] = true
	} else {
		e.failedExecutors[op.Executor] = err
	}
	return result, err
}

// OnError logs the dependency graph a failed resolve/update happened in. If
// op.Pod is set, the render includes the pod's own local reactive edges
// alongside the parent scope's, marking pod-local edges distinctly — a
// pod's local graph never appears in scope.ExportReactiveGraph() on its own.
func (e *GraphDebugExtension) OnError(err error, op *kinetic.Operation, scope *kinetic.Scope) {
	execName := e.getExecutorName(op.Executor)
	graph, podOnly := e.collectGraph(scope, op.Pod)
	graphOutput := e.formatDependencyGraph(graph, podOnly, op.Executor, err)

	attrs := []any{
		"executor", execName,
		"error", err.Error(),
		"operation", string(op.Kind),
		"dependency_graph", graphOutput,
	}
	if op.Pod != nil {
		attrs = append(attrs, "scope", "pod")
	}
	e.logger.Error("Dependency Resolution Error", attrs...)
}

// OnFlowPanic logs a breadcrumb of the flow's ancestor chain (outermost
// flow first) alongside the panic, so a panic three sub-flows deep is
// traceable to the top-level invocation that started it.
func (e *GraphDebugExtension) OnFlowPanic(execCtx *kinetic.ExecutionCtx, recovered any, stack []byte) error {
	attrs := []any{
		"panic", fmt.Sprintf("%v", recovered),
		"depth", execCtx.Depth(),
		"stack_trace", string(stack),
	}
	if breadcrumb := e.flowBreadcrumb(execCtx); breadcrumb != "" {
		attrs = append(attrs, "flow_path", breadcrumb)
	}
	e.logger.Error("Flow Panic", attrs...)
	return nil
}

// flowBreadcrumb walks execCtx's ancestor chain collecting each level's
// flow name, outermost first, e.g. "checkout > charge-card > retry-charge".
func (e *GraphDebugExtension) flowBreadcrumb(execCtx *kinetic.ExecutionCtx) string {
	var names []string
	for cur := execCtx; cur != nil; cur = cur.Parent() {
		if name, ok := cur.Get(kinetic.FlowName()); ok {
			if s, ok := name.(string); ok {
				names = append(names, s)
			}
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " > ")
}

// collectGraph merges scope's reactive graph with pod's own local reactive
// graph (if pod is non-nil), returning the merged adjacency map plus the
// set of edges that exist only in the pod's local graph.
func (e *GraphDebugExtension) collectGraph(scope *kinetic.Scope, pod *kinetic.Pod) (map[kinetic.AnyExecutor][]kinetic.AnyExecutor, map[[2]kinetic.AnyExecutor]bool) {
	merged := make(map[kinetic.AnyExecutor][]kinetic.AnyExecutor)
	for parent, children := range scope.ExportReactiveGraph() {
		merged[parent] = append(merged[parent], children...)
	}
	podOnly := make(map[[2]kinetic.AnyExecutor]bool)
	if pod == nil {
		return merged, podOnly
	}
	for parent, children := range pod.ExportReactiveGraph() {
		for _, child := range children {
			podOnly[[2]kinetic.AnyExecutor{parent, child}] = true
			if !containsExec(merged[parent], child) {
				merged[parent] = append(merged[parent], child)
			}
		}
	}
	return merged, podOnly
}

func containsExec(list []kinetic.AnyExecutor, target kinetic.AnyExecutor) bool {
	for _, e := range list {
		if e == target {
			return true
		}
	}
	return false
}

// tryFormatHorizontalTree renders the merged graph as a horizontal tree via
// treedrawer, falling back to "" (triggering the line-based detailed view
// alone) when the graph has no discoverable root.
func (e *GraphDebugExtension) tryFormatHorizontalTree(graph map[kinetic.AnyExecutor][]kinetic.AnyExecutor, failedExecutor kinetic.AnyExecutor) string {
	parents := make(map[kinetic.AnyExecutor][]kinetic.AnyExecutor)
	allNodes := make(map[kinetic.AnyExecutor]bool)
	for parent, children := range graph {
		allNodes[parent] = true
		for _, child := range children {
			allNodes[child] = true
			parents[child] = append(parents[child], parent)
		}
	}

	var roots []kinetic.AnyExecutor
	for node := range allNodes {
		if len(parents[node]) == 0 {
			roots = append(roots, node)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return e.getExecutorName(roots[i]) < e.getExecutorName(roots[j])
	})
	if len(roots) == 0 {
		return ""
	}

	var rootNode *tree.Tree
	if len(roots) == 1 {
		rootNode = e.buildTree(roots[0], graph, failedExecutor, make(map[kinetic.AnyExecutor]bool))
	} else {
		rootNode = tree.NewTree(tree.NodeString("Dependencies"))
		for _, root := range roots {
			if childTree := e.buildTree(root, graph, failedExecutor, make(map[kinetic.AnyExecutor]bool)); childTree != nil {
				e.addTreeAsChild(rootNode, childTree)
			}
		}
	}
	if rootNode == nil {
		return ""
	}
	return rootNode.String()
}

func (e *GraphDebugExtension) buildTree(executor kinetic.AnyExecutor, graph map[kinetic.AnyExecutor][]kinetic.AnyExecutor, failedExecutor kinetic.AnyExecutor, visited map[kinetic.AnyExecutor]bool) *tree.Tree {
	if visited[executor] {
		return nil
	}
	visited[executor] = true

	label := e.getExecutorName(executor)
	switch {
	case executor == failedExecutor:
		label += " FAILED"
	case e.resolvedExecutors[executor]:
		label += " ok"
	}

	node := tree.NewTree(tree.NodeString(label))
	children := make([]kinetic.AnyExecutor, len(graph[executor]))
	copy(children, graph[executor])
	sort.Slice(children, func(i, j int) bool {
		return e.getExecutorName(children[i]) < e.getExecutorName(children[j])
	})
	for _, child := range children {
		if childTree := e.buildTree(child, graph, failedExecutor, visited); childTree != nil {
			e.addTreeAsChild(node, childTree)
		}
	}
	return node
}

func (e *GraphDebugExtension) addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		e.addTreeAsChild(newChild, grandchild)
	}
}

func (e *GraphDebugExtension) formatDependencyGraph(graph map[kinetic.AnyExecutor][]kinetic.AnyExecutor, podOnly map[[2]kinetic.AnyExecutor]bool, failedExecutor kinetic.AnyExecutor, failedErr error) string {
	var sb strings.Builder
	if len(graph) == 0 {
		sb.WriteString("\n(empty - no reactive dependencies tracked)")
		return sb.String()
	}

	if horizontal := e.tryFormatHorizontalTree(graph, failedExecutor); horizontal != "" {
		sb.WriteString("\n")
		sb.WriteString(horizontal)
		sb.WriteString("\n")
	}

	sb.WriteString("\nDetailed View:\n")

	type entry struct {
		parent   kinetic.AnyExecutor
		name     string
		children []kinetic.AnyExecutor
	}
	entries := make([]entry, 0, len(graph))
	for parent, children := range graph {
		entries = append(entries, entry{parent: parent, name: e.getExecutorName(parent), children: children})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, en := range entries {
		parentStatus := ""
		if e.resolvedExecutors[en.parent] {
			parentStatus = " ok"
		} else if _, failed := e.failedExecutors[en.parent]; failed {
			parentStatus = " FAILED"
		}

		if len(en.children) == 0 {
			sb.WriteString(fmt.Sprintf("  %s%s (no dependents)\n", en.name, parentStatus))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s%s\n", en.name, parentStatus))

		type childEntry struct {
			executor kinetic.AnyExecutor
			name     string
		}
		childEntries := make([]childEntry, 0, len(en.children))
		for _, child := range en.children {
			childEntries = append(childEntries, childEntry{executor: child, name: e.getExecutorName(child)})
		}
		sort.Slice(childEntries, func(i, j int) bool { return childEntries[i].name < childEntries[j].name })

		for i, ce := range childEntries {
			name := ce.name
			switch {
			case ce.executor == failedExecutor:
				name += " FAILED"
			case e.resolvedExecutors[ce.executor]:
				name += " ok"
			default:
				if childErr, failed := e.failedExecutors[ce.executor]; failed {
					name = fmt.Sprintf("%s FAILED (error: %v)", name, childErr)
				} else {
					name += " (pending)"
				}
			}
			if podOnly[[2]kinetic.AnyExecutor{en.parent, ce.executor}] {
				name += " [pod]"
			}
			branch := "|->"
			if i == len(childEntries)-1 {
				branch = "\\->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s\n", branch, name))
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		sb.WriteString(fmt.Sprintf("  Executor: %s\n", e.getExecutorName(failedExecutor)))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))
	}
	return sb.String()
}

func (e *GraphDebugExtension) getExecutorName(exec kinetic.AnyExecutor) string {
	if name, ok := e.nameTag.Find(exec); ok {
		return name
	}
	return fmt.Sprintf("Executor_%p", exec)
}

// SilentHandler discards all log output; useful when a GraphDebugExtension
// is registered in a test but its output isn't wanted.
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool  { return false }
func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler            { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler                 { return h }

// HumanHandler formats GraphDebugExtension's two message kinds (dependency
// errors, flow panics) with line breaks for console reading; anything else
// logged through the same logger falls back to a plain one-liner.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	switch record.Message {
	case "Dependency Resolution Error":
		return h.handleDependencyError(record)
	case "Flow Panic":
		return h.handleFlowPanic(record)
	}
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleDependencyError(record slog.Record) error {
	var executor, errorMsg, operation, scopeKind, dependencyGraph string
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "executor":
			executor = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "operation":
			operation = a.Value.String()
		case "scope":
			scopeKind = a.Value.String()
		case "dependency_graph":
			dependencyGraph = a.Value.String()
		}
		return true
	})

	lines := []string{
		"",
		strings.Repeat("=", 70),
		"[GraphDebug] Dependency Resolution Error",
		strings.Repeat("=", 70),
		fmt.Sprintf("\nFailed Executor: %s", executor),
		fmt.Sprintf("Error: %s", errorMsg),
		fmt.Sprintf("Operation: %s", operation),
	}
	if scopeKind != "" {
		lines = append(lines, fmt.Sprintf("Scope: %s", scopeKind))
	}
	lines = append(lines,
		fmt.Sprintf("\nDependency Graph:%s", dependencyGraph),
		strings.Repeat("=", 70),
		"",
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.writer, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanHandler) handleFlowPanic(record slog.Record) error {
	var panicMsg, stackTrace, flowPath string
	var depth int
	var hasPath bool
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "panic":
			panicMsg = a.Value.String()
		case "stack_trace":
			stackTrace = a.Value.String()
		case "depth":
			depth = int(a.Value.Int64())
		case "flow_path":
			flowPath = a.Value.String()
			hasPath = true
		}
		return true
	})

	lines := []string{
		"",
		strings.Repeat("=", 70),
		"[GraphDebug] Flow Panic",
		strings.Repeat("=", 70),
		fmt.Sprintf("\nPanic: %s", panicMsg),
		fmt.Sprintf("Depth: %d", depth),
	}
	if hasPath {
		lines = append(lines, fmt.Sprintf("Flow Path: %s", flowPath))
	}
	lines = append(lines,
		fmt.Sprintf("\nStack Trace:\n%s", stackTrace),
		strings.Repeat("=", 70),
		"",
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.writer, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
