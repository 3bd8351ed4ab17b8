// Package dag builds validated task dependency graphs and tracks per-run task state.
package dag

import (
	"container/heap"
	"fmt"
	"strings"

	apperrors "coursepipe/pkg/errors"
)

// Edge is a dependency: To runs only after From succeeded.
type Edge struct {
	From string
	To   string
}

// Builder registers named tasks and edges. Nothing is validated until Build.
type Builder struct {
	names []string
	seen  map[string]bool
	edges []Edge
	errs  []string
}

// NewBuilder creates an empty graph builder
func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]bool)}
}

// AddTask registers a task. Registration order breaks ties in the topological order.
func (b *Builder) AddTask(name string) *Builder {
	switch {
	case strings.TrimSpace(name) == "":
		b.errs = append(b.errs, "task name is required")
	case b.seen[name]:
		b.errs = append(b.errs, fmt.Sprintf("duplicate task name: %q", name))
	default:
		b.seen[name] = true
		b.names = append(b.names, name)
	}
	return b
}

// AddEdge declares that to depends on from.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// Chain registers any unknown tasks and links them in sequence.
func (b *Builder) Chain(names ...string) *Builder {
	for i, name := range names {
		if !b.seen[name] {
			b.AddTask(name)
		}
		if i > 0 {
			b.AddEdge(names[i-1], name)
		}
	}
	return b
}

// Build validates the registered tasks and edges and returns an immutable Graph.
//
// Build rejects empty or duplicate names, unknown edge endpoints, self-loops,
// duplicate edges and cycles.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, apperrors.GraphError(b.errs[0])
	}
	if len(b.names) == 0 {
		return nil, apperrors.GraphError("graph has no tasks")
	}

	g := &Graph{
		names:    append([]string(nil), b.names...),
		index:    make(map[string]int, len(b.names)),
		outgoing: make([][]int, len(b.names)),
		incoming: make([][]int, len(b.names)),
	}
	for i, name := range g.names {
		g.index[name] = i
	}

	dup := make(map[[2]int]bool, len(b.edges))
	for _, e := range b.edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		if !okFrom {
			return nil, apperrors.GraphError(fmt.Sprintf("edge references unknown task (from): %q", e.From))
		}
		if !okTo {
			return nil, apperrors.GraphError(fmt.Sprintf("edge references unknown task (to): %q", e.To))
		}
		if from == to {
			return nil, apperrors.GraphError(fmt.Sprintf("self-loop: %q -> %q", e.From, e.To))
		}
		key := [2]int{from, to}
		if dup[key] {
			return nil, apperrors.GraphError(fmt.Sprintf("duplicate edge: %q -> %q", e.From, e.To))
		}
		dup[key] = true
		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
	}

	order := g.kahn()
	if len(order) != len(g.names) {
		return nil, apperrors.GraphError("cycle detected: " + strings.Join(g.findCycle(), " -> "))
	}
	g.order = order

	return g, nil
}

// Graph is a validated, immutable directed acyclic task graph.
// It is safe for concurrent reads.
type Graph struct {
	names    []string
	index    map[string]int
	outgoing [][]int
	incoming [][]int
	order    []int
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.names) }

// Has reports whether name is a task in the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Tasks returns task names in registration order.
func (g *Graph) Tasks() []string {
	return append([]string(nil), g.names...)
}

// TopologicalOrder returns a deterministic topological ordering of task names.
func (g *Graph) TopologicalOrder() []string {
	return g.namesOf(g.order)
}

// Upstream returns the direct dependencies of name.
func (g *Graph) Upstream(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.incoming[i])
}

// Downstream returns the direct dependents of name.
func (g *Graph) Downstream(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.outgoing[i])
}

// Descendants returns every task reachable from name, in topological order.
func (g *Graph) Descendants(name string) []string {
	start, ok := g.index[name]
	if !ok {
		return nil
	}

	reach := make([]bool, len(g.names))
	stack := append([]int(nil), g.outgoing[start]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reach[n] {
			continue
		}
		reach[n] = true
		stack = append(stack, g.outgoing[n]...)
	}

	var out []string
	for _, i := range g.order {
		if reach[i] {
			out = append(out, g.names[i])
		}
	}
	return out
}

// Edges returns every edge, ordered by source then target registration index.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for from, targets := range g.outgoing {
		for _, to := range targets {
			edges = append(edges, Edge{From: g.names[from], To: g.names[to]})
		}
	}
	return edges
}

func (g *Graph) namesOf(indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = g.names[idx]
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// kahn returns a topological order; the ready queue is a min-heap by registration index.
// A result shorter than the task count means the graph has a cycle.
func (g *Graph) kahn() []int {
	indeg := make([]int, len(g.names))
	for i := range g.incoming {
		indeg[i] = len(g.incoming[i])
	}

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(g.names))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as task names, first and last element equal.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.names))
	parent := make([]int, len(g.names))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = []int{v}
				for cur := u; cur != v && cur != -1; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.names {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = g.names[cycle[len(cycle)-1-i]]
	}
	return out
}
