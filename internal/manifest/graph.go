package manifest

import (
	"container/heap"
	"fmt"
)

// Edge is a declared parent → child dependency.
type Edge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// Graph is the parsed, immutable stage graph. It is safe for concurrent use
// by any number of sessions once constructed.
type Graph struct {
	// Header is the manifest's descriptive metadata.
	Header Header
	// SchemaVersion is the manifest schema version, if declared.
	SchemaVersion string

	nodes     map[string]*StageNode
	order     []string
	index     map[string]int
	children  map[string][]string
	topo      []string
	positions map[string]NodeInfo
	buildErrs []error
}

// NewGraph builds a graph from stages in manifest order. Duplicate IDs keep
// their first definition and are reported by Validate.
func NewGraph(header Header, stages []StageNode) *Graph {
	return newGraph(header, stages, nil)
}

func newGraph(header Header, stages []StageNode, parseErrs []error) *Graph {
	g := &Graph{
		Header:    header,
		nodes:     make(map[string]*StageNode, len(stages)),
		order:     make([]string, 0, len(stages)),
		index:     make(map[string]int, len(stages)),
		children:  make(map[string][]string),
		positions: make(map[string]NodeInfo),
		buildErrs: append([]error(nil), parseErrs...),
	}
	for i := range stages {
		stage := stages[i]
		if _, exists := g.nodes[stage.ID]; exists {
			g.buildErrs = append(g.buildErrs, &DuplicateStageError{
				StageID: stage.ID, FirstIndex: g.index[stage.ID], SecondIndex: i,
			})
			continue
		}
		stage.Previous = cloneStrings(stage.Previous)
		stage.Produces = cloneStrings(stage.Produces)
		stage.Commands = cloneStrings(stage.Commands)
		g.index[stage.ID] = len(g.order)
		g.order = append(g.order, stage.ID)
		g.nodes[stage.ID] = &stage
	}
	for _, id := range g.order {
		for _, parent := range g.nodes[id].Previous {
			if _, ok := g.nodes[parent]; ok {
				g.children[parent] = append(g.children[parent], id)
			}
		}
	}
	g.topo = g.computeTopoOrder()
	return g
}

// Node returns the stage with the given ID.
func (g *Graph) Node(id string) (*StageNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// MustNode returns the stage with the given ID or an ErrUnknownStage error.
func (g *Graph) MustNode(id string) (*StageNode, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}
	return n, nil
}

// Has reports whether id names a stage in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.order)
}

// Order returns stage IDs in manifest order.
func (g *Graph) Order() []string {
	return cloneStrings(g.order)
}

// Nodes returns stages in manifest order.
func (g *Graph) Nodes() []*StageNode {
	out := make([]*StageNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Index returns the manifest position of id, or -1.
func (g *Graph) Index(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	return -1
}

// Roots returns the IDs of stages without parents, in manifest order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if g.nodes[id].IsRoot() {
			roots = append(roots, id)
		}
	}
	return roots
}

// Children returns the stages that list id as a parent, in manifest order.
func (g *Graph) Children(id string) []string {
	return cloneStrings(g.children[id])
}

// Edges returns every declared edge whose endpoints both exist.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, id := range g.order {
		for _, parent := range g.nodes[id].Previous {
			if _, ok := g.nodes[parent]; ok {
				edges = append(edges, Edge{Parent: parent, Child: id})
			}
		}
	}
	return edges
}

// Ancestors returns every transitive parent of id, nearest first.
func (g *Graph) Ancestors(id string) []string {
	seen := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for _, parent := range node.Previous {
			if seen[parent] || !g.Has(parent) {
				continue
			}
			seen[parent] = true
			out = append(out, parent)
			queue = append(queue, parent)
		}
	}
	return out
}

// TopoOrder returns stage IDs so that every stage follows its parents. Ties
// are broken by manifest order. Stages caught in a cycle are appended in
// manifest order so callers always see every stage exactly once.
func (g *Graph) TopoOrder() []string {
	return cloneStrings(g.topo)
}

// Position returns the source location recorded for a stage, if any.
func (g *Graph) Position(id string) NodeInfo {
	return g.positions[id]
}

// indexMinHeap orders manifest indices ascending.
type indexMinHeap []int

func (h indexMinHeap) Len() int           { return len(h) }
func (h indexMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// kahn runs Kahn's algorithm over existing edges and returns the dequeued
// stage IDs. A result shorter than the stage count means a cycle exists.
func (g *Graph) kahn() []string {
	indeg := make(map[string]int, len(g.order))
	for _, id := range g.order {
		for _, parent := range g.nodes[id].Previous {
			if _, ok := g.nodes[parent]; ok {
				indeg[id]++
			}
		}
	}

	ready := &indexMinHeap{}
	heap.Init(ready)
	for i, id := range g.order {
		if indeg[id] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(g.order))
	for ready.Len() > 0 {
		id := g.order[heap.Pop(ready).(int)]
		out = append(out, id)
		for _, child := range g.children[id] {
			indeg[child]--
			if indeg[child] == 0 {
				heap.Push(ready, g.index[child])
			}
		}
	}
	return out
}

func (g *Graph) computeTopoOrder() []string {
	order := g.kahn()
	if len(order) == len(g.order) {
		return order
	}
	placed := make(map[string]bool, len(order))
	for _, id := range order {
		placed[id] = true
	}
	for _, id := range g.order {
		if !placed[id] {
			order = append(order, id)
		}
	}
	return order
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
