package berth

import (
	"sort"
	"strings"
)

// Graph is a resolved, frozen set of bindings. It is immutable once
// returned by Resolve and safe for concurrent reads.
type Graph struct {
	parent   *Graph
	bindings []*Binding // registration order
	index    map[keyID]*Binding
	order    []*Binding // dependency-first
	position map[keyID]int
	layout   *Layout
}

// Parent returns the ancestor graph, or nil for a root graph.
func (g *Graph) Parent() *Graph { return g.parent }

// Len returns the number of local bindings.
func (g *Graph) Len() int { return len(g.bindings) }

// Slots returns the number of arena slots the graph reserved.
func (g *Graph) Slots() int { return g.layout.Size() }

// Bindings returns the local bindings in registration order.
func (g *Graph) Bindings() []*Binding {
	out := make([]*Binding, len(g.bindings))
	copy(out, g.bindings)

	return out
}

// Order returns the local bindings with every binding after its eager
// dependencies. Bindings without dependencies keep registration order.
func (g *Graph) Order() []*Binding {
	out := make([]*Binding, len(g.order))
	copy(out, g.order)

	return out
}

// Lookup finds a local binding.
func (g *Graph) Lookup(key Key) (*Binding, bool) {
	b, ok := g.index[key.id()]

	return b, ok
}

// Find looks key up locally, then in each ancestor, nearest first. depth is
// the number of parent hops to the graph that binds it.
func (g *Graph) Find(key Key) (b *Binding, depth int, ok bool) {
	for cur := g; cur != nil; cur = cur.parent {
		if b, ok := cur.index[key.id()]; ok {
			return b, depth, true
		}

		depth++
	}

	return nil, 0, false
}

// Position returns the binding's index in Order, or -1.
func (g *Graph) Position(key Key) int {
	if p, ok := g.position[key.id()]; ok {
		return p
	}

	return -1
}

// eagerTargets returns the local nodes b must wait for: non-lazy resolved
// dependencies in this graph plus the declaring binding.
func eagerTargets(b *Binding) []*Binding {
	var out []*Binding

	if b.declaring != nil {
		out = append(out, b.declaring)
	}

	for _, e := range b.deps {
		if e.Target == nil || e.Lazy || e.Depth != 0 {
			continue
		}

		out = append(out, e.Target)
	}

	return out
}

const (
	unvisited = iota
	visiting
	visited
)

// topoSort returns nodes dependency-first, walking them in registration
// order, together with every distinct cycle among them. Cycles come from a
// second walk over nodes and edges sorted by key, so the set reported depends
// only on the graph and not on registration order.
func topoSort(nodes []*Binding) ([]*Binding, [][]*Binding) {
	result, cycles := walk(nodes, eagerTargets)
	if len(cycles) == 0 {
		return result, nil
	}

	_, cycles = walk(byKey(nodes), func(b *Binding) []*Binding {
		return byKey(eagerTargets(b))
	})

	return result, cycles
}

// walk is a depth-first post-order traversal. Each cycle is rotated to
// start at its smallest key.
func walk(nodes []*Binding, targets func(*Binding) []*Binding) ([]*Binding, [][]*Binding) {
	state := make([]int, len(nodes))
	result := make([]*Binding, 0, len(nodes))
	stack := make([]*Binding, 0, len(nodes))
	seen := make(map[string]bool)

	var cycles [][]*Binding

	var visit func(n *Binding)
	visit = func(n *Binding) {
		switch state[n.index] {
		case visited:
			return
		case visiting:
			cycle := canonicalCycle(cycleFrom(stack, n))
			id := cycleID(cycle)

			if !seen[id] {
				seen[id] = true
				cycles = append(cycles, cycle)
			}

			return
		}

		state[n.index] = visiting
		stack = append(stack, n)

		for _, dep := range targets(n) {
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		state[n.index] = visited
		result = append(result, n)
	}

	for _, n := range nodes {
		visit(n)
	}

	return result, cycles
}

func byKey(nodes []*Binding) []*Binding {
	out := make([]*Binding, len(nodes))
	copy(out, nodes)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].key.rank() < out[j].key.rank()
	})

	return out
}

func cycleFrom(stack []*Binding, n *Binding) []*Binding {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == n {
			out := make([]*Binding, len(stack)-i)
			copy(out, stack[i:])

			return out
		}
	}

	return []*Binding{n}
}

// canonicalCycle rotates an open cycle to its smallest key and closes it.
func canonicalCycle(open []*Binding) []*Binding {
	start := 0
	for i, b := range open {
		if b.key.rank() < open[start].key.rank() {
			start = i
		}
	}

	out := make([]*Binding, 0, len(open)+1)
	out = append(out, open[start:]...)
	out = append(out, open[:start]...)

	return append(out, out[0])
}

func cycleID(cycle []*Binding) string {
	parts := make([]string, len(cycle))
	for i, b := range cycle {
		parts[i] = b.key.String()
	}

	return strings.Join(parts, "->")
}
