package strokegraph

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Decompose splits g into connected components, removes cycles from each by
// repeatedly deleting the heaviest edge of a cycle, and drops trees with
// fewer than minNbNodes nodes. Trees come back ordered by smallest node id.
//
// Cycles are found by a depth-first search that starts at the smallest node
// and visits neighbours in ascending id order; ties on the heaviest edge go
// to the first one along the cycle, so the result is deterministic.
func Decompose(g *Graph, minNbNodes int) ([]*Graph, error) {
	if g == nil || g.WeightedUndirectedGraph == nil {
		return nil, fault.Errorf(fault.ErrInvalidInput, "decompose needs a graph")
	}
	comps := topo.ConnectedComponents(g)
	for _, c := range comps {
		slices.SortFunc(c, func(a, b graph.Node) int { return cmp.Compare(a.ID(), b.ID()) })
	}
	slices.SortFunc(comps, func(a, b []graph.Node) int { return cmp.Compare(a[0].ID(), b[0].ID()) })

	var trees []*Graph
	for _, c := range comps {
		if len(c) < minNbNodes {
			continue
		}
		sub := g.subgraph(c)
		for budget := sub.EdgeCount(); ; budget-- {
			cycle := findCycle(sub)
			if cycle == nil {
				break
			}
			if budget <= 0 {
				return nil, fault.Errorf(fault.ErrContract, "component at node %d stays cyclic", c[0].ID())
			}
			u, v := heaviest(sub, cycle)
			sub.RemoveEdge(u, v)
		}
		if !IsTree(sub) {
			return nil, fault.Errorf(fault.ErrContract, "component at node %d is not a tree after removing cycles", c[0].ID())
		}
		trees = append(trees, sub)
	}
	return trees, nil
}

// findCycle returns the nodes of one cycle in traversal order, or nil when
// g is acyclic. Consecutive nodes, and the last and first, are adjacent.
func findCycle(g *Graph) []int64 {
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[int64]int)
	var stack []int64
	pos := make(map[int64]int)

	var visit func(u, parent int64) []int64
	visit = func(u, parent int64) []int64 {
		state[u] = active
		pos[u] = len(stack)
		stack = append(stack, u)
		for _, v := range g.neighbours(u) {
			if v == parent {
				continue
			}
			switch state[v] {
			case active:
				return slices.Clone(stack[pos[v]:])
			case unvisited:
				if c := visit(v, u); c != nil {
					return c
				}
			}
		}
		state[u] = finished
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, id := range g.NodeIDs() {
		if state[id] != unvisited {
			continue
		}
		if c := visit(id, -1); c != nil {
			return c
		}
	}
	return nil
}

// heaviest returns the first maximum-weight edge walking around cycle.
func heaviest(g *Graph, cycle []int64) (int64, int64) {
	bu, bv := cycle[0], cycle[1]
	best := -1.0
	for i := range cycle {
		u, v := cycle[i], cycle[(i+1)%len(cycle)]
		if w := g.WeightedEdge(u, v).Weight(); w > best {
			best, bu, bv = w, u, v
		}
	}
	return bu, bv
}

// IsTree reports whether g is connected with exactly one edge fewer than nodes.
func IsTree(g *Graph) bool {
	n := g.Nodes().Len()
	if n == 0 {
		return false
	}
	return g.EdgeCount() == n-1 && len(topo.ConnectedComponents(g)) == 1
}

// LongestPath returns the pixel coordinates along the diameter path of tree.
// The search starts at the smallest node; distance ties go to the smaller id.
func LongestPath(tree *Graph) ([][2]int, error) {
	if tree == nil || tree.WeightedUndirectedGraph == nil {
		return nil, fault.Errorf(fault.ErrInvalidInput, "longest path needs a graph")
	}
	if !IsTree(tree) {
		return nil, fault.Errorf(fault.ErrContract, "longest path needs a tree")
	}
	start := tree.NodeIDs()[0]
	from := farthest(tree, start)
	to := farthest(tree, from)

	shortest := path.DijkstraFrom(tree.Node(from), tree)
	nodes, _ := shortest.To(to)
	points := make([][2]int, len(nodes))
	for i, n := range nodes {
		points[i] = tree.Points[n.ID()]
	}
	return points, nil
}

// farthest returns the node with the most hops from start.
func farthest(g *Graph, start int64) int64 {
	best, bestDepth := start, 0
	var bf traverse.BreadthFirst
	bf.Walk(g, g.Node(start), func(n graph.Node, d int) bool {
		if d > bestDepth || (d == bestDepth && n.ID() < best) {
			best, bestDepth = n.ID(), d
		}
		return false
	})
	return best
}
