// Package strokegraph turns skeleton pixels into stroke paths.
//
// Skeleton pixels become nodes of a weighted undirected graph joined to their
// 8-neighbours. The graph is split into components, each made acyclic by
// dropping its heaviest cycle edges, and the diameter path of every surviving
// tree becomes one stroke.
package strokegraph

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/banshee-data/interactive.eval/internal/mask"
)

// Graph is a proximity graph over skeleton pixels. Node n sits at Points[n].
type Graph struct {
	*simple.WeightedUndirectedGraph
	Points [][2]int
}

// forward lists the neighbour offsets (dx, dy) that come after a pixel in
// row-major order, so every pair is visited once.
var forward = [][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// Build connects every pair of skeleton pixels within distance √2, weighted
// by their Euclidean distance. Points are [x, y] in row-major order. It
// returns false when the skeleton is empty.
func Build(skel *mask.Binary) (*Graph, bool) {
	ids := make([]int64, len(skel.Pix))
	var points [][2]int
	for i, v := range skel.Pix {
		ids[i] = -1
		if v {
			ids[i] = int64(len(points))
			points = append(points, [2]int{i % skel.Width, i / skel.Width})
		}
	}
	if len(points) == 0 {
		return nil, false
	}

	g := &Graph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		Points:                  points,
	}
	for id := range points {
		g.AddNode(simple.Node(id))
	}
	for id, p := range points {
		for _, d := range forward {
			x, y := p[0]+d[0], p[1]+d[1]
			if x < 0 || y < 0 || x >= skel.Width || y >= skel.Height {
				continue
			}
			nb := ids[y*skel.Width+x]
			if nb < 0 {
				continue
			}
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(id),
				T: simple.Node(nb),
				W: math.Hypot(float64(d[0]), float64(d[1])),
			})
		}
	}
	return g, true
}

// subgraph copies nodes and the edges among them.
func (g *Graph) subgraph(nodes []graph.Node) *Graph {
	sub := &Graph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		Points:                  g.Points,
	}
	for _, n := range nodes {
		sub.AddNode(simple.Node(n.ID()))
	}
	for _, n := range nodes {
		it := g.From(n.ID())
		for it.Next() {
			m := it.Node()
			if m.ID() <= n.ID() || sub.Node(m.ID()) == nil {
				continue
			}
			sub.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(n.ID()),
				T: simple.Node(m.ID()),
				W: g.WeightedEdge(n.ID(), m.ID()).Weight(),
			})
		}
	}
	return sub
}

// NodeIDs returns the node ids in ascending order.
func (g *Graph) NodeIDs() []int64 {
	nodes := graph.NodesOf(g.Nodes())
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	slices.Sort(ids)
	return ids
}

// neighbours returns the neighbour ids of id in ascending order.
func (g *Graph) neighbours(id int64) []int64 {
	var ids []int64
	it := g.From(id)
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	slices.Sort(ids)
	return ids
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return g.Edges().Len()
}
