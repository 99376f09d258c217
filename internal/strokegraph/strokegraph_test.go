package strokegraph

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

func maskOf(w, h int, pts ...[2]int) *mask.Binary {
	m := mask.NewBinary(w, h)
	for _, p := range pts {
		m.Set(p[0], p[1], true)
	}
	return m
}

func TestBuildEmpty(t *testing.T) {
	g, ok := Build(mask.NewBinary(4, 4))
	assert.False(t, ok)
	assert.Nil(t, g)
}

func TestBuildBlock(t *testing.T) {
	g, ok := Build(maskOf(3, 3, [2]int{0, 0}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 1}))
	require.True(t, ok)

	assert.Equal(t, [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, g.Points)
	assert.Equal(t, 4, g.Nodes().Len())
	assert.Equal(t, 6, g.EdgeCount())
	assert.InDelta(t, 1, g.WeightedEdge(0, 1).Weight(), 1e-12)
	assert.InDelta(t, math.Sqrt2, g.WeightedEdge(0, 3).Weight(), 1e-12)
	assert.InDelta(t, math.Sqrt2, g.WeightedEdge(1, 2).Weight(), 1e-12)
}

func TestBuildSkipsDistantPixels(t *testing.T) {
	g, ok := Build(maskOf(5, 5, [2]int{0, 0}, [2]int{2, 0}, [2]int{0, 2}))
	require.True(t, ok)
	assert.Equal(t, 3, g.Nodes().Len())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestDecomposeBlockDropsDiagonals(t *testing.T) {
	g, _ := Build(maskOf(3, 3, [2]int{0, 0}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 1}))
	trees, err := Decompose(g, 1)
	require.NoError(t, err)
	require.Len(t, trees, 1)

	tree := trees[0]
	assert.True(t, IsTree(tree))
	assert.Equal(t, 3, tree.EdgeCount())
	edges := tree.WeightedEdges()
	for edges.Next() {
		assert.InDelta(t, 1, edges.WeightedEdge().Weight(), 1e-12, "diagonal edge survived")
	}
}

func TestDecomposeDeterministic(t *testing.T) {
	m := mask.NewBinary(6, 6)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	first, err := Decompose(mustBuild(t, m), 1)
	require.NoError(t, err)
	second, err := Decompose(mustBuild(t, m), 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	a, b := first[0].WeightedEdges(), second[0].WeightedEdges()
	var ea, eb [][2]int64
	for a.Next() {
		ea = append(ea, [2]int64{a.WeightedEdge().From().ID(), a.WeightedEdge().To().ID()})
	}
	for b.Next() {
		eb = append(eb, [2]int64{b.WeightedEdge().From().ID(), b.WeightedEdge().To().ID()})
	}
	assert.ElementsMatch(t, ea, eb)
}

func TestDecomposePrunesSmallComponents(t *testing.T) {
	m := maskOf(20, 5,
		[2]int{0, 0}, [2]int{1, 0},
		[2]int{5, 2}, [2]int{6, 2}, [2]int{7, 2}, [2]int{8, 2}, [2]int{9, 2},
	)
	trees, err := Decompose(mustBuild(t, m), 4)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, 5, trees[0].Nodes().Len())
}

func TestDecomposeRandomMasks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		m := mask.NewBinary(16, 12)
		for i := range m.Pix {
			m.Pix[i] = rng.Float64() < 0.45
		}
		g, ok := Build(m)
		if !ok {
			continue
		}
		const minNodes = 3
		trees, err := Decompose(g, minNodes)
		require.NoError(t, err)
		for _, tree := range trees {
			assert.True(t, IsTree(tree), "trial %d: component is not a tree", trial)
			assert.GreaterOrEqual(t, tree.Nodes().Len(), minNodes)
			nodes := tree.Nodes()
			for nodes.Next() {
				assert.NotNil(t, g.Node(nodes.Node().ID()), "trial %d: node outside input", trial)
			}
		}
	}
}

func TestDecomposeNilGraph(t *testing.T) {
	_, err := Decompose(nil, 1)
	assert.True(t, errors.Is(err, fault.ErrInvalidInput))
}

func TestLongestPathChain(t *testing.T) {
	const n = 10
	var pts [][2]int
	for x := 0; x < n; x++ {
		pts = append(pts, [2]int{x, 1})
	}
	trees, err := Decompose(mustBuild(t, maskOf(n, 3, pts...)), 1)
	require.NoError(t, err)
	require.Len(t, trees, 1)

	got, err := LongestPath(trees[0])
	require.NoError(t, err)
	require.Len(t, got, n)
	for i := 1; i < n; i++ {
		assert.Equal(t, 1, abs(got[i][0]-got[i-1][0]), "step %d not adjacent", i)
	}
	ends := []int{got[0][0], got[n-1][0]}
	assert.ElementsMatch(t, []int{0, n - 1}, ends)
}

func TestLongestPathBranching(t *testing.T) {
	// A T shape: a long horizontal bar with a short stem below its middle.
	var pts [][2]int
	for x := 0; x < 9; x++ {
		pts = append(pts, [2]int{x, 0})
	}
	pts = append(pts, [2]int{4, 1}, [2]int{4, 2})
	trees, err := Decompose(mustBuild(t, maskOf(9, 3, pts...)), 1)
	require.NoError(t, err)
	require.Len(t, trees, 1)

	got, err := LongestPath(trees[0])
	require.NoError(t, err)
	assert.Len(t, got, 9)
	for _, p := range got {
		assert.Equal(t, 0, p[1], "path left the bar at %v", p)
	}
}

func TestLongestPathRejectsCycles(t *testing.T) {
	g, _ := Build(maskOf(3, 3, [2]int{0, 0}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 1}))
	_, err := LongestPath(g)
	assert.True(t, errors.Is(err, fault.ErrContract), "err = %v", err)

	_, err = LongestPath(nil)
	assert.True(t, errors.Is(err, fault.ErrInvalidInput))

	forest := &Graph{WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1))}
	forest.AddNode(simple.Node(0))
	forest.AddNode(simple.Node(1))
	_, err = LongestPath(forest)
	assert.True(t, errors.Is(err, fault.ErrContract), "disconnected: err = %v", err)
}

func mustBuild(t *testing.T, m *mask.Binary) *Graph {
	t.Helper()
	g, ok := Build(m)
	require.True(t, ok)
	return g
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
