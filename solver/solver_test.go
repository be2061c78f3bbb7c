package solver

import (
	"math"
	"testing"

	"github.com/defistate/defistate-arb-go/grapher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	pool1  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	pool2  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	pool3  = common.HexToAddress("0x0000000000000000000000000000000000000003")

	ab = grapher.NodeKey{From: tokenA, To: tokenB}
	bc = grapher.NodeKey{From: tokenB, To: tokenC}
	ca = grapher.NodeKey{From: tokenC, To: tokenA}
)

// cyclicGraph lists the A->B->C->A direction first so that, after mirror
// removal, the line graph keeps the closed loop AB -> BC -> CA -> AB.
func cyclicGraph(forward, backward float64) *grapher.LineGraph {
	tg := &grapher.TokenGraph{
		Nodes: []common.Address{tokenA, tokenB, tokenC},
		Edges: []grapher.TokenEdge{
			{From: tokenA, To: tokenB, Pool: pool1, Weight: forward},
			{From: tokenB, To: tokenC, Pool: pool2, Weight: forward},
			{From: tokenC, To: tokenA, Pool: pool3, Weight: forward},
			{From: tokenB, To: tokenA, Pool: pool1, Weight: backward},
			{From: tokenC, To: tokenB, Pool: pool2, Weight: backward},
			{From: tokenA, To: tokenC, Pool: pool3, Weight: backward},
		},
	}
	return grapher.BuildLineGraph(tg)
}

func TestSolve_Distances(t *testing.T) {
	lg := cyclicGraph(0.5, 0.7)
	require.Len(t, lg.Edges, 3)

	res, err := Solve(lg, ab)
	require.NoError(t, err)

	assert.Equal(t, ab, res.Source)
	assert.Equal(t, 0.5, res.SourceWeight)
	assert.Equal(t, 0.0, res.Distances[ab])
	assert.InDelta(t, 0.5, res.Distances[bc], 1e-12)
	assert.InDelta(t, 1.0, res.Distances[ca], 1e-12)
	assert.True(t, math.IsInf(res.Distances[grapher.NodeKey{From: tokenB, To: tokenA}], 1))

	assert.Equal(t, []grapher.NodeKey{bc, ca}, res.Paths[ca])
	assert.Equal(t, []grapher.NodeKey{bc, ca}, res.TokenPaths[tokenA])
	assert.InDelta(t, 1.0, res.TokenDistances[tokenA], 1e-12)
	assert.Equal(t, 0.0, res.TokenDistances[tokenB], "the source edge-node itself ends at B")
	assert.Empty(t, res.TokenPaths[tokenB])

	cum, ok := res.Cumulative(tokenA)
	require.True(t, ok)
	assert.InDelta(t, 1.5, cum, 1e-12)
	cum, ok = res.Cumulative(tokenB)
	require.True(t, ok)
	assert.InDelta(t, 0.5, cum, 1e-12)
	_, ok = res.Cumulative(common.HexToAddress("0xdead"))
	assert.False(t, ok)

	assert.False(t, res.NegativeCycle)
	assert.Less(t, res.Iterations, len(lg.Nodes), "converged rounds stop early")
}

func TestSolve_Idempotent(t *testing.T) {
	lg := cyclicGraph(0.5, 0.7)
	first, err := Solve(lg, ab)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Solve(lg, ab)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSolve_UnknownSource(t *testing.T) {
	lg := cyclicGraph(0.5, 0.7)
	_, err := Solve(lg, grapher.NodeKey{From: tokenA, To: common.HexToAddress("0xdead")})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestSolve_NegativeCycle(t *testing.T) {
	lg := cyclicGraph(-1, 0.7)

	res, err := Solve(lg, ab)
	require.NoError(t, err)

	assert.True(t, res.NegativeCycle)
	assert.ElementsMatch(t, []grapher.NodeKey{ab, bc, ca}, res.CycleNodes)
	assert.Equal(t, len(lg.Nodes), res.Iterations, "a negative cycle never converges")

	require.Less(t, res.Distances[ab], 0.0)
	require.Contains(t, res.TokenDistances, tokenB)
	assert.Equal(t, res.Distances[ab], res.TokenDistances[tokenB])
	assert.Equal(t, res.Paths[ab], res.TokenPaths[tokenB])
}

func TestSolve_StrictRelaxation(t *testing.T) {
	// two equal-weight routes from A-B to token D: the first one found stays
	tokenD := common.HexToAddress("0x000000000000000000000000000000000000000d")
	tg := &grapher.TokenGraph{
		Edges: []grapher.TokenEdge{
			{From: tokenA, To: tokenB, Pool: pool1, Weight: 0.1},
			{From: tokenB, To: tokenC, Pool: pool2, Weight: 0.2},
			{From: tokenB, To: tokenD, Pool: pool3, Weight: 0.4},
			{From: tokenC, To: tokenD, Pool: common.HexToAddress("0x04"), Weight: 0.2},
		},
	}
	lg := grapher.BuildLineGraph(tg)

	res, err := Solve(lg, ab)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.TokenDistances[tokenD], 1e-12)
	assert.Equal(t, []grapher.NodeKey{{From: tokenB, To: tokenD}}, res.TokenPaths[tokenD])
}
