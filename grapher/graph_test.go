package grapher

import (
	"math"
	"math/big"
	"testing"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")

	poolAB  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolBC  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	poolAC  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	poolAB2 = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

func newPool(addr, t0, t1 common.Address) uniswapv3.Pool {
	return uniswapv3.Pool{Address: addr, Version: uniswapv3.UniswapV3, Token0: t0, Token1: t1, Decimals0: 18, Decimals1: 18, Fee: 30}
}

// atParity prices token0 = token1 at tick 0.
func atParity() uniswapv3.ReserveState {
	return uniswapv3.ReserveState{
		SqrtPriceX96: new(big.Int).Set(calculator.Q96),
		Liquidity:    big.NewInt(1e18),
		Tick:         0,
		Fee:          30,
	}
}

func triangle() ([]uniswapv3.Pool, uniswapv3.Reserves) {
	// deliberately out of address order
	pools := []uniswapv3.Pool{
		newPool(poolAC, tokenA, tokenC),
		newPool(poolAB, tokenA, tokenB),
		newPool(poolBC, tokenB, tokenC),
	}
	reserves := uniswapv3.Reserves{poolAB: atParity(), poolBC: atParity(), poolAC: atParity()}
	return pools, reserves
}

func TestEdgeWeight(t *testing.T) {
	p := newPool(poolAB, tokenA, tokenB)

	t.Run("matches -log10(current/base)", func(t *testing.T) {
		r := atParity()
		w, ok := EdgeWeight(p, r, true, DefaultTickWindow)
		require.True(t, ok)

		base := calculator.BasePrice(0, DefaultTickWindow, 18, 18, true)
		assert.InDelta(t, -math.Log10(1/base), w, 1e-12)
		assert.Greater(t, w, 0.0, "a price sitting on its tick is below the window midpoint")
	})

	t.Run("a higher current price lowers the weight", func(t *testing.T) {
		r := atParity()
		r.SqrtPriceX96 = new(big.Int).Mul(calculator.Q96, big.NewInt(2))

		rich, ok := EdgeWeight(p, r, true, DefaultTickWindow)
		require.True(t, ok)
		flat, _ := EdgeWeight(p, atParity(), true, DefaultTickWindow)
		assert.Less(t, rich, flat)

		rev, ok := EdgeWeight(p, r, false, DefaultTickWindow)
		require.True(t, ok)
		assert.Greater(t, rev, flat)
	})

	t.Run("zero price is undefined", func(t *testing.T) {
		r := atParity()
		r.SqrtPriceX96 = new(big.Int)
		_, ok := EdgeWeight(p, r, true, DefaultTickWindow)
		assert.False(t, ok)
		_, ok = EdgeWeight(p, r, false, DefaultTickWindow)
		assert.False(t, ok)
	})
}

func TestBuildTokenGraph(t *testing.T) {
	t.Run("two edges per pool in address order", func(t *testing.T) {
		pools, reserves := triangle()
		g := BuildTokenGraph(pools, reserves, DefaultTickWindow)

		require.Len(t, g.Edges, 6)
		want := []NodeKey{
			{tokenA, tokenB}, {tokenB, tokenA},
			{tokenB, tokenC}, {tokenC, tokenB},
			{tokenA, tokenC}, {tokenC, tokenA},
		}
		for i, e := range g.Edges {
			assert.Equal(t, want[i], e.Key(), "edge %d", i)
		}
		assert.Equal(t, poolAB, g.Edges[0].Pool)
		assert.Equal(t, poolAC, g.Edges[5].Pool)
		assert.ElementsMatch(t, []common.Address{tokenA, tokenB, tokenC}, g.Nodes)
	})

	t.Run("missing reserves contribute nothing", func(t *testing.T) {
		pools, reserves := triangle()
		delete(reserves, poolBC)
		g := BuildTokenGraph(pools, reserves, DefaultTickWindow)

		assert.Len(t, g.Edges, 4)
		for _, e := range g.Edges {
			assert.NotEqual(t, poolBC, e.Pool)
		}
	})

	t.Run("undefined weights are dropped", func(t *testing.T) {
		pools, reserves := triangle()
		r := reserves[poolAB]
		r.SqrtPriceX96 = new(big.Int)
		reserves[poolAB] = r
		g := BuildTokenGraph(pools, reserves, DefaultTickWindow)

		assert.Len(t, g.Edges, 4)
	})

	t.Run("deterministic", func(t *testing.T) {
		pools, reserves := triangle()
		first := BuildTokenGraph(pools, reserves, DefaultTickWindow)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, BuildTokenGraph(pools, reserves, DefaultTickWindow))
		}
	})
}

func TestBuildLineGraph(t *testing.T) {
	pools, reserves := triangle()
	lg := BuildLineGraph(BuildTokenGraph(pools, reserves, DefaultTickWindow))

	t.Run("one node per directed pair", func(t *testing.T) {
		assert.Len(t, lg.Nodes, 6)
		e, ok := lg.Node(NodeKey{tokenB, tokenC})
		require.True(t, ok)
		assert.Equal(t, poolBC, e.Pool)
	})

	t.Run("adjacency rule", func(t *testing.T) {
		require.NotEmpty(t, lg.Edges)
		for _, e := range lg.Edges {
			assert.Equal(t, e.From.To, e.To.From, "edges chain through a shared token")
			assert.NotEqual(t, e.From.From, e.To.To, "no immediate round trip")
			to, _ := lg.Node(e.To)
			assert.Equal(t, to.Weight, e.Weight, "edge carries the target's weight")
		}
	})

	t.Run("mirrors are removed", func(t *testing.T) {
		assert.Equal(t, []LineEdge{
			{From: NodeKey{tokenA, tokenB}, To: NodeKey{tokenB, tokenC}},
			{From: NodeKey{tokenB, tokenA}, To: NodeKey{tokenA, tokenC}},
			{From: NodeKey{tokenB, tokenC}, To: NodeKey{tokenC, tokenA}},
		}, stripWeights(lg.Edges))

		seen := make(map[LineEdge]bool)
		for _, e := range stripWeights(lg.Edges) {
			assert.False(t, seen[e.Mirror()], "%s -> %s kept in both orientations", e.From, e.To)
			seen[e] = true
		}
	})

	t.Run("parallel pools keep the cheapest edge", func(t *testing.T) {
		pools, reserves := triangle()
		pools = append(pools, newPool(poolAB2, tokenA, tokenB))
		rich := atParity()
		rich.SqrtPriceX96 = new(big.Int).Mul(calculator.Q96, big.NewInt(2))
		reserves[poolAB2] = rich

		lg := BuildLineGraph(BuildTokenGraph(pools, reserves, DefaultTickWindow))
		assert.Len(t, lg.Nodes, 6)

		ab, _ := lg.Node(NodeKey{tokenA, tokenB})
		ba, _ := lg.Node(NodeKey{tokenB, tokenA})
		assert.Equal(t, poolAB2, ab.Pool, "token0 is dearer in the second pool")
		assert.Equal(t, poolAB, ba.Pool)
	})
}

func TestDedup(t *testing.T) {
	ab := NodeKey{tokenA, tokenB}
	bc := NodeKey{tokenB, tokenC}

	forward := LineEdge{From: ab, To: bc, Weight: 1}
	mirror := forward.Mirror()
	assert.Equal(t, LineEdge{From: bc.Reverse(), To: ab.Reverse()}, mirror)

	assert.Equal(t, []LineEdge{forward}, Dedup([]LineEdge{forward, mirror}))
	assert.Equal(t, []LineEdge{mirror}, Dedup([]LineEdge{mirror, forward}))
	assert.Empty(t, Dedup(nil))
}

func TestNodeKey_String(t *testing.T) {
	k := NodeKey{tokenA, tokenB}
	assert.Equal(t, tokenA.Hex()+"-"+tokenB.Hex(), k.String())
	assert.Equal(t, NodeKey{tokenB, tokenA}, k.Reverse())
}

func stripWeights(edges []LineEdge) []LineEdge {
	out := make([]LineEdge, len(edges))
	for i, e := range edges {
		out[i] = LineEdge{From: e.From, To: e.To}
	}
	return out
}
