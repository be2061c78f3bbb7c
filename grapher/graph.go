package grapher

import (
	"math"
	"sort"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultTickWindow is the half-width, in ticks, of the window whose edge
// prices define an edge's base price.
const DefaultTickWindow int64 = 20000

// TokenEdge is a directed trade from one token to another through a pool.
type TokenEdge struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Pool   common.Address `json:"pool"`
	Weight float64        `json:"weight"`
}

// Key returns the edge's ordered token pair.
func (e TokenEdge) Key() NodeKey {
	return NodeKey{From: e.From, To: e.To}
}

// TokenGraph holds token nodes and weighted, directed pool edges.
type TokenGraph struct {
	Nodes []common.Address `json:"nodes"`
	Edges []TokenEdge      `json:"edges"`
}

// EdgeWeight returns -log10(currentPrice / basePrice) for one direction of
// a pool. The second result is false when the weight is undefined: a zero or
// non-finite price, or a non-positive logarithm input.
func EdgeWeight(pool uniswapv3.Pool, r uniswapv3.ReserveState, token0In bool, window int64) (float64, bool) {
	current := calculator.SqrtPriceX96ToPrice(r.SqrtPriceX96, pool.Decimals0, pool.Decimals1, token0In)
	if current == 0 {
		return 0, false
	}
	base := calculator.BasePrice(r.Tick, window, pool.Decimals0, pool.Decimals1, token0In)

	w := -math.Log10(current / base)
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, false
	}
	return w, true
}

// BuildTokenGraph emits up to two directed edges per pool, token0->token1
// then token1->token0. Pools are visited in address order so the result is
// deterministic. Pools without reserves, and directions with an undefined
// weight, contribute no edge.
func BuildTokenGraph(pools []uniswapv3.Pool, reserves uniswapv3.Reserves, window int64) *TokenGraph {
	ordered := make([]uniswapv3.Pool, len(pools))
	copy(ordered, pools)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Address.Cmp(ordered[j].Address) < 0 })

	g := &TokenGraph{}
	seen := make(map[common.Address]struct{})
	addNode := func(t common.Address) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			g.Nodes = append(g.Nodes, t)
		}
	}

	for _, p := range ordered {
		r, ok := reserves[p.Address]
		if !ok || r.SqrtPriceX96 == nil {
			continue
		}
		addNode(p.Token0)
		addNode(p.Token1)

		if w, ok := EdgeWeight(p, r, true, window); ok {
			g.Edges = append(g.Edges, TokenEdge{From: p.Token0, To: p.Token1, Pool: p.Address, Weight: w})
		}
		if w, ok := EdgeWeight(p, r, false, window); ok {
			g.Edges = append(g.Edges, TokenEdge{From: p.Token1, To: p.Token0, Pool: p.Address, Weight: w})
		}
	}
	return g
}
