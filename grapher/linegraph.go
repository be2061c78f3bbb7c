package grapher

import (
	"github.com/ethereum/go-ethereum/common"
)

// NodeKey identifies a line-graph node: an ordered token pair.
type NodeKey struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
}

// String renders the key as "from-to".
func (k NodeKey) String() string {
	return k.From.Hex() + "-" + k.To.Hex()
}

// Reverse returns the opposite direction of the same pair.
func (k NodeKey) Reverse() NodeKey {
	return NodeKey{From: k.To, To: k.From}
}

// LineEdge chains two token edges: trading along From, then along To.
// Its weight is the weight of To.
type LineEdge struct {
	From   NodeKey `json:"from"`
	To     NodeKey `json:"to"`
	Weight float64 `json:"weight"`
}

// Mirror returns the edge that trades the same two pools in the opposite order.
func (e LineEdge) Mirror() LineEdge {
	return LineEdge{From: e.To.Reverse(), To: e.From.Reverse()}
}

// LineGraph has one node per token-graph edge and an edge wherever two token
// edges chain without immediately undoing each other.
type LineGraph struct {
	Nodes []NodeKey  `json:"nodes"`
	Edges []LineEdge `json:"edges"`
	nodes map[NodeKey]TokenEdge
}

// Node returns the token edge a node stands for.
func (lg *LineGraph) Node(k NodeKey) (TokenEdge, bool) {
	e, ok := lg.nodes[k]
	return e, ok
}

// BuildLineGraph converts a token graph to its line graph and removes
// mirrored edges with Dedup.
//
// When several pools trade the same ordered pair, the node keeps the edge
// with the lowest weight.
func BuildLineGraph(g *TokenGraph) *LineGraph {
	lg := &LineGraph{nodes: make(map[NodeKey]TokenEdge, len(g.Edges))}
	for _, e := range g.Edges {
		k := e.Key()
		prev, exists := lg.nodes[k]
		if !exists {
			lg.Nodes = append(lg.Nodes, k)
		}
		if !exists || e.Weight < prev.Weight {
			lg.nodes[k] = e
		}
	}

	var edges []LineEdge
	for _, a := range lg.Nodes {
		for _, b := range lg.Nodes {
			if a.To == b.From && a.From != b.To {
				edges = append(edges, LineEdge{From: a, To: b, Weight: lg.nodes[b].Weight})
			}
		}
	}
	lg.Edges = Dedup(edges)
	return lg
}

// Dedup keeps only the first-seen orientation of every mirrored pair of line
// edges, where the mirror of X->Y->Z is Z->Y->X over the same two pools.
func Dedup(edges []LineEdge) []LineEdge {
	type pair struct{ from, to NodeKey }

	visited := make(map[pair]struct{}, len(edges))
	out := make([]LineEdge, 0, len(edges))
	for _, e := range edges {
		m := e.Mirror()
		if _, ok := visited[pair{m.From, m.To}]; ok {
			continue
		}
		visited[pair{e.From, e.To}] = struct{}{}
		out = append(out, e)
	}
	return out
}
