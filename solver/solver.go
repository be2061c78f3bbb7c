// Package solver runs a modified Bellman-Ford over a line graph to find, for
// every destination token, the cheapest chain of trades from a source edge.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/defistate/defistate-arb-go/grapher"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownSource = errors.New("source node not in line graph")

// Result is the outcome of one Solve call.
//
// Distances and Paths are keyed by line-graph node. A path lists the nodes
// after the source, in trade order. TokenDistances and TokenPaths hold the
// best reachable node per destination token, the source included; tokens
// no node reaches are absent.
type Result struct {
	Source         grapher.NodeKey
	SourceWeight   float64
	Distances      map[grapher.NodeKey]float64
	Paths          map[grapher.NodeKey][]grapher.NodeKey
	TokenDistances map[common.Address]float64
	TokenPaths     map[common.Address][]grapher.NodeKey

	// NegativeCycle is set when an edge still relaxes after the last round.
	// Distances are then not shortest distances and must not be trusted.
	NegativeCycle bool
	CycleNodes    []grapher.NodeKey
	Iterations    int
}

// Cumulative returns the full weight of the best chain ending at token,
// counting the source trade itself. The second result is false when token is
// unreachable.
func (r *Result) Cumulative(token common.Address) (float64, bool) {
	d, ok := r.TokenDistances[token]
	if !ok {
		return 0, false
	}
	return r.SourceWeight + d, true
}

// Solve relaxes every line-graph edge, in edge order, for up to |nodes|
// rounds and stops early after a round with no update.
func Solve(lg *grapher.LineGraph, source grapher.NodeKey) (*Result, error) {
	src, ok := lg.Node(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	res := &Result{
		Source:         source,
		SourceWeight:   src.Weight,
		Distances:      make(map[grapher.NodeKey]float64, len(lg.Nodes)),
		Paths:          make(map[grapher.NodeKey][]grapher.NodeKey, len(lg.Nodes)),
		TokenDistances: make(map[common.Address]float64),
		TokenPaths:     make(map[common.Address][]grapher.NodeKey),
	}
	for _, n := range lg.Nodes {
		res.Distances[n] = math.Inf(1)
	}
	res.Distances[source] = 0
	res.Paths[source] = nil

	for round := 0; round < len(lg.Nodes); round++ {
		res.Iterations++
		if !relax(lg.Edges, res) {
			break
		}
	}

	seen := make(map[grapher.NodeKey]struct{})
	for _, e := range lg.Edges {
		du := res.Distances[e.From]
		if math.IsInf(du, 1) || du+e.Weight >= res.Distances[e.To] {
			continue
		}
		res.NegativeCycle = true
		if _, dup := seen[e.To]; !dup {
			seen[e.To] = struct{}{}
			res.CycleNodes = append(res.CycleNodes, e.To)
		}
	}

	for _, n := range lg.Nodes {
		d := res.Distances[n]
		if math.IsInf(d, 1) {
			continue
		}
		if best, ok := res.TokenDistances[n.To]; !ok || d < best {
			res.TokenDistances[n.To] = d
			res.TokenPaths[n.To] = res.Paths[n]
		}
	}
	return res, nil
}

// relax runs one round over edges and reports whether any distance moved.
func relax(edges []grapher.LineEdge, res *Result) bool {
	updated := false
	for _, e := range edges {
		du := res.Distances[e.From]
		if math.IsInf(du, 1) {
			continue
		}
		if du+e.Weight < res.Distances[e.To] {
			res.Distances[e.To] = du + e.Weight
			path := make([]grapher.NodeKey, len(res.Paths[e.From]), len(res.Paths[e.From])+1)
			copy(path, res.Paths[e.From])
			res.Paths[e.To] = append(path, e.To)
			updated = true
		}
	}
	return updated
}
