package pathfinder

import (
	"fmt"

	"github.com/defistate/defistate-arb-go/bitset"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Config controls cycle enumeration.
type Config struct {
	// Hops lists the cycle lengths to enumerate. Only 2 and 3 are supported.
	Hops []int
	// KeepMirrored reports both orientations of every cycle. By default only
	// the first-seen orientation is kept; ArbPath.Reverse recovers the other.
	KeepMirrored bool
}

// DefaultConfig enumerates 2- and 3-hop cycles without mirrors.
func DefaultConfig() Config {
	return Config{Hops: []int{2, 3}}
}

func (c *Config) validate() error {
	if len(c.Hops) == 0 {
		return fmt.Errorf("config: Hops is required")
	}
	for _, h := range c.Hops {
		if h != 2 && h != 3 {
			return fmt.Errorf("config: %w: %d", ErrHopCount, h)
		}
	}
	return nil
}

// Finder enumerates closed cycles through an anchor token.
type Finder struct {
	cfg Config
}

func NewFinder(cfg Config) (*Finder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Finder{cfg: cfg}, nil
}

// FilterReachable keeps the pools that can sit on a 2- or 3-hop cycle through
// anchor: pools trading the anchor, and pools whose two tokens both trade
// directly against the anchor. The kept pools are returned re-indexed.
func FilterReachable(registry *indexer.IndexablePoolRegistry, anchor common.Address) *indexer.IndexablePoolRegistry {
	keep := bitset.NewBitSet(uint64(registry.Len()))

	neighbours := make(map[common.Address]struct{})
	for _, i := range registry.PoolIndicesForToken(anchor) {
		keep.Set(uint64(i))
		p, _ := registry.GetByIndex(i)
		other, _ := p.Other(anchor)
		neighbours[other] = struct{}{}
	}

	for n := range neighbours {
		for _, i := range registry.PoolIndicesForToken(n) {
			if keep.IsSet(uint64(i)) {
				continue
			}
			p, _ := registry.GetByIndex(i)
			other, _ := p.Other(n)
			if _, ok := neighbours[other]; ok {
				keep.Set(uint64(i))
			}
		}
	}

	out := make(map[common.Address]uniswapv3.Pool, keep.Count())
	for _, i := range keep.Indices() {
		p, _ := registry.GetByIndex(int(i))
		out[p.Address] = p
	}
	return indexer.NewIndexablePoolRegistry(out)
}

// Find returns every closed cycle through anchor over pools. The pool set is
// always reduced with FilterReachable first.
func (f *Finder) Find(pools map[common.Address]uniswapv3.Pool, anchor common.Address) []*ArbPath {
	candidates := FilterReachable(indexer.NewIndexablePoolRegistry(pools), anchor)

	var paths []*ArbPath
	seen := make(map[string]struct{})
	for _, n := range f.cfg.Hops {
		for _, p := range enumerate(candidates, anchor, n) {
			if !f.cfg.KeepMirrored {
				if _, dup := seen[p.Reverse().Key()]; dup {
					continue
				}
				seen[p.Key()] = struct{}{}
			}
			paths = append(paths, p)
		}
	}
	return paths
}

// enumerate extends a partial path only with pools that trade its running
// output token, visited in address order, and keeps paths of exactly n hops
// that close at anchor without reusing a pool.
func enumerate(pools *indexer.IndexablePoolRegistry, anchor common.Address, n int) []*ArbPath {
	var out []*ArbPath
	hops := make([]Hop, 0, n)

	var extend func(current common.Address)
	extend = func(current common.Address) {
		if len(hops) == n {
			if current == anchor {
				path := &ArbPath{Hops: append([]Hop(nil), hops...)}
				out = append(out, path)
			}
			return
		}
		for _, p := range pools.PoolsForToken(current) {
			if usesPool(hops, p.Address) {
				continue
			}
			hops = append(hops, Hop{Pool: p, ZeroForOne: p.Token0 == current})
			next, _ := p.Other(current)
			extend(next)
			hops = hops[:len(hops)-1]
		}
	}
	extend(anchor)
	return out
}

func usesPool(hops []Hop, addr common.Address) bool {
	for _, h := range hops {
		if h.Pool.Address == addr {
			return true
		}
	}
	return false
}
