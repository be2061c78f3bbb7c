package indexer

import (
	"sort"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// IndexablePoolRegistry provides fast, indexed access to catalog pools.
// Pools are held in address order; each pool's position in that order is its index.
type IndexablePoolRegistry struct {
	byToken map[common.Address][]int
	all     []uniswapv3.Pool
}

// NewIndexablePoolRegistry indexes the pool map.
func NewIndexablePoolRegistry(pools map[common.Address]uniswapv3.Pool) *IndexablePoolRegistry {
	all := make([]uniswapv3.Pool, 0, len(pools))
	for _, p := range pools {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Address.Cmp(all[j].Address) < 0 })

	byToken := make(map[common.Address][]int)
	for i, p := range all {
		byToken[p.Token0] = append(byToken[p.Token0], i)
		if p.Token1 != p.Token0 {
			byToken[p.Token1] = append(byToken[p.Token1], i)
		}
	}

	return &IndexablePoolRegistry{
		byToken: byToken,
		all:     all,
	}
}

// Len returns the number of indexed pools.
func (ipr *IndexablePoolRegistry) Len() int {
	return len(ipr.all)
}

// GetByIndex retrieves a pool by its position in address order.
func (ipr *IndexablePoolRegistry) GetByIndex(i int) (uniswapv3.Pool, bool) {
	if i < 0 || i >= len(ipr.all) {
		return uniswapv3.Pool{}, false
	}
	return ipr.all[i], true
}

// PoolIndicesForToken returns the indices of every pool trading token, ascending.
func (ipr *IndexablePoolRegistry) PoolIndicesForToken(token common.Address) []int {
	idx := ipr.byToken[token]
	out := make([]int, len(idx))
	copy(out, idx)
	return out
}

// PoolsForToken returns every pool trading token, in address order.
func (ipr *IndexablePoolRegistry) PoolsForToken(token common.Address) []uniswapv3.Pool {
	idx := ipr.byToken[token]
	out := make([]uniswapv3.Pool, len(idx))
	for i, j := range idx {
		out[i] = ipr.all[j]
	}
	return out
}

// All returns a defensive copy of every pool, in address order.
func (ipr *IndexablePoolRegistry) All() []uniswapv3.Pool {
	allCopy := make([]uniswapv3.Pool, len(ipr.all))
	copy(allCopy, ipr.all)
	return allCopy
}
