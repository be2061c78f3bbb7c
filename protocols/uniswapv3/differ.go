package uniswapv3

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ReservesDiff describes how one Reserves snapshot turns into another.
type ReservesDiff struct {
	Additions map[common.Address]ReserveState `json:"additions,omitempty"`
	Updates   map[common.Address]ReserveState `json:"updates,omitempty"`
	Deletions []common.Address                `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d ReservesDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Changed returns every added or updated pool address, sorted.
func (d ReservesDiff) Changed() []common.Address {
	out := make([]common.Address, 0, len(d.Additions)+len(d.Updates))
	for addr := range d.Additions {
		out = append(out, addr)
	}
	for addr := range d.Updates {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func reserveChanged(old, new ReserveState) bool {
	if old.Tick != new.Tick || old.Fee != new.Fee {
		return true
	}
	if old.SqrtPriceX96.Cmp(new.SqrtPriceX96) != 0 {
		return true
	}
	return old.Liquidity.Cmp(new.Liquidity) != 0
}

// Differ compares a previous snapshot against a freshly fetched one.
//
// When partial is true, fetched only covers a subset of pools (a touched-pool
// refresh), so pools missing from it are not treated as deletions.
func Differ(prev, fetched Reserves, partial bool) ReservesDiff {
	diff := ReservesDiff{
		Additions: make(map[common.Address]ReserveState),
		Updates:   make(map[common.Address]ReserveState),
	}

	for addr, next := range fetched {
		old, exists := prev[addr]
		if !exists {
			diff.Additions[addr] = next
			continue
		}
		if reserveChanged(old, next) {
			diff.Updates[addr] = next
		}
	}

	if partial {
		return diff
	}

	for addr := range prev {
		if _, exists := fetched[addr]; !exists {
			diff.Deletions = append(diff.Deletions, addr)
		}
	}
	return diff
}
