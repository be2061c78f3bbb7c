package uniswapv3

import (
	"math/big"
)

// copyReserve creates a deep copy of a ReserveState so the *big.Int fields
// are never shared between snapshots.
func copyReserve(r ReserveState) ReserveState {
	out := r
	if r.SqrtPriceX96 != nil {
		out.SqrtPriceX96 = new(big.Int).Set(r.SqrtPriceX96)
	}
	if r.Liquidity != nil {
		out.Liquidity = new(big.Int).Set(r.Liquidity)
	}
	return out
}

// Copy returns a deep copy of the snapshot.
func (r Reserves) Copy() Reserves {
	out := make(Reserves, len(r))
	for addr, state := range r {
		out[addr] = copyReserve(state)
	}
	return out
}

// Patcher applies a diff to a previous snapshot and returns the new one.
// The previous snapshot is left untouched.
func Patcher(prev Reserves, diff ReservesDiff) (Reserves, error) {
	next := prev.Copy()

	for _, addr := range diff.Deletions {
		delete(next, addr)
	}
	for addr, state := range diff.Updates {
		next[addr] = copyReserve(state)
	}
	for addr, state := range diff.Additions {
		next[addr] = copyReserve(state)
	}

	return next, nil
}
