package bitset

import "math/bits"

// BitSet is a fixed-size set of small non-negative integers, typically pool
// or token indices.
type BitSet []uint64

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	return make([]uint64, words)
}

func (b BitSet) IsSet(index uint64) bool {
	return (b[index/64] & (uint64(1) << (index % 64))) != 0
}

func (b BitSet) Set(index uint64) {
	b[index/64] |= uint64(1) << (index % 64)
}

// Count returns the number of set bits.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// Indices returns the set bits in ascending order.
func (b BitSet) Indices() []uint64 {
	out := make([]uint64, 0, b.Count())
	for wi, w := range b {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, uint64(wi*64+tz))
			w &= w - 1
		}
	}
	return out
}
