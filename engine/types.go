package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // Unix nanoseconds when the head was received.
	BaseFee    *big.Int    `json:"baseFee,omitempty"`
	GasUsed    uint64      `json:"gasUsed"`
	GasLimit   uint64      `json:"gasLimit"`
}

// NewBlockSummary builds a BlockSummary from a block header.
func NewBlockSummary(h *types.Header, receivedAt int64) BlockSummary {
	return BlockSummary{
		Number:     new(big.Int).Set(h.Number),
		Hash:       h.Hash(),
		Timestamp:  h.Time,
		ReceivedAt: receivedAt,
		BaseFee:    h.BaseFee,
		GasUsed:    h.GasUsed,
		GasLimit:   h.GasLimit,
	}
}

// Trigger asks the pipeline for one refetch and recompute cycle.
// An empty TouchedPools list means every tracked pool is refetched.
type Trigger struct {
	Block        BlockSummary     `json:"block"`
	TouchedPools []common.Address `json:"touchedPools,omitempty"`
}

// Touches reports whether the trigger names the given pool.
func (t *Trigger) Touches(pool common.Address) bool {
	for _, p := range t.TouchedPools {
		if p == pool {
			return true
		}
	}
	return false
}
