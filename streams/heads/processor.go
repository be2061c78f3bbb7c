package heads

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SwapTopic is the topic of the Uniswap V3 pool Swap event.
var SwapTopic = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))

// LogReader is the chain access a BlockProcessor needs per head.
type LogReader interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// BlockProcessor turns new heads into triggers. It is decoupled from the
// networking layer.
type BlockProcessor struct {
	logger    Logger
	watched   map[common.Address]struct{}
	triggerCh chan *engine.Trigger
}

// NewBlockProcessor creates a processor that reports swaps on the watched
// pools. An empty watch list reports swaps on any pool.
func NewBlockProcessor(logger Logger, watched []common.Address) *BlockProcessor {
	bp := &BlockProcessor{
		logger:    logger,
		triggerCh: make(chan *engine.Trigger, 1),
	}
	if len(watched) > 0 {
		bp.watched = make(map[common.Address]struct{}, len(watched))
		for _, a := range watched {
			bp.watched[a] = struct{}{}
		}
	}
	return bp
}

// Triggers returns a read-only channel of triggers. It holds at most one
// pending trigger; heads arriving while it is full are dropped.
func (bp *BlockProcessor) Triggers() <-chan *engine.Trigger {
	return bp.triggerCh
}

// ProcessHeader reads the Swap logs of the block and emits a trigger naming
// the pools they touched. Blocks without a watched swap emit nothing.
func (bp *BlockProcessor) ProcessHeader(ctx context.Context, reader LogReader, h *types.Header) error {
	receivedAt := time.Now().UnixNano()
	hash := h.Hash()

	logs, err := reader.FilterLogs(ctx, ethereum.FilterQuery{
		BlockHash: &hash,
		Topics:    [][]common.Hash{{SwapTopic}},
	})
	if err != nil {
		return fmt.Errorf("failed to read swap logs for block %d: %w", h.Number.Uint64(), err)
	}

	touched := bp.TouchedPools(logs)
	if len(touched) == 0 {
		bp.logger.Debug("No watched swaps in block", "block", h.Number, "logs", len(logs))
		return nil
	}

	trig := &engine.Trigger{
		Block:        engine.NewBlockSummary(h, receivedAt),
		TouchedPools: touched,
	}
	select {
	case bp.triggerCh <- trig:
		bp.logger.Debug("Trigger queued", "block", h.Number, "touched", len(touched))
	default:
		bp.logger.Warn("Pipeline busy, dropping trigger", "block", h.Number, "touched", len(touched))
	}
	return nil
}

// TouchedPools returns the distinct watched pools emitting a Swap in logs,
// sorted by address. Removed logs are ignored.
func (bp *BlockProcessor) TouchedPools(logs []types.Log) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for _, l := range logs {
		if l.Removed || len(l.Topics) == 0 || l.Topics[0] != SwapTopic {
			continue
		}
		if bp.watched != nil {
			if _, ok := bp.watched[l.Address]; !ok {
				continue
			}
		}
		if _, dup := seen[l.Address]; dup {
			continue
		}
		seen[l.Address] = struct{}{}
		out = append(out, l.Address)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
