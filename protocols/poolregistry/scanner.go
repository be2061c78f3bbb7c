package poolregistry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const factoryABI = `[{"anonymous":false,"inputs":[
{"indexed":true,"name":"token0","type":"address"},
{"indexed":true,"name":"token1","type":"address"},
{"indexed":true,"name":"fee","type":"uint24"},
{"indexed":false,"name":"tickSpacing","type":"int24"},
{"indexed":false,"name":"pool","type":"address"}],
"name":"PoolCreated","type":"event"}]`

// feeUnitsPerBps converts the factory fee (hundredths of a bip) to bps.
const feeUnitsPerBps = 100

var (
	errMalformedLog = errors.New("malformed creation log")

	poolCreated = mustParseEvent(factoryABI, "PoolCreated")

	// PoolCreatedTopic is the topic0 of the factory's PoolCreated event.
	PoolCreatedTopic = poolCreated.ID
)

func mustParseEvent(def, name string) abi.Event {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("poolregistry: invalid ABI: %v", err))
	}
	return parsed.Events[name]
}

// createdPool is the content of one PoolCreated log.
type createdPool struct {
	Token0 common.Address
	Token1 common.Address
	Fee    *big.Int
	Pool   common.Address
}

func decodePoolCreated(l types.Log) (createdPool, error) {
	var out createdPool
	if len(l.Topics) != 4 || l.Topics[0] != PoolCreatedTopic {
		return out, fmt.Errorf("%w: got %d topics", errMalformedLog, len(l.Topics))
	}

	indexed := make(map[string]any, 3)
	var indexedArgs abi.Arguments
	for _, arg := range poolCreated.Inputs {
		if arg.Indexed {
			indexedArgs = append(indexedArgs, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(indexed, indexedArgs, l.Topics[1:]); err != nil {
		return out, fmt.Errorf("%w: %w", errMalformedLog, err)
	}

	data, err := poolCreated.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(data) != 2 {
		return out, fmt.Errorf("%w: undecodable data", errMalformedLog)
	}

	var ok bool
	if out.Token0, ok = indexed["token0"].(common.Address); !ok {
		return out, fmt.Errorf("%w: token0", errMalformedLog)
	}
	if out.Token1, ok = indexed["token1"].(common.Address); !ok {
		return out, fmt.Errorf("%w: token1", errMalformedLog)
	}
	if out.Fee, ok = indexed["fee"].(*big.Int); !ok {
		return out, fmt.Errorf("%w: fee", errMalformedLog)
	}
	if out.Pool, ok = data[1].(common.Address); !ok {
		return out, fmt.Errorf("%w: pool", errMalformedLog)
	}
	return out, nil
}

// chunks splits [from, to] into consecutive, non-overlapping inclusive ranges
// of at most size blocks.
func chunks(from, to, size uint64) [][2]uint64 {
	if from > to || size == 0 {
		return nil
	}
	var out [][2]uint64
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, [2]uint64{start, end})
		if end == to {
			break
		}
	}
	return out
}

func (c *Catalog) scanFactory(ctx context.Context, f Factory, head uint64, pools map[common.Address]uniswapv3.Pool) error {
	ranges := chunks(f.StartBlock, head, c.cfg.ChunkSize)
	c.cfg.Logger.Info("Scanning factory", "factory", f.Address, "from", f.StartBlock, "to", head, "chunks", len(ranges))

	for i, r := range ranges {
		logs, err := c.reader.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(r[0]),
			ToBlock:   new(big.Int).SetUint64(r[1]),
			Addresses: []common.Address{f.Address},
			Topics:    [][]common.Hash{{PoolCreatedTopic}},
		})
		if err != nil {
			return fmt.Errorf("%w: factory %s blocks %d-%d: %w", ErrScanAborted, f.Address.Hex(), r[0], r[1], err)
		}

		for _, l := range logs {
			if l.Removed {
				continue
			}
			created, err := decodePoolCreated(l)
			if err != nil {
				c.cfg.Logger.Warn("Skipping malformed creation log", "tx", l.TxHash, "index", l.Index, "error", err)
				continue
			}
			pool, err := c.resolvePool(ctx, created)
			if err != nil {
				c.cfg.Logger.Warn("Skipping pool", "pool", created.Pool, "error", err)
				continue
			}
			pools[pool.Address] = pool
		}
		c.cfg.Logger.Debug("Scanned chunk", "factory", f.Address, "chunk", i+1, "of", len(ranges), "pools", len(pools))
	}
	return nil
}

func (c *Catalog) resolvePool(ctx context.Context, created createdPool) (uniswapv3.Pool, error) {
	d0, err := c.resolver.Decimals(ctx, created.Token0)
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	d1, err := c.resolver.Decimals(ctx, created.Token1)
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	return uniswapv3.Pool{
		Address:   created.Pool,
		Version:   uniswapv3.UniswapV3,
		Token0:    created.Token0,
		Token1:    created.Token1,
		Decimals0: d0,
		Decimals1: d1,
		Fee:       uint32(created.Fee.Uint64() / feeUnitsPerBps),
	}, nil
}
