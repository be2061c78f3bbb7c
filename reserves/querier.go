package reserves

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
	"github.com/ethereum/go-ethereum/ethclient"
)

const poolStateABI = `[
	{"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"liquidity","outputs":[{"name":"","type":"uint128"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"fee","outputs":[{"name":"","type":"uint24"}],"stateMutability":"view","type":"function"}
]`

var (
	ErrPoolCall = errors.New("pool state call failed")

	poolABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(poolStateABI))
		if err != nil {
			panic(fmt.Sprintf("reserves: invalid ABI: %v", err))
		}
		return parsed
	}()
)

// Querier reads the current state of a single pool.
// Implementations must be safe for concurrent use.
type Querier interface {
	Reserve(ctx context.Context, pool common.Address) (uniswapv3.ReserveState, error)
}

// ContractQuerier reads slot0, liquidity and fee from the pool contract.
type ContractQuerier struct {
	caller ethereum.ContractCaller
}

func NewContractQuerier(caller ethereum.ContractCaller) *ContractQuerier {
	return &ContractQuerier{caller: caller}
}

// Reserve returns the pool's state with its fee converted to bps.
func (q *ContractQuerier) Reserve(ctx context.Context, pool common.Address) (uniswapv3.ReserveState, error) {
	slot0, err := q.call(ctx, pool, "slot0")
	if err != nil {
		return uniswapv3.ReserveState{}, err
	}
	liquidity, err := q.call(ctx, pool, "liquidity")
	if err != nil {
		return uniswapv3.ReserveState{}, err
	}
	fee, err := q.call(ctx, pool, "fee")
	if err != nil {
		return uniswapv3.ReserveState{}, err
	}

	sqrtP, ok1 := slot0[0].(*big.Int)
	tick, ok2 := slot0[1].(*big.Int)
	l, ok3 := liquidity[0].(*big.Int)
	f, ok4 := fee[0].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return uniswapv3.ReserveState{}, fmt.Errorf("%w: %s: unexpected return types", ErrPoolCall, pool.Hex())
	}

	return uniswapv3.ReserveState{
		SqrtPriceX96: sqrtP,
		Liquidity:    l,
		Tick:         tick.Int64(),
		Fee:          uint32(f.Uint64() / 100),
	}, nil
}

func (q *ContractQuerier) call(ctx context.Context, pool common.Address, method string) ([]any, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrPoolCall, pool.Hex(), method, err)
	}
	out, err := poolABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("%w: %s.%s: malformed return data", ErrPoolCall, pool.Hex(), method)
	}
	return out, nil
}

// DialEndpoints returns a DialFunc that gives shard i its own connection to
// urls[i mod len(urls)]. The connection is closed when the shard finishes.
func DialEndpoints(urls ...string) DialFunc {
	return func(ctx context.Context, shard int) (Querier, error) {
		if len(urls) == 0 {
			return nil, ErrNoQueriers
		}
		ec, err := ethclient.DialContext(ctx, urls[shard%len(urls)])
		if err != nil {
			return nil, err
		}
		return &connQuerier{ContractQuerier: NewContractQuerier(ec), conn: ec}, nil
	}
}

type connQuerier struct {
	*ContractQuerier
	conn *ethclient.Client
}

func (q *connQuerier) Close() {
	q.conn.Close()
}
