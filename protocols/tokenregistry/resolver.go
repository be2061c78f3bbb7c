package tokenregistry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/patrickmn/go-cache"
)

const erc20DecimalsABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var (
	ErrDecimalsCall        = errors.New("decimals call failed")
	ErrNotERC20            = errors.New("token does not answer decimals()")
	ErrUnsupportedDecimals = errors.New("unsupported decimals")

	erc20ABI = mustParseABI(erc20DecimalsABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("tokenregistry: invalid ABI: %v", err))
	}
	return parsed
}

type entry struct {
	decimals uint8
	err      error
}

// Resolver looks up ERC20 decimals and memoizes, for the lifetime of the
// Resolver, every answer the token itself gave: a value, a revert, malformed
// return data or unsupported decimals. Transport failures are not memoized.
type Resolver struct {
	caller ethereum.ContractCaller
	memo   *cache.Cache
}

// NewResolver creates a Resolver that queries through caller.
func NewResolver(caller ethereum.ContractCaller) *Resolver {
	return &Resolver{
		caller: caller,
		memo:   cache.New(cache.NoExpiration, 0),
	}
}

// Decimals returns the decimals of token, calling the chain at most once per token.
func (r *Resolver) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	key := token.Hex()
	if v, ok := r.memo.Get(key); ok {
		e := v.(entry)
		return e.decimals, e.err
	}

	d, err := r.query(ctx, token)
	if err != nil && !errors.Is(err, ErrNotERC20) && !errors.Is(err, ErrUnsupportedDecimals) {
		return 0, err
	}
	r.memo.Set(key, entry{decimals: d, err: err}, cache.NoExpiration)
	return d, err
}

func (r *Resolver) query(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return 0, fmt.Errorf("%w: %s: %w", ErrNotERC20, token.Hex(), err)
		}
		return 0, fmt.Errorf("%w: %s: %w", ErrDecimalsCall, token.Hex(), err)
	}

	out, err := erc20ABI.Unpack("decimals", raw)
	if err != nil || len(out) != 1 {
		return 0, fmt.Errorf("%w: %s: malformed return data", ErrNotERC20, token.Hex())
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s: unexpected type %T", ErrNotERC20, token.Hex(), out[0])
	}
	if d > MaxDecimals {
		return 0, fmt.Errorf("%w: %s has %d", ErrUnsupportedDecimals, token.Hex(), d)
	}
	return d, nil
}

// revertCode is the JSON-RPC error code nodes use for a reverted eth_call.
const revertCode = 3

// isRevert reports whether err is the contract refusing the call, as opposed
// to the node or the transport failing.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// Known returns every successfully resolved token, ordered by address.
func (r *Resolver) Known() []Token {
	items := r.memo.Items()
	tokens := make([]Token, 0, len(items))
	for key, item := range items {
		e := item.Object.(entry)
		if e.err != nil {
			continue
		}
		tokens = append(tokens, Token{Address: common.HexToAddress(key), Decimals: e.decimals})
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Address.Cmp(tokens[j].Address) < 0
	})
	return tokens
}
