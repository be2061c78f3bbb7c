package uniswapv3

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// DexVariant tags the AMM flavour a pool was created by.
type DexVariant uint8

const (
	UniswapV2 DexVariant = 2
	UniswapV3 DexVariant = 3
)

// ParseDexVariant maps a short version tag to a DexVariant. "2" is V2,
// anything else is treated as V3.
func ParseDexVariant(tag string) DexVariant {
	if tag == "2" {
		return UniswapV2
	}
	return UniswapV3
}

func (v DexVariant) String() string {
	return strconv.Itoa(int(v))
}

// Pool is the immutable metadata of one pool, as discovered from its
// factory creation event.
type Pool struct {
	Address   common.Address `json:"address"`
	Version   DexVariant     `json:"version"`
	Token0    common.Address `json:"token0"`
	Token1    common.Address `json:"token1"`
	Decimals0 uint8          `json:"decimals0"`
	Decimals1 uint8          `json:"decimals1"`
	Fee       uint32         `json:"fee"` // bps
}

// Other returns the counterpart of token in the pool. It returns false if the
// pool does not trade token.
func (p Pool) Other(token common.Address) (common.Address, bool) {
	switch token {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	}
	return common.Address{}, false
}

// ReserveState is the latest known on-chain state of a pool.
type ReserveState struct {
	SqrtPriceX96 *big.Int `json:"sqrtPriceX96"`
	Liquidity    *big.Int `json:"liquidity"`
	Tick         int64    `json:"tick"`
	Fee          uint32   `json:"fee"` // bps
}

func (r ReserveState) String() string {
	return fmt.Sprintf("sqrtPriceX96=%s liquidity=%s tick=%d fee=%d", r.SqrtPriceX96, r.Liquidity, r.Tick, r.Fee)
}

// Reserves maps pool address to its latest ReserveState.
type Reserves map[common.Address]ReserveState
