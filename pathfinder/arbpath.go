package pathfinder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrBrokenChain     = errors.New("hop output does not feed the next hop")
	ErrOpenCycle       = errors.New("path does not return to the anchor")
	ErrRepeatedPool    = errors.New("pool used more than once")
	ErrHopCount        = errors.New("unsupported hop count")
	ErrRouterCount     = errors.New("router count does not match hop count")
	ErrNonPositiveStep = errors.New("step must be positive")
)

// Hop is one trade through a pool. ZeroForOne sells token0 for token1.
type Hop struct {
	Pool       uniswapv3.Pool `json:"pool"`
	ZeroForOne bool           `json:"zeroForOne"`
}

func (h Hop) TokenIn() common.Address {
	if h.ZeroForOne {
		return h.Pool.Token0
	}
	return h.Pool.Token1
}

func (h Hop) TokenOut() common.Address {
	if h.ZeroForOne {
		return h.Pool.Token1
	}
	return h.Pool.Token0
}

// DecimalsIn is the decimals of the token sold into the hop.
func (h Hop) DecimalsIn() uint8 {
	if h.ZeroForOne {
		return h.Pool.Decimals0
	}
	return h.Pool.Decimals1
}

// ArbPath is a closed cycle of 2 or 3 hops starting and ending at the same token.
type ArbPath struct {
	Hops []Hop `json:"hops"`
}

// PathParam is what an executor needs to route one hop.
type PathParam struct {
	Router   common.Address `json:"router"`
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
}

func (p *ArbPath) NHop() int {
	return len(p.Hops)
}

func (p *ArbPath) HasPool(pool common.Address) bool {
	for _, h := range p.Hops {
		if h.Pool.Address == pool {
			return true
		}
	}
	return false
}

// Pools returns the pool addresses in hop order.
func (p *ArbPath) Pools() []common.Address {
	out := make([]common.Address, len(p.Hops))
	for i, h := range p.Hops {
		out[i] = h.Pool.Address
	}
	return out
}

// TokenIn is the anchor token the cycle starts from.
func (p *ArbPath) TokenIn() common.Address {
	return p.Hops[0].TokenIn()
}

func (p *ArbPath) TokenInDecimals() uint8 {
	return p.Hops[0].DecimalsIn()
}

// Reverse returns the same cycle traversed in the opposite direction.
func (p *ArbPath) Reverse() *ArbPath {
	n := len(p.Hops)
	hops := make([]Hop, n)
	for i, h := range p.Hops {
		hops[n-1-i] = Hop{Pool: h.Pool, ZeroForOne: !h.ZeroForOne}
	}
	return &ArbPath{Hops: hops}
}

// Key identifies the path by its pool sequence.
func (p *ArbPath) Key() string {
	parts := make([]string, len(p.Hops))
	for i, h := range p.Hops {
		parts[i] = h.Pool.Address.Hex()
	}
	return strings.Join(parts, ">")
}

func (p *ArbPath) String() string {
	var b strings.Builder
	b.WriteString(p.TokenIn().Hex())
	for _, h := range p.Hops {
		fmt.Fprintf(&b, " -[%s]-> %s", h.Pool.Address.Hex(), h.TokenOut().Hex())
	}
	return b.String()
}

// Validate checks hop chaining, closure at anchor and pool uniqueness.
func (p *ArbPath) Validate(anchor common.Address) error {
	if n := len(p.Hops); n != 2 && n != 3 {
		return fmt.Errorf("%w: %d", ErrHopCount, n)
	}
	if p.TokenIn() != anchor {
		return fmt.Errorf("%w: starts at %s", ErrOpenCycle, p.TokenIn().Hex())
	}
	seen := make(map[common.Address]struct{}, len(p.Hops))
	for i, h := range p.Hops {
		if _, dup := seen[h.Pool.Address]; dup {
			return fmt.Errorf("%w: %s", ErrRepeatedPool, h.Pool.Address.Hex())
		}
		seen[h.Pool.Address] = struct{}{}
		if i+1 < len(p.Hops) && h.TokenOut() != p.Hops[i+1].TokenIn() {
			return fmt.Errorf("%w: hop %d", ErrBrokenChain, i)
		}
	}
	if last := p.Hops[len(p.Hops)-1].TokenOut(); last != anchor {
		return fmt.Errorf("%w: ends at %s", ErrOpenCycle, last.Hex())
	}
	return nil
}

// SimulateRaw chains GetAmountOut across the hops, in raw token units.
// A hop whose pool has no reserves quotes 0.
func (p *ArbPath) SimulateRaw(amountIn *big.Int, reserves uniswapv3.Reserves) *big.Int {
	out := new(big.Int).Set(amountIn)
	for _, h := range p.Hops {
		r, ok := reserves[h.Pool.Address]
		if !ok {
			return new(big.Int)
		}
		out = calculator.GetAmountOut(out, r.SqrtPriceX96, r.Liquidity, r.Fee)
	}
	return out
}

// Simulate converts amountIn from whole units of the anchor token to raw
// units and returns the raw output of the cycle. Digits below one raw unit
// are truncated.
func (p *ArbPath) Simulate(amountIn decimal.Decimal, reserves uniswapv3.Reserves) *big.Int {
	return p.SimulateRaw(p.toRaw(amountIn), reserves)
}

func (p *ArbPath) toRaw(amount decimal.Decimal) *big.Int {
	return amount.Shift(int32(p.TokenInDecimals())).BigInt()
}

func (p *ArbPath) fromRaw(amount *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(p.TokenInDecimals()))
}

// Spread returns the percentage gained by cycling amountIn whole units:
// (out/in - 1) * 100.
func (p *ArbPath) Spread(amountIn decimal.Decimal, reserves uniswapv3.Reserves) decimal.Decimal {
	if !amountIn.IsPositive() {
		return decimal.Zero
	}
	out := p.fromRaw(p.Simulate(amountIn, reserves))
	return out.Div(amountIn).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
}

// OptimizeAmountIn scans inputs 0, step, 2*step, ... below maxIn and stops at
// the first input whose profit is lower than the best so far. This assumes
// profit is unimodal in the input size, which fee heterogeneity across hops
// does not guarantee. It returns the best input and its profit, both in whole
// units of the anchor token.
func (p *ArbPath) OptimizeAmountIn(maxIn, step decimal.Decimal, reserves uniswapv3.Reserves) (decimal.Decimal, decimal.Decimal, error) {
	if !step.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrNonPositiveStep
	}

	bestIn := decimal.Zero
	bestProfit := new(big.Int)
	for amountIn := decimal.Zero; amountIn.LessThan(maxIn); amountIn = amountIn.Add(step) {
		raw := p.toRaw(amountIn)
		profit := p.SimulateRaw(raw, reserves)
		profit.Sub(profit, raw)
		if profit.Cmp(bestProfit) < 0 {
			break
		}
		bestIn, bestProfit = amountIn, profit
	}
	return bestIn, p.fromRaw(bestProfit), nil
}

// ToPathParams pairs each hop with the router that will execute it.
func (p *ArbPath) ToPathParams(routers []common.Address) ([]PathParam, error) {
	if len(routers) < len(p.Hops) {
		return nil, fmt.Errorf("%w: %d routers for %d hops", ErrRouterCount, len(routers), len(p.Hops))
	}
	params := make([]PathParam, len(p.Hops))
	for i, h := range p.Hops {
		params[i] = PathParam{Router: routers[i], TokenIn: h.TokenIn(), TokenOut: h.TokenOut()}
	}
	return params, nil
}
