// Package calculator holds the stateless price and quote math used to weight
// graph edges and to simulate trades.
//
// GetAmountOut models a pool as a single constant-liquidity curve at its
// current price. It never crosses initialized ticks, so quotes for inputs
// large enough to move the price out of the active range are optimistic.
package calculator

import (
	"math/big"
	"sync"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3/calculator/tickmath"
)

// FeeDenominator is the bps scale of pool fees.
const FeeDenominator = 10000

var (
	Q96, _  = new(big.Int).SetString("79228162514264337593543950336", 10)
	Q192    = new(big.Int).Lsh(big.NewInt(1), 192)
	bigTen  = big.NewInt(10)
	feeBase = big.NewInt(FeeDenominator)
)

type quoteScratch struct {
	eff, num, den *big.Int
}

var quotePool = sync.Pool{
	New: func() any {
		return &quoteScratch{eff: new(big.Int), num: new(big.Int), den: new(big.Int)}
	},
}

// SqrtPriceX96ToPrice returns the decimal-adjusted price of the pool.
// With token0In the result is token1 per token0, otherwise token0 per token1.
// A zero sqrt price yields 0 in both directions.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8, token0In bool) float64 {
	r := sqrtPriceX96ToRat(sqrtPriceX96, decimals0, decimals1)
	if r == nil {
		return 0
	}
	if !token0In {
		r.Inv(r)
	}
	f, _ := r.Float64()
	return f
}

// sqrtPriceX96ToRat computes sqrtPrice^2 / 2^192 * 10^(d0-d1) exactly.
func sqrtPriceX96ToRat(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) *big.Rat {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil
	}
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Set(Q192)

	if decimals0 >= decimals1 {
		num.Mul(num, new(big.Int).Exp(bigTen, big.NewInt(int64(decimals0-decimals1)), nil))
	} else {
		den.Mul(den, new(big.Int).Exp(bigTen, big.NewInt(int64(decimals1-decimals0)), nil))
	}
	return new(big.Rat).SetFrac(num, den)
}

// GetAmountOut quotes a swap of amountIn against a pool:
//
//	eff = amountIn * (10000 - fee) / 10000
//	out = eff * L / (L + sqrtPriceX96 * eff)
//
// It returns 0 for a non-positive input, a fee of 100% or more, or a zero
// denominator.
func GetAmountOut(amountIn, sqrtPriceX96, liquidity *big.Int, feeBps uint32) *big.Int {
	out := new(big.Int)
	if amountIn == nil || sqrtPriceX96 == nil || liquidity == nil {
		return out
	}
	if amountIn.Sign() <= 0 || feeBps >= FeeDenominator {
		return out
	}

	s := quotePool.Get().(*quoteScratch)
	defer quotePool.Put(s)

	s.eff.SetUint64(uint64(FeeDenominator - feeBps))
	s.eff.Mul(s.eff, amountIn)
	s.eff.Quo(s.eff, feeBase)

	s.num.Mul(s.eff, liquidity)
	s.den.Mul(sqrtPriceX96, s.eff)
	s.den.Add(s.den, liquidity)
	if s.den.Sign() == 0 {
		return out
	}
	return out.Quo(s.num, s.den)
}

// PriceAtTick returns the decimal-adjusted price implied by tick, clamped to
// the valid tick range.
func PriceAtTick(tick int64, decimals0, decimals1 uint8, token0In bool) float64 {
	sqrtP := new(big.Int)
	// ClampTick keeps the tick in range, so the error cannot fire.
	_ = tickmath.GetSqrtRatioAtTick(sqrtP, tickmath.ClampTick(tick))
	return SqrtPriceX96ToPrice(sqrtP, decimals0, decimals1, token0In)
}

// BasePrice is the midpoint of the prices at the edges of the tick window
// [tick-delta, tick+delta]. For the token1 -> token0 direction it is the
// midpoint of the reciprocal prices.
func BasePrice(tick, delta int64, decimals0, decimals1 uint8, token0In bool) float64 {
	lo := PriceAtTick(tick-delta, decimals0, decimals1, token0In)
	hi := PriceAtTick(tick+delta, decimals0, decimals1, token0In)
	return (lo + hi) / 2
}
