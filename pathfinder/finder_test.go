package pathfinder

import (
	"testing"

	"github.com/defistate/defistate-arb-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	link = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")

	poolUSDCWETH   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolDAIWETH    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	poolDAIUSDC    = common.HexToAddress("0x0000000000000000000000000000000000000003")
	poolUSDCWETH30 = common.HexToAddress("0x0000000000000000000000000000000000000004")
	poolWBTCLINK   = common.HexToAddress("0x0000000000000000000000000000000000000005")
	poolWETHLINK   = common.HexToAddress("0x0000000000000000000000000000000000000006")
)

var decimalsOf = map[common.Address]uint8{usdc: 6, weth: 18, dai: 18, wbtc: 8, link: 18}

func newPool(addr, t0, t1 common.Address, fee uint32) uniswapv3.Pool {
	return uniswapv3.Pool{
		Address:   addr,
		Version:   uniswapv3.UniswapV3,
		Token0:    t0,
		Token1:    t1,
		Decimals0: decimalsOf[t0],
		Decimals1: decimalsOf[t1],
		Fee:       fee,
	}
}

func trianglePools() map[common.Address]uniswapv3.Pool {
	return map[common.Address]uniswapv3.Pool{
		poolUSDCWETH: newPool(poolUSDCWETH, usdc, weth, 5),
		poolDAIWETH:  newPool(poolDAIWETH, dai, weth, 30),
		poolDAIUSDC:  newPool(poolDAIUSDC, dai, usdc, 1),
	}
}

func mustFinder(t *testing.T, cfg Config) *Finder {
	t.Helper()
	f, err := NewFinder(cfg)
	require.NoError(t, err)
	return f
}

func TestNewFinder_Validation(t *testing.T) {
	_, err := NewFinder(Config{})
	assert.Error(t, err)

	_, err = NewFinder(Config{Hops: []int{4}})
	assert.ErrorIs(t, err, ErrHopCount)

	_, err = NewFinder(DefaultConfig())
	assert.NoError(t, err)
}

func TestFind_Triangle(t *testing.T) {
	t.Run("one orientation by default", func(t *testing.T) {
		paths := mustFinder(t, DefaultConfig()).Find(trianglePools(), usdc)
		require.Len(t, paths, 1)

		p := paths[0]
		assert.Equal(t, []common.Address{poolUSDCWETH, poolDAIWETH, poolDAIUSDC}, p.Pools())
		assert.Equal(t, []bool{true, false, true}, zeroForOnes(p))
		assert.NoError(t, p.Validate(usdc))
	})

	t.Run("mirrors kept on request", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.KeepMirrored = true
		paths := mustFinder(t, cfg).Find(trianglePools(), usdc)
		require.Len(t, paths, 2)
		assert.Equal(t, paths[0].Reverse(), paths[1])
	})

	t.Run("any anchor on the cycle", func(t *testing.T) {
		paths := mustFinder(t, DefaultConfig()).Find(trianglePools(), weth)
		require.Len(t, paths, 1)
		assert.NoError(t, paths[0].Validate(weth))
	})

	t.Run("anchor off the graph", func(t *testing.T) {
		assert.Empty(t, mustFinder(t, DefaultConfig()).Find(trianglePools(), wbtc))
	})
}

func TestFind_TwoHop(t *testing.T) {
	pools := trianglePools()
	pools[poolUSDCWETH30] = newPool(poolUSDCWETH30, usdc, weth, 30)

	t.Run("only 2-hop", func(t *testing.T) {
		paths := mustFinder(t, Config{Hops: []int{2}}).Find(pools, usdc)
		require.Len(t, paths, 1)
		assert.Equal(t, []common.Address{poolUSDCWETH, poolUSDCWETH30}, paths[0].Pools())
		assert.NoError(t, paths[0].Validate(usdc))
	})

	t.Run("2- and 3-hop", func(t *testing.T) {
		paths := mustFinder(t, DefaultConfig()).Find(pools, usdc)
		// one 2-hop, plus the triangle through either USDC/WETH pool
		require.Len(t, paths, 3)
		assert.Equal(t, 2, paths[0].NHop())
		for _, p := range paths {
			assert.NoError(t, p.Validate(usdc), p.String())
		}
	})
}

func TestFind_Invariants(t *testing.T) {
	pools := trianglePools()
	pools[poolUSDCWETH30] = newPool(poolUSDCWETH30, usdc, weth, 30)
	pools[poolWBTCLINK] = newPool(poolWBTCLINK, wbtc, link, 30)
	pools[poolWETHLINK] = newPool(poolWETHLINK, weth, link, 30)

	cfg := DefaultConfig()
	cfg.KeepMirrored = true
	for _, anchor := range []common.Address{usdc, weth, dai, link} {
		for _, p := range mustFinder(t, cfg).Find(pools, anchor) {
			require.NoError(t, p.Validate(anchor), p.String())
			assert.False(t, p.HasPool(poolWBTCLINK), "WBTC never closes a cycle")
		}
	}
}

func TestFilterReachable(t *testing.T) {
	pools := trianglePools()
	pools[poolWBTCLINK] = newPool(poolWBTCLINK, wbtc, link, 30)
	pools[poolWETHLINK] = newPool(poolWETHLINK, weth, link, 30)

	got := FilterReachable(indexer.NewIndexablePoolRegistry(pools), usdc)

	addrs := make([]common.Address, 0, got.Len())
	for _, p := range got.All() {
		addrs = append(addrs, p.Address)
	}
	// WETH/LINK touches only one anchor neighbour, WBTC/LINK none
	assert.Equal(t, []common.Address{poolUSDCWETH, poolDAIWETH, poolDAIUSDC}, addrs)
	assert.Empty(t, got.PoolsForToken(wbtc))
	assert.Len(t, got.PoolsForToken(usdc), 2)
}

func zeroForOnes(p *ArbPath) []bool {
	out := make([]bool, len(p.Hops))
	for i, h := range p.Hops {
		out[i] = h.ZeroForOne
	}
	return out
}
