package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-arb-go/reserves"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
chainId: 1
rpcUrl: "https://eth.example.org/v2/${TEST_RPC_KEY}"
wsUrl: "wss://eth.example.org/ws/${TEST_RPC_KEY}"
anchor: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
factories:
  - address: "0x1F98431c8aD98523631AE4a59f267346ea31F984"
    startBlock: 12369621
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("expands env vars from the env file", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)
		envPath := writeFile(t, dir, ".env", "TEST_RPC_KEY=secret123\n")
		t.Cleanup(func() { os.Unsetenv("TEST_RPC_KEY") })

		cfg, err := LoadConfig(cfgPath, envPath)
		require.NoError(t, err)

		assert.Equal(t, "https://eth.example.org/v2/secret123", cfg.RPCURL)
		assert.Equal(t, "wss://eth.example.org/ws/secret123", cfg.WSURL)
		assert.Equal(t, uint64(1), cfg.ChainID.Uint64())
		assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), cfg.Anchor)
		require.Len(t, cfg.Factories, 1)
		assert.Equal(t, uint64(12369621), cfg.Factories[0].StartBlock)
	})

	t.Run("missing env file is ignored", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("TEST_RPC_KEY", "fromenv")
		cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)

		cfg, err := LoadConfig(cfgPath, filepath.Join(dir, "missing.env"))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(cfg.RPCURL, "/fromenv"))
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "")
		assert.Error(t, err)
	})
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultPoolCache, cfg.PoolCache)
	assert.Equal(t, []string{cfg.RPCURL}, cfg.Reserves.Endpoints)
	assert.Equal(t, reserves.DefaultChunkSize, cfg.Reserves.ChunkSize)
	assert.Zero(t, cfg.Reserves.Shards)
	assert.Equal(t, DefaultCycleTimeout, cfg.CycleTimeout)
	assert.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr)

	quote, maxIn, step, err := cfg.Trade.Amounts()
	require.NoError(t, err)
	assert.Equal(t, "1", quote.String())
	assert.Equal(t, "100", maxIn.String())
	assert.Equal(t, "1", step.String())
}

func TestParse_Overrides(t *testing.T) {
	doc := minimalYAML + `
reserves:
  endpoints: ["https://a.example.org", "https://b.example.org"]
  chunkSize: 50
  shards: 4
trade:
  quoteAmount: "0.5"
  maxAmountIn: "20"
  step: "0.25"
  routers: ["0xE592427A0AEce92De3Edee1F18E0157C05861564"]
cycleTimeout: 3s
maxReconnects: 5
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Len(t, cfg.Reserves.Endpoints, 2)
	assert.Equal(t, 50, cfg.Reserves.ChunkSize)
	assert.Equal(t, 4, cfg.Reserves.Shards)
	assert.Equal(t, 3*time.Second, cfg.CycleTimeout)
	assert.Equal(t, 5, cfg.MaxReconnects)
	assert.Equal(t, []common.Address{common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")}, cfg.Trade.Routers)

	_, _, step, err := cfg.Trade.Amounts()
	require.NoError(t, err)
	assert.Equal(t, "0.25", step.String())
}

func TestParse_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		replace [2]string
		extra   string
	}{
		{name: "missing chain id", replace: [2]string{"chainId: 1", ""}},
		{name: "unsupported chain", replace: [2]string{"chainId: 1", "chainId: 56"}},
		{name: "missing rpc url", replace: [2]string{`rpcUrl: "https://eth.example.org/v2/${TEST_RPC_KEY}"`, ""}},
		{name: "missing ws url", replace: [2]string{`wsUrl: "wss://eth.example.org/ws/${TEST_RPC_KEY}"`, ""}},
		{name: "missing anchor", replace: [2]string{`anchor: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"`, ""}},
		{name: "negative shards", extra: "reserves:\n  shards: -1\n"},
		{name: "negative reconnects", extra: "maxReconnects: -2\n"},
		{name: "zero step", extra: "trade:\n  step: \"0\"\n"},
		{name: "bad amount", extra: "trade:\n  quoteAmount: \"one\"\n"},
		{name: "max below step", extra: "trade:\n  maxAmountIn: \"0.5\"\n"},
		{name: "malformed yaml", extra: "factories: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := minimalYAML
			if tc.replace[0] != "" {
				doc = strings.Replace(doc, tc.replace[0], tc.replace[1], 1)
			}
			_, err := Parse([]byte(doc + tc.extra))
			assert.Error(t, err)
		})
	}

	t.Run("factory without address", func(t *testing.T) {
		doc := minimalYAML + "  - startBlock: 5\n"
		_, err := Parse([]byte(doc))
		assert.Error(t, err)
	})
}
