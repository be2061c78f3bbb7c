package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"time"

	"github.com/defistate/defistate-arb-go/chains"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry"
	"github.com/defistate/defistate-arb-go/reserves"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMetricsAddr  = ":9464"
	DefaultPoolCache    = ".cached-pools.csv"
	DefaultCycleTimeout = 10 * time.Second
)

// ReserveConfig selects how pool state is read each cycle.
type ReserveConfig struct {
	// Endpoints are the RPC URLs reserve queries are spread over.
	// Empty uses the main RPC URL.
	Endpoints []string `yaml:"endpoints"`
	ChunkSize int      `yaml:"chunkSize"`
	// Shards > 0 reads through that many dedicated connections instead of
	// the shared endpoint clients.
	Shards int `yaml:"shards"`
}

// TradeConfig holds the amounts, in anchor units, used to quote and size trades.
type TradeConfig struct {
	QuoteAmount string           `yaml:"quoteAmount"`
	MaxAmountIn string           `yaml:"maxAmountIn"`
	Step        string           `yaml:"step"`
	Routers     []common.Address `yaml:"routers"`
}

// ArbConfig holds the configuration of the arbpath binary.
type ArbConfig struct {
	ChainID       *big.Int               `yaml:"-"`
	RawChainID    uint64                 `yaml:"chainId"`
	RPCURL        string                 `yaml:"rpcUrl"`
	WSURL         string                 `yaml:"wsUrl"`
	Anchor        common.Address         `yaml:"anchor"`
	Factories     []poolregistry.Factory `yaml:"factories"`
	ScanChunkSize uint64                 `yaml:"scanChunkSize"`
	PoolCache     string                 `yaml:"poolCache"`
	Reserves      ReserveConfig          `yaml:"reserves"`
	Trade         TradeConfig            `yaml:"trade"`
	CycleTimeout  time.Duration          `yaml:"cycleTimeout"`
	MaxReconnects int                    `yaml:"maxReconnects"`
	MetricsAddr   string                 `yaml:"metricsAddr"`
}

// LoadConfig reads the env file, if present, then the YAML file at path.
// ${VAR} references in the YAML are expanded from the environment before
// parsing.
func LoadConfig(path, envPath string) (*ArbConfig, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

// Parse decodes an already expanded YAML document, applies defaults and
// validates the result.
func Parse(data []byte) (*ArbConfig, error) {
	cfg := &ArbConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.ChainID = new(big.Int).SetUint64(cfg.RawChainID)
	return cfg, nil
}

func (c *ArbConfig) applyDefaults() {
	if c.ScanChunkSize == 0 {
		c.ScanChunkSize = poolregistry.DefaultChunkSize
	}
	if c.PoolCache == "" {
		c.PoolCache = DefaultPoolCache
	}
	if len(c.Reserves.Endpoints) == 0 && c.RPCURL != "" {
		c.Reserves.Endpoints = []string{c.RPCURL}
	}
	if c.Reserves.ChunkSize == 0 {
		c.Reserves.ChunkSize = reserves.DefaultChunkSize
	}
	if c.Trade.QuoteAmount == "" {
		c.Trade.QuoteAmount = "1"
	}
	if c.Trade.MaxAmountIn == "" {
		c.Trade.MaxAmountIn = "100"
	}
	if c.Trade.Step == "" {
		c.Trade.Step = "1"
	}
	if c.CycleTimeout == 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
}

func (c *ArbConfig) validate() error {
	switch c.RawChainID {
	case chains.Mainnet, chains.Arbitrum, chains.Base:
	case 0:
		return errors.New("config: chainId is required")
	default:
		return fmt.Errorf("config: unsupported chainId %d", c.RawChainID)
	}
	if c.RPCURL == "" {
		return errors.New("config: rpcUrl is required")
	}
	if c.WSURL == "" {
		return errors.New("config: wsUrl is required")
	}
	if c.Anchor == (common.Address{}) {
		return errors.New("config: anchor is required")
	}
	if len(c.Factories) == 0 {
		return errors.New("config: at least one factory is required")
	}
	for i, f := range c.Factories {
		if f.Address == (common.Address{}) {
			return fmt.Errorf("config: factories[%d]: address is required", i)
		}
	}
	if c.Reserves.ChunkSize < 1 {
		return errors.New("config: reserves.chunkSize must be greater than 0")
	}
	if c.Reserves.Shards < 0 {
		return errors.New("config: reserves.shards must not be negative")
	}
	if c.MaxReconnects < 0 {
		return errors.New("config: maxReconnects must not be negative")
	}
	if c.CycleTimeout < 0 {
		return errors.New("config: cycleTimeout must not be negative")
	}

	quote, maxIn, step, err := c.Trade.Amounts()
	if err != nil {
		return err
	}
	if !quote.IsPositive() {
		return errors.New("config: trade.quoteAmount must be positive")
	}
	if !step.IsPositive() {
		return errors.New("config: trade.step must be positive")
	}
	if maxIn.LessThan(step) {
		return errors.New("config: trade.maxAmountIn must be at least trade.step")
	}
	return nil
}

// Amounts parses the quote amount, the optimizer's upper bound and its step.
func (t TradeConfig) Amounts() (quote, maxIn, step decimal.Decimal, err error) {
	if quote, err = decimal.NewFromString(t.QuoteAmount); err != nil {
		return quote, maxIn, step, fmt.Errorf("config: trade.quoteAmount: %w", err)
	}
	if maxIn, err = decimal.NewFromString(t.MaxAmountIn); err != nil {
		return quote, maxIn, step, fmt.Errorf("config: trade.maxAmountIn: %w", err)
	}
	if step, err = decimal.NewFromString(t.Step); err != nil {
		return quote, maxIn, step, fmt.Errorf("config: trade.step: %w", err)
	}
	return quote, maxIn, step, nil
}
