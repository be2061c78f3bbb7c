package poolregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultChunkSize is the number of blocks requested per log query.
const DefaultChunkSize uint64 = 10000

var (
	// ErrConnection is returned when the chain head cannot be read before a scan.
	ErrConnection = errors.New("chain connection failed")
	// ErrScanAborted is returned when a block-range query fails mid scan.
	ErrScanAborted = errors.New("pool scan aborted")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ChainReader is the subset of ethclient.Client the catalog needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// DecimalsResolver resolves a token's decimals.
type DecimalsResolver interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Factory is a pool factory to scan for creation events.
type Factory struct {
	Address    common.Address `yaml:"address"`
	StartBlock uint64         `yaml:"startBlock"`
}

// Config holds the configuration for a Catalog.
type Config struct {
	Factories []Factory
	ChunkSize uint64
	// CachePath is the flat pool cache. Empty disables caching.
	CachePath string
	Logger    Logger
}

func (c *Config) validate() error {
	if len(c.Factories) == 0 {
		return errors.New("config: at least one Factory is required")
	}
	if c.ChunkSize == 0 {
		return errors.New("config: ChunkSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Catalog discovers pools from factory creation events and caches them.
type Catalog struct {
	cfg      Config
	reader   ChainReader
	resolver DecimalsResolver
}

// NewCatalog creates a Catalog.
func NewCatalog(cfg Config, reader ChainReader, resolver DecimalsResolver) (*Catalog, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reader == nil || resolver == nil {
		return nil, errors.New("poolregistry: reader and resolver are required")
	}
	return &Catalog{cfg: cfg, reader: reader, resolver: resolver}, nil
}

// Load returns the pool set. A non-empty cache replaces scanning entirely;
// otherwise every factory is scanned up to the current head and the result
// is written to the cache.
func (c *Catalog) Load(ctx context.Context) (map[common.Address]uniswapv3.Pool, error) {
	if c.cfg.CachePath != "" {
		cached, err := ReadCache(c.cfg.CachePath)
		switch {
		case err != nil:
			c.cfg.Logger.Warn("Pool cache unreadable, rescanning", "path", c.cfg.CachePath, "error", err)
		case len(cached) > 0:
			c.cfg.Logger.Info("Loaded pools from cache", "path", c.cfg.CachePath, "pools", len(cached))
			return cached, nil
		}
	}

	head, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	start := time.Now()
	pools := make(map[common.Address]uniswapv3.Pool)
	for _, f := range c.cfg.Factories {
		if err := c.scanFactory(ctx, f, head, pools); err != nil {
			return nil, err
		}
	}
	c.cfg.Logger.Info("Pool scan complete", "pools", len(pools), "head", head, "duration_ms", time.Since(start).Milliseconds())

	if c.cfg.CachePath != "" {
		if err := WriteCache(c.cfg.CachePath, pools); err != nil {
			c.cfg.Logger.Error("Failed to write pool cache", "path", c.cfg.CachePath, "error", err)
		}
	}
	return pools, nil
}
