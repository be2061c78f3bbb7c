// Package reserves reads the live state of many pools at once, either by
// spreading fixed-size chunks over a set of endpoints or by handing each
// shard of the pool set to a worker with its own connection.
package reserves

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the largest number of pools one chunked task queries.
const DefaultChunkSize = 200

var (
	ErrNoQueriers  = errors.New("no queriers")
	ErrShardFailed = errors.New("shard failed")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DialFunc opens a dedicated connection for one shard worker.
type DialFunc func(ctx context.Context, shard int) (Querier, error)

// Config holds the settings of a Fetcher.
type Config struct {
	ChunkSize int
	Shards    int
	Logger    Logger
	Registry  prometheus.Registerer
}

func (c *Config) validate() error {
	if c.ChunkSize < 1 {
		return errors.New("config: ChunkSize must be greater than 0")
	}
	if c.Shards < 1 {
		return errors.New("config: Shards must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Fetcher reads pool state concurrently. It never retries; a failed fetch
// is reported to the caller, which decides whether to keep stale state.
type Fetcher struct {
	chunkSize int
	shards    int
	logger    Logger
	metrics   *Metrics
}

func NewFetcher(cfg Config) (*Fetcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Fetcher{
		chunkSize: cfg.ChunkSize,
		shards:    cfg.Shards,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
	}, nil
}

// FetchChunked splits addrs into ceil(n/ChunkSize) near-equal chunks and
// queries chunk i through queriers[i mod len(queriers)], all chunks at once.
// Pools whose query fails are logged and left out.
func (f *Fetcher) FetchChunked(ctx context.Context, addrs []common.Address, queriers []Querier) (uniswapv3.Reserves, error) {
	if len(queriers) == 0 {
		return nil, ErrNoQueriers
	}
	timer := prometheus.NewTimer(f.metrics.fetchDuration.WithLabelValues(modeChunked))
	defer timer.ObserveDuration()

	batches := split(addrs, (len(addrs)+f.chunkSize-1)/f.chunkSize)
	results := make([]uniswapv3.Reserves, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		q := queriers[i%len(queriers)]
		g.Go(func() error {
			got, err := f.queryAll(gctx, q, batch, modeChunked)
			results[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(uniswapv3.Reserves, len(addrs))
	for _, r := range results {
		for addr, state := range r {
			out[addr] = state
		}
	}
	f.logger.Debug("chunked fetch complete", "pools", len(addrs), "chunks", len(batches), "fetched", len(out))
	return out, nil
}

// FetchSharded gives each of Shards workers an exclusive slice of addrs and
// its own connection from dial. Every worker reports its result as JSON with
// exact decimal strings; reports are merged once all have arrived. The first
// failing shard cancels the others and fails the fetch with ErrShardFailed.
func (f *Fetcher) FetchSharded(ctx context.Context, addrs []common.Address, dial DialFunc) (uniswapv3.Reserves, error) {
	timer := prometheus.NewTimer(f.metrics.fetchDuration.WithLabelValues(modeSharded))
	defer timer.ObserveDuration()

	shards := split(addrs, min(f.shards, len(addrs)))
	reports := make([][]byte, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, subset := range shards {
		g.Go(func() error {
			report, err := f.runShard(gctx, i, subset, dial)
			if err != nil {
				if errors.Is(err, ErrShardFailed) {
					f.metrics.shardFailures.Inc()
				}
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(uniswapv3.Reserves, len(addrs))
	for i, report := range reports {
		if err := mergeReport(out, report); err != nil {
			f.metrics.shardFailures.Inc()
			return nil, fmt.Errorf("%w: shard %d: %w", ErrShardFailed, i, err)
		}
	}
	f.logger.Debug("sharded fetch complete", "pools", len(addrs), "shards", len(shards), "fetched", len(out))
	return out, nil
}

func (f *Fetcher) runShard(ctx context.Context, shard int, subset []common.Address, dial DialFunc) ([]byte, error) {
	q, err := dial(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("%w: shard %d: dial: %w", ErrShardFailed, shard, err)
	}
	if c, ok := q.(interface{ Close() }); ok {
		defer c.Close()
	}

	got, err := f.queryAll(ctx, q, subset, modeSharded)
	if err != nil {
		return nil, err
	}
	return encodeReport(got)
}

// queryAll reads every pool in addrs through q. Per-pool failures are
// skipped; a cancelled context ends the batch with its error.
func (f *Fetcher) queryAll(ctx context.Context, q Querier, addrs []common.Address, mode string) (uniswapv3.Reserves, error) {
	out := make(uniswapv3.Reserves, len(addrs))
	for _, addr := range addrs {
		state, err := q.Reserve(ctx, addr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			f.logger.Warn("skipping pool, state query failed", "pool", addr.Hex(), "err", err)
			f.metrics.poolsSkipped.WithLabelValues(mode).Inc()
			continue
		}
		out[addr] = state
	}
	f.metrics.poolsFetched.WithLabelValues(mode).Add(float64(len(out)))
	return out, nil
}

// split cuts addrs into min(parts, n) contiguous slices whose sizes differ
// by at most one; the first n mod parts slices take the extra element.
func split(addrs []common.Address, parts int) [][]common.Address {
	if parts < 1 || len(addrs) == 0 {
		return nil
	}
	parts = min(parts, len(addrs))
	size, extra := len(addrs)/parts, len(addrs)%parts
	out := make([][]common.Address, 0, parts)
	for i, start := 0, 0; i < parts; i++ {
		end := start + size
		if i < extra {
			end++
		}
		out = append(out, addrs[start:end])
		start = end
	}
	return out
}

type shardReport struct {
	Pools []poolReport `json:"pools"`
}

type poolReport struct {
	Address      common.Address `json:"address"`
	SqrtPriceX96 string         `json:"sqrtPriceX96"`
	Liquidity    string         `json:"liquidity"`
	Tick         string         `json:"tick"`
	Fee          string         `json:"fee"`
}

func encodeReport(states uniswapv3.Reserves) ([]byte, error) {
	report := shardReport{Pools: make([]poolReport, 0, len(states))}
	for addr, s := range states {
		report.Pools = append(report.Pools, poolReport{
			Address:      addr,
			SqrtPriceX96: s.SqrtPriceX96.String(),
			Liquidity:    s.Liquidity.String(),
			Tick:         strconv.FormatInt(s.Tick, 10),
			Fee:          strconv.FormatUint(uint64(s.Fee), 10),
		})
	}
	return json.Marshal(report)
}

// mergeReport decodes one shard report into out, restoring every integer
// exactly.
func mergeReport(out uniswapv3.Reserves, raw []byte) error {
	var report shardReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("malformed report: %w", err)
	}
	for _, p := range report.Pools {
		sqrtP, err := uint256.FromDecimal(p.SqrtPriceX96)
		if err != nil {
			return fmt.Errorf("pool %s: sqrtPriceX96 %q: %w", p.Address.Hex(), p.SqrtPriceX96, err)
		}
		liquidity, err := uint256.FromDecimal(p.Liquidity)
		if err != nil {
			return fmt.Errorf("pool %s: liquidity %q: %w", p.Address.Hex(), p.Liquidity, err)
		}
		tick, err := strconv.ParseInt(p.Tick, 10, 64)
		if err != nil {
			return fmt.Errorf("pool %s: tick %q: %w", p.Address.Hex(), p.Tick, err)
		}
		fee, err := strconv.ParseUint(p.Fee, 10, 32)
		if err != nil {
			return fmt.Errorf("pool %s: fee %q: %w", p.Address.Hex(), p.Fee, err)
		}
		out[p.Address] = uniswapv3.ReserveState{
			SqrtPriceX96: sqrtP.ToBig(),
			Liquidity:    liquidity.ToBig(),
			Tick:         tick,
			Fee:          uint32(fee),
		}
	}
	return nil
}
