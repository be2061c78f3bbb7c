package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-arb-go/chains"
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/grapher"
	"github.com/defistate/defistate-arb-go/pathfinder"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/defistate/defistate-arb-go/solver"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const DefaultCycleTimeout = 10 * time.Second

var (
	ErrFetch        = errors.New("reserve fetch failed")
	ErrCycleTimeout = errors.New("cycle deadline exceeded")
)

// Config holds the required dependencies of a Client.
type Config struct {
	Anchor   common.Address
	Pools    map[common.Address]uniswapv3.Pool
	Feed     chains.TriggerFeed
	Fetcher  chains.ReserveFetcher
	Logger   chains.Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Anchor == (common.Address{}) {
		return errors.New("config: Anchor is required")
	}
	if len(c.Pools) == 0 {
		return errors.New("config: Pools must not be empty")
	}
	if c.Feed == nil {
		return errors.New("config: Feed is required")
	}
	if c.Fetcher == nil {
		return errors.New("config: Fetcher is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Client runs one refetch and recompute cycle per trigger.
// Its lifecycle is bound to the context passed during Dial.
type Client struct {
	feed    chains.TriggerFeed
	fetcher chains.ReserveFetcher
	finder  chains.PathFinder
	logger  chains.Logger
	metrics *Metrics
	stateCh chan *State
	errCh   chan error

	anchor   common.Address
	pools    []uniswapv3.Pool
	paths    []*pathfinder.ArbPath
	reserves uniswapv3.Reserves

	cycleTimeout time.Duration
	tickWindow   int64
	sources      []grapher.NodeKey
	routers      []common.Address
	quoteAmount  decimal.Decimal
	maxIn        decimal.Decimal
	step         decimal.Decimal

	ctx context.Context
	wg  sync.WaitGroup
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after Dial.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(p *Client) {
	f(p)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// Opportunity is a touched path whose quote trade gained value.
type Opportunity struct {
	Path       *pathfinder.ArbPath
	Spread     decimal.Decimal // percent, for the quote amount
	AmountIn   decimal.Decimal
	Profit     decimal.Decimal
	PathParams []pathfinder.PathParam
}

// State is the output of one cycle.
type State struct {
	Block    engine.BlockSummary
	Anchor   common.Address
	Reserves uniswapv3.Reserves
	Changed  []common.Address

	// Routes holds one solver result per source edge-node.
	Routes            map[grapher.NodeKey]*solver.Result
	Opportunities     []Opportunity
	ProcessedAtUnixNs uint64
}

// Dial filters the pool set down to what can reach the anchor, enumerates
// its cycles once and starts the processing loop.
// The returned Client will remain active until the provided ctx is cancelled.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	finder, err := pathfinder.NewFinder(pathfinder.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create path finder: %w", err)
	}

	p := &Client{
		feed:         cfg.Feed,
		fetcher:      cfg.Fetcher,
		finder:       finder,
		logger:       cfg.Logger,
		metrics:      NewMetrics(cfg.Registry),
		stateCh:      make(chan *State, 1),
		errCh:        make(chan error, 1),
		anchor:       cfg.Anchor,
		cycleTimeout: DefaultCycleTimeout,
		tickWindow:   grapher.DefaultTickWindow,
		quoteAmount:  decimal.NewFromInt(1),
		maxIn:        decimal.NewFromInt(100),
		step:         decimal.NewFromInt(1),
	}

	for _, opt := range opts {
		opt.apply(p)
	}

	p.pools = pathfinder.FilterReachable(indexer.NewIndexablePoolRegistry(cfg.Pools), cfg.Anchor).All()
	p.paths = p.finder.Find(cfg.Pools, cfg.Anchor)
	p.metrics.trackedPools.Set(float64(len(p.pools)))

	// Bind the Client's lifecycle to the user-provided context
	p.ctx = ctx
	p.wg.Add(1)
	go p.loop()

	p.logger.Info("Client started", "anchor", cfg.Anchor.Hex(), "pools", len(cfg.Pools), "tracked", len(p.pools), "paths", len(p.paths))
	return p, nil
}

// State channel is best-effort; if consumer is slow, updates may be dropped
func (p *Client) State() <-chan *State {
	return p.stateCh
}

// Err carries per-cycle failures, best-effort, and a final fatal feed error.
func (p *Client) Err() <-chan error {
	return p.errCh
}

// Paths returns the memoized cycles through the anchor.
func (p *Client) Paths() []*pathfinder.ArbPath {
	return p.paths
}

func (p *Client) loop() {
	defer p.wg.Done()
	defer func() {
		close(p.stateCh)
		close(p.errCh)
		p.logger.Info("Client stopped")
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case err, ok := <-p.feed.Err():
			if !ok {
				if p.ctx.Err() != nil {
					return
				}
				p.logger.Error("Trigger feed error channel closed")
				return
			}
			p.logger.Error("Fatal feed error", "err", err)
			select {
			case p.errCh <- err:
			case <-p.ctx.Done():
			}
			return

		case trig, ok := <-p.feed.Triggers():
			if !ok {
				if p.ctx.Err() != nil {
					return
				}
				p.logger.Error("Trigger channel closed")
				return
			}

			processed, err := p.runCycle(trig)
			if err != nil {
				p.metrics.cycles.WithLabelValues(outcomeError).Inc()
				p.logger.Error("Cycle failed, keeping previous reserves", "block", trig.Block.Number, "err", err)
				select {
				case p.errCh <- err:
				default:
				}
				continue
			}
			if processed == nil {
				p.metrics.cycles.WithLabelValues(outcomeSkipped).Inc()
				continue
			}
			p.metrics.cycles.WithLabelValues(outcomeOK).Inc()

			select {
			case p.stateCh <- processed:
			case <-p.ctx.Done():
				return
			default:
				p.logger.Warn("State buffer full, discarding processed state...", "block", trig.Block.Number)
			}
		}
	}
}

// runCycle refetches reserves and recomputes routes and opportunities. On any
// error the previous reserves stay in place. A nil State without error means
// the trigger touched nothing this client tracks.
func (p *Client) runCycle(trig *engine.Trigger) (*State, error) {
	addrs, partial := p.fetchSet(trig)
	if len(addrs) == 0 {
		p.logger.Debug("Trigger touches no tracked pool, skipping", "block", trig.Block.Number)
		return nil, nil
	}

	timer := prometheus.NewTimer(p.metrics.cycleDuration)
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(p.ctx, p.cycleTimeout)
	defer cancel()

	fetchStart := time.Now()
	fetched, err := p.fetcher.Fetch(ctx, addrs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("block %v: %w: %w", trig.Block.Number, ErrCycleTimeout, err)
		}
		return nil, fmt.Errorf("block %v: %w: %w", trig.Block.Number, ErrFetch, err)
	}
	p.logger.Debug("Reserves fetched", "block", trig.Block.Number, "requested", len(addrs), "fetched", len(fetched), "duration_ms", time.Since(fetchStart).Milliseconds())

	diff := uniswapv3.Differ(p.reserves, fetched, partial)
	next, err := uniswapv3.Patcher(p.reserves, diff)
	if err != nil {
		return nil, fmt.Errorf("block %v: failed to patch reserves: %w", trig.Block.Number, err)
	}

	graphStart := time.Now()
	lg := grapher.BuildLineGraph(grapher.BuildTokenGraph(p.pools, next, p.tickWindow))
	routes := p.solve(lg)
	var opportunities []Opportunity
	if !diff.IsEmpty() {
		opportunities = p.scan(diff.Changed(), next)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("block %v: %w: %w", trig.Block.Number, ErrCycleTimeout, err)
	}
	p.reserves = next
	p.metrics.opportunities.Set(float64(len(opportunities)))

	p.logger.Info("Cycle complete",
		"block", trig.Block.Number,
		"changed", len(diff.Changed()),
		"nodes", len(lg.Nodes),
		"edges", len(lg.Edges),
		"routes", len(routes),
		"opportunities", len(opportunities),
		"duration_ms", time.Since(graphStart).Milliseconds(),
	)

	return &State{
		Block:             trig.Block,
		Anchor:            p.anchor,
		Reserves:          next,
		Changed:           diff.Changed(),
		Routes:            routes,
		Opportunities:     opportunities,
		ProcessedAtUnixNs: uint64(time.Now().UnixNano()),
	}, nil
}

// fetchSet returns the pools to query. The first cycle, and any trigger
// without touched pools, refetches every tracked pool.
func (p *Client) fetchSet(trig *engine.Trigger) ([]common.Address, bool) {
	if p.reserves == nil || len(trig.TouchedPools) == 0 {
		addrs := make([]common.Address, len(p.pools))
		for i, pool := range p.pools {
			addrs[i] = pool.Address
		}
		return addrs, false
	}

	var addrs []common.Address
	for _, pool := range p.pools {
		if trig.Touches(pool.Address) {
			addrs = append(addrs, pool.Address)
		}
	}
	return addrs, true
}

// solve runs the solver from every configured source, or from every edge
// leaving the anchor when none is configured.
func (p *Client) solve(lg *grapher.LineGraph) map[grapher.NodeKey]*solver.Result {
	sources := p.sources
	if len(sources) == 0 {
		for _, n := range lg.Nodes {
			if n.From == p.anchor {
				sources = append(sources, n)
			}
		}
	}

	routes := make(map[grapher.NodeKey]*solver.Result, len(sources))
	for _, src := range sources {
		res, err := solver.Solve(lg, src)
		if err != nil {
			p.logger.Debug("Skipping source", "source", src.String(), "err", err)
			continue
		}
		if res.NegativeCycle {
			p.metrics.negCycles.Inc()
			p.logger.Warn("Negative cycle detected, distances are not final", "source", src.String(), "nodes", len(res.CycleNodes))
		}
		routes[src] = res
	}
	return routes
}

// scan simulates every path, in both orientations, that trades through a
// changed pool. Paths with a positive spread are sized with OptimizeAmountIn.
func (p *Client) scan(changed []common.Address, reserves uniswapv3.Reserves) []Opportunity {
	var out []Opportunity
	seen := make(map[string]struct{})
	for _, path := range p.paths {
		if !touches(path, changed) {
			continue
		}
		for _, candidate := range []*pathfinder.ArbPath{path, path.Reverse()} {
			if _, dup := seen[candidate.Key()]; dup {
				continue
			}
			seen[candidate.Key()] = struct{}{}

			spread := candidate.Spread(p.quoteAmount, reserves)
			if !spread.IsPositive() {
				continue
			}
			amountIn, profit, err := candidate.OptimizeAmountIn(p.maxIn, p.step, reserves)
			if err != nil {
				p.logger.Warn("Failed to size opportunity", "path", candidate.String(), "err", err)
				continue
			}
			out = append(out, Opportunity{
				Path:       candidate,
				Spread:     spread,
				AmountIn:   amountIn,
				Profit:     profit,
				PathParams: p.pathParams(candidate),
			})
		}
	}
	return out
}

func (p *Client) pathParams(path *pathfinder.ArbPath) []pathfinder.PathParam {
	if len(p.routers) == 0 {
		return nil
	}
	routers := p.routers
	if len(routers) == 1 {
		routers = make([]common.Address, path.NHop())
		for i := range routers {
			routers[i] = p.routers[0]
		}
	}
	params, err := path.ToPathParams(routers)
	if err != nil {
		p.logger.Debug("No path params", "path", path.String(), "err", err)
		return nil
	}
	return params
}

func touches(path *pathfinder.ArbPath, pools []common.Address) bool {
	for _, pool := range pools {
		if path.HasPool(pool) {
			return true
		}
	}
	return false
}

// Options Constructors for the Client

func WithPathFinder(finder chains.PathFinder) Option {
	return newOption(func(p *Client) {
		p.finder = finder
	})
}

func WithCycleTimeout(d time.Duration) Option {
	return newOption(func(p *Client) {
		p.cycleTimeout = d
	})
}

func WithTickWindow(window int64) Option {
	return newOption(func(p *Client) {
		p.tickWindow = window
	})
}

// WithSources pins the solver to the given edge-nodes.
func WithSources(sources ...grapher.NodeKey) Option {
	return newOption(func(p *Client) {
		p.sources = sources
	})
}

// WithRouters sets one router per hop, or a single router used for every hop.
func WithRouters(routers ...common.Address) Option {
	return newOption(func(p *Client) {
		p.routers = routers
	})
}

// WithQuoteAmount sets the input, in whole anchor units, used to measure spreads.
func WithQuoteAmount(amount decimal.Decimal) Option {
	return newOption(func(p *Client) {
		p.quoteAmount = amount
	})
}

// WithOptimizer sets the scan range of OptimizeAmountIn.
func WithOptimizer(maxIn, step decimal.Decimal) Option {
	return newOption(func(p *Client) {
		p.maxIn = maxIn
		p.step = step
	})
}
