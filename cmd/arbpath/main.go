package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-arb-go/chains"
	"github.com/defistate/defistate-arb-go/chains/ethereum"
	"github.com/defistate/defistate-arb-go/cmd/arbpath/config"
	"github.com/defistate/defistate-arb-go/protocols/poolregistry"
	"github.com/defistate/defistate-arb-go/protocols/tokenregistry"
	"github.com/defistate/defistate-arb-go/reserves"
	"github.com/defistate/defistate-arb-go/streams/heads"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	rootLogger := slog.New(rootLogHandler)
	close := func() {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsServer := serveMetrics(cfg.MetricsAddr, registry, rootLogger.With("component", "metrics"))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		rootLogger.Error("Failed to connect to RPC", "chain_id", cfg.ChainID, "error", err)
		close()
	}
	defer ec.Close()

	resolver := tokenregistry.NewResolver(ec)
	catalog, err := poolregistry.NewCatalog(
		poolregistry.Config{
			Factories: cfg.Factories,
			ChunkSize: cfg.ScanChunkSize,
			CachePath: cfg.PoolCache,
			Logger:    rootLogger.With("component", "pool-catalog"),
		},
		ec,
		resolver,
	)
	if err != nil {
		rootLogger.Error("Failed to initialize pool catalog", "error", err)
		close()
	}

	pools, err := catalog.Load(ctx)
	if err != nil {
		rootLogger.Error("Failed to load pools", "error", err)
		close()
	}
	rootLogger.Info("Pool catalog loaded", "pools", len(pools), "tokens_resolved", len(resolver.Known()))

	source, err := newReserveSource(ctx, cfg, registry, rootLogger.With("component", "reserves"))
	if err != nil {
		rootLogger.Error("Failed to initialize reserve fetcher", "error", err)
		close()
	}

	watched := make([]common.Address, 0, len(pools))
	for addr := range pools {
		watched = append(watched, addr)
	}
	feed, err := heads.NewClient(ctx, heads.Config{
		URL:           cfg.WSURL,
		Logger:        rootLogger.With("component", "heads"),
		Watched:       watched,
		MaxReconnects: cfg.MaxReconnects,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize heads client", "error", err)
		close()
	}

	quote, maxIn, step, err := cfg.Trade.Amounts()
	if err != nil {
		rootLogger.Error("Invalid trade amounts", "error", err)
		close()
	}

	client, err := ethereum.Dial(
		ctx,
		ethereum.Config{
			Anchor:   cfg.Anchor,
			Pools:    pools,
			Feed:     feed,
			Fetcher:  source,
			Logger:   rootLogger.With("component", "pipeline", "chain_id", cfg.ChainID),
			Registry: registry,
		},
		ethereum.WithCycleTimeout(cfg.CycleTimeout),
		ethereum.WithQuoteAmount(quote),
		ethereum.WithOptimizer(maxIn, step),
		ethereum.WithRouters(cfg.Trade.Routers...),
	)
	if err != nil {
		rootLogger.Error("Failed to initialize pipeline", "chain_id", cfg.ChainID, "error", err)
		close()
	}

	for {
		select {
		case state, ok := <-client.State():
			if !ok {
				return
			}
			logState(rootLogger, state)
		case err, ok := <-client.Err():
			if !ok {
				return
			}
			rootLogger.Warn("Cycle failed, keeping previous reserves", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// newReserveSource builds the chunked source over shared endpoint clients, or
// the sharded source when shards are configured.
func newReserveSource(ctx context.Context, cfg *config.ArbConfig, reg prometheus.Registerer, logger *slog.Logger) (chains.ReserveFetcher, error) {
	fetcher, err := reserves.NewFetcher(reserves.Config{
		ChunkSize: cfg.Reserves.ChunkSize,
		Shards:    max(cfg.Reserves.Shards, 1),
		Logger:    logger,
		Registry:  reg,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Reserves.Shards > 0 {
		return fetcher.Sharded(reserves.DialEndpoints(cfg.Reserves.Endpoints...)), nil
	}

	queriers := make([]reserves.Querier, 0, len(cfg.Reserves.Endpoints))
	for _, url := range cfg.Reserves.Endpoints {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, err
		}
		context.AfterFunc(ctx, ec.Close)
		queriers = append(queriers, reserves.NewContractQuerier(ec))
	}
	return fetcher.Chunked(queriers...), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}

func logState(logger *slog.Logger, state *ethereum.State) {
	if state.Block.Number == nil {
		return
	}
	negative := 0
	for _, r := range state.Routes {
		if r.NegativeCycle {
			negative++
		}
	}
	logger.Info("State received",
		"block", state.Block.Number,
		"changed", len(state.Changed),
		"routes", len(state.Routes),
		"negative_cycles", negative,
		"opportunities", len(state.Opportunities),
		"latency_ms", (int64(state.ProcessedAtUnixNs)-state.Block.ReceivedAt)/int64(time.Millisecond),
	)
	for _, opp := range state.Opportunities {
		logger.Info("Opportunity",
			"block", state.Block.Number,
			"pools", opp.Path.Pools(),
			"spread_pct", opp.Spread.StringFixed(4),
			"amount_in", opp.AmountIn.String(),
			"profit", opp.Profit.String(),
		)
	}
}

func loadConfig() (*config.ArbConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	envPath := flag.String("env", ".env", "Optional env file loaded before the configuration.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath, *envPath)
}
