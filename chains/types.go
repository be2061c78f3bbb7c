package chains

import (
	"context"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/pathfinder"
	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Chain IDs the binary knows how to run against.
const (
	Mainnet  uint64 = 1
	Arbitrum uint64 = 42161
	Base     uint64 = 8453
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TriggerFeed delivers one Trigger per refetch and recompute cycle.
// Err carries fatal, unrecoverable feed errors.
type TriggerFeed interface {
	Triggers() <-chan *engine.Trigger
	Err() <-chan error
}

// ReserveFetcher reads the current state of the given pools. Pools whose
// query fails are left out of the result; an error fails the whole fetch.
type ReserveFetcher interface {
	Fetch(ctx context.Context, addrs []common.Address) (uniswapv3.Reserves, error)
}

// PathFinder enumerates the closed cycles through anchor.
type PathFinder interface {
	Find(pools map[common.Address]uniswapv3.Pool, anchor common.Address) []*pathfinder.ArbPath
}
