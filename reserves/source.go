package reserves

import (
	"context"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Source binds a Fetcher to its endpoints so callers only pass addresses.
type Source struct {
	fetcher  *Fetcher
	queriers []Querier
	dial     DialFunc
}

// Chunked returns a Source that fetches with FetchChunked over queriers.
func (f *Fetcher) Chunked(queriers ...Querier) *Source {
	return &Source{fetcher: f, queriers: queriers}
}

// Sharded returns a Source that fetches with FetchSharded through dial.
func (f *Fetcher) Sharded(dial DialFunc) *Source {
	return &Source{fetcher: f, dial: dial}
}

func (s *Source) Fetch(ctx context.Context, addrs []common.Address) (uniswapv3.Reserves, error) {
	if s.dial != nil {
		return s.fetcher.FetchSharded(ctx, addrs, s.dial)
	}
	return s.fetcher.FetchChunked(ctx, addrs, s.queriers)
}
