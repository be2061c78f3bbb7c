package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// MaxDecimals is the largest decimals value a pool token may carry.
const MaxDecimals = 18

// Token is a token whose decimals have been resolved on chain.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}
