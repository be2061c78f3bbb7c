// Package heads turns a node's new-head subscription into pipeline triggers.
package heads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

var ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL    string
	Logger Logger
	// Watched limits triggers to swaps on these pools. Empty watches every pool.
	Watched []common.Address
	// MaxReconnects is the number of consecutive failed connection attempts
	// after which the client gives up. Zero retries forever.
	MaxReconnects int
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.MaxReconnects < 0 {
		return errors.New("config: MaxReconnects must not be negative")
	}
	return nil
}

// Client manages the connection and uses BlockProcessor for logic.
type Client struct {
	processor     *BlockProcessor
	errCh         chan error
	logger        Logger
	maxReconnects int
	initialDelay  time.Duration
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor:     NewBlockProcessor(cfg.Logger, cfg.Watched),
		errCh:         make(chan error, 1),
		logger:        cfg.Logger,
		maxReconnects: cfg.MaxReconnects,
		initialDelay:  initialReconnectDelay,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Triggers delegates to the processor's trigger channel.
func (c *Client) Triggers() <-chan *engine.Trigger {
	return c.processor.Triggers()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds heads to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := c.initialDelay
	failures := 0

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err == nil {
			c.logger.Info("Successfully connected to RPC server.")
			err = c.subscribeAndProcess(ctx, ethclient.NewClient(rpcClient))
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			if errors.Is(err, errSubscribed) {
				// the connection worked before it dropped
				failures = 0
				reconnectDelay = c.initialDelay
			}
		}

		failures++
		if c.maxReconnects > 0 && failures > c.maxReconnects {
			c.errCh <- fmt.Errorf("%w after %d attempts: %w", ErrReconnectsExhausted, failures, err)
			return
		}

		c.logger.Error("Connection lost, will retry...", "error", err, "delay", reconnectDelay)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

// errSubscribed marks a subscription that was established and later failed.
var errSubscribed = errors.New("subscription dropped")

func (c *Client) subscribeAndProcess(ctx context.Context, ec *ethclient.Client) error {
	defer ec.Close()

	headers := make(chan *types.Header)
	sub, err := ec.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for heads...")
	for {
		select {
		case h := <-headers:
			if err := c.processor.ProcessHeader(ctx, ec, h); err != nil {
				c.logger.Error("Error processing head", "error", err)
			}
		case err := <-sub.Err():
			return fmt.Errorf("%w: %w", errSubscribed, err)
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
