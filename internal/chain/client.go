package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradeTape/internal/metrics"
	"tradeTape/internal/model"
)

// ErrNoHealthyEndpoint is returned by Dial when every endpoint fails its probe.
var ErrNoHealthyEndpoint = errors.New("no healthy rpc endpoint")

// Backend is the subset of ethclient.Client the adapter needs.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Options tunes timeouts, retries and rate limiting.
type Options struct {
	CallTimeout time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// RateLimit is calls per second; <= 0 disables limiting.
	RateLimit float64
	RateBurst int
	Metrics   *metrics.Metrics
}

// DefaultOptions returns the public-endpoint defaults.
func DefaultOptions() Options {
	return Options{
		CallTimeout: 30 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  10 * time.Second,
		RateLimit:   5,
		RateBurst:   1,
	}
}

// Client wraps a go-ethereum backend with retry, timeouts and rate limiting.
type Client struct {
	backend   Backend
	rpcClient *rpc.Client
	endpoint  string

	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	calls   atomic.Uint64
}

// Dial tries urls in order and keeps the first one that answers eth_blockNumber.
func Dial(ctx context.Context, urls []string, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	for _, url := range urls {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			logger.Warn("rpc dial failed", zap.String("endpoint", url), zap.Error(err))
			continue
		}

		backend := ethclient.NewClient(rpcClient)
		probeCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		head, err := backend.BlockNumber(probeCtx)
		cancel()
		if err != nil {
			logger.Warn("rpc endpoint unhealthy", zap.String("endpoint", url), zap.Error(err))
			rpcClient.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		logger.Info("rpc endpoint selected", zap.String("endpoint", url), zap.Uint64("head", head))
		c := NewClient(backend, opts, logger)
		c.rpcClient = rpcClient
		c.endpoint = url
		return c, nil
	}

	return nil, fmt.Errorf("%w: tried %d endpoints", ErrNoHealthyEndpoint, len(urls))
}

// NewClient wraps an already connected backend.
func NewClient(backend Backend, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	c := &Client{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}
	return c
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	return o
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Endpoint returns the selected URL, empty for injected backends.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Calls returns the number of backend calls issued, retries included.
func (c *Client) Calls() uint64 {
	return c.calls.Load()
}

// LatestBlock returns the latest block number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		head, err = c.backend.BlockNumber(ctx)
		return err
	})
	return head, err
}

// BlockTimestamp returns the header timestamp of block number.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		if header == nil {
			return fmt.Errorf("block %d: %w", number, ethereum.NotFound)
		}
		ts = header.Time
		return nil
	})
	return ts, err
}

// FetchLogs returns logs in [fromBlock, toBlock] for addresses and topic0 filters.
func (c *Client) FetchLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]model.RawLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.backend.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.RawLog, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		out = append(out, model.RawLogFromTypes(lg))
	}
	c.opts.Metrics.LogsFetched(len(out))
	return out, nil
}

// call runs fn under the limiter and a per-attempt timeout, retrying transient failures.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	return withRetry(ctx, c.opts.MaxAttempts, c.opts.RetryDelay, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		c.calls.Add(1)
		c.opts.Metrics.RPCCall(method)

		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
		return fn(callCtx)
	}, func(attempt int, err error) {
		c.opts.Metrics.RPCRetry(method)
		c.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.opts.RetryDelay),
			zap.Error(err),
		)
	})
}
