package ethereum

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/observability/metrics"
	"IntentWallet/internal/web3"

	"github.com/cenkalti/backoff/v4"
	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const (
	defaultAttempts = 5
	defaultInitial  = 250 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name           string
	RPCURL         string
	Attempts       int
	InitialBackoff time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Backend is the subset of *ethclient.Client used here. The simulated
// backend client satisfies it as well.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements web3.Client with bounded retries on transient failures.
type Client struct {
	name     string
	backend  Backend
	closer   func()
	limiter  *rate.Limiter
	attempts int
	initial  time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransientNetwork, err, "连接以太坊节点失败")
	}
	eth := ethclient.NewClient(rpcClient)
	return NewWithBackend(cfg, eth, eth.Close), nil
}

// NewWithBackend wraps an existing backend, used for simulated chains in tests.
func NewWithBackend(cfg Config, backend Backend, closer func()) *Client {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = defaultInitial
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		name:     cfg.Name,
		backend:  backend,
		closer:   closer,
		limiter:  limiter,
		attempts: attempts,
		initial:  initial,
	}
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}

// ChainID returns the remote chain id, cached after the first success.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}
	id, err := call(ctx, c, "eth_chainId", func(ctx context.Context) (*big.Int, error) {
		return c.backend.ChainID(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// CodeAt returns the deployed bytecode at the latest block.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return call(ctx, c, "eth_getCode", func(ctx context.Context) ([]byte, error) {
		return c.backend.CodeAt(ctx, account, nil)
	})
}

// CallContract executes a read-only call at the latest block.
func (c *Client) CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error) {
	return call(ctx, c, "eth_call", func(ctx context.Context) ([]byte, error) {
		return c.backend.CallContract(ctx, msg, nil)
	})
}

// PendingNonceAt returns the next account nonce including pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, c, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return c.backend.PendingNonceAt(ctx, account)
	})
}

// TransactionReceipt returns the receipt, or gethcore.NotFound while pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	return call(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context) (*coretypes.Receipt, error) {
		return c.backend.TransactionReceipt(ctx, hash)
	})
}

func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	if c == nil || c.backend == nil {
		return result, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的以太坊客户端")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = defaultMaxDelay
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		value, err := fn(ctx)
		if err == nil {
			result = value
			return nil
		}
		if stdErrors.Is(err, gethcore.NotFound) || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.ObserveRPCRetry(c.name, method)
	}

	err := backoff.RetryNotify(op, bounded, notify)
	if err == nil {
		return result, nil
	}
	if stdErrors.Is(err, gethcore.NotFound) {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, fmt.Sprintf("%s 被取消", method))
	}
	if IsTransient(err) {
		return result, xerrors.Wrap(xerrors.CodeTransientNetwork, err,
			fmt.Sprintf("%s 在 %d 次尝试后仍失败", method, attempt),
			xerrors.WithNetwork(c.name),
			xerrors.WithMetadata("method", method))
	}
	return result, xerrors.Wrap(xerrors.CodeUpstreamRejected, err, fmt.Sprintf("%s 调用失败", method),
		xerrors.WithNetwork(c.name),
		xerrors.WithMetadata("method", method))
}

// IsTransient reports whether an RPC error is worth retrying: connection
// resets, timeouts, rate limiting and 5xx gateway responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if xerrors.CodeOf(err) == xerrors.CodeTransientNetwork {
		return true
	}
	if stdErrors.Is(err, io.EOF) || stdErrors.Is(err, io.ErrUnexpectedEOF) ||
		stdErrors.Is(err, syscall.ECONNRESET) || stdErrors.Is(err, syscall.ECONNREFUSED) ||
		stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr gethrpc.HTTPError
	if stdErrors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "connection refused", "too many requests", "service unavailable", "bad gateway"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ web3.Client = (*Client)(nil)
