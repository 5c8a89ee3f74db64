package redis

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"IntentWallet/internal/safe"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// DecimalsCache 在 Redis 中共享 ERC-20 精度，进程内缓存作为第一层。
// Redis 不可用时退化为仅使用本地缓存。
type DecimalsCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	local  *safe.MemoryDecimals
	log    *slog.Logger
}

// NewDecimalsCache 创建共享精度缓存。
func NewDecimalsCache(client redis.Cmdable, prefix string, ttl time.Duration) *DecimalsCache {
	return &DecimalsCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		local:  safe.NewMemoryDecimals(),
		log:    logger.Named("decimals-cache"),
	}
}

func (c *DecimalsCache) key(networkID string, token common.Address) string {
	return joinKey(c.prefix, "decimals", networkID, strings.ToLower(token.Hex()))
}

// Get 实现 safe.DecimalsCache。
func (c *DecimalsCache) Get(ctx context.Context, networkID string, token common.Address) (uint8, bool) {
	if d, ok := c.local.Get(ctx, networkID, token); ok {
		return d, true
	}
	raw, err := c.client.Get(ctx, c.key(networkID, token)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("读取精度缓存失败", slog.String("network", networkID), slog.Any("error", err))
		}
		return 0, false
	}
	value, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false
	}
	c.local.Set(ctx, networkID, token, uint8(value))
	return uint8(value), true
}

// Set 实现 safe.DecimalsCache。
func (c *DecimalsCache) Set(ctx context.Context, networkID string, token common.Address, decimals uint8) {
	c.local.Set(ctx, networkID, token, decimals)
	if err := c.client.Set(ctx, c.key(networkID, token), strconv.Itoa(int(decimals)), c.ttl).Err(); err != nil {
		c.log.Warn("写入精度缓存失败", slog.String("network", networkID), slog.Any("error", err))
	}
}

var _ safe.DecimalsCache = (*DecimalsCache)(nil)
