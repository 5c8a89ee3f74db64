package redis

import (
	"context"
	"strings"

	"IntentWallet/internal/config"
	xerrors "IntentWallet/internal/errors"

	"github.com/redis/go-redis/v9"
)

// NewClient 根据配置连接 Redis 并检查连通性。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.ResolvePassword(),
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return client, nil
}

func joinKey(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = "intentwallet"
	}
	return prefix + ":" + strings.Join(parts, ":")
}
