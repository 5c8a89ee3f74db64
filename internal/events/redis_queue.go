package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"IntentWallet/internal/config"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/pkg/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RedisQueue 使用 Redis list 实现事件队列。重试由 Processor 重新投递完成。
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg config.RedisQueue) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "intentwallet:events"
	}
	wait := time.Duration(cfg.BlockWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}, nil
}

// Publish 将事件投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return xerrors.Wrap(CodeEventPublish, err, "Redis 发布事件失败")
	}
	return nil
}

// Consume 通过 BRPOP 阻塞拉取事件，任一协程遇到连接错误时全部退出。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < max(workerCount, 1); i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				switch {
				case errors.Is(err, redis.Nil):
					continue
				case err != nil:
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取事件失败")
				case len(values) != 2:
					continue
				}
				if err := handler(ctx, []byte(values[1])); err != nil {
					logger.L().Warn("事件处理返回错误", slog.Any("error", err))
				}
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
