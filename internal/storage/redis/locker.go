package redis

import (
	"context"
	"time"

	xerrors "IntentWallet/internal/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript 仅在令牌匹配时删除锁，避免释放他人在租约过期后取得的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的跨进程 agent 锁，实现 wallet.Locker。
type Locker struct {
	client LockerClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// LockerClient 是 Locker 需要的 Redis 命令子集。
type LockerClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewLocker 创建跨进程锁。ttl 是租约时长，持锁时间不得超过它。
func NewLocker(client LockerClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl, retry: 100 * time.Millisecond}
}

// Lock 获取锁，等待期间按指数退避重试直到 ctx 结束。
func (l *Locker) Lock(ctx context.Context, agentID string) (func(context.Context) error, error) {
	key := joinKey(l.prefix, "lock", "agent", agentID)
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.retry
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取跨进程锁失败",
				xerrors.WithAgent(agentID)))
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, "等待跨进程锁超时", xerrors.WithAgent(agentID))
		}
		return nil, err
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "释放跨进程锁失败", xerrors.WithAgent(agentID))
		}
		return nil
	}, nil
}

var errLockHeld = xerrors.New(xerrors.CodeConflict, "锁已被其他进程持有")
