package events

import (
	"context"
	"sync"

	xerrors "IntentWallet/internal/errors"

	"golang.org/x/sync/errgroup"
)

// MemoryQueue 是进程内的事件队列，walletd 默认使用，也用于测试。
type MemoryQueue struct {
	mu     sync.RWMutex
	events chan []byte
	closed bool
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{events: make(chan []byte, size)}
}

// Publish 复制 payload 后入队，队列满时阻塞直到 ctx 结束。
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(CodeEventPublish, "内存队列已关闭", xerrors.WithRetryable(false))
	}
	select {
	case q.events <- append([]byte(nil), payload...):
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(CodeEventPublish, ctx.Err(), "内存队列已满")
	}
}

// Pending 返回尚未被消费的事件数。
func (q *MemoryQueue) Pending() int {
	return len(q.events)
}

// Consume 启动 workerCount 个协程，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < max(workerCount, 1); i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-q.events:
					if !ok {
						return nil
					}
					_ = handler(ctx, payload)
				}
			}
		})
	}
	return g.Wait()
}

// Close 关闭队列，消费者处理完缓冲中的事件后退出。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	return nil
}
