package wallet

import (
	"context"
	"sync"

	xerrors "IntentWallet/internal/errors"

	"golang.org/x/sync/semaphore"
)

// Registry 按 agent ID 管理单例句柄与互斥锁，由调用方注入，不使用全局变量。
type Registry[V any] struct {
	mu      sync.Mutex
	factory func(key string) V
	entries map[string]*registryEntry[V]
}

type registryEntry[V any] struct {
	guard  *semaphore.Weighted
	handle V
}

// NewRegistry 创建注册表，factory 在首次访问某个 key 时构造句柄。
func NewRegistry[V any](factory func(key string) V) *Registry[V] {
	return &Registry[V]{factory: factory, entries: make(map[string]*registryEntry[V])}
}

func (r *Registry[V]) entry(key string) *registryEntry[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry[V]{guard: semaphore.NewWeighted(1)}
		if r.factory != nil {
			e.handle = r.factory(key)
		}
		r.entries[key] = e
	}
	return e
}

// Handle 返回 key 对应的句柄，同一 key 总是返回同一实例。
func (r *Registry[V]) Handle(key string) V {
	return r.entry(key).handle
}

// Lock 获取 key 的互斥锁，等待期间尊重 ctx 取消。
func (r *Registry[V]) Lock(ctx context.Context, key string) (func(), error) {
	e := r.entry(key)
	if err := e.guard.Acquire(ctx, 1); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待 agent 锁超时", xerrors.WithAgent(key))
	}
	var once sync.Once
	return func() { once.Do(func() { e.guard.Release(1) }) }, nil
}

// Len 返回已创建的句柄数量。
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
