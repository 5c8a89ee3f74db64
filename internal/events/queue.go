package events

import (
	"context"
	"fmt"
	"strings"

	"IntentWallet/internal/config"
	xerrors "IntentWallet/internal/errors"
)

// Handler 处理一条编码后的事件。
type Handler func(ctx context.Context, payload []byte) error

// Producer 投递事件，walletctl 与 Processor 的重投都走这里。
type Producer interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Consumer 以 workerCount 个协程消费事件，直到 ctx 结束。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 是 Open 返回的完整队列。
type Queue interface {
	Producer
	Consumer
}

// Open 按配置的驱动创建队列。
func Open(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryQueue(1024), nil
	case "redis":
		return NewRedisQueue(ctx, cfg.Redis)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的队列驱动: %s", cfg.Driver))
	}
}
