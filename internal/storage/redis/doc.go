// Package redis 提供基于 Redis 的代币精度缓存与跨进程 agent 锁。
package redis
