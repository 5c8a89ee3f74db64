// Package events 消费 agent 配置变更事件，并交给钱包 Provisioner 处理。
// 支持内存、Redis list 与 RabbitMQ 三种队列。
package events
