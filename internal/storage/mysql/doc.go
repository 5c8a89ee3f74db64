// Package mysql 提供基于 MySQL 的钱包记录存储，包括内嵌的 schema 迁移与
// 行级锁保护的原子更新。
package mysql
