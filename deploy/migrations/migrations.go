// Package migrations 内嵌钱包服务的 MySQL schema，文件名形如 NNNN_description.sql，
// 由 internal/storage/mysql 在启动时按版本顺序执行。
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
