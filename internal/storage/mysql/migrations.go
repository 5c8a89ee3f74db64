package mysql

import (
	"context"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"IntentWallet/deploy/migrations"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/pkg/logger"
)

const (
	createMigrationsTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(32) NOT NULL PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`
	selectAppliedSQL = `SELECT version FROM schema_migrations`
	insertAppliedSQL = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
)

// schemaStep 是一个待执行的 SQL 迁移文件。
type schemaStep struct {
	version    string
	file       string
	statements []string
}

// runMigrations 依版本顺序执行尚未记录的迁移，每个文件一个事务。
func (s *WalletStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMigrationsTableSQL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	steps, err := schemaSteps(migrations.Files)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if applied[step.version] {
			continue
		}
		if err := s.apply(ctx, step); err != nil {
			return err
		}
		logger.Named("mysql").Info("钱包表迁移完成",
			slog.String("version", step.version),
			slog.String("file", step.file))
	}
	return nil
}

func (s *WalletStore) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 schema_migrations 失败")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 schema_migrations 失败")
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历 schema_migrations 失败")
	}
	return applied, nil
}

func (s *WalletStore) apply(ctx context.Context, step schemaStep) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range step.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移失败",
				xerrors.WithMetadata("file", step.file))
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedSQL, step.version, s.now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录迁移版本失败",
			xerrors.WithMetadata("version", step.version))
	}
	if err = tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

// schemaSteps 读取 NNNN_name.sql 形式的迁移文件并按版本排序。
func schemaSteps(files fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取迁移目录失败")
	}
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取迁移文件失败",
				xerrors.WithMetadata("file", name))
		}
		version, _, ok := strings.Cut(strings.TrimSuffix(path.Base(name), ".sql"), "_")
		if !ok || version == "" {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "迁移文件名缺少版本前缀: "+name)
		}
		stmts := splitStatements(string(content))
		if len(stmts) == 0 {
			continue
		}
		steps = append(steps, schemaStep{version: version, file: name, statements: stmts})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// splitStatements 按分号切分语句，并去掉整行的 -- 注释。
func splitStatements(content string) []string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
