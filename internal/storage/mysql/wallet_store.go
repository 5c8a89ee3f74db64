package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/units"
	"IntentWallet/internal/wallet"

	gomysql "github.com/go-sql-driver/mysql"
)

// erDupEntry 是 MySQL 的唯一键冲突错误号。
const erDupEntry = 1062

const (
	selectWalletSQL = `SELECT agent_id, provider_kind, address, provider_state, weekly_spending_limit, created_at, updated_at
    FROM agent_wallets WHERE agent_id = ?`

	upsertWalletSQL = `INSERT INTO agent_wallets
    (agent_id, provider_kind, address, provider_state, weekly_spending_limit, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE provider_kind = VALUES(provider_kind), address = VALUES(address),
    provider_state = VALUES(provider_state), weekly_spending_limit = VALUES(weekly_spending_limit),
    updated_at = VALUES(updated_at)`
)

// WalletStore 在 agent_wallets 表中保存钱包记录，实现 wallet.Store。
type WalletStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewWalletStore 连接数据库并执行迁移。
func NewWalletStore(ctx context.Context, cfg Config) (*WalletStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化钱包存储失败")
	}
	store := &WalletStore{db: db, now: time.Now}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行钱包表迁移失败")
	}
	return store, nil
}

// Close 关闭连接池。
func (s *WalletStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get 实现 wallet.Store。
func (s *WalletStore) Get(ctx context.Context, agentID string) (*wallet.Record, error) {
	rec, err := scanWallet(s.db.QueryRowContext(ctx, selectWalletSQL, agentID))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, wallet.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Patch 实现 wallet.Store。在事务中以 SELECT ... FOR UPDATE 锁定行，
// 校验并应用 patch 后写回。
func (s *WalletStore) Patch(ctx context.Context, agentID string, patch wallet.Patch) (*wallet.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError(err, "开启钱包事务失败", agentID)
	}

	rec, err := scanWallet(tx.QueryRowContext(ctx, selectWalletSQL+" FOR UPDATE", agentID))
	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		rec = &wallet.Record{AgentID: agentID, ProviderKind: wallet.KindNone, State: wallet.ProviderState{Version: wallet.StateVersion}}
	case err != nil:
		tx.Rollback()
		return nil, err
	}

	if err := wallet.ApplyPatch(rec, patch, s.now()); err != nil {
		tx.Rollback()
		return nil, err
	}
	state, err := rec.State.Encode()
	if err != nil {
		tx.Rollback()
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "序列化钱包状态失败")
	}

	if _, err := tx.ExecContext(ctx, upsertWalletSQL,
		rec.AgentID,
		string(rec.ProviderKind),
		nullable(rec.Address),
		state,
		limitValue(rec.WeeklySpendingLimit),
		rec.CreatedAt,
		rec.UpdatedAt,
	); err != nil {
		tx.Rollback()
		return nil, storageError(err, "写入钱包记录失败", agentID)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageError(err, "提交钱包事务失败", agentID)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*wallet.Record, error) {
	var (
		rec     wallet.Record
		kind    string
		address sql.NullString
		state   []byte
		limit   sql.NullString
	)
	if err := row.Scan(&rec.AgentID, &kind, &address, &state, &limit, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storageError(err, "读取钱包记录失败", rec.AgentID)
	}

	parsed, err := wallet.ParseProviderKind(kind)
	if err != nil {
		return nil, xerrors.Wrap(wallet.CodeWalletDataCorrupt, err, "钱包类型无法识别", xerrors.WithAgent(rec.AgentID))
	}
	rec.ProviderKind = parsed
	rec.Address = address.String

	decoded, err := wallet.DecodeState(state)
	if err != nil {
		return nil, xerrors.Wrap(wallet.CodeWalletDataCorrupt, err, "钱包状态无法解析", xerrors.WithAgent(rec.AgentID))
	}
	rec.ProviderKind = wallet.KindForState(rec.ProviderKind, decoded)
	if err := decoded.Validate(rec.AgentID, rec.ProviderKind); err != nil {
		return nil, err
	}
	rec.State = decoded

	if limit.Valid {
		amount, err := units.ParseAmount(limit.String)
		if err != nil {
			return nil, xerrors.Wrap(wallet.CodeWalletDataCorrupt, err, "周额度无法解析", xerrors.WithAgent(rec.AgentID))
		}
		rec.WeeklySpendingLimit = &amount
	}
	return &rec, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func limitValue(limit *units.Amount) any {
	if limit == nil {
		return nil
	}
	return limit.String()
}

// storageError 将驱动错误映射为统一错误。唯一键冲突重试也不会成功，映射为不可重试的 CONFLICT。
func storageError(err error, message, agentID string) error {
	var mysqlErr *gomysql.MySQLError
	if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == erDupEntry {
		return xerrors.Wrap(xerrors.CodeConflict, err, message, xerrors.WithAgent(agentID), xerrors.WithRetryable(false))
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message, xerrors.WithAgent(agentID))
}

var _ wallet.Store = (*WalletStore)(nil)
