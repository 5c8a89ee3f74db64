package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	xerrors "IntentWallet/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Store 持久化钱包记录。Patch 必须对单条记录原子生效，记录不存在时创建。
type Store interface {
	Get(ctx context.Context, agentID string) (*Record, error)
	Patch(ctx context.Context, agentID string, patch Patch) (*Record, error)
}

// ApplyPatch 将 patch 应用到 rec，并校验地址只写一次、类型不可变。
// 各 Store 实现共用此逻辑。
func ApplyPatch(rec *Record, patch Patch, now time.Time) error {
	if patch.ProviderKind != "" {
		if rec.ProviderKind.IsSet() && patch.ProviderKind.IsSet() && rec.ProviderKind != patch.ProviderKind {
			return xerrors.New(CodeProviderImmutable,
				fmt.Sprintf("钱包类型已是 %s，不能改为 %s", rec.ProviderKind, patch.ProviderKind),
				xerrors.WithAgent(rec.AgentID))
		}
		if patch.ProviderKind.IsSet() || !rec.ProviderKind.IsSet() {
			rec.ProviderKind = patch.ProviderKind
		}
	}

	if patch.Address != "" {
		if !common.IsHexAddress(patch.Address) {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法钱包地址: %q", patch.Address))
		}
		addr := common.HexToAddress(patch.Address).Hex()
		if rec.Address != "" && !strings.EqualFold(rec.Address, addr) {
			return xerrors.New(xerrors.CodeConflict,
				fmt.Sprintf("钱包地址已设置为 %s，拒绝改为 %s", rec.Address, addr),
				xerrors.WithAgent(rec.AgentID))
		}
		rec.Address = addr
	}

	if patch.State != nil {
		state := patch.State.Clone()
		state.Version = StateVersion
		if err := state.Validate(rec.AgentID, rec.ProviderKind); err != nil {
			return err
		}
		rec.State = state
	}

	if patch.SetLimit {
		rec.WeeklySpendingLimit = nil
		if patch.WeeklySpendingLimit != nil {
			limit := *patch.WeeklySpendingLimit
			rec.WeeklySpendingLimit = &limit
		}
	}

	ts := now.Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = ts
	}
	rec.UpdatedAt = ts
	return nil
}

// MemoryStore 是进程内的 Store 实现，用于开发环境与测试。
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

// Get 实现 Store。
func (s *MemoryStore) Get(_ context.Context, agentID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[agentID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// Patch 实现 Store。
func (s *MemoryStore) Patch(_ context.Context, agentID string, patch Patch) (*Record, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent ID 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[agentID]
	if !ok {
		current = &Record{AgentID: agentID, ProviderKind: KindNone, State: ProviderState{Version: StateVersion}}
	}
	next := current.Clone()
	if err := ApplyPatch(next, patch, s.now()); err != nil {
		return nil, err
	}
	s.records[agentID] = next
	return next.Clone(), nil
}

// Put 直接写入记录，仅供测试和数据导入使用。
func (s *MemoryStore) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = rec.Clone()
}

var _ Store = (*MemoryStore)(nil)
