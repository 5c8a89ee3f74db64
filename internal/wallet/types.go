package wallet

import (
	"fmt"
	"strings"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/units"
)

// ProviderKind 表示钱包提供方类型。
type ProviderKind string

const (
	KindNone      ProviderKind = "none"
	KindCustodial ProviderKind = "custodial"
	KindSafe      ProviderKind = "safe"
	KindDelegated ProviderKind = "delegated"
	KindReadonly  ProviderKind = "readonly"
	KindNative    ProviderKind = "native"
)

// ParseProviderKind 解析钱包类型，空字符串视为 none。
func ParseProviderKind(value string) (ProviderKind, error) {
	switch k := ProviderKind(strings.ToLower(strings.TrimSpace(value))); k {
	case "":
		return KindNone, nil
	case KindNone, KindCustodial, KindSafe, KindDelegated, KindReadonly, KindNative:
		return k, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的钱包类型: %q", value))
	}
}

// IsSet 表示类型已确定（非空且非 none）。
func (k ProviderKind) IsSet() bool {
	return k != "" && k != KindNone
}

// AgentConfig 是 Provisioner 关心的 agent 配置子集。
type AgentConfig struct {
	ID                  string        `json:"id"`
	Owner               string        `json:"owner,omitempty"`
	ProviderKind        ProviderKind  `json:"wallet_provider"`
	NetworkID           string        `json:"network_id,omitempty"`
	WeeklySpendingLimit *units.Amount `json:"weekly_spending_limit,omitempty"`
	ReadonlyAddress     string        `json:"readonly_wallet_address,omitempty"`
}

// Record 是每个 agent 唯一的钱包记录。
type Record struct {
	AgentID             string        `json:"agent_id"`
	ProviderKind        ProviderKind  `json:"provider_kind"`
	Address             string        `json:"address,omitempty"`
	State               ProviderState `json:"provider_state"`
	WeeklySpendingLimit *units.Amount `json:"weekly_spending_limit,omitempty"`
	CreatedAt           int64         `json:"created_at"`
	UpdatedAt           int64         `json:"updated_at"`
}

// Clone 返回深拷贝。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.State = r.State.Clone()
	if r.WeeklySpendingLimit != nil {
		out.WeeklySpendingLimit = units.Ptr(*r.WeeklySpendingLimit)
	}
	return &out
}

// Patch 描述对记录的一次原子更新，零值字段保持不变。
type Patch struct {
	ProviderKind ProviderKind
	Address      string
	State        *ProviderState
	// SetLimit 为 true 时写入 WeeklySpendingLimit（可为 nil）。
	SetLimit            bool
	WeeklySpendingLimit *units.Amount
}
