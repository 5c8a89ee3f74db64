package wallet

import (
	"context"
	"fmt"
	"strings"

	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Saver 持久化中间状态，返回更新后的记录。
type Saver func(ctx context.Context, patch Patch) (*Record, error)

// Adapter 为某一种钱包类型创建钱包。rec 是当前记录（可能带有上次中断时的
// 部分状态），返回的 Patch 由 Provisioner 持久化。
type Adapter interface {
	Kind() ProviderKind
	Provision(ctx context.Context, agent AgentConfig, rec *Record, save Saver) (Patch, error)
}

// ChainResolver 解析网络配置，*provider.Registry 实现了该接口。
type ChainResolver interface {
	DefaultNetwork() string
	Resolve(networkID, rpcURL string) (web3.ChainConfig, error)
}

// SafeOrchestrator 是 Safe 部署与额度设置的编排器，*safe.Orchestrator 实现了该接口。
type SafeOrchestrator interface {
	DeployWithAllowance(ctx context.Context, req safe.DeployRequest) (*safe.DeployResult, error)
	UpdateLimit(ctx context.Context, safeAddr common.Address, owner safe.Owner, networkID, rpcURL string, amount units.Amount) (*safe.LimitResult, error)
	SetTokenLimit(ctx context.Context, req safe.LimitRequest) (*safe.LimitResult, error)
}

// quorumDisplayName 生成 key quorum 的展示名，agent ID 最多保留 40 个字符。
func quorumDisplayName(agentID string) string {
	if len(agentID) > 40 {
		agentID = agentID[:40]
	}
	return "intentkit:" + agentID
}

// validateOwner 检查所有者身份前缀。
func validateOwner(agent AgentConfig, prefix string) error {
	owner := strings.TrimSpace(agent.Owner)
	if owner == "" {
		return ownerInvalid(agent.ID, "agent 缺少所有者身份")
	}
	if prefix != "" && !strings.HasPrefix(owner, prefix) {
		return ownerInvalid(agent.ID, fmt.Sprintf("所有者身份必须以 %s 开头", prefix))
	}
	return nil
}

func networkOf(agent AgentConfig, stored string, chains ChainResolver) string {
	if id := strings.TrimSpace(agent.NetworkID); id != "" {
		return id
	}
	if stored != "" {
		return stored
	}
	if chains != nil {
		return chains.DefaultNetwork()
	}
	return "base-mainnet"
}
