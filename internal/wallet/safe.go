package wallet

import (
	"context"
	"log/slog"
	"strings"

	"IntentWallet/internal/custody"
	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// SafeAdapter 创建所有者委托钱包并部署带额度模块的 Safe。
type SafeAdapter struct {
	auth        custody.Authorizer
	orch        SafeOrchestrator
	chains      ChainResolver
	ownerPrefix string
	log         *slog.Logger
}

// NewSafeAdapter 创建 Safe 适配器。ownerPrefix 为所有者身份必须具有的前缀。
func NewSafeAdapter(auth custody.Authorizer, orch SafeOrchestrator, chains ChainResolver, ownerPrefix string) *SafeAdapter {
	return &SafeAdapter{
		auth:        auth,
		orch:        orch,
		chains:      chains,
		ownerPrefix: ownerPrefix,
		log:         logger.Named("safe-adapter"),
	}
}

// Kind 实现 Adapter。
func (a *SafeAdapter) Kind() ProviderKind { return KindSafe }

// Provision 实现 Adapter。已有的所有者钱包会被复用，创建后立即持久化，
// 之后每个链上步骤完成都会写入检查点。
func (a *SafeAdapter) Provision(ctx context.Context, agent AgentConfig, rec *Record, save Saver) (Patch, error) {
	state := &SafeState{Status: safe.StatusNotStarted}
	if rec != nil && rec.State.Safe != nil {
		state = rec.State.Clone().Safe
	}
	network := networkOf(agent, state.NetworkID, a.chains)
	if network != state.NetworkID {
		// 缓存的 RPC 端点属于原网络。
		state.RPCURL = ""
	}
	state.NetworkID = network

	chain, err := a.chains.Resolve(state.NetworkID, state.RPCURL)
	if err != nil {
		return Patch{}, err
	}
	state.RPCURL = chain.RPCURL

	if state.OwnerWalletID == "" || !common.IsHexAddress(state.OwnerAddress) {
		if err := validateOwner(agent, a.ownerPrefix); err != nil {
			return Patch{}, err
		}
		quorum, err := a.auth.CreateKeyQuorum(ctx, custody.QuorumRequest{
			UserIDs:     []string{strings.TrimSpace(agent.Owner)},
			PublicKeys:  a.auth.AuthorizationPublicKeys(),
			Threshold:   1,
			DisplayName: quorumDisplayName(agent.ID),
		})
		if err != nil {
			return Patch{}, err
		}
		w, err := a.auth.CreateWallet(ctx, quorum.ID)
		if err != nil {
			return Patch{}, err
		}
		state.OwnerWalletID = w.ID
		state.OwnerAddress = w.Address.Hex()
		state.OwnerQuorumID = quorum.ID
		state.advance(safe.StatusCustodyWalletCreated)
		if _, err := save(ctx, Patch{ProviderKind: KindSafe, State: &ProviderState{Safe: state}}); err != nil {
			return Patch{}, err
		}
		logger.Audit().Info("safe owner wallet created",
			slog.String("agent_id", agent.ID),
			slog.String("owner_wallet_id", w.ID),
			slog.String("owner_address", w.Address.Hex()))
	} else {
		a.log.Info("复用已有的所有者钱包",
			slog.String("agent_id", agent.ID),
			slog.String("owner_wallet_id", state.OwnerWalletID),
			slog.String("status", string(state.Status)))
	}

	owner := custody.NewAuthorizedWallet(a.auth, custody.Wallet{
		ID:      state.OwnerWalletID,
		Address: common.HexToAddress(state.OwnerAddress),
	})
	result, err := a.orch.DeployWithAllowance(ctx, safe.DeployRequest{
		Owner:       owner,
		NetworkID:   state.NetworkID,
		RPCURL:      state.RPCURL,
		WeeklyLimit: agent.WeeklySpendingLimit,
		Checkpoint: func(ctx context.Context, p safe.Progress) error {
			state.SafeAddress = p.SafeAddress.Hex()
			state.advance(p.Status)
			state.TxHashes = mergeTxRecords(state.TxHashes, p.TxHashes)
			if p.NextNonce != nil {
				n := *p.NextNonce
				state.NextNonce = &n
			}
			_, err := save(ctx, Patch{ProviderKind: KindSafe, State: &ProviderState{Safe: state}})
			return err
		},
	})
	if err != nil {
		return Patch{}, err
	}

	state.SafeAddress = result.SafeAddress.Hex()
	state.advance(result.Status)
	next := result.NextNonce
	state.NextNonce = &next
	state.TxHashes = mergeTxRecords(state.TxHashes, result.TxHashes)

	return Patch{
		ProviderKind:        KindSafe,
		Address:             result.SafeAddress.Hex(),
		State:               &ProviderState{Safe: state},
		SetLimit:            true,
		WeeklySpendingLimit: agent.WeeklySpendingLimit,
	}, nil
}

// UpdateLimit 在已部署的 Safe 上更新参考代币的周额度，不会重新部署。
func (a *SafeAdapter) UpdateLimit(ctx context.Context, agent AgentConfig, rec *Record) (Patch, error) {
	state, owner, err := a.bind(rec)
	if err != nil {
		return Patch{}, err
	}
	var amount units.Amount
	if agent.WeeklySpendingLimit != nil {
		amount = *agent.WeeklySpendingLimit
	}
	result, err := a.orch.UpdateLimit(ctx, common.HexToAddress(state.SafeAddress), owner, state.NetworkID, state.RPCURL, amount)
	if err != nil {
		return Patch{}, err
	}
	a.applyLimit(state, result)
	return Patch{
		State:               &ProviderState{Safe: state},
		SetLimit:            true,
		WeeklySpendingLimit: agent.WeeklySpendingLimit,
	}, nil
}

// SetTokenLimit 为任意代币设置额度。
func (a *SafeAdapter) SetTokenLimit(ctx context.Context, rec *Record, token common.Address, amount units.Amount) (*safe.LimitResult, Patch, error) {
	state, owner, err := a.bind(rec)
	if err != nil {
		return nil, Patch{}, err
	}
	if state.NetworkID == "" {
		state.NetworkID = a.chains.DefaultNetwork()
	}
	if _, err := a.chains.Resolve(state.NetworkID, state.RPCURL); err != nil {
		return nil, Patch{}, err
	}
	result, err := a.orch.SetTokenLimit(ctx, safe.LimitRequest{
		Safe:      common.HexToAddress(state.SafeAddress),
		Owner:     owner,
		NetworkID: state.NetworkID,
		RPCURL:    state.RPCURL,
		Token:     token,
		Amount:    amount,
	})
	if err != nil {
		return nil, Patch{}, err
	}
	a.applyLimit(state, result)
	return result, Patch{State: &ProviderState{Safe: state}}, nil
}

// bind 从记录中恢复 Safe 状态与所有者签名者，缺失字段视为数据损坏。
func (a *SafeAdapter) bind(rec *Record) (*SafeState, safe.Owner, error) {
	if rec == nil || rec.State.Safe == nil {
		agentID := ""
		if rec != nil {
			agentID = rec.AgentID
		}
		return nil, nil, corrupt(agentID, "Safe 钱包缺少状态数据")
	}
	state := rec.State.Clone().Safe
	if state.OwnerWalletID == "" || !common.IsHexAddress(state.OwnerAddress) || !common.IsHexAddress(state.SafeAddress) {
		return nil, nil, corrupt(rec.AgentID, "Safe 钱包状态缺少所有者钱包或 Safe 地址")
	}
	owner := custody.NewAuthorizedWallet(a.auth, custody.Wallet{
		ID:      state.OwnerWalletID,
		Address: common.HexToAddress(state.OwnerAddress),
	})
	return state, owner, nil
}

func (a *SafeAdapter) applyLimit(state *SafeState, result *safe.LimitResult) {
	next := result.NextNonce
	state.NextNonce = &next
	state.TxHashes = mergeTxRecords(state.TxHashes, result.TxHashes)
	state.advance(safe.StatusLimitConfigured)
}

// mergeTxRecords 追加尚未记录的交易。
func mergeTxRecords(existing, incoming []safe.TxRecord) []safe.TxRecord {
	seen := make(map[common.Hash]bool, len(existing))
	for _, rec := range existing {
		seen[rec.Hash] = true
	}
	out := existing
	for _, rec := range incoming {
		if !seen[rec.Hash] {
			seen[rec.Hash] = true
			out = append(out, rec)
		}
	}
	return out
}
