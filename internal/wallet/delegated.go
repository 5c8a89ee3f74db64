package wallet

import (
	"context"
	"log/slog"
	"strings"

	"IntentWallet/internal/custody"
	"IntentWallet/pkg/logger"
)

// DelegatedAdapter 创建由 key quorum 持有的委托钱包，不部署 Safe。
type DelegatedAdapter struct {
	auth        custody.Authorizer
	chains      ChainResolver
	ownerPrefix string
}

// NewDelegatedAdapter 创建委托钱包适配器。
func NewDelegatedAdapter(auth custody.Authorizer, chains ChainResolver, ownerPrefix string) *DelegatedAdapter {
	return &DelegatedAdapter{auth: auth, chains: chains, ownerPrefix: ownerPrefix}
}

// Kind 实现 Adapter。
func (a *DelegatedAdapter) Kind() ProviderKind { return KindDelegated }

// Provision 实现 Adapter。
func (a *DelegatedAdapter) Provision(ctx context.Context, agent AgentConfig, rec *Record, _ Saver) (Patch, error) {
	var stored string
	if rec != nil && rec.State.Delegated != nil {
		if d := rec.State.Delegated; d.WalletID != "" && d.WalletAddress != "" {
			return Patch{ProviderKind: KindDelegated, Address: d.WalletAddress}, nil
		}
		stored = rec.State.Delegated.NetworkID
	}
	if err := validateOwner(agent, a.ownerPrefix); err != nil {
		return Patch{}, err
	}
	network := networkOf(agent, stored, a.chains)

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
	logger.Audit().Info("delegated wallet created",
		slog.String("agent_id", agent.ID),
		slog.String("wallet_id", w.ID),
		slog.String("address", w.Address.Hex()))

	return Patch{
		ProviderKind: KindDelegated,
		Address:      w.Address.Hex(),
		State: &ProviderState{Delegated: &DelegatedState{
			WalletID:      w.ID,
			WalletAddress: w.Address.Hex(),
			OwnerQuorumID: quorum.ID,
			NetworkID:     network,
			Status:        DelegatedCreated,
		}},
		SetLimit:            true,
		WeeklySpendingLimit: agent.WeeklySpendingLimit,
	}, nil
}
