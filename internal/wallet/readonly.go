package wallet

import (
	"context"
	"strings"

	xerrors "IntentWallet/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// ReadonlyAdapter 直接采用 agent 配置中预先声明的地址。
type ReadonlyAdapter struct{}

// Kind 实现 Adapter。
func (ReadonlyAdapter) Kind() ProviderKind { return KindReadonly }

// Provision 实现 Adapter。
func (ReadonlyAdapter) Provision(_ context.Context, agent AgentConfig, _ *Record, _ Saver) (Patch, error) {
	addr := strings.TrimSpace(agent.ReadonlyAddress)
	if !common.IsHexAddress(addr) {
		return Patch{}, xerrors.New(xerrors.CodeInvalidArgument, "只读钱包需要合法的 readonly_wallet_address",
			xerrors.WithAgent(agent.ID))
	}
	return Patch{ProviderKind: KindReadonly, Address: common.HexToAddress(addr).Hex()}, nil
}
