package wallet

import (
	"context"
	"encoding/hex"
	stdErrors "errors"
	"log/slog"
	"strings"
	"sync"

	"IntentWallet/internal/custody"
	"IntentWallet/internal/hdwallet"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// custodialHandle 缓存某个 agent 已确定的托管地址。
type custodialHandle struct {
	mu      sync.Mutex
	address common.Address
	known   bool
}

func (h *custodialHandle) get() (common.Address, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.address, h.known
}

func (h *custodialHandle) set(addr common.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.address, h.known = addr, true
}

// CustodialAdapter 为 agent 获取或创建托管 EOA，并迁移旧版本地种子钱包。
type CustodialAdapter struct {
	service custody.Service
	store   Store
	handles *Registry[*custodialHandle]
	flight  singleflight.Group
	log     *slog.Logger
}

// NewCustodialAdapter 创建托管钱包适配器。handles 为空时使用新的注册表。
func NewCustodialAdapter(service custody.Service, store Store, handles *Registry[*custodialHandle]) *CustodialAdapter {
	if handles == nil {
		handles = NewCustodialRegistry()
	}
	return &CustodialAdapter{
		service: service,
		store:   store,
		handles: handles,
		log:     logger.Named("custodial"),
	}
}

// NewCustodialRegistry 创建托管句柄注册表。
func NewCustodialRegistry() *Registry[*custodialHandle] {
	return NewRegistry(func(string) *custodialHandle { return &custodialHandle{} })
}

// Kind 实现 Adapter。
func (a *CustodialAdapter) Kind() ProviderKind { return KindCustodial }

// Provision 实现 Adapter。
func (a *CustodialAdapter) Provision(ctx context.Context, agent AgentConfig, _ *Record, _ Saver) (Patch, error) {
	addr, err := a.GetOrCreate(ctx, agent.ID)
	if err != nil {
		return Patch{}, err
	}
	return Patch{ProviderKind: KindCustodial, Address: addr.Hex()}, nil
}

// GetOrCreate 返回 agent 的托管地址，必要时创建或迁移。并发调用共享同一次创建，
// 地址在返回前已持久化。
func (a *CustodialAdapter) GetOrCreate(ctx context.Context, agentID string) (common.Address, error) {
	handle := a.handles.Handle(agentID)
	if addr, ok := handle.get(); ok {
		return addr, nil
	}
	value, err, _ := a.flight.Do(agentID, func() (any, error) {
		return a.resolve(ctx, agentID)
	})
	if err != nil {
		return common.Address{}, err
	}
	addr := value.(common.Address)
	handle.set(addr)
	return addr, nil
}

func (a *CustodialAdapter) resolve(ctx context.Context, agentID string) (common.Address, error) {
	rec, err := a.store.Get(ctx, agentID)
	if err != nil && !stdErrors.Is(err, ErrRecordNotFound) {
		return common.Address{}, err
	}
	if rec == nil {
		rec = &Record{AgentID: agentID}
	}
	if rec.Address != "" {
		return common.HexToAddress(rec.Address), nil
	}

	var (
		account custody.Account
		state   CustodialState
	)
	if legacy := rec.State.Custodial; legacy != nil && legacy.LegacySeed != "" {
		account, err = a.migrate(ctx, agentID, legacy)
		if err != nil {
			return common.Address{}, err
		}
		state = CustodialState{AccountName: account.Name, Status: CustodialMigrated}
	} else {
		account, err = a.service.CreateAccount(ctx, agentID)
		if err != nil {
			return common.Address{}, err
		}
		state = CustodialState{AccountName: account.Name, Status: CustodialCreated}
	}

	if _, err := a.store.Patch(ctx, agentID, Patch{
		ProviderKind: KindCustodial,
		Address:      account.Address.Hex(),
		State:        &ProviderState{Custodial: &state},
	}); err != nil {
		return common.Address{}, err
	}
	logger.Audit().Info("custodial wallet ready",
		slog.String("agent_id", agentID),
		slog.String("address", account.Address.Hex()),
		slog.String("status", string(state.Status)))
	return account.Address, nil
}

// migrate 从旧版种子派生私钥，校验地址一致后导入托管服务。
func (a *CustodialAdapter) migrate(ctx context.Context, agentID string, legacy *CustodialState) (custody.Account, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(legacy.LegacySeed), "0x"))
	if err != nil {
		return custody.Account{}, corrupt(agentID, "旧版种子不是十六进制")
	}
	if !common.IsHexAddress(legacy.LegacyAddress) {
		return custody.Account{}, corrupt(agentID, "旧版种子缺少有效地址")
	}
	key, derived, err := hdwallet.DeriveAccount(seed)
	if err != nil {
		return custody.Account{}, corrupt(agentID, "旧版种子无法派生私钥: %v", err)
	}
	expected := common.HexToAddress(legacy.LegacyAddress)
	if derived != expected {
		return custody.Account{}, corrupt(agentID, "旧版种子派生地址 %s 与记录地址 %s 不一致", derived.Hex(), expected.Hex())
	}
	account, err := a.service.ImportAccount(ctx, agentID, key)
	if err != nil {
		return custody.Account{}, err
	}
	a.log.Info("旧版钱包已迁移到托管服务",
		slog.String("agent_id", agentID),
		slog.String("address", account.Address.Hex()))
	return account, nil
}
