package wallet

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/observability/metrics"
	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Provision 的结果分类，用于指标与日志。
const (
	OutcomeCreated      = "created"
	OutcomeNoop         = "noop"
	OutcomeLimitUpdated = "limit_updated"
	OutcomeError        = "error"
)

// Locker 提供跨进程的 agent 级互斥，storage/redis.Locker 实现了该接口。
type Locker interface {
	Lock(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// limitUpdater 由支持在已部署钱包上更新额度的适配器实现。
type limitUpdater interface {
	UpdateLimit(ctx context.Context, agent AgentConfig, rec *Record) (Patch, error)
}

// tokenLimiter 由支持任意代币额度的适配器实现。
type tokenLimiter interface {
	SetTokenLimit(ctx context.Context, rec *Record, token common.Address, amount units.Amount) (*safe.LimitResult, Patch, error)
}

// Provisioner 根据 agent 配置的变化为其创建钱包或更新额度。
type Provisioner struct {
	store    Store
	adapters map[ProviderKind]Adapter
	guards   *Registry[struct{}]
	locker   Locker
	log      *slog.Logger
}

// ProvisionerOption 定制 Provisioner。
type ProvisionerOption func(*Provisioner)

// WithAdapter 注册某一钱包类型的适配器，同类型后注册的覆盖先注册的。
func WithAdapter(a Adapter) ProvisionerOption {
	return func(p *Provisioner) {
		if a != nil {
			p.adapters[a.Kind()] = a
		}
	}
}

// WithLocker 启用跨进程锁。
func WithLocker(l Locker) ProvisionerOption {
	return func(p *Provisioner) {
		p.locker = l
	}
}

// WithGuards 注入进程内的 agent 锁注册表，便于多个组件共享。
func WithGuards(r *Registry[struct{}]) ProvisionerOption {
	return func(p *Provisioner) {
		if r != nil {
			p.guards = r
		}
	}
}

// NewProvisioner 创建 Provisioner。
func NewProvisioner(store Store, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		store:    store,
		adapters: make(map[ProviderKind]Adapter),
		guards:   NewRegistry[struct{}](nil),
		log:      logger.Named("provisioner"),
	}
	p.adapters[KindReadonly] = ReadonlyAdapter{}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Provision 为 agent 创建钱包，或在额度变化时只更新额度。previousKind 与
// previousLimit 是配置变更前的取值。
func (p *Provisioner) Provision(ctx context.Context, agent AgentConfig, previousKind ProviderKind, previousLimit *units.Amount) (rec *Record, err error) {
	start := time.Now()
	kind, err := ParseProviderKind(string(agent.ProviderKind))
	if err != nil {
		return nil, err
	}
	agent.ProviderKind = kind
	outcome := OutcomeNoop
	defer func() {
		if err != nil {
			outcome = OutcomeError
		}
		metrics.ObserveProvision(string(kind), outcome, time.Since(start))
	}()

	if strings.TrimSpace(agent.ID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent ID 不能为空")
	}
	if previousKind.IsSet() && previousKind != kind {
		return nil, immutable(agent.ID, previousKind, kind)
	}

	release, err := p.lock(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err = p.load(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if rec.ProviderKind.IsSet() && rec.ProviderKind != kind {
		return nil, immutable(agent.ID, rec.ProviderKind, kind)
	}
	if !kind.IsSet() {
		return rec, nil
	}

	if rec.Address != "" {
		if (kind == KindSafe || kind == KindDelegated) && !units.EqualPtr(previousLimit, agent.WeeklySpendingLimit) {
			rec, err = p.updateLimit(ctx, agent, rec)
			if err == nil {
				outcome = OutcomeLimitUpdated
			}
			return rec, err
		}
		return rec, nil
	}

	adapter, ok := p.adapters[kind]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未注册钱包类型 %s 的适配器", kind),
			xerrors.WithAgent(agent.ID))
	}
	save := func(ctx context.Context, patch Patch) (*Record, error) {
		if patch.ProviderKind == "" {
			patch.ProviderKind = kind
		}
		return p.store.Patch(ctx, agent.ID, patch)
	}
	patch, err := adapter.Provision(ctx, agent, rec, save)
	if err != nil {
		p.log.Warn("钱包创建失败",
			slog.String("agent_id", agent.ID),
			slog.String("provider", string(kind)),
			slog.Any("error", err))
		return nil, err
	}
	patch.ProviderKind = kind
	rec, err = p.store.Patch(ctx, agent.ID, patch)
	if err != nil {
		return nil, err
	}
	outcome = OutcomeCreated
	p.log.Info("钱包已就绪",
		slog.String("agent_id", agent.ID),
		slog.String("provider", string(kind)),
		slog.String("address", rec.Address))
	return rec, nil
}

func (p *Provisioner) updateLimit(ctx context.Context, agent AgentConfig, rec *Record) (*Record, error) {
	patch := Patch{SetLimit: true, WeeklySpendingLimit: agent.WeeklySpendingLimit}
	if updater, ok := p.adapters[rec.ProviderKind].(limitUpdater); ok {
		var err error
		patch, err = updater.UpdateLimit(ctx, agent, rec)
		if err != nil {
			return nil, err
		}
	}
	updated, err := p.store.Patch(ctx, agent.ID, patch)
	if err != nil {
		return nil, err
	}
	p.log.Info("周额度已更新",
		slog.String("agent_id", agent.ID),
		slog.String("provider", string(rec.ProviderKind)),
		slog.String("limit", limitString(agent.WeeklySpendingLimit)))
	return updated, nil
}

// SetTokenLimit 为 Safe 钱包设置任意代币的周额度。
func (p *Provisioner) SetTokenLimit(ctx context.Context, agentID string, token common.Address, amount units.Amount) (*safe.LimitResult, error) {
	release, err := p.lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := p.store.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec.ProviderKind != KindSafe {
		return nil, xerrors.New(CodeSafeWalletRequired,
			fmt.Sprintf("agent 钱包类型为 %s，仅 Safe 钱包支持代币额度", rec.ProviderKind),
			xerrors.WithAgent(agentID))
	}
	limiter, ok := p.adapters[KindSafe].(tokenLimiter)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未注册 Safe 适配器", xerrors.WithRetryable(false))
	}
	result, patch, err := limiter.SetTokenLimit(ctx, rec, token, amount)
	if err != nil {
		return nil, err
	}
	if _, err := p.store.Patch(ctx, agentID, patch); err != nil {
		return nil, err
	}
	return result, nil
}

// Get 返回 agent 的钱包记录。
func (p *Provisioner) Get(ctx context.Context, agentID string) (*Record, error) {
	return p.store.Get(ctx, agentID)
}

func (p *Provisioner) load(ctx context.Context, agentID string) (*Record, error) {
	rec, err := p.store.Get(ctx, agentID)
	if stdErrors.Is(err, ErrRecordNotFound) {
		return &Record{AgentID: agentID, ProviderKind: KindNone, State: ProviderState{Version: StateVersion}}, nil
	}
	return rec, err
}

func (p *Provisioner) lock(ctx context.Context, agentID string) (func(), error) {
	unlock, err := p.guards.Lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if p.locker == nil {
		return unlock, nil
	}
	remote, err := p.locker.Lock(ctx, agentID)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := remote(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn("释放跨进程锁失败", slog.String("agent_id", agentID), slog.Any("error", err))
		}
		unlock()
	}, nil
}

func immutable(agentID string, from, to ProviderKind) error {
	return xerrors.New(CodeProviderImmutable,
		fmt.Sprintf("钱包类型已是 %s，不能改为 %s", from, to),
		xerrors.WithAgent(agentID))
}

func limitString(a *units.Amount) string {
	if a == nil {
		return "none"
	}
	return a.String()
}
