// Package app 按配置装配钱包服务的各个组件，供 walletd 与 walletctl 共用。
package app

import (
	"context"
	"fmt"
	"log/slog"

	"IntentWallet/internal/config"
	"IntentWallet/internal/custody"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/safe"
	"IntentWallet/internal/storage/mysql"
	redisstore "IntentWallet/internal/storage/redis"
	"IntentWallet/internal/wallet"
	"IntentWallet/internal/web3/provider"
	"IntentWallet/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// App 持有装配完成的组件。
type App struct {
	Config      *config.Config
	Chains      *provider.Registry
	Store       wallet.Store
	Custody     custody.Service
	Authorizer  custody.Authorizer
	Provisioner *wallet.Provisioner

	closers []func() error
}

// Build 根据配置创建所有组件。失败时已创建的资源会被释放。
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Chains, err = provider.NewRegistry(cfg.Web3)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Chains.Close(); return nil })

	if a.Custody, err = newCustody(cfg.Custody); err != nil {
		return nil, err
	}
	if a.Authorizer, err = newAuthorizer(cfg.Authorization); err != nil {
		return nil, err
	}
	if a.Store, err = a.newStore(ctx, cfg.Storage.WalletStore); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Address != "" {
		rdb, err = redisstore.NewClient(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
	}

	safeOpts := []safe.Option{safe.WithLogger(logger.Named("safe"))}
	if rdb != nil {
		safeOpts = append(safeOpts, safe.WithDecimalsCache(
			redisstore.NewDecimalsCache(rdb, cfg.Storage.Redis.KeyPrefix, cfg.Storage.Redis.DecimalsTTL())))
	}
	orch, err := safe.NewOrchestrator(a.Chains, safe.Config{
		SaltNonce:    cfg.Safe.SaltNonce,
		PollAttempts: cfg.Safe.DeployPollAttempts,
		PollInitial:  cfg.Safe.PollInitial(),
		PollMax:      cfg.Safe.PollMax(),
		ExecGasLimit: cfg.Safe.ExecGasLimit,
	}, safeOpts...)
	if err != nil {
		return nil, err
	}

	prefix := cfg.Authorization.OwnerIDPrefix
	opts := []wallet.ProvisionerOption{
		wallet.WithAdapter(wallet.NewCustodialAdapter(a.Custody, a.Store, nil)),
		wallet.WithAdapter(wallet.NewSafeAdapter(a.Authorizer, orch, a.Chains, prefix)),
		wallet.WithAdapter(wallet.NewDelegatedAdapter(a.Authorizer, a.Chains, prefix)),
	}
	if passphrase := cfg.Native.Passphrase(); passphrase != "" {
		opts = append(opts, wallet.WithAdapter(wallet.NewNativeAdapter(passphrase, cfg.Native.LightScrypt, a.Chains)))
	} else {
		logger.L().Warn("未配置本地钱包口令，native 类型不可用", slog.String("env", cfg.Native.PassphraseEnv))
	}
	if rdb != nil && cfg.Storage.Redis.LockEnabled {
		opts = append(opts, wallet.WithLocker(
			redisstore.NewLocker(rdb, cfg.Storage.Redis.KeyPrefix, cfg.Storage.Redis.LockTTL())))
	}
	a.Provisioner = wallet.NewProvisioner(a.Store, opts...)
	return a, nil
}

func (a *App) newStore(ctx context.Context, cfg config.WalletStoreConfig) (wallet.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return wallet.NewMemoryStore(), nil
	case "mysql":
		store, err := mysql.NewWalletStore(ctx, mysql.ConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的存储驱动: %s", cfg.Driver))
	}
}

func newCustody(cfg config.CustodyConfig) (custody.Service, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.L().Warn("托管服务使用内存实现，仅限开发环境")
		return custody.NewMemoryService(), nil
	case "http":
		return custody.NewClient(custody.ClientConfig{
			BaseURL:   cfg.BaseURL,
			APIKeyID:  cfg.APIKeyID,
			APISecret: cfg.ResolveSecret(),
			Timeout:   cfg.Timeout(),
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的托管驱动: %s", cfg.Driver))
	}
}

func newAuthorizer(cfg config.AuthorizationConfig) (custody.Authorizer, error) {
	switch cfg.Driver {
	case "", "memory":
		return custody.NewMemoryAuthorizer(cfg.PublicKeys...), nil
	case "http":
		return custody.NewAuthorizer(custody.AuthorizerConfig{
			BaseURL:    cfg.BaseURL,
			AppID:      cfg.AppID,
			AppSecret:  cfg.ResolveSecret(),
			PublicKeys: cfg.PublicKeys,
			Timeout:    cfg.Timeout(),
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的授权驱动: %s", cfg.Driver))
	}
}

// Close 按创建的逆序释放资源。
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
