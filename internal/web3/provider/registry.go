package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"IntentWallet/internal/config"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/web3"
	"IntentWallet/internal/web3/ethereum"
)

// Dialer opens an RPC client for a resolved chain.
type Dialer func(ctx context.Context, chain web3.ChainConfig) (web3.Client, error)

// Registry is the chain registry: it maps network ids to chain configuration
// and caches one RPC client per network and endpoint.
type Registry struct {
	defaultNetwork string
	defs           map[string]web3.ChainDefinition
	dial           Dialer

	mu      sync.Mutex
	clients map[string]web3.Client
}

// Option customises the registry.
type Option func(*Registry)

// WithDialer replaces the default ethclient based dialer.
func WithDialer(d Dialer) Option {
	return func(r *Registry) {
		if d != nil {
			r.dial = d
		}
	}
}

// WithDefinitions overlays additional chain definitions.
func WithDefinitions(defs map[string]web3.ChainDefinition) Option {
	return func(r *Registry) {
		for name, def := range defs {
			r.defs[name] = def.Merge(r.defs[name])
		}
	}
}

// NewRegistry merges configs/chains.yaml over the built-in defaults.
func NewRegistry(cfg config.Web3Config, opts ...Option) (*Registry, error) {
	fileDefs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	defs := web3.DefaultChains()
	for name, def := range fileDefs.Chains {
		defs[name] = def.Merge(defs[name])
	}

	r := &Registry{
		defaultNetwork: strings.TrimSpace(cfg.DefaultNetwork),
		defs:           defs,
		clients:        make(map[string]web3.Client),
	}
	r.dial = func(ctx context.Context, chain web3.ChainConfig) (web3.Client, error) {
		return ethereum.NewClient(ctx, ethereum.Config{
			Name:           chain.NetworkID,
			RPCURL:         chain.RPCURL,
			Attempts:       cfg.RetryAttempts,
			InitialBackoff: cfg.RetryInitial(),
			RateLimit:      cfg.RateLimit,
			RateBurst:      cfg.RateBurst,
		})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.defaultNetwork == "" {
		r.defaultNetwork = "base-mainnet"
	}
	return r, nil
}

// DefaultNetwork returns the network used when an agent does not specify one.
func (r *Registry) DefaultNetwork() string {
	return r.defaultNetwork
}

// Lookup resolves a network id. An empty id selects the default network.
func (r *Registry) Lookup(networkID string) (web3.ChainConfig, error) {
	return r.Resolve(networkID, "")
}

// Resolve is Lookup with an RPC endpoint that takes precedence over the
// configured one, such as the URL cached in a wallet's provider state.
func (r *Registry) Resolve(networkID, rpcURL string) (web3.ChainConfig, error) {
	if r == nil {
		return web3.ChainConfig{}, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链注册表")
	}
	networkID = strings.TrimSpace(networkID)
	if networkID == "" {
		networkID = r.defaultNetwork
	}
	def, ok := r.defs[networkID]
	if !ok {
		return web3.ChainConfig{}, web3.ChainConfigMissing(networkID, "definition")
	}
	if rpcURL = strings.TrimSpace(rpcURL); rpcURL != "" {
		def.RPCURL = rpcURL
		def.RPCURLEnv = ""
	}
	return def.Resolve(networkID)
}

// Client returns a cached client for the chain's RPC endpoint, dialing once.
func (r *Registry) Client(ctx context.Context, chain web3.ChainConfig) (web3.Client, error) {
	if chain.RPCURL == "" {
		return nil, web3.ChainConfigMissing(chain.NetworkID, "rpc_url")
	}
	key := chain.NetworkID + "|" + chain.RPCURL

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := r.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// Networks returns the registered network ids.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, key)
	}
}
