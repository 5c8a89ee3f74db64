package web3

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single network entry. Empty fields inherit the
// built-in default for the same network id.
type ChainDefinition struct {
	Type             string        `yaml:"type"`
	Name             string        `yaml:"name"`
	ChainID          uint64        `yaml:"chain_id"`
	RPCURL           string        `yaml:"rpc_url"`
	RPCURLEnv        string        `yaml:"rpc_url_env"`
	Description      string        `yaml:"description"`
	ReferenceToken   string        `yaml:"reference_token"`
	TokenSymbol      string        `yaml:"reference_token_symbol"`
	SafeTxServiceURL string        `yaml:"safe_tx_service_url"`
	Safe             SafeAddresses `yaml:"safe"`
}

// SafeAddresses lists the Safe protocol deployments used on a network.
type SafeAddresses struct {
	Singleton         string `yaml:"singleton"`
	ProxyFactory      string `yaml:"proxy_factory"`
	FallbackHandler   string `yaml:"fallback_handler"`
	MultiSendCallOnly string `yaml:"multi_send_call_only"`
	AllowanceModule   string `yaml:"allowance_module"`
	ProxyCreationCode string `yaml:"proxy_creation_code"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if err := def.validate(); err != nil {
			return ChainDefinitions{}, fmt.Errorf("链 %s 配置无效: %w", name, err)
		}
	}
	return defs, nil
}

// Merge overlays the receiver's non-empty fields on top of base.
func (d ChainDefinition) Merge(base ChainDefinition) ChainDefinition {
	out := base
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	pick(&out.Type, d.Type)
	pick(&out.Name, d.Name)
	pick(&out.RPCURL, d.RPCURL)
	pick(&out.RPCURLEnv, d.RPCURLEnv)
	pick(&out.Description, d.Description)
	pick(&out.ReferenceToken, d.ReferenceToken)
	pick(&out.TokenSymbol, d.TokenSymbol)
	pick(&out.SafeTxServiceURL, d.SafeTxServiceURL)
	pick(&out.Safe.Singleton, d.Safe.Singleton)
	pick(&out.Safe.ProxyFactory, d.Safe.ProxyFactory)
	pick(&out.Safe.FallbackHandler, d.Safe.FallbackHandler)
	pick(&out.Safe.MultiSendCallOnly, d.Safe.MultiSendCallOnly)
	pick(&out.Safe.AllowanceModule, d.Safe.AllowanceModule)
	pick(&out.Safe.ProxyCreationCode, d.Safe.ProxyCreationCode)
	if d.ChainID != 0 {
		out.ChainID = d.ChainID
	}
	return out
}

func (d ChainDefinition) validate() error {
	addrs := map[string]string{
		"reference_token":           d.ReferenceToken,
		"safe.singleton":            d.Safe.Singleton,
		"safe.proxy_factory":        d.Safe.ProxyFactory,
		"safe.fallback_handler":     d.Safe.FallbackHandler,
		"safe.multi_send_call_only": d.Safe.MultiSendCallOnly,
		"safe.allowance_module":     d.Safe.AllowanceModule,
	}
	for field, value := range addrs {
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("%s 不是合法地址: %s", field, value)
		}
	}
	if t := strings.ToLower(strings.TrimSpace(d.Type)); t != "" && t != "evm" {
		return fmt.Errorf("不支持的链类型 %s", d.Type)
	}
	return nil
}

// Resolve turns a definition into a ChainConfig. Missing RPC endpoint or
// chain id yields ErrChainConfigMissing.
func (d ChainDefinition) Resolve(networkID string) (ChainConfig, error) {
	rpcURL := strings.TrimSpace(d.RPCURL)
	if env := strings.TrimSpace(d.RPCURLEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			rpcURL = v
		}
	}
	if rpcURL == "" {
		return ChainConfig{}, ChainConfigMissing(networkID, "rpc_url")
	}
	if d.ChainID == 0 {
		return ChainConfig{}, ChainConfigMissing(networkID, "chain_id")
	}
	cfg := ChainConfig{
		NetworkID:        networkID,
		Name:             d.Name,
		ChainID:          d.ChainID,
		RPCURL:           rpcURL,
		TokenSymbol:      d.TokenSymbol,
		SafeTxServiceURL: d.SafeTxServiceURL,
		Safe: SafeContracts{
			Singleton:         addressOrZero(d.Safe.Singleton),
			ProxyFactory:      addressOrZero(d.Safe.ProxyFactory),
			FallbackHandler:   addressOrZero(d.Safe.FallbackHandler),
			MultiSendCallOnly: addressOrZero(d.Safe.MultiSendCallOnly),
			AllowanceModule:   addressOrZero(d.Safe.AllowanceModule),
		},
	}
	if d.ReferenceToken != "" {
		cfg.ReferenceToken = common.HexToAddress(d.ReferenceToken)
	}
	if code := strings.TrimSpace(d.Safe.ProxyCreationCode); code != "" {
		cfg.Safe.ProxyCreationCode = common.FromHex(code)
	}
	return cfg, nil
}

func addressOrZero(value string) common.Address {
	if value == "" {
		return common.Address{}
	}
	return common.HexToAddress(value)
}
