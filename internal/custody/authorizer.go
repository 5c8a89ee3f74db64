package custody

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "IntentWallet/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AuthorizerConfig 描述授权服务的访问参数。
type AuthorizerConfig struct {
	BaseURL    string
	AppID      string
	AppSecret  string
	PublicKeys []string
	Timeout    time.Duration
}

// AuthorizerClient 通过 HTTP JSON 接口调用授权服务。
type AuthorizerClient struct {
	transport
	publicKeys []string
}

// NewAuthorizer 创建授权服务客户端。
func NewAuthorizer(cfg AuthorizerConfig) (*AuthorizerClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置授权服务地址")
	}
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供授权服务应用凭证")
	}
	appID, secret := cfg.AppID, cfg.AppSecret
	keys := make([]string, 0, len(cfg.PublicKeys))
	for _, k := range cfg.PublicKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &AuthorizerClient{
		transport: newTransport("authorizer", cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
			r.SetBasicAuth(appID, secret)
			r.Header.Set("privy-app-id", appID)
		}),
		publicKeys: keys,
	}, nil
}

// AuthorizationPublicKeys 返回服务端授权公钥。
func (c *AuthorizerClient) AuthorizationPublicKeys() []string {
	return append([]string(nil), c.publicKeys...)
}

// CreateKeyQuorum 创建 key quorum。
func (c *AuthorizerClient) CreateKeyQuorum(ctx context.Context, req QuorumRequest) (Quorum, error) {
	if req.Threshold <= 0 {
		req.Threshold = 1
	}
	body := map[string]any{
		"display_name":            req.DisplayName,
		"authorization_threshold": req.Threshold,
		"public_keys":             nonNil(req.PublicKeys),
		"user_ids":                nonNil(req.UserIDs),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/key_quorums", body, &resp); err != nil {
		return Quorum{}, err
	}
	if resp.ID == "" {
		return Quorum{}, xerrors.New(xerrors.CodeUpstreamRejected, "授权服务未返回 key quorum ID")
	}
	return Quorum{ID: resp.ID}, nil
}

// CreateWallet 创建由 ownerQuorumID 持有的以太坊钱包。
func (c *AuthorizerClient) CreateWallet(ctx context.Context, ownerQuorumID string) (Wallet, error) {
	body := map[string]any{
		"chain_type": "ethereum",
		"owner_id":   ownerQuorumID,
	}
	var resp struct {
		ID      string `json:"id"`
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/wallets", body, &resp); err != nil {
		return Wallet{}, err
	}
	if resp.ID == "" || !common.IsHexAddress(resp.Address) {
		return Wallet{}, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("授权服务返回的钱包无效: id=%q address=%q", resp.ID, resp.Address))
	}
	return Wallet{ID: resp.ID, Address: common.HexToAddress(resp.Address)}, nil
}

type rpcResponse struct {
	Data struct {
		Signature string `json:"signature"`
		Hash      string `json:"hash"`
	} `json:"data"`
}

// SignHash 对摘要签名，并将 v 规范化为 27/28。
func (c *AuthorizerClient) SignHash(ctx context.Context, walletID string, hash common.Hash) ([]byte, error) {
	body := map[string]any{
		"method": "secp256k1_sign",
		"params": map[string]string{"hash": hash.Hex()},
	}
	var resp rpcResponse
	if err := c.do(ctx, http.MethodPost, walletPath(walletID), body, &resp); err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(resp.Data.Signature)
	if err != nil || len(sig) != 65 {
		return nil, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("授权服务返回非法签名: %q", resp.Data.Signature))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SendTransaction 由钱包签名并广播交易。
func (c *AuthorizerClient) SendTransaction(ctx context.Context, walletID string, tx Transaction) (common.Hash, error) {
	body := map[string]any{
		"method": "eth_sendTransaction",
		"caip2":  fmt.Sprintf("eip155:%d", tx.ChainID),
		"params": map[string]any{"transaction": encodeTransaction(tx)},
	}
	var resp rpcResponse
	if err := c.do(ctx, http.MethodPost, walletPath(walletID), body, &resp); err != nil {
		return common.Hash{}, err
	}
	return parseHash(resp.Data.Hash)
}

func walletPath(walletID string) string {
	return "/wallets/" + url.PathEscape(walletID) + "/rpc"
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ Authorizer = (*AuthorizerClient)(nil)
