package custody

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "IntentWallet/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClientConfig 描述托管账户服务的访问参数。
type ClientConfig struct {
	BaseURL   string
	APIKeyID  string
	APISecret string
	Timeout   time.Duration
}

// Client 通过 HTTP JSON 接口调用托管账户服务。
type Client struct {
	transport
}

// NewClient 根据配置创建托管服务客户端。
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置托管服务地址")
	}
	if strings.TrimSpace(cfg.APIKeyID) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供托管服务 API 凭证")
	}
	keyID, secret := cfg.APIKeyID, cfg.APISecret
	return &Client{transport: newTransport("custody", cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
		r.Header.Set("X-Api-Key-Id", keyID)
		r.Header.Set("Authorization", "Bearer "+secret)
	})}, nil
}

type accountResponse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (r accountResponse) account() (Account, error) {
	if !common.IsHexAddress(r.Address) {
		return Account{}, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("托管服务返回非法地址: %q", r.Address))
	}
	return Account{Name: r.Name, Address: common.HexToAddress(r.Address)}, nil
}

// CreateAccount 创建一个新的托管 EOA。同名账户已存在时服务端返回已有账户。
func (c *Client) CreateAccount(ctx context.Context, name string) (Account, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodPost, "/accounts", map[string]string{"name": name}, &resp); err != nil {
		return Account{}, err
	}
	return resp.account()
}

// ImportAccount 将已有私钥导入托管服务。
func (c *Client) ImportAccount(ctx context.Context, name string, key *ecdsa.PrivateKey) (Account, error) {
	if key == nil {
		return Account{}, xerrors.New(xerrors.CodeInvalidArgument, "导入私钥为空")
	}
	body := map[string]string{
		"name":        name,
		"private_key": hexutil.Encode(crypto.FromECDSA(key)),
	}
	var resp accountResponse
	if err := c.do(ctx, http.MethodPost, "/accounts/import", body, &resp); err != nil {
		return Account{}, err
	}
	return resp.account()
}

// SignAndSend 由托管账户签名并广播交易。
func (c *Client) SignAndSend(ctx context.Context, from common.Address, tx Transaction) (common.Hash, error) {
	var resp struct {
		TransactionHash string `json:"transaction_hash"`
	}
	path := "/accounts/" + url.PathEscape(from.Hex()) + "/transactions"
	if err := c.do(ctx, http.MethodPost, path, encodeTransaction(tx), &resp); err != nil {
		return common.Hash{}, err
	}
	return parseHash(resp.TransactionHash)
}

// ExportAccount 导出账户私钥。
func (c *Client) ExportAccount(ctx context.Context, address common.Address) (string, error) {
	var resp struct {
		PrivateKey string `json:"private_key"`
	}
	path := "/accounts/" + url.PathEscape(address.Hex()) + "/export"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.PrivateKey) == "" {
		return "", xerrors.New(xerrors.CodeUpstreamRejected, "托管服务未返回私钥")
	}
	return resp.PrivateKey, nil
}

type transactionPayload struct {
	ChainID string `json:"chain_id"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	Nonce   string `json:"nonce"`
	Gas     string `json:"gas,omitempty"`
}

func encodeTransaction(tx Transaction) transactionPayload {
	payload := transactionPayload{
		ChainID: hexutil.EncodeUint64(tx.ChainID),
		To:      tx.To.Hex(),
		Data:    hexutil.Encode(tx.Data),
		Value:   "0x0",
		Nonce:   hexutil.EncodeUint64(tx.Nonce),
	}
	if tx.Value != nil {
		payload.Value = hexutil.EncodeBig(tx.Value)
	}
	if tx.Gas > 0 {
		payload.Gas = hexutil.EncodeUint64(tx.Gas)
	}
	return payload
}

func parseHash(value string) (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("非法交易哈希: %q", value))
	}
	return common.BytesToHash(raw), nil
}

var _ Service = (*Client)(nil)
