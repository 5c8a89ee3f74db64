package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"IntentWallet/internal/custody"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/wallet"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// sendRequest 是运维从托管钱包发出的一笔交易。Nonce 为空时查询链上 pending nonce。
type sendRequest struct {
	AgentID string
	Network string
	To      string
	Data    string
	Value   string
	Gas     uint64
	Nonce   *uint64
}

type sendResult struct {
	From    string `json:"from"`
	Network string `json:"network"`
	Nonce   uint64 `json:"nonce"`
	TxHash  string `json:"tx_hash"`
}

// sendCommand 通过托管服务签名并广播托管钱包的交易，用于运维转出资产。
func (c *cli) sendCommand() *cobra.Command {
	var (
		req   sendRequest
		nonce int64
	)
	cmd := &cobra.Command{
		Use:   "send-tx",
		Short: "Sign and broadcast a transaction from a custodial wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nonce >= 0 {
				n := uint64(nonce)
				req.Nonce = &n
			}
			res, err := c.sendTransaction(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.AgentID, "agent", "", "agent id")
	f.StringVar(&req.Network, "network", "", "network id, defaults to the configured network")
	f.StringVar(&req.To, "to", "", "recipient address")
	f.StringVar(&req.Data, "data", "0x", "hex encoded calldata")
	f.StringVar(&req.Value, "value", "0", "value in wei")
	f.Uint64Var(&req.Gas, "gas", 0, "gas limit, zero lets custody estimate")
	f.Int64Var(&nonce, "nonce", -1, "account nonce, queried from the chain when negative")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) sendTransaction(ctx context.Context, req sendRequest) (*sendResult, error) {
	if !common.IsHexAddress(req.To) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "to 不是合法地址: "+req.To)
	}
	data, err := hexutil.Decode(normalizeHex(req.Data))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "data 不是合法十六进制")
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(req.Value), 10)
	if !ok || value.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "value 必须是非负整数 wei: "+req.Value)
	}

	rec, err := c.app.Provisioner.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if rec.ProviderKind != wallet.KindCustodial || !common.IsHexAddress(rec.Address) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("只有已创建的托管钱包可以发送交易，当前为 %s", rec.ProviderKind), xerrors.WithAgent(req.AgentID))
	}
	from := common.HexToAddress(rec.Address)

	chain, err := c.app.Chains.Lookup(req.Network)
	if err != nil {
		return nil, err
	}
	var n uint64
	if req.Nonce != nil {
		n = *req.Nonce
	} else {
		client, err := c.app.Chains.Client(ctx, chain)
		if err != nil {
			return nil, err
		}
		if n, err = client.PendingNonceAt(ctx, from); err != nil {
			return nil, err
		}
	}

	hash, err := c.app.Custody.SignAndSend(ctx, from, custody.Transaction{
		ChainID: chain.ChainID,
		To:      common.HexToAddress(req.To),
		Data:    data,
		Value:   value,
		Nonce:   n,
		Gas:     req.Gas,
	})
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("operator transaction submitted",
		slog.String("agent_id", req.AgentID),
		slog.String("network", chain.NetworkID),
		slog.String("from", from.Hex()),
		slog.String("to", common.HexToAddress(req.To).Hex()),
		slog.String("value", value.String()),
		slog.Uint64("nonce", n),
		slog.String("tx_hash", hash.Hex()))
	return &sendResult{From: from.Hex(), Network: chain.NetworkID, Nonce: n, TxHash: hash.Hex()}, nil
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") {
		return "0x" + s
	}
	return s
}
