package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/events"
	"IntentWallet/internal/units"
	"IntentWallet/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

func (c *cli) provisionCommand() *cobra.Command {
	var (
		agent        wallet.AgentConfig
		provider     string
		limit        string
		previousKind string
		previousLim  string
		async        bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or update the wallet of an agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := wallet.ParseProviderKind(provider)
			if err != nil {
				return err
			}
			prevKind, err := wallet.ParseProviderKind(previousKind)
			if err != nil {
				return err
			}
			agent.ProviderKind = kind
			if agent.WeeklySpendingLimit, err = optionalAmount(limit); err != nil {
				return err
			}
			prevLimit, err := optionalAmount(previousLim)
			if err != nil {
				return err
			}

			if async {
				return c.publish(cmd, events.NewConfigChange(agent, prevKind, prevLimit))
			}
			rec, err := c.app.Provisioner.Provision(cmd.Context(), agent, prevKind, prevLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	f := cmd.Flags()
	f.StringVar(&agent.ID, "agent", "", "agent id")
	f.StringVar(&provider, "provider", "", "wallet provider: custodial, safe, delegated, readonly, native, none")
	f.StringVar(&agent.Owner, "owner", "", "owner user id for safe and delegated wallets")
	f.StringVar(&agent.NetworkID, "network", "", "network id, defaults to the configured network")
	f.StringVar(&agent.ReadonlyAddress, "readonly-address", "", "address for readonly wallets")
	f.StringVar(&limit, "limit", "", "weekly spending limit in reference token units")
	f.StringVar(&previousKind, "previous-provider", "", "provider before this change")
	f.StringVar(&previousLim, "previous-limit", "", "weekly limit before this change")
	f.BoolVar(&async, "async", false, "publish a config change event instead of provisioning inline")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func (c *cli) setTokenLimitCommand() *cobra.Command {
	var (
		agentID string
		token   string
		amount  string
		async   bool
	)
	cmd := &cobra.Command{
		Use:   "set-token-limit",
		Short: "Set a weekly allowance for any ERC-20 token on a Safe wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !common.IsHexAddress(token) {
				return xerrors.New(xerrors.CodeInvalidArgument, "token 不是合法地址: "+token)
			}
			value, err := units.ParseAmount(amount)
			if err != nil {
				return err
			}
			tokenAddr := common.HexToAddress(token)
			if async {
				return c.publish(cmd, events.NewTokenLimit(agentID, tokenAddr, value))
			}
			res, err := c.app.Provisioner.SetTokenLimit(cmd.Context(), agentID, tokenAddr, value)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&agentID, "agent", "", "agent id")
	f.StringVar(&token, "token", "", "ERC-20 token address")
	f.StringVar(&amount, "amount", "", "weekly amount in whole token units")
	f.BoolVar(&async, "async", false, "publish an event instead of applying inline")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *cli) showCommand() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the wallet record of an agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := c.app.Provisioner.Get(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// exportKeyCommand 导出托管或本地钱包私钥，仅供运维恢复使用。
func (c *cli) exportKeyCommand() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "export-key",
		Short: "Export the private key of a custodial or native wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := c.app.Provisioner.Get(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			var key string
			switch rec.ProviderKind {
			case wallet.KindCustodial:
				if !common.IsHexAddress(rec.Address) {
					return xerrors.New(xerrors.CodeNotFound, "托管钱包尚未创建")
				}
				key, err = c.app.Custody.ExportAccount(cmd.Context(), common.HexToAddress(rec.Address))
			case wallet.KindNative:
				priv, derr := wallet.DecryptNative(rec.State.Native, c.app.Config.Native.Passphrase())
				if derr != nil {
					return derr
				}
				key = "0x" + hex.EncodeToString(crypto.FromECDSA(priv))
			default:
				return xerrors.New(xerrors.CodeInvalidArgument,
					fmt.Sprintf("%s 钱包没有可导出的私钥", rec.ProviderKind))
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (c *cli) chainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List registered networks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			type row struct {
				Network string `json:"network"`
				ChainID uint64 `json:"chain_id,omitempty"`
				Default bool   `json:"default,omitempty"`
				Safe    bool   `json:"safe"`
				Error   string `json:"error,omitempty"`
			}
			var rows []row
			for _, name := range c.app.Chains.Networks() {
				r := row{Network: name, Default: name == c.app.Chains.DefaultNetwork()}
				if chain, err := c.app.Chains.Lookup(name); err != nil {
					r.Error = err.Error()
				} else {
					r.ChainID = chain.ChainID
					r.Safe = chain.SupportsSafe()
				}
				rows = append(rows, r)
			}
			return printJSON(cmd, rows)
		},
	}
}

func (c *cli) publish(cmd *cobra.Command, event events.Event) error {
	if c.app.Config.Queue.Driver == "memory" {
		return xerrors.New(xerrors.CodeInvalidArgument, "memory 队列只在进程内可见，无法从命令行投递")
	}
	queue, err := events.Open(cmd.Context(), c.app.Config.Queue)
	if err != nil {
		return err
	}
	defer queue.Close()

	body, err := event.Encode()
	if err != nil {
		return err
	}
	if err := queue.Publish(cmd.Context(), body); err != nil {
		return err
	}
	return printJSON(cmd, map[string]string{"event_id": event.ID, "type": string(event.Type)})
}

func optionalAmount(value string) (*units.Amount, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	a, err := units.ParseAmount(value)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
