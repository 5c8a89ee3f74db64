package safe

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/nonce"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/codes"
)

// SetTokenLimit sets or overwrites the owner's allowance for one token,
// enabling the allowance module first when necessary.
func (o *Orchestrator) SetTokenLimit(ctx context.Context, req LimitRequest) (*LimitResult, error) {
	ctx, span := o.startSpan(ctx, "safe.set_token_limit", req.NetworkID, req.Owner)
	defer span.End()

	result, err := o.setTokenLimit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "limit configured")
	return result, nil
}

// UpdateLimit changes the weekly reference-token limit of an existing Safe.
// The Safe nonce is always read from the chain.
func (o *Orchestrator) UpdateLimit(ctx context.Context, safe common.Address, owner Owner, networkID, rpcURL string, amount units.Amount) (*LimitResult, error) {
	return o.SetTokenLimit(ctx, LimitRequest{
		Safe:      safe,
		Owner:     owner,
		NetworkID: networkID,
		RPCURL:    rpcURL,
		Amount:    amount,
	})
}

func (o *Orchestrator) setTokenLimit(ctx context.Context, req LimitRequest) (*LimitResult, error) {
	if req.Safe == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 Safe 地址")
	}
	s, err := o.open(ctx, req.NetworkID, req.RPCURL, req.Owner)
	if err != nil {
		return nil, err
	}
	s.safe = req.Safe
	s.safeNonce = nonce.Override(req.Nonce, s.safeNonceSource())

	token := req.Token
	if token == (common.Address{}) {
		if s.chain.ReferenceToken == (common.Address{}) {
			return nil, web3.ChainConfigMissing(s.chain.NetworkID, "reference_token")
		}
		token = s.chain.ReferenceToken
	}
	return o.configureLimit(ctx, s, token, req.Amount, req.TokenDecimals, nil)
}

// configureLimit enables the allowance module if needed and submits one
// MultiSend batch of addDelegate(owner) and setAllowance. A step is only
// checkpointed once its receipt reports success.
func (o *Orchestrator) configureLimit(ctx context.Context, s *session, token common.Address, amount units.Amount, decimals *uint8, cp Checkpoint) (*LimitResult, error) {
	start := len(s.txs)
	module := s.chain.Safe.AllowanceModule

	enabled, err := s.moduleEnabled(ctx)
	if err != nil {
		return nil, err
	}
	var enableTx *TxRecord
	if !enabled {
		data, err := safeABI.Pack("enableModule", module)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 enableModule 失败")
		}
		rec, err := s.exec(ctx, KindEnableModule, s.safe, data, Call)
		if err != nil {
			return nil, err
		}
		enableTx = &rec
	} else if err := s.checkpoint(ctx, cp, StatusModuleEnabled, nil); err != nil {
		return nil, err
	}

	tokenDecimals, err := o.tokenDecimals(ctx, s, token, decimals)
	if err != nil {
		return nil, err
	}
	base, err := amount.ToBaseUnits(tokenDecimals)
	if err != nil {
		return nil, err
	}
	if base.BitLen() > 96 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("额度 %s 超出 uint96 范围", amount))
	}

	owner := s.owner.Address()
	addDelegate, err := allowanceModuleABI.Pack("addDelegate", owner)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 addDelegate 失败")
	}
	setAllowance, err := allowanceModuleABI.Pack("setAllowance", owner, token, base.ToBig(), o.cfg.ResetMinutes, uint32(0))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 setAllowance 失败")
	}
	batch, err := EncodeMultiSend([]MultiSendCall{
		{To: module, Data: addDelegate},
		{To: module, Data: setAllowance},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 multiSend 失败")
	}
	limitTx, err := s.exec(ctx, KindSetSpendingLimit, s.chain.Safe.MultiSendCallOnly, batch, DelegateCall)
	if err != nil {
		return nil, err
	}

	// Nonces are already assigned, so receipts are awaited in submission order.
	if enableTx != nil {
		if err := o.awaitReceipt(ctx, s, *enableTx); err != nil {
			return nil, err
		}
		if err := s.checkpoint(ctx, cp, StatusModuleEnabled, nil); err != nil {
			return nil, err
		}
	}
	if err := o.awaitReceipt(ctx, s, limitTx); err != nil {
		return nil, err
	}

	next, err := s.safeNonce.Peek(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkpoint(ctx, cp, StatusLimitConfigured, &next); err != nil {
		return nil, err
	}

	o.log.Info("支出额度已设置",
		slog.String("network", s.chain.NetworkID),
		slog.String("safe", s.safe.Hex()),
		slog.String("token", token.Hex()),
		slog.String("amount", amount.String()),
		slog.Uint64("next_nonce", next))

	return &LimitResult{
		ModuleEnabled:   true,
		LimitConfigured: true,
		TxHashes:        append([]TxRecord(nil), s.txs[start:]...),
		NextNonce:       next,
	}, nil
}

func (o *Orchestrator) tokenDecimals(ctx context.Context, s *session, token common.Address, explicit *uint8) (uint8, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if d, ok := o.decimals.Get(ctx, s.chain.NetworkID, token); ok {
		return d, nil
	}
	out, err := s.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("代币 %s 的 decimals 返回类型异常", token.Hex()))
	}
	o.decimals.Set(ctx, s.chain.NetworkID, token, d)
	return d, nil
}
