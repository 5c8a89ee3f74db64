package web3

import (
	"fmt"

	xerrors "IntentWallet/internal/errors"
)

const (
	// CodeChainConfigMissing 表示请求的网络没有可用的 RPC 端点或合约配置。
	CodeChainConfigMissing xerrors.Code = "CHAIN_CONFIG_MISSING"
	// CodeIrrecoverableChain 表示链上交易回滚或部署确认超时，需要人工介入。
	CodeIrrecoverableChain xerrors.Code = "IRRECOVERABLE_CHAIN"
)

var (
	// ErrChainConfigMissing 用于 errors.Is 判断。
	ErrChainConfigMissing = xerrors.New(CodeChainConfigMissing, "chain config missing")
	// ErrIrrecoverableChain 用于 errors.Is 判断。
	ErrIrrecoverableChain = xerrors.New(CodeIrrecoverableChain, "irrecoverable chain error")
)

func init() {
	xerrors.Register(CodeChainConfigMissing, xerrors.Attributes{
		Message:  "chain config missing",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeIrrecoverableChain, xerrors.Attributes{
		Message:  "irrecoverable chain error",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// ChainConfigMissing 构造指定网络缺失配置的错误。
func ChainConfigMissing(networkID, field string) error {
	return xerrors.New(CodeChainConfigMissing,
		fmt.Sprintf("网络 %s 缺少 %s 配置", networkID, field),
		xerrors.WithNetwork(networkID),
		xerrors.WithMetadata("field", field))
}

// Irrecoverable 包装链上不可恢复错误。
func Irrecoverable(cause error, message string, opts ...xerrors.Option) error {
	return xerrors.Wrap(CodeIrrecoverableChain, cause, message, opts...)
}
