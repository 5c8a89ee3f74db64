package wallet

import (
	"fmt"

	xerrors "IntentWallet/internal/errors"
)

const (
	// CodeProviderImmutable 表示试图更改已确定的钱包类型。
	CodeProviderImmutable xerrors.Code = "PROVIDER_IMMUTABLE"
	// CodeWalletDataCorrupt 表示持久化的钱包状态无法解析或互相矛盾。
	CodeWalletDataCorrupt xerrors.Code = "WALLET_DATA_CORRUPT"
	// CodeOwnerIdentityInvalid 表示 agent 所有者身份缺失或不符合要求。
	CodeOwnerIdentityInvalid xerrors.Code = "OWNER_IDENTITY_INVALID"
	// CodeSafeWalletRequired 表示操作只支持 Safe 钱包。
	CodeSafeWalletRequired xerrors.Code = "SAFE_WALLET_REQUIRED"
)

var (
	// ErrRecordNotFound 表示 agent 尚无钱包记录。
	ErrRecordNotFound = xerrors.New(xerrors.CodeNotFound, "wallet record not found")
	// ErrProviderImmutable 用于 errors.Is 判断。
	ErrProviderImmutable = xerrors.New(CodeProviderImmutable, "wallet provider cannot change once set")
	// ErrWalletDataCorrupt 用于 errors.Is 判断。
	ErrWalletDataCorrupt = xerrors.New(CodeWalletDataCorrupt, "wallet data corrupt")
	// ErrOwnerIdentityInvalid 用于 errors.Is 判断。
	ErrOwnerIdentityInvalid = xerrors.New(CodeOwnerIdentityInvalid, "owner identity invalid")
	// ErrSafeWalletRequired 用于 errors.Is 判断。
	ErrSafeWalletRequired = xerrors.New(CodeSafeWalletRequired, "safe wallet required")
)

func init() {
	xerrors.Register(CodeProviderImmutable, xerrors.Attributes{
		Message:  "wallet provider cannot change once set",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeWalletDataCorrupt, xerrors.Attributes{
		Message:  "wallet data corrupt",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeOwnerIdentityInvalid, xerrors.Attributes{
		Message:  "owner identity invalid",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeSafeWalletRequired, xerrors.Attributes{
		Message:  "safe wallet required",
		Severity: xerrors.SeverityInfo,
	})
}

func corrupt(agentID, format string, args ...any) error {
	return xerrors.New(CodeWalletDataCorrupt, fmt.Sprintf(format, args...), xerrors.WithAgent(agentID))
}

func ownerInvalid(agentID, message string) error {
	return xerrors.New(CodeOwnerIdentityInvalid, message, xerrors.WithAgent(agentID))
}
