package wallet

import (
	"context"
	"crypto/ecdsa"
	"log/slog"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// NativeAdapter 在本地生成私钥，并以 keystore 格式加密保存在钱包状态中。
type NativeAdapter struct {
	passphrase string
	scryptN    int
	scryptP    int
	chains     ChainResolver
}

// NewNativeAdapter 创建本地密钥适配器。light 为 true 时使用轻量 scrypt 参数，仅用于测试与开发。
func NewNativeAdapter(passphrase string, light bool, chains ChainResolver) *NativeAdapter {
	a := &NativeAdapter{
		passphrase: passphrase,
		scryptN:    keystore.StandardScryptN,
		scryptP:    keystore.StandardScryptP,
		chains:     chains,
	}
	if light {
		a.scryptN, a.scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	return a
}

// Kind 实现 Adapter。
func (a *NativeAdapter) Kind() ProviderKind { return KindNative }

// Provision 实现 Adapter。
func (a *NativeAdapter) Provision(_ context.Context, agent AgentConfig, rec *Record, _ Saver) (Patch, error) {
	if rec != nil && rec.State.Native != nil && len(rec.State.Native.EncryptedKey) > 0 {
		return Patch{ProviderKind: KindNative, Address: rec.State.Native.Address}, nil
	}
	if a.passphrase == "" {
		return Patch{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置本地钱包加密口令",
			xerrors.WithRetryable(false))
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return Patch{}, xerrors.Wrap(xerrors.CodeUnknown, err, "生成私钥失败")
	}
	encrypted, err := a.encrypt(key)
	if err != nil {
		return Patch{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	logger.Audit().Info("native wallet created",
		slog.String("agent_id", agent.ID),
		slog.String("address", addr.Hex()))

	return Patch{
		ProviderKind: KindNative,
		Address:      addr.Hex(),
		State: &ProviderState{Native: &NativeState{
			NetworkID:    networkOf(agent, "", a.chains),
			EncryptedKey: encrypted,
			Address:      addr.Hex(),
		}},
	}, nil
}

func (a *NativeAdapter) encrypt(key *ecdsa.PrivateKey) ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成密钥 ID 失败")
	}
	blob, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, a.passphrase, a.scryptN, a.scryptP)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "加密私钥失败")
	}
	return blob, nil
}

// DecryptNative 解密本地钱包私钥，供运维导出使用。
func DecryptNative(state *NativeState, passphrase string) (*ecdsa.PrivateKey, error) {
	if state == nil || len(state.EncryptedKey) == 0 {
		return nil, xerrors.New(xerrors.CodeNotFound, "钱包没有本地密钥")
	}
	key, err := keystore.DecryptKey(state.EncryptedKey, passphrase)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解密本地密钥失败")
	}
	return key.PrivateKey, nil
}
