// Package hdwallet derives Ethereum accounts from the BIP-32 seeds of legacy
// custodial wallets. Derivation is delegated to btcutil's hdkeychain and path
// parsing to go-ethereum's accounts package.
package hdwallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	xerrors "IntentWallet/internal/errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HardenedOffset marks a hardened child index.
const HardenedOffset = hdkeychain.HardenedKeyStart

// DefaultPath is the first Ethereum account, m/44'/60'/0'/0/0.
var DefaultPath = accounts.DefaultBaseDerivationPath.String()

// ExtendedKey is a private node of the derivation tree.
type ExtendedKey struct {
	node *hdkeychain.ExtendedKey
}

// NewMaster computes the master node for a seed. The network parameters only
// affect serialisation, which legacy wallets never use.
func NewMaster(seed []byte) (*ExtendedKey, error) {
	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("种子无法生成主密钥 (长度 %d)", len(seed)))
	}
	return &ExtendedKey{node: node}, nil
}

// Child derives the private child at index.
func (k *ExtendedKey) Child(index uint32) (*ExtendedKey, error) {
	child, err := k.node.Derive(index)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("索引 %d 派生失败", index))
	}
	return &ExtendedKey{node: child}, nil
}

// Derive walks a path such as m/44'/60'/0'/0/0.
func (k *ExtendedKey) Derive(path string) (*ExtendedKey, error) {
	indexes, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	node := k
	for _, idx := range indexes {
		if node, err = node.Child(idx); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// PrivateKey returns the node's key on go-ethereum's curve.
func (k *ExtendedKey) PrivateKey() (*ecdsa.PrivateKey, error) {
	raw, err := k.privateKeyBytes()
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无效的私钥")
	}
	return priv, nil
}

// PrivateKeyBytes returns the raw 32 byte key, or nil for a public node.
func (k *ExtendedKey) PrivateKeyBytes() []byte {
	raw, _ := k.privateKeyBytes()
	return raw
}

func (k *ExtendedKey) privateKeyBytes() ([]byte, error) {
	priv, err := k.node.ECPrivKey()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "节点不含私钥")
	}
	return priv.Serialize(), nil
}

// ChainCode returns a copy of the chain code.
func (k *ExtendedKey) ChainCode() []byte {
	return append([]byte(nil), k.node.ChainCode()...)
}

// Depth is the number of derivation steps from the master.
func (k *ExtendedKey) Depth() uint8 {
	return k.node.Depth()
}

// ParsePath converts an absolute path such as "m/44'/60'/0'/0/0" into child
// indexes. Relative paths are rejected so a stored path always means the same key.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path != "m" && !strings.HasPrefix(path, "m/") {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("派生路径必须以 m 开头: %q", path))
	}
	if path == "m" {
		return []uint32{}, nil
	}
	parsed, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("派生路径非法: %q", path))
	}
	return []uint32(parsed), nil
}

// DeriveAccount derives the key at DefaultPath and its address.
func DeriveAccount(seed []byte) (*ecdsa.PrivateKey, common.Address, error) {
	return DeriveAccountAt(seed, DefaultPath)
}

// DeriveAccountAt derives the key at path and its address.
func DeriveAccountAt(seed []byte, path string) (*ecdsa.PrivateKey, common.Address, error) {
	master, err := NewMaster(seed)
	if err != nil {
		return nil, common.Address{}, err
	}
	node, err := master.Derive(path)
	if err != nil {
		return nil, common.Address{}, err
	}
	priv, err := node.PrivateKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	return priv, crypto.PubkeyToAddress(priv.PublicKey), nil
}
