package safe

import (
	"math/big"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Initializer encodes setup() for a single-owner, threshold-1 Safe.
func Initializer(owner, fallbackHandler common.Address) ([]byte, error) {
	data, err := safeABI.Pack("setup",
		[]common.Address{owner},
		big.NewInt(1),
		common.Address{},
		[]byte{},
		fallbackHandler,
		common.Address{},
		big.NewInt(0),
		common.Address{},
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 Safe setup 失败")
	}
	return data, nil
}

// PredictAddress computes the CREATE2 address createProxyWithNonce will deploy
// to. It performs no network calls.
func PredictAddress(contracts web3.SafeContracts, proxyCreationCode []byte, owner common.Address, saltNonce *big.Int) (common.Address, error) {
	if len(proxyCreationCode) == 0 {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "缺少 Safe 代理创建字节码")
	}
	initializer, err := Initializer(owner, contracts.FallbackHandler)
	if err != nil {
		return common.Address{}, err
	}
	if saltNonce == nil {
		saltNonce = new(big.Int)
	}
	salt := crypto.Keccak256Hash(crypto.Keccak256(initializer), word(saltNonce))

	deployment := make([]byte, 0, len(proxyCreationCode)+32)
	deployment = append(deployment, proxyCreationCode...)
	deployment = append(deployment, common.LeftPadBytes(contracts.Singleton.Bytes(), 32)...)

	return crypto.CreateAddress2(contracts.ProxyFactory, salt, crypto.Keccak256(deployment)), nil
}
