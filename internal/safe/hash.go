package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation is the Safe call type.
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

var (
	domainSeparatorTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash          = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// Tx is a Safe transaction without gas refunds, the only shape this package
// submits.
type Tx struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
	Nonce     uint64
}

// TxHash returns the EIP-712 digest the owner signs for tx.
func TxHash(chainID uint64, safe common.Address, tx Tx) common.Hash {
	domain := crypto.Keccak256(
		domainSeparatorTypeHash.Bytes(),
		word(new(big.Int).SetUint64(chainID)),
		common.LeftPadBytes(safe.Bytes(), 32),
	)
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	zero := make([]byte, 32)
	structHash := crypto.Keccak256(
		safeTxTypeHash.Bytes(),
		common.LeftPadBytes(tx.To.Bytes(), 32),
		word(value),
		crypto.Keccak256(tx.Data),
		word(big.NewInt(int64(tx.Operation))),
		zero, // safeTxGas
		zero, // baseGas
		zero, // gasPrice
		zero, // gasToken
		zero, // refundReceiver
		word(new(big.Int).SetUint64(tx.Nonce)),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain, structHash)
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
