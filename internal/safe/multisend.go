package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MultiSendCall is one entry of a MultiSendCallOnly batch.
type MultiSendCall struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// EncodeMultiSend packs calls as operation(1) || to(20) || value(32) ||
// dataLength(32) || data and wraps them in multiSend(bytes).
func EncodeMultiSend(calls []MultiSendCall) ([]byte, error) {
	var packed []byte
	for _, c := range calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		packed = append(packed, byte(Call))
		packed = append(packed, c.To.Bytes()...)
		packed = append(packed, word(value)...)
		packed = append(packed, word(big.NewInt(int64(len(c.Data))))...)
		packed = append(packed, c.Data...)
	}
	return multiSendABI.Pack("multiSend", packed)
}
