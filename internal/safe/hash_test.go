package safe

import (
	"math/big"
	"testing"

	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestTypeHashes(t *testing.T) {
	require.Equal(t, "0x47e79534a245952e8b16893a336b85a3d9ea9fa8c573f3d803afb92a79469218", domainSeparatorTypeHash.Hex())
	require.Equal(t, "0xbb8310d486368db6bd6f849402fdd73ad53d316b5a4b2644ad6efe0f941286d8", safeTxTypeHash.Hex())
}

func TestSelectors(t *testing.T) {
	cases := map[string][]byte{
		"execTransaction": safeABI.Methods["execTransaction"].ID,
		"setup":           safeABI.Methods["setup"].ID,
		"enableModule":    safeABI.Methods["enableModule"].ID,
		"multiSend":       multiSendABI.Methods["multiSend"].ID,
		"setAllowance":    allowanceModuleABI.Methods["setAllowance"].ID,
		"addDelegate":     allowanceModuleABI.Methods["addDelegate"].ID,
		"createProxy":     proxyFactoryABI.Methods["createProxyWithNonce"].ID,
	}
	want := map[string]string{
		"execTransaction": "0x6a761202",
		"setup":           "0xb63e800d",
		"enableModule":    "0x610b5925",
		"multiSend":       "0x8d80ff0a",
		"setAllowance":    "0xbeaeb388",
		"addDelegate":     "0xe71bdf41",
		"createProxy":     "0x1688f0b9",
	}
	for name, id := range cases {
		require.Equal(t, want[name], hexutil.Encode(id), name)
	}
}

func TestTxHashBindsNonce(t *testing.T) {
	safe := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	module := common.HexToAddress("0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134")
	data, err := safeABI.Pack("enableModule", module)
	require.NoError(t, err)

	digest := TxHash(8453, safe, Tx{To: safe, Data: data, Operation: Call, Nonce: 7})
	require.Equal(t, "0x551ec250beb187ecfce91a03fad03a98661b341e25f138e451032c753540f4ea", digest.Hex())

	require.NotEqual(t, digest, TxHash(8453, safe, Tx{To: safe, Data: data, Operation: Call, Nonce: 8}))
	require.NotEqual(t, digest, TxHash(1, safe, Tx{To: safe, Data: data, Operation: Call, Nonce: 7}))
}

func TestPredictAddress(t *testing.T) {
	contracts := web3.SafeContracts{
		Singleton:       common.HexToAddress("0xfb1bffC9d739B8D520DaF37dF666da4C687191EA"),
		ProxyFactory:    common.HexToAddress("0xC22834581EbC8527d974F8a1c97E1bEA4EF910BC"),
		FallbackHandler: common.HexToAddress("0x017062a1dE2FE6b99BE3d9d37841FeD19F573804"),
	}
	creationCode := []byte{0x60, 0x80, 0x60, 0x40}
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	got, err := PredictAddress(contracts, creationCode, owner, big.NewInt(0))
	require.NoError(t, err)

	initializer, err := Initializer(owner, contracts.FallbackHandler)
	require.NoError(t, err)
	salt := crypto.Keccak256(crypto.Keccak256(initializer), make([]byte, 32))
	deployment := append(append([]byte{}, creationCode...), common.LeftPadBytes(contracts.Singleton.Bytes(), 32)...)
	want := crypto.CreateAddress2(contracts.ProxyFactory, common.BytesToHash(salt), crypto.Keccak256(deployment))
	require.Equal(t, want, got)

	again, err := PredictAddress(contracts, creationCode, owner, nil)
	require.NoError(t, err)
	require.Equal(t, got, again, "prediction must be deterministic")

	other, err := PredictAddress(contracts, creationCode, common.HexToAddress("0x00000000000000000000000000000000000000b1"), big.NewInt(0))
	require.NoError(t, err)
	require.NotEqual(t, got, other)

	salted, err := PredictAddress(contracts, creationCode, owner, big.NewInt(1))
	require.NoError(t, err)
	require.NotEqual(t, got, salted)

	_, err = PredictAddress(contracts, nil, owner, nil)
	require.Error(t, err)
}

func TestEncodeMultiSendLayout(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	encoded, err := EncodeMultiSend([]MultiSendCall{{To: to, Data: []byte{0xaa, 0xbb}}})
	require.NoError(t, err)

	args, err := multiSendABI.Methods["multiSend"].Inputs.Unpack(encoded[4:])
	require.NoError(t, err)
	packed := args[0].([]byte)
	require.Len(t, packed, 1+20+32+32+2)
	require.Equal(t, byte(0), packed[0])
	require.Equal(t, to.Bytes(), packed[1:21])
	require.Equal(t, big.NewInt(2), new(big.Int).SetBytes(packed[53:85]))
	require.Equal(t, []byte{0xaa, 0xbb}, packed[85:])
}
