package safe

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const safeABIJSON = `[
  {"type":"function","name":"setup","stateMutability":"nonpayable","inputs":[
    {"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},
    {"name":"to","type":"address"},{"name":"data","type":"bytes"},
    {"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},
    {"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"outputs":[]},
  {"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
    {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
    {"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
    {"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},
    {"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],
    "outputs":[{"name":"success","type":"bool"}]},
  {"type":"function","name":"enableModule","stateMutability":"nonpayable","inputs":[{"name":"module","type":"address"}],"outputs":[]},
  {"type":"function","name":"isModuleEnabled","stateMutability":"view","inputs":[{"name":"module","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const proxyFactoryABIJSON = `[
  {"type":"function","name":"createProxyWithNonce","stateMutability":"nonpayable","inputs":[
    {"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],
    "outputs":[{"name":"proxy","type":"address"}]},
  {"type":"function","name":"proxyCreationCode","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"bytes"}]}
]`

const allowanceModuleABIJSON = `[
  {"type":"function","name":"addDelegate","stateMutability":"nonpayable","inputs":[{"name":"delegate","type":"address"}],"outputs":[]},
  {"type":"function","name":"setAllowance","stateMutability":"nonpayable","inputs":[
    {"name":"delegate","type":"address"},{"name":"token","type":"address"},{"name":"allowanceAmount","type":"uint96"},
    {"name":"resetTimeMin","type":"uint16"},{"name":"resetBaseMin","type":"uint32"}],"outputs":[]},
  {"type":"function","name":"getTokenAllowance","stateMutability":"view","inputs":[
    {"name":"safe","type":"address"},{"name":"delegate","type":"address"},{"name":"token","type":"address"}],
    "outputs":[{"name":"","type":"uint256[5]"}]}
]`

const multiSendABIJSON = `[
  {"type":"function","name":"multiSend","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	safeABI            = mustParse(safeABIJSON)
	proxyFactoryABI    = mustParse(proxyFactoryABIJSON)
	allowanceModuleABI = mustParse(allowanceModuleABIJSON)
	multiSendABI       = mustParse(multiSendABIJSON)
	erc20ABI           = mustParse(erc20ABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
