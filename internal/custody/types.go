package custody

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account 表示托管服务中的一个 EOA 账户。
type Account struct {
	Name    string
	Address common.Address
}

// Transaction 是交给托管服务签名并广播的交易。Nonce 由调用方分配。
type Transaction struct {
	ChainID uint64
	To      common.Address
	Data    []byte
	Value   *big.Int
	Nonce   uint64
	Gas     uint64
}

// Service 描述托管账户服务。SignAndSend 与 ExportAccount 是运维接口，
// 由 walletctl send-tx 与 export-key 调用；Safe 流程只通过 Authorizer 签名。
type Service interface {
	CreateAccount(ctx context.Context, name string) (Account, error)
	ImportAccount(ctx context.Context, name string, key *ecdsa.PrivateKey) (Account, error)
	SignAndSend(ctx context.Context, from common.Address, tx Transaction) (common.Hash, error)
	// ExportAccount 返回十六进制私钥，仅供运维使用。
	ExportAccount(ctx context.Context, address common.Address) (string, error)
}

// QuorumRequest 描述创建 key quorum 的参数。
type QuorumRequest struct {
	UserIDs     []string
	PublicKeys  []string
	Threshold   int
	DisplayName string
}

// Quorum 是授权服务返回的 key quorum。
type Quorum struct {
	ID string
}

// Wallet 是由 key quorum 持有的委托钱包。
type Wallet struct {
	ID      string
	Address common.Address
}

// Authorizer 描述所有者授权服务。
type Authorizer interface {
	CreateKeyQuorum(ctx context.Context, req QuorumRequest) (Quorum, error)
	CreateWallet(ctx context.Context, ownerQuorumID string) (Wallet, error)
	// SignHash 对 32 字节摘要做原始 secp256k1 签名，返回 65 字节 r||s||v，v 为 27/28。
	SignHash(ctx context.Context, walletID string, hash common.Hash) ([]byte, error)
	SendTransaction(ctx context.Context, walletID string, tx Transaction) (common.Hash, error)
	AuthorizationPublicKeys() []string
}
