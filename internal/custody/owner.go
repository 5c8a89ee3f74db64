package custody

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorizedWallet 将授权服务中的单个钱包绑定为一个签名者。
type AuthorizedWallet struct {
	auth   Authorizer
	wallet Wallet
}

// NewAuthorizedWallet 返回绑定到 wallet 的签名者。
func NewAuthorizedWallet(auth Authorizer, wallet Wallet) *AuthorizedWallet {
	return &AuthorizedWallet{auth: auth, wallet: wallet}
}

// ID 返回钱包 ID。
func (w *AuthorizedWallet) ID() string { return w.wallet.ID }

// Address 返回钱包地址。
func (w *AuthorizedWallet) Address() common.Address { return w.wallet.Address }

// SignHash 使用钱包私钥签名摘要。
func (w *AuthorizedWallet) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return w.auth.SignHash(ctx, w.wallet.ID, hash)
}

// SendTransaction 由钱包签名并广播交易。
func (w *AuthorizedWallet) SendTransaction(ctx context.Context, tx Transaction) (common.Hash, error) {
	return w.auth.SendTransaction(ctx, w.wallet.ID, tx)
}
