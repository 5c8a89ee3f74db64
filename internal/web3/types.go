package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainConfig is the resolved view of a network used by the orchestration
// layers. It is immutable after construction.
type ChainConfig struct {
	NetworkID        string
	Name             string
	ChainID          uint64
	RPCURL           string
	ReferenceToken   common.Address
	TokenSymbol      string
	SafeTxServiceURL string
	Safe             SafeContracts
}

// SafeContracts holds the Safe protocol contract addresses for a network.
type SafeContracts struct {
	Singleton         common.Address
	ProxyFactory      common.Address
	FallbackHandler   common.Address
	MultiSendCallOnly common.Address
	AllowanceModule   common.Address
	// ProxyCreationCode is optional; when empty it is read from the factory.
	ProxyCreationCode []byte
}

// ChainIDBig returns the chain id as a big integer.
func (c ChainConfig) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// WithRPCURL returns a copy pointing at a different endpoint.
func (c ChainConfig) WithRPCURL(url string) ChainConfig {
	if url != "" {
		c.RPCURL = url
	}
	return c
}

// SupportsSafe reports whether all contracts needed for Safe provisioning are
// configured.
func (c ChainConfig) SupportsSafe() bool {
	zero := common.Address{}
	return c.Safe.Singleton != zero &&
		c.Safe.ProxyFactory != zero &&
		c.Safe.MultiSendCallOnly != zero &&
		c.Safe.AllowanceModule != zero
}

// Client is the read side of an EVM JSON-RPC endpoint. Transactions are signed
// and broadcast by custody services, so no send method is exposed here.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}
