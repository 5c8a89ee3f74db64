package safe

import (
	"context"
	"time"

	"IntentWallet/internal/custody"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the persisted progress of a Safe provisioning sequence.
type Status string

const (
	StatusNotStarted           Status = "not_started"
	StatusCustodyWalletCreated Status = "custody_wallet_created"
	StatusSafeDeployed         Status = "safe_deployed"
	StatusModuleEnabled        Status = "module_enabled"
	StatusLimitConfigured      Status = "limit_configured"
)

// Rank orders statuses so resumed runs never move backwards.
func (s Status) Rank() int {
	switch s {
	case StatusCustodyWalletCreated:
		return 1
	case StatusSafeDeployed:
		return 2
	case StatusModuleEnabled:
		return 3
	case StatusLimitConfigured:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusNotStarted || s.Rank() > 0
}

// TxKind labels a submitted transaction.
type TxKind string

const (
	KindDeploySafe       TxKind = "deploy_safe"
	KindEnableModule     TxKind = "enable_module"
	KindSetSpendingLimit TxKind = "set_spending_limit"
)

// TxRecord is one submitted transaction. Nonce is the owner EOA nonce;
// SafeNonce is set for transactions executed through the Safe.
type TxRecord struct {
	Kind      TxKind      `json:"kind"`
	Hash      common.Hash `json:"hash"`
	Nonce     uint64      `json:"nonce"`
	SafeNonce *uint64     `json:"safe_nonce,omitempty"`
}

// Owner signs Safe transactions and broadcasts the outer EOA transactions.
// custody.AuthorizedWallet implements it.
type Owner interface {
	Address() common.Address
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	SendTransaction(ctx context.Context, tx custody.Transaction) (common.Hash, error)
}

// Chains resolves networks and RPC clients. *provider.Registry implements it.
type Chains interface {
	Resolve(networkID, rpcURL string) (web3.ChainConfig, error)
	Client(ctx context.Context, chain web3.ChainConfig) (web3.Client, error)
}

// DecimalsCache remembers ERC-20 decimals per network and token.
type DecimalsCache interface {
	Get(ctx context.Context, networkID string, token common.Address) (uint8, bool)
	Set(ctx context.Context, networkID string, token common.Address, decimals uint8)
}

// Progress is reported to the checkpoint callback after each completed step.
type Progress struct {
	Status      Status
	SafeAddress common.Address
	NextNonce   *uint64
	TxHashes    []TxRecord
}

// Checkpoint persists progress. A returned error aborts the sequence.
type Checkpoint func(ctx context.Context, p Progress) error

// Config tunes deployment and transaction submission.
type Config struct {
	SaltNonce    uint64
	PollAttempts int
	PollInitial  time.Duration
	PollMax      time.Duration
	// ExecGasLimit is passed to custody; zero lets custody estimate.
	ExecGasLimit uint64
	// ResetMinutes is the allowance reset period, one week by default.
	ResetMinutes uint16
}

// DeployRequest asks for a Safe owned by Owner with an initial weekly limit
// on the network's reference token.
type DeployRequest struct {
	Owner       Owner
	NetworkID   string
	RPCURL      string
	WeeklyLimit *units.Amount
	Checkpoint  Checkpoint
}

// DeployResult describes a completed deployment.
type DeployResult struct {
	SafeAddress     common.Address
	NewlyDeployed   bool
	ModuleEnabled   bool
	LimitConfigured bool
	TxHashes        []TxRecord
	NextNonce       uint64
	Status          Status
}

// LimitRequest sets one token's spending limit on an existing Safe. A zero
// Token selects the network's reference token. Nonce, when set, is used
// instead of querying the Safe.
type LimitRequest struct {
	Safe          common.Address
	Owner         Owner
	NetworkID     string
	RPCURL        string
	Token         common.Address
	Amount        units.Amount
	TokenDecimals *uint8
	Nonce         *uint64
}

// LimitResult is the outcome of a limit update.
type LimitResult struct {
	ModuleEnabled   bool
	LimitConfigured bool
	TxHashes        []TxRecord
	NextNonce       uint64
}
