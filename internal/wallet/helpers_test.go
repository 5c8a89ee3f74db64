package wallet

import (
	"context"
	"math/big"
	"sync"

	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const testOwner = "did:privy:owner-1"

var testSafeAddress = common.HexToAddress("0x5AfE00000000000000000000000000000000cafe")

type fakeChains struct{}

func (fakeChains) DefaultNetwork() string { return "base-sepolia" }

func (fakeChains) Resolve(networkID, rpcURL string) (web3.ChainConfig, error) {
	switch networkID {
	case "base-sepolia", "base-mainnet":
	default:
		return web3.ChainConfig{}, web3.ChainConfigMissing(networkID, "definition")
	}
	if rpcURL == "" {
		rpcURL = "https://rpc.test/" + networkID
	}
	return web3.ChainConfig{NetworkID: networkID, ChainID: 84532, RPCURL: rpcURL}, nil
}

// fakeOrchestrator reports the same checkpoints as the real orchestrator
// without touching a chain.
type fakeOrchestrator struct {
	mu           sync.Mutex
	deploys      []safe.DeployRequest
	updates      []units.Amount
	tokenLimits  []safe.LimitRequest
	deployErr    error
	// failAfter is the last status reported before deployErr is returned.
	failAfter    safe.Status
	nextNonce    uint64
	updateOwners []common.Address
}

func (f *fakeOrchestrator) DeployWithAllowance(ctx context.Context, req safe.DeployRequest) (*safe.DeployResult, error) {
	f.mu.Lock()
	f.deploys = append(f.deploys, req)
	deployErr, failAfter := f.deployErr, f.failAfter
	f.mu.Unlock()

	var txs []safe.TxRecord
	steps := []safe.Status{safe.StatusSafeDeployed, safe.StatusModuleEnabled, safe.StatusLimitConfigured}
	for i, status := range steps {
		if deployErr != nil && status.Rank() > failAfter.Rank() {
			return nil, deployErr
		}
		txs = append(txs, safe.TxRecord{Kind: safe.KindSetSpendingLimit, Hash: common.BigToHash(big.NewInt(int64(i + 1))), Nonce: uint64(i)})
		next := uint64(i)
		if err := req.Checkpoint(ctx, safe.Progress{Status: status, SafeAddress: testSafeAddress, NextNonce: &next, TxHashes: txs}); err != nil {
			return nil, err
		}
	}
	return &safe.DeployResult{
		SafeAddress:     testSafeAddress,
		NewlyDeployed:   true,
		ModuleEnabled:   true,
		LimitConfigured: true,
		TxHashes:        txs,
		NextNonce:       2,
		Status:          safe.StatusLimitConfigured,
	}, nil
}

func (f *fakeOrchestrator) UpdateLimit(ctx context.Context, safeAddr common.Address, owner safe.Owner, networkID, rpcURL string, amount units.Amount) (*safe.LimitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, amount)
	f.updateOwners = append(f.updateOwners, owner.Address())
	f.nextNonce++
	return &safe.LimitResult{LimitConfigured: true, NextNonce: f.nextNonce + 2}, nil
}

func (f *fakeOrchestrator) SetTokenLimit(ctx context.Context, req safe.LimitRequest) (*safe.LimitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenLimits = append(f.tokenLimits, req)
	return &safe.LimitResult{
		LimitConfigured: true,
		TxHashes:        []safe.TxRecord{{Kind: safe.KindSetSpendingLimit, Hash: common.HexToHash("0xbeef"), Nonce: 9}},
		NextNonce:       10,
	}, nil
}

func (f *fakeOrchestrator) deployCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deploys)
}
