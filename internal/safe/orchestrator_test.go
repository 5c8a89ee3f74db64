package safe

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"IntentWallet/internal/custody"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	testToken  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	otherToken = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	testCode   = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
)

func testChain() web3.ChainConfig {
	return web3.ChainConfig{
		NetworkID:      "test-network",
		ChainID:        123,
		RPCURL:         "http://rpc.url",
		ReferenceToken: testToken,
		Safe: web3.SafeContracts{
			Singleton:         common.HexToAddress("0xfb1bffC9d739B8D520DaF37dF666da4C687191EA"),
			ProxyFactory:      common.HexToAddress("0xC22834581EbC8527d974F8a1c97E1bEA4EF910BC"),
			FallbackHandler:   common.HexToAddress("0x017062a1dE2FE6b99BE3d9d37841FeD19F573804"),
			MultiSendCallOnly: common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"),
			AllowanceModule:   common.HexToAddress("0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134"),
		},
	}
}

// fakeChain answers the handful of RPC calls the orchestrator makes.
type fakeChain struct {
	mu            sync.Mutex
	code          map[common.Address][]byte
	moduleEnabled []bool
	safeNonce     uint64
	ownerNonce    uint64
	decimals      uint8
	nonceCalls    int
	decimalsCalls int
	codeCalls     int
	receiptCalls  int
	// pending receipt lookups answer NotFound before the receipt appears.
	pending int
	// reverted reports whether the n-th mined receipt failed.
	reverted func(n int) bool
	mined    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{code: make(map[common.Address][]byte), decimals: 6}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(123), nil }

func (f *fakeChain) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	return f.code[addr], nil
}

func (f *fakeChain) CallContract(_ context.Context, msg gethcore.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, safeABI.Methods["isModuleEnabled"].ID):
		enabled := false
		if len(f.moduleEnabled) > 0 {
			enabled = f.moduleEnabled[0]
			if len(f.moduleEnabled) > 1 {
				f.moduleEnabled = f.moduleEnabled[1:]
			}
		}
		return safeABI.Methods["isModuleEnabled"].Outputs.Pack(enabled)
	case bytes.Equal(selector, safeABI.Methods["nonce"].ID):
		f.nonceCalls++
		return safeABI.Methods["nonce"].Outputs.Pack(new(big.Int).SetUint64(f.safeNonce))
	case bytes.Equal(selector, erc20ABI.Methods["decimals"].ID):
		f.decimalsCalls++
		return erc20ABI.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.Equal(selector, proxyFactoryABI.Methods["proxyCreationCode"].ID):
		return proxyFactoryABI.Methods["proxyCreationCode"].Outputs.Pack(testCode)
	}
	return nil, gethcore.NotFound
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownerNonce, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.pending > 0 {
		f.pending--
		return nil, gethcore.NotFound
	}
	status := coretypes.ReceiptStatusSuccessful
	if f.reverted != nil && f.reverted(f.mined) {
		status = coretypes.ReceiptStatusFailed
	}
	f.mined++
	return &coretypes.Receipt{Status: status, TxHash: hash}, nil
}

func (f *fakeChain) Close() {}

type fakeChains struct {
	chain  web3.ChainConfig
	client *fakeChain
}

func (c fakeChains) Resolve(networkID, rpcURL string) (web3.ChainConfig, error) {
	if networkID != c.chain.NetworkID {
		return web3.ChainConfig{}, web3.ChainConfigMissing(networkID, "definition")
	}
	return c.chain.WithRPCURL(rpcURL), nil
}

func (c fakeChains) Client(context.Context, web3.ChainConfig) (web3.Client, error) {
	return c.client, nil
}

type harness struct {
	chain *fakeChain
	auth  *custody.MemoryAuthorizer
	owner *custody.AuthorizedWallet
	orch  *Orchestrator
	safe  common.Address
}

// newHarness wires an orchestrator whose owner broadcasts land in the fake
// chain: factory calls deploy code when deploy is true, Safe calls bump the
// Safe nonce.
func newHarness(t *testing.T, deploy bool) *harness {
	t.Helper()
	h := &harness{chain: newFakeChain(), auth: custody.NewMemoryAuthorizer("server-key")}
	quorum, err := h.auth.CreateKeyQuorum(context.Background(), custody.QuorumRequest{UserIDs: []string{"did:privy:owner"}})
	require.NoError(t, err)
	wallet, err := h.auth.CreateWallet(context.Background(), quorum.ID)
	require.NoError(t, err)
	h.owner = custody.NewAuthorizedWallet(h.auth, wallet)

	chain := testChain()
	h.safe, err = PredictAddress(chain.Safe, testCode, wallet.Address, big.NewInt(0))
	require.NoError(t, err)

	h.auth.OnSend(func(_ common.Address, tx custody.Transaction) error {
		h.chain.mu.Lock()
		defer h.chain.mu.Unlock()
		switch tx.To {
		case chain.Safe.ProxyFactory:
			if deploy {
				h.chain.code[h.safe] = []byte{0x01}
			}
		case h.safe:
			h.chain.safeNonce++
		}
		return nil
	})

	h.orch, err = NewOrchestrator(fakeChains{chain: chain, client: h.chain}, Config{
		PollAttempts: 3,
		PollInitial:  time.Millisecond,
		PollMax:      2 * time.Millisecond,
	})
	require.NoError(t, err)
	return h
}

type execCall struct {
	to        common.Address
	data      []byte
	operation Operation
	signature []byte
}

func decodeExec(t *testing.T, tx custody.Transaction) execCall {
	t.Helper()
	method := safeABI.Methods["execTransaction"]
	require.Equal(t, method.ID, tx.Data[:4])
	args, err := method.Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	return execCall{
		to:        args[0].(common.Address),
		data:      args[2].([]byte),
		operation: Operation(args[3].(uint8)),
		signature: args[9].([]byte),
	}
}

// requireSignedAt checks the owner signed the Safe transaction for nonce n.
func (h *harness) requireSignedAt(t *testing.T, tx custody.Transaction, n uint64) execCall {
	t.Helper()
	call := decodeExec(t, tx)
	digest := TxHash(123, h.safe, Tx{To: call.to, Data: call.data, Operation: call.operation, Nonce: n})
	sig := append([]byte(nil), call.signature...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	require.Equal(t, h.owner.Address(), crypto.PubkeyToAddress(*pub), "signature does not bind safe nonce %d", n)
	return call
}

// allowanceAmount extracts the setAllowance amount from a MultiSend batch.
func allowanceAmount(t *testing.T, call execCall) (common.Address, *big.Int, uint16) {
	t.Helper()
	args, err := multiSendABI.Methods["multiSend"].Inputs.Unpack(call.data[4:])
	require.NoError(t, err)
	packed := args[0].([]byte)

	var entries [][]byte
	for len(packed) > 0 {
		length := new(big.Int).SetBytes(packed[53:85]).Int64()
		entries = append(entries, packed[85:85+length])
		packed = packed[85+length:]
	}
	require.Len(t, entries, 2)
	require.Equal(t, allowanceModuleABI.Methods["addDelegate"].ID, entries[0][:4])

	method := allowanceModuleABI.Methods["setAllowance"]
	require.Equal(t, method.ID, entries[1][:4])
	values, err := method.Inputs.Unpack(entries[1][4:])
	require.NoError(t, err)
	require.Equal(t, uint32(0), values[4].(uint32))
	return values[1].(common.Address), values[2].(*big.Int), values[3].(uint16)
}

func TestDeployFreshSafeStartsNonceAtZero(t *testing.T) {
	h := newHarness(t, true)
	h.chain.ownerNonce = 3

	var statuses []Status
	limit := units.MustParse("100.0")
	result, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:       h.owner,
		NetworkID:   "test-network",
		WeeklyLimit: &limit,
		Checkpoint: func(_ context.Context, p Progress) error {
			statuses = append(statuses, p.Status)
			require.Equal(t, h.safe, p.SafeAddress)
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, h.safe, result.SafeAddress)
	require.True(t, result.NewlyDeployed)
	require.True(t, result.ModuleEnabled)
	require.True(t, result.LimitConfigured)
	require.Equal(t, uint64(2), result.NextNonce)
	require.Equal(t, StatusLimitConfigured, result.Status)
	require.Equal(t, []Status{StatusSafeDeployed, StatusModuleEnabled, StatusLimitConfigured}, statuses)
	require.Zero(t, h.chain.nonceCalls, "fresh Safe must not query its nonce")

	sent := h.auth.Sent()
	require.Len(t, sent, 3)
	require.Equal(t, testChain().Safe.ProxyFactory, sent[0].Tx.To)
	for i, tx := range sent {
		require.Equal(t, uint64(3+i), tx.Tx.Nonce, "owner nonce of tx %d", i)
		require.Equal(t, uint64(123), tx.Tx.ChainID)
	}

	enable := h.requireSignedAt(t, sent[1].Tx, 0)
	require.Equal(t, h.safe, enable.to)
	require.Equal(t, safeABI.Methods["enableModule"].ID, enable.data[:4])

	set := h.requireSignedAt(t, sent[2].Tx, 1)
	require.Equal(t, DelegateCall, set.operation)
	require.Equal(t, testChain().Safe.MultiSendCallOnly, set.to)
	token, amount, reset := allowanceAmount(t, set)
	require.Equal(t, testToken, token)
	require.Equal(t, int64(100_000_000), amount.Int64())
	require.Equal(t, WeekMinutes, reset)

	kinds := []TxKind{}
	for _, rec := range result.TxHashes {
		kinds = append(kinds, rec.Kind)
	}
	require.Equal(t, []TxKind{KindDeploySafe, KindEnableModule, KindSetSpendingLimit}, kinds)
	require.Nil(t, result.TxHashes[0].SafeNonce)
	require.Equal(t, uint64(1), *result.TxHashes[2].SafeNonce)
}

func TestDeployExistingSafeQueriesNonceOnce(t *testing.T) {
	h := newHarness(t, true)
	h.chain.code[h.safe] = []byte{0x01}
	h.chain.safeNonce = 5
	h.chain.moduleEnabled = []bool{true}

	limit := units.MustParse("100")
	result, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:       h.owner,
		NetworkID:   "test-network",
		WeeklyLimit: &limit,
	})
	require.NoError(t, err)
	require.False(t, result.NewlyDeployed)
	require.Equal(t, 1, h.chain.nonceCalls)
	require.Equal(t, uint64(6), result.NextNonce)

	sent := h.auth.Sent()
	require.Len(t, sent, 1)
	h.requireSignedAt(t, sent[0].Tx, 5)
}

func TestSetTokenLimitOverwritesSameToken(t *testing.T) {
	h := newHarness(t, false)
	h.chain.code[h.safe] = []byte{0x01}
	h.chain.moduleEnabled = []bool{false, true}

	first := uint64(7)
	res1, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
		Safe:      h.safe,
		Owner:     h.owner,
		NetworkID: "test-network",
		Token:     testToken,
		Amount:    units.MustParse("100"),
		Nonce:     &first,
	})
	require.NoError(t, err)
	require.True(t, res1.ModuleEnabled)
	require.True(t, res1.LimitConfigured)
	require.Equal(t, uint64(9), res1.NextNonce)
	require.Len(t, res1.TxHashes, 2)
	require.Equal(t, KindEnableModule, res1.TxHashes[0].Kind)
	require.Equal(t, KindSetSpendingLimit, res1.TxHashes[1].Kind)

	second := res1.NextNonce
	res2, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
		Safe:      h.safe,
		Owner:     h.owner,
		NetworkID: "test-network",
		Token:     testToken,
		Amount:    units.MustParse("250"),
		Nonce:     &second,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10), res2.NextNonce)
	require.Len(t, res2.TxHashes, 1)
	require.Equal(t, KindSetSpendingLimit, res2.TxHashes[0].Kind)
	require.Zero(t, h.chain.nonceCalls, "explicit nonces must not be re-queried")

	sent := h.auth.Sent()
	require.Len(t, sent, 3)
	h.requireSignedAt(t, sent[0].Tx, 7)
	_, amount1, _ := allowanceAmount(t, h.requireSignedAt(t, sent[1].Tx, 8))
	_, amount2, _ := allowanceAmount(t, h.requireSignedAt(t, sent[2].Tx, 9))
	require.Equal(t, int64(100_000_000), amount1.Int64())
	require.Equal(t, int64(250_000_000), amount2.Int64())
	require.Equal(t, 1, h.chain.decimalsCalls, "decimals are cached per token")
}

func TestSeparateCallsRequeryNonce(t *testing.T) {
	h := newHarness(t, false)
	h.chain.code[h.safe] = []byte{0x01}
	h.chain.moduleEnabled = []bool{true}
	h.chain.safeNonce = 4

	for _, token := range []common.Address{testToken, otherToken} {
		_, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
			Safe:      h.safe,
			Owner:     h.owner,
			NetworkID: "test-network",
			Token:     token,
			Amount:    units.MustParse("5"),
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, h.chain.nonceCalls)
	require.Equal(t, 2, h.chain.decimalsCalls)

	sent := h.auth.Sent()
	require.Len(t, sent, 2, "enabled module must not be re-enabled")
	tok1, _, _ := allowanceAmount(t, h.requireSignedAt(t, sent[0].Tx, 4))
	tok2, _, _ := allowanceAmount(t, h.requireSignedAt(t, sent[1].Tx, 5))
	require.Equal(t, testToken, tok1)
	require.Equal(t, otherToken, tok2)
}

func TestExplicitDecimalsSkipLookup(t *testing.T) {
	h := newHarness(t, false)
	h.chain.moduleEnabled = []bool{true}
	eighteen := uint8(18)
	n := uint64(0)

	_, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
		Safe:          h.safe,
		Owner:         h.owner,
		NetworkID:     "test-network",
		Token:         otherToken,
		Amount:        units.MustParse("1.5"),
		TokenDecimals: &eighteen,
		Nonce:         &n,
	})
	require.NoError(t, err)
	require.Zero(t, h.chain.decimalsCalls)

	_, amount, _ := allowanceAmount(t, h.requireSignedAt(t, h.auth.Sent()[0].Tx, 0))
	require.Equal(t, "1500000000000000000", amount.String())
}

func TestDeploymentTimeoutIsIrrecoverable(t *testing.T) {
	h := newHarness(t, false)

	var statuses []Status
	_, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:     h.owner,
		NetworkID: "test-network",
		Checkpoint: func(_ context.Context, p Progress) error {
			statuses = append(statuses, p.Status)
			return nil
		},
	})
	require.Error(t, err)
	require.Equal(t, web3.CodeIrrecoverableChain, xerrors.CodeOf(err))
	require.False(t, xerrors.RetryableError(err))
	require.Empty(t, statuses, "no checkpoint past custody wallet creation")
	require.Len(t, h.auth.Sent(), 1)
	// one check before deploying plus three polls
	require.Equal(t, 4, h.chain.codeCalls)
}

func TestUnknownNetworkFailsBeforeAnyCall(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{Owner: h.owner, NetworkID: "nope"})
	require.Equal(t, web3.CodeChainConfigMissing, xerrors.CodeOf(err))
	require.Empty(t, h.auth.Sent())
}

func TestCheckpointErrorAborts(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:     h.owner,
		NetworkID: "test-network",
		Checkpoint: func(_ context.Context, p Progress) error {
			if p.Status == StatusSafeDeployed {
				return xerrors.New(xerrors.CodeStorageFailure, "disk full")
			}
			return nil
		},
	})
	require.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
	require.Len(t, h.auth.Sent(), 1, "no Safe transaction after a failed checkpoint")
}

func recordStatuses(statuses *[]Status) Checkpoint {
	return func(_ context.Context, p Progress) error {
		*statuses = append(*statuses, p.Status)
		return nil
	}
}

func TestRevertedTransactionsAreIrrecoverable(t *testing.T) {
	h := newHarness(t, true)
	h.chain.reverted = func(int) bool { return true }
	limit := units.MustParse("100")

	var statuses []Status
	result, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:       h.owner,
		NetworkID:   "test-network",
		WeeklyLimit: &limit,
		Checkpoint:  recordStatuses(&statuses),
	})
	require.Nil(t, result)
	require.Equal(t, web3.CodeIrrecoverableChain, xerrors.CodeOf(err))
	require.False(t, xerrors.RetryableError(err))
	require.Empty(t, statuses)
	require.Equal(t, 1, h.chain.receiptCalls)
}

func TestRevertedAllowanceKeepsModuleCheckpoint(t *testing.T) {
	h := newHarness(t, true)
	// deploy, enableModule succeed; the MultiSend batch reverts.
	h.chain.reverted = func(n int) bool { return n == 2 }

	var statuses []Status
	_, err := h.orch.DeployWithAllowance(context.Background(), DeployRequest{
		Owner:      h.owner,
		NetworkID:  "test-network",
		Checkpoint: recordStatuses(&statuses),
	})
	require.Equal(t, web3.CodeIrrecoverableChain, xerrors.CodeOf(err))
	require.Equal(t, []Status{StatusSafeDeployed, StatusModuleEnabled}, statuses)
	require.Len(t, h.auth.Sent(), 3)
	e, ok := xerrors.From(err)
	require.True(t, ok)
	require.Equal(t, string(KindSetSpendingLimit), e.Metadata()["kind"])
}

func TestSetTokenLimitWaitsForPendingReceipt(t *testing.T) {
	h := newHarness(t, true)
	h.chain.code[h.safe] = []byte{0x01}
	h.chain.moduleEnabled = []bool{true}
	h.chain.pending = 2

	result, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
		Safe:      h.safe,
		Owner:     h.owner,
		NetworkID: "test-network",
		Amount:    units.MustParse("5"),
	})
	require.NoError(t, err)
	require.True(t, result.LimitConfigured)
	require.Equal(t, 3, h.chain.receiptCalls)
}

func TestUnminedTransactionIsIrrecoverable(t *testing.T) {
	h := newHarness(t, true)
	h.chain.code[h.safe] = []byte{0x01}
	h.chain.moduleEnabled = []bool{true}
	h.chain.pending = 100

	_, err := h.orch.SetTokenLimit(context.Background(), LimitRequest{
		Safe:      h.safe,
		Owner:     h.owner,
		NetworkID: "test-network",
		Amount:    units.MustParse("5"),
	})
	require.Equal(t, web3.CodeIrrecoverableChain, xerrors.CodeOf(err))
	require.Equal(t, 3, h.chain.receiptCalls)
}
