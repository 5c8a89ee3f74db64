package provider

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"IntentWallet/internal/config"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

type stubClient struct{ closed bool }

func (s *stubClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (s *stubClient) CodeAt(context.Context, common.Address) ([]byte, error) {
	return nil, nil
}
func (s *stubClient) CallContract(context.Context, gethcore.CallMsg) ([]byte, error) {
	return nil, nil
}
func (s *stubClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (s *stubClient) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	return nil, gethcore.NotFound
}
func (s *stubClient) Close() { s.closed = true }

func TestLookupDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	yaml := `chains:
  base-mainnet:
    rpc_url: https://rpc.example/base
  test-network:
    chain_id: 123
    rpc_url: http://rpc.url
    reference_token: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    safe:
      singleton: "0xfb1bffC9d739B8D520DaF37dF666da4C687191EA"
      allowance_module: "0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write chains: %v", err)
	}

	reg, err := NewRegistry(config.Web3Config{ChainConfig: path})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	base, err := reg.Lookup("")
	if err != nil {
		t.Fatalf("lookup default: %v", err)
	}
	if base.NetworkID != "base-mainnet" || base.ChainID != 8453 {
		t.Fatalf("unexpected default chain: %+v", base)
	}
	if base.RPCURL != "https://rpc.example/base" {
		t.Fatalf("yaml override not applied: %s", base.RPCURL)
	}
	if base.ReferenceToken != common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913") {
		t.Fatalf("default reference token lost in merge: %s", base.ReferenceToken.Hex())
	}
	if !base.SupportsSafe() {
		t.Fatalf("base-mainnet should carry Safe deployments")
	}

	custom, err := reg.Lookup("test-network")
	if err != nil {
		t.Fatalf("lookup custom: %v", err)
	}
	if custom.ChainID != 123 || custom.Safe.AllowanceModule != common.HexToAddress("0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134") {
		t.Fatalf("unexpected custom chain: %+v", custom)
	}
	if custom.SupportsSafe() {
		t.Fatalf("custom chain lacks proxy factory and multisend")
	}
}

func TestLookupMissingRPC(t *testing.T) {
	reg, err := NewRegistry(config.Web3Config{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	_, err = reg.Lookup("ethereum-mainnet")
	if xerrors.CodeOf(err) != web3.CodeChainConfigMissing {
		t.Fatalf("expected chain config missing, got %v", err)
	}
	_, err = reg.Lookup("unknown-net")
	if xerrors.CodeOf(err) != web3.CodeChainConfigMissing {
		t.Fatalf("expected chain config missing for unknown network, got %v", err)
	}

	chain, err := reg.Resolve("ethereum-mainnet", "https://cached.rpc")
	if err != nil {
		t.Fatalf("resolve with cached rpc: %v", err)
	}
	if chain.RPCURL != "https://cached.rpc" || chain.ChainID != 1 {
		t.Fatalf("unexpected resolved chain: %+v", chain)
	}
}

func TestClientIsCachedPerEndpoint(t *testing.T) {
	dials := 0
	stub := &stubClient{}
	reg, err := NewRegistry(config.Web3Config{}, WithDialer(func(ctx context.Context, chain web3.ChainConfig) (web3.Client, error) {
		dials++
		return stub, nil
	}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	chain, err := reg.Lookup("base-sepolia")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := reg.Client(context.Background(), chain); err != nil {
			t.Fatalf("client: %v", err)
		}
	}
	if _, err := reg.Client(context.Background(), chain.WithRPCURL("http://other")); err != nil {
		t.Fatalf("client override: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected 2 dials, got %d", dials)
	}
	reg.Close()
	if !stub.closed {
		t.Fatalf("close should release clients")
	}
}
