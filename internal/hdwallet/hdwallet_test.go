package hdwallet

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return b
}

// BIP-32 test vector 1.
func TestMasterAndHardenedChild(t *testing.T) {
	master, err := NewMaster(mustHex(t, "000102030405060708090a0b0c0d0e0f"))
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if got := hex.EncodeToString(master.PrivateKeyBytes()); got != "e8f32e723decf4051aefac8e2c93c9c5b214313817cdb01a1494b917c8436b35" {
		t.Fatalf("unexpected master key %s", got)
	}
	if got := hex.EncodeToString(master.ChainCode()); got != "873dff81c02f525623fd1fe5167eac3a55a049de3d314bb42ee227ffed37d508" {
		t.Fatalf("unexpected master chain code %s", got)
	}

	child, err := master.Derive("m/0'")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if got := hex.EncodeToString(child.PrivateKeyBytes()); got != "edb2e14f9ee77d26dd93b4ecede8d16ed408ce149b6cd80b0715a2d911a0afea" {
		t.Fatalf("unexpected m/0' key %s", got)
	}
	if child.Depth() != 1 {
		t.Fatalf("unexpected depth %d", child.Depth())
	}

	// m/0'/1 exercises non-hardened derivation.
	grandchild, err := master.Derive("m/0'/1")
	if err != nil {
		t.Fatalf("derive m/0'/1: %v", err)
	}
	if got := hex.EncodeToString(grandchild.PrivateKeyBytes()); got != "3c6cb8d0f6a264c91ea8b5030fadaa8e538b020f0a387421a12de9319dc93368" {
		t.Fatalf("unexpected m/0'/1 key %s", got)
	}
}

// Seed of the "abandon ... about" mnemonic with an empty passphrase.
func TestDeriveEthereumAccount(t *testing.T) {
	seed := mustHex(t, "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4")
	_, addr, err := DeriveAccount(seed)
	if err != nil {
		t.Fatalf("derive account: %v", err)
	}
	want := common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	if addr != want {
		t.Fatalf("unexpected address %s, want %s", addr.Hex(), want.Hex())
	}
}

func TestParsePath(t *testing.T) {
	idx, err := ParsePath("m/44'/60'/0'/0/7")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []uint32{44 + HardenedOffset, 60 + HardenedOffset, HardenedOffset, 0, 7}
	if len(idx) != len(want) {
		t.Fatalf("unexpected length %d", len(idx))
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("component %d: got %d want %d", i, idx[i], want[i])
		}
	}

	for _, bad := range []string{"", "44'/0", "m/x", "m/4294967296", "mx/0"} {
		if _, err := ParsePath(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRejectsShortSeed(t *testing.T) {
	if _, err := NewMaster([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short seed")
	}
}

func TestDefaultPathIsFirstEthereumAccount(t *testing.T) {
	if DefaultPath != "m/44'/60'/0'/0/0" {
		t.Fatalf("unexpected default path %s", DefaultPath)
	}
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	key, addr, err := DeriveAccountAt(seed, DefaultPath)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	master, _ := NewMaster(seed)
	node, err := master.Derive("m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatalf("derive node: %v", err)
	}
	if node.Depth() != 5 || hex.EncodeToString(node.PrivateKeyBytes()) != hex.EncodeToString(crypto.FromECDSA(key)) {
		t.Fatalf("DeriveAccountAt disagrees with manual derivation")
	}
	if addr != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("address does not match key")
	}
}
