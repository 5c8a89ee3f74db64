package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "walletd.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"web3":{"chain_config":"chains.yaml"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web3.DefaultNetwork != "base-mainnet" {
		t.Fatalf("unexpected default network %q", cfg.Web3.DefaultNetwork)
	}
	if cfg.Web3.RetryAttempts != 5 {
		t.Fatalf("unexpected retry attempts %d", cfg.Web3.RetryAttempts)
	}
	if cfg.Web3.ChainConfig != filepath.Join(filepath.Dir(path), "chains.yaml") {
		t.Fatalf("chain config not resolved relative to config file: %s", cfg.Web3.ChainConfig)
	}
	if cfg.Storage.WalletStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v", cfg.Storage.WalletStore, cfg.Queue)
	}
	if cfg.Safe.PollInitial() != 2*time.Second || cfg.Safe.PollMax() != 30*time.Second {
		t.Fatalf("unexpected poll window %s..%s", cfg.Safe.PollInitial(), cfg.Safe.PollMax())
	}
	if cfg.Authorization.OwnerIDPrefix != "did:privy:" {
		t.Fatalf("unexpected owner prefix %q", cfg.Authorization.OwnerIDPrefix)
	}
	if cfg.Storage.Redis.LockEnabled {
		t.Fatalf("cross-process lock must be opt-in")
	}
}

func TestLoadRejectsMySQLWithoutDSN(t *testing.T) {
	path := writeConfig(t, `{"storage":{"wallet_store":{"driver":"mysql"}}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestResolveSecretFromEnv(t *testing.T) {
	t.Setenv("TEST_WALLET_DSN", "user:pass@tcp(db:3306)/wallets")
	path := writeConfig(t, `{"storage":{"wallet_store":{"driver":"mysql","dsn_env":"TEST_WALLET_DSN"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Storage.WalletStore.ResolveDSN(); got != "user:pass@tcp(db:3306)/wallets" {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestLoadRejectsUnknownQueueDriver(t *testing.T) {
	path := writeConfig(t, `{"queue":{"driver":"kafka"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown queue driver")
	}
}

func TestLockRequiresRedisAddress(t *testing.T) {
	path := writeConfig(t, `{"storage":{"redis":{"lock_enabled":true}}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when lock is enabled without redis")
	}
}

func TestHTTPCustodyRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `{"custody":{"driver":"http","base_url":"https://custody.example"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for http custody without secret")
	}

	t.Setenv("TEST_CUSTODY_SECRET", "s3cret")
	path = writeConfig(t, `{"custody":{"driver":"http","base_url":"https://custody.example","api_key_secret_env":"TEST_CUSTODY_SECRET"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Authorization.Driver != "memory" {
		t.Fatalf("authorization driver should default to memory, got %q", cfg.Authorization.Driver)
	}
}

func TestShippedConfigsLoad(t *testing.T) {
	t.Setenv("WALLETD_MYSQL_DSN", "walletd:secret@tcp(127.0.0.1:3306)/walletd")
	t.Setenv("WALLETD_CUSTODY_SECRET", "custody-secret")
	t.Setenv("WALLETD_PRIVY_APP_SECRET", "privy-secret")

	for _, name := range []string{"walletd.json", "walletd.dev.json"} {
		cfg, err := Load(filepath.Join("..", "..", "configs", name))
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if filepath.Base(cfg.Web3.ChainConfig) != "chains.yaml" {
			t.Fatalf("%s: chain config not resolved: %s", name, cfg.Web3.ChainConfig)
		}
	}
}
