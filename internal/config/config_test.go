package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// hardhat 預設第一個帳號
const (
	hardhatKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG_PATH", "LOG_LEVEL", "CHAIN_NETWORK", "CHAIN_ID", "CHAIN_RPC_URL", "CHAIN_PRIVATE_KEY", "LEDGER_OWNER", "LEDGER_TARGET"} {
		t.Setenv(key, "")
	}
}

func TestParseDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Chain.Network != "hardhat" || cfg.Chain.ChainID != 31337 {
		t.Fatalf("unexpected chain defaults %+v", cfg.Chain)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("hardhat should be a development chain")
	}
	if cfg.Ledger.Engine != EngineMutex || cfg.Journal.Driver != JournalNone {
		t.Fatalf("unexpected engine/journal defaults %q %q", cfg.Ledger.Engine, cfg.Journal.Driver)
	}
	if cfg.Server.GRPCAddr != ":50051" {
		t.Fatalf("unexpected grpc addr %q", cfg.Server.GRPCAddr)
	}
	if cfg.MockDecimals() != 8 || cfg.Mock.InitialAnswer != "200000000000" {
		t.Fatalf("unexpected mock defaults %+v", cfg.Mock)
	}
	if len(cfg.Mock.PrefundedAccounts) != 5 || cfg.Mock.PrefundedAccounts[0] != hardhatAccount {
		t.Fatalf("unexpected prefunded accounts %v", cfg.Mock.PrefundedAccounts)
	}
	prefund, err := cfg.MockPrefund()
	if err != nil || prefund.Cmp(new(big.Int).Mul(big.NewInt(10000), big.NewInt(1e18))) != 0 {
		t.Fatalf("unexpected prefund %s (%v)", prefund, err)
	}
	if cfg.Server.AuthMaxSkew != 5*time.Minute {
		t.Fatalf("unexpected auth skew %v", cfg.Server.AuthMaxSkew)
	}
	if cfg.Networks[4].EthUsdPriceFeed != "0x8a753747a1fa494ec906ce90e9f37563a8af630e" {
		t.Fatalf("unexpected rinkeby feed %q", cfg.Networks[4].EthUsdPriceFeed)
	}
	if cfg.Networks[137].Name != "polygon" {
		t.Fatalf("unexpected polygon entry %+v", cfg.Networks[137])
	}
	if cfg.MySQL.Port != 3306 {
		t.Fatalf("mysql defaults not applied")
	}

	minimum, err := cfg.MinimumReference()
	if err != nil {
		t.Fatalf("minimum: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18))
	if minimum.Cmp(want) != 0 {
		t.Fatalf("expected minimum %s got %s", want, minimum)
	}
}

func TestParseYAML(t *testing.T) {
	clearEnv(t)
	raw := []byte(`
chain:
  network: polygon
  chain_id: 137
  rpc_url: https://polygon.example
ledger:
  engine: lmax
  minimum_usd: "12.5"
oracle:
  max_staleness: 30m
journal:
  driver: wal
  wal_path: /tmp/events.log
kafka:
  brokers: [localhost:9092]
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("polygon is not a development chain")
	}
	if cfg.Ledger.Engine != EngineLMAX || cfg.Journal.WALPath != "/tmp/events.log" {
		t.Fatalf("unexpected values %+v %+v", cfg.Ledger, cfg.Journal)
	}
	if cfg.Oracle.MaxStaleness != 30*time.Minute {
		t.Fatalf("expected 30m staleness got %v", cfg.Oracle.MaxStaleness)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Topic != "fund-events" {
		t.Fatalf("unexpected kafka config %+v", cfg.Kafka)
	}
	minimum, _ := cfg.MinimumReference()
	if minimum.String() != "12500000000000000000" {
		t.Fatalf("unexpected minimum %s", minimum)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"engine":   "ledger: {engine: distributed}",
		"journal":  "journal: {driver: redis}",
		"postgres": "journal: {driver: postgres}",
		"owner":    "ledger: {owner: nobody}",
		"minimum":  "ledger: {minimum_usd: \"-1\"}",
		"answer":   "mock: {initial_answer: \"0\"}",
		"prefund":  "mock: {prefunded_accounts: [nobody]}",
		"prefund2": "mock: {prefund_eth: lots}",
		"skew":     "server: {auth_max_skew: -1s}",
		"feed":     "networks: {5: {name: goerli, eth_usd_price_feed: nope}}",
		"yaml":     "ledger: [",
	}
	for name, raw := range tests {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN_NETWORK", "localhost")
	t.Setenv("CHAIN_ID", "1337")
	t.Setenv("CHAIN_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("CHAIN_PRIVATE_KEY", hardhatKey)

	cfg, err := Parse([]byte("chain: {network: polygon, chain_id: 137}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Chain.Network != "localhost" || cfg.Chain.ChainID != 1337 || cfg.Chain.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("env overrides not applied %+v", cfg.Chain)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("localhost should be a development chain")
	}
}

func TestMockDecimalsZeroIsKept(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("mock: {decimals: 0, initial_answer: \"2000\"}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MockDecimals() != 0 {
		t.Fatalf("explicit zero decimals must be kept, got %d", cfg.MockDecimals())
	}

	cfg, err = Parse([]byte("mock: {decimals: 18, prefunded_accounts: []}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MockDecimals() != 18 || len(cfg.Mock.PrefundedAccounts) != 0 {
		t.Fatalf("unexpected mock config %+v", cfg.Mock)
	}
}

func TestMalformedChainIDRejected(t *testing.T) {
	for _, value := range []string{"abc", "137x", "1.5"} {
		clearEnv(t)
		t.Setenv("CHAIN_ID", value)
		if _, err := Parse([]byte("chain: {chain_id: 137}")); err == nil {
			t.Fatalf("CHAIN_ID=%q: expected error", value)
		}
	}
}

func TestResolveOwner(t *testing.T) {
	clearEnv(t)

	cfg, _ := Parse([]byte("{}"))
	if _, err := cfg.ResolveOwner(); err == nil {
		t.Fatalf("expected error without owner and key")
	}

	t.Setenv("CHAIN_PRIVATE_KEY", hardhatKey)
	cfg, _ = Parse([]byte("{}"))
	owner, err := cfg.ResolveOwner()
	if err != nil {
		t.Fatalf("resolve from key: %v", err)
	}
	if owner != common.HexToAddress(hardhatAccount) {
		t.Fatalf("expected deployer %s got %s", hardhatAccount, owner.Hex())
	}

	explicit := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	t.Setenv("LEDGER_OWNER", explicit)
	cfg, _ = Parse([]byte("{}"))
	owner, err = cfg.ResolveOwner()
	if err != nil || owner != common.HexToAddress(explicit) {
		t.Fatalf("expected explicit owner got %s %v", owner.Hex(), err)
	}
}

func TestLoadFromConfigPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: {grpc_addr: \":6000\"}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.GRPCAddr != ":6000" {
		t.Fatalf("expected :6000 got %q", cfg.Server.GRPCAddr)
	}

	t.Setenv("CONFIG_PATH", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
