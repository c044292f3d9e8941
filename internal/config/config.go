package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/pkg/mysql"
)

const DefaultPath = "config/config.yaml"

// 帳本引擎
const (
	EngineMutex = "mutex"
	EngineLMAX  = "lmax"
)

// 稽核日誌驅動
const (
	JournalNone     = "none"
	JournalWAL      = "wal"
	JournalMySQL    = "mysql"
	JournalPostgres = "postgres"
)

type Config struct {
	Log               LogConfig               `yaml:"log"`
	Chain             ChainConfig             `yaml:"chain"`
	Networks          map[int64]NetworkConfig `yaml:"networks"`
	DevelopmentChains []string                `yaml:"development_chains"`
	Mock              MockConfig              `yaml:"mock"`
	Ledger            LedgerConfig            `yaml:"ledger"`
	Oracle            OracleConfig            `yaml:"oracle"`
	Journal           JournalConfig           `yaml:"journal"`
	MySQL             mysql.Config            `yaml:"mysql"`
	Kafka             KafkaConfig             `yaml:"kafka"`
	Server            ServerConfig            `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ChainConfig 目前連線的鏈
type ChainConfig struct {
	Network        string        `yaml:"network"`
	ChainID        int64         `yaml:"chain_id"`
	RPCURL         string        `yaml:"rpc_url"`
	PrivateKey     string        `yaml:"-"` // 只從環境變數 CHAIN_PRIVATE_KEY 讀取
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
}

// NetworkConfig 每條鏈的價格來源地址
type NetworkConfig struct {
	Name            string `yaml:"name"`
	EthUsdPriceFeed string `yaml:"eth_usd_price_feed"`
}

// MockConfig 本地鏈部署的模擬價格來源與預存餘額的開發帳號
type MockConfig struct {
	// Decimals 未設定時為 8，明確設為 0 會保留
	Decimals      *uint8 `yaml:"decimals"`
	InitialAnswer string `yaml:"initial_answer"`
	// PrefundedAccounts 記憶體錢包預存餘額的帳號
	PrefundedAccounts []string `yaml:"prefunded_accounts"`
	// PrefundEth 每個帳號預存的金額 (ether)
	PrefundEth string `yaml:"prefund_eth"`
}

// DefaultPrefundedAccounts hardhat 預設的前五個帳號
func DefaultPrefundedAccounts() []string {
	return []string{
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		"0x90F79bf6EB2c4f870365E785982E1f101E93b906",
		"0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65",
	}
}

type LedgerConfig struct {
	Engine     string `yaml:"engine"`
	Owner      string `yaml:"owner"`
	MinimumUSD string `yaml:"minimum_usd"`
}

type OracleConfig struct {
	MaxStaleness time.Duration `yaml:"max_staleness"`
}

type JournalConfig struct {
	Driver      string `yaml:"driver"`
	WALPath     string `yaml:"wal_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	// AuthMaxSkew 簽章時間戳與伺服器時間允許的差距
	AuthMaxSkew time.Duration `yaml:"auth_max_skew"`
	// Target 客戶端工具連線的地址
	Target string `yaml:"target"`
}

// DefaultNetworks 已知鏈的 ETH/USD 價格來源
func DefaultNetworks() map[int64]NetworkConfig {
	return map[int64]NetworkConfig{
		4: {
			Name:            "rinkeby",
			EthUsdPriceFeed: "0x8a753747a1fa494ec906ce90e9f37563a8af630e",
		},
		137: {
			Name:            "polygon",
			EthUsdPriceFeed: "0xF9680D99D6C9589e2a93a78A04A279e509205945",
		},
	}
}

// Load 讀取設定檔並套用環境變數與預設值
//
// 參數:
//
//	path: string - 設定檔路徑，CONFIG_PATH 環境變數優先，皆空時使用 DefaultPath
//
// 回傳值:
//
//	*Config: 設定
//	error: 檔案讀取、解析或驗證失敗
func Load(path string) (*Config, error) {
	// .env 是選用的
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	path = envOr("CONFIG_PATH", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse 解析 YAML 內容，套用環境變數覆寫與預設值後驗證
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	chainID, err := envOrInt64("CHAIN_ID", c.Chain.ChainID)
	if err != nil {
		return err
	}
	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Chain.Network = envOr("CHAIN_NETWORK", c.Chain.Network)
	c.Chain.ChainID = chainID
	c.Chain.RPCURL = envOr("CHAIN_RPC_URL", c.Chain.RPCURL)
	c.Chain.PrivateKey = envOr("CHAIN_PRIVATE_KEY", c.Chain.PrivateKey)
	c.Ledger.Owner = envOr("LEDGER_OWNER", c.Ledger.Owner)
	c.Server.Target = envOr("LEDGER_TARGET", c.Server.Target)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Chain.Network == "" {
		c.Chain.Network = "hardhat"
	}
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 31337
	}
	if c.Chain.ReceiptTimeout == 0 {
		c.Chain.ReceiptTimeout = 2 * time.Minute
	}
	if len(c.Networks) == 0 {
		c.Networks = DefaultNetworks()
	}
	if len(c.DevelopmentChains) == 0 {
		c.DevelopmentChains = []string{"hardhat", "localhost"}
	}
	if c.Mock.Decimals == nil {
		decimals := uint8(8)
		c.Mock.Decimals = &decimals
	}
	if c.Mock.InitialAnswer == "" {
		c.Mock.InitialAnswer = "200000000000"
	}
	if c.Mock.PrefundedAccounts == nil {
		c.Mock.PrefundedAccounts = DefaultPrefundedAccounts()
	}
	if c.Mock.PrefundEth == "" {
		c.Mock.PrefundEth = "10000"
	}
	if c.Ledger.Engine == "" {
		c.Ledger.Engine = EngineMutex
	}
	if c.Ledger.MinimumUSD == "" {
		c.Ledger.MinimumUSD = "50"
	}
	if c.Oracle.MaxStaleness == 0 {
		c.Oracle.MaxStaleness = time.Hour
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalNone
	}
	if c.Journal.WALPath == "" {
		c.Journal.WALPath = "data/fund_events.log"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "fund-events"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Server.AuthMaxSkew == 0 {
		c.Server.AuthMaxSkew = 5 * time.Minute
	}
	if c.Server.Target == "" {
		c.Server.Target = "localhost:50051"
	}
	c.MySQL = c.MySQL.WithDefaults()
}

// Validate 檢查列舉值與數值欄位
func (c *Config) Validate() error {
	switch c.Ledger.Engine {
	case EngineMutex, EngineLMAX:
	default:
		return fmt.Errorf("unknown ledger engine %q", c.Ledger.Engine)
	}
	switch c.Journal.Driver {
	case JournalNone, JournalWAL, JournalMySQL:
	case JournalPostgres:
		if c.Journal.PostgresDSN == "" {
			return errors.New("journal.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	if c.Ledger.Owner != "" && !common.IsHexAddress(c.Ledger.Owner) {
		return fmt.Errorf("invalid ledger.owner %q", c.Ledger.Owner)
	}
	if _, err := c.MinimumReference(); err != nil {
		return err
	}
	if _, err := c.MockInitialAnswer(); err != nil {
		return err
	}
	for _, account := range c.Mock.PrefundedAccounts {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("invalid mock.prefunded_accounts entry %q", account)
		}
	}
	if _, err := c.MockPrefund(); err != nil {
		return err
	}
	if c.Server.AuthMaxSkew < 0 {
		return fmt.Errorf("server.auth_max_skew must be positive, got %s", c.Server.AuthMaxSkew)
	}
	for id, n := range c.Networks {
		if !common.IsHexAddress(n.EthUsdPriceFeed) {
			return fmt.Errorf("network %d: invalid eth_usd_price_feed %q", id, n.EthUsdPriceFeed)
		}
	}
	return nil
}

// IsDevelopment 目前的鏈是否為本地開發鏈
func (c *Config) IsDevelopment() bool {
	return slices.Contains(c.DevelopmentChains, c.Chain.Network)
}

// MinimumReference 將 minimum_usd 轉成 18 位精度的整數
func (c *Config) MinimumReference() (*big.Int, error) {
	v, err := domain.ParseUnits(c.Ledger.MinimumUSD, domain.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.minimum_usd %q: %w", c.Ledger.MinimumUSD, err)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("ledger.minimum_usd must be non-negative, got %q", c.Ledger.MinimumUSD)
	}
	return v, nil
}

func (c *Config) MockInitialAnswer() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.Mock.InitialAnswer, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid mock.initial_answer %q", c.Mock.InitialAnswer)
	}
	return v, nil
}

// MockDecimals 模擬價格來源的精度
func (c *Config) MockDecimals() uint8 {
	if c.Mock.Decimals == nil {
		return 8
	}
	return *c.Mock.Decimals
}

// MockPrefund 每個開發帳號預存的 wei
func (c *Config) MockPrefund() (*big.Int, error) {
	v, err := domain.ParseEther(c.Mock.PrefundEth)
	if err != nil || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid mock.prefund_eth %q", c.Mock.PrefundEth)
	}
	return v, nil
}

// DeployerAddress 由 CHAIN_PRIVATE_KEY 推導出的地址
func (c *Config) DeployerAddress() (common.Address, error) {
	if c.Chain.PrivateKey == "" {
		return common.Address{}, errors.New("CHAIN_PRIVATE_KEY is not set")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.Chain.PrivateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid CHAIN_PRIVATE_KEY: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// ResolveOwner 優先使用 ledger.owner，否則使用部署者地址
func (c *Config) ResolveOwner() (common.Address, error) {
	if c.Ledger.Owner != "" {
		return common.HexToAddress(c.Ledger.Owner), nil
	}
	addr, err := c.DeployerAddress()
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve ledger owner: %w", err)
	}
	return addr, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

// envOrInt64 環境變數有值但不是整數時回傳錯誤
func envOrInt64(key string, fallback int64) (int64, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return parsed, nil
}
