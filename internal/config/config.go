package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了钱包编排服务在启动阶段需要加载的核心配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Queue         QueueConfig         `json:"queue"`
	Web3          Web3Config          `json:"web3"`
	Custody       CustodyConfig       `json:"custody"`
	Authorization AuthorizationConfig `json:"authorization"`
	Safe          SafeConfig          `json:"safe"`
	Native        NativeConfig        `json:"native"`
	Alerting      AlertingConfig      `json:"alerting"`
	Runtime       RuntimeConfig       `json:"runtime"`
}

// ServerConfig 控制指标端点的监听地址。
type ServerConfig struct {
	MetricsAddress string `json:"metrics_address"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 描述审计日志输出。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// StorageConfig 统一描述钱包记录存储与 Redis 的连接信息。
type StorageConfig struct {
	WalletStore WalletStoreConfig `json:"wallet_store"`
	Redis       RedisConfig       `json:"redis"`
}

// WalletStoreConfig 支持 memory 与 mysql 两种驱动。
type WalletStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DSNEnv                 string `json:"dsn_env"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// RedisConfig 用于代币精度缓存与跨进程钱包锁。
type RedisConfig struct {
	Address            string `json:"address"`
	Password           string `json:"password"`
	PasswordEnv        string `json:"password_env"`
	DB                 int    `json:"db"`
	KeyPrefix          string `json:"key_prefix"`
	DecimalsTTLSeconds int    `json:"decimals_ttl_seconds"`
	LockEnabled        bool   `json:"lock_enabled"`
	LockTTLSeconds     int    `json:"lock_ttl_seconds"`
}

// QueueConfig 描述配置变更事件的消费队列。
type QueueConfig struct {
	Driver      string         `json:"driver"`
	Worker      int            `json:"worker"`
	MaxAttempts int            `json:"max_attempts"`
	Redis       RedisQueue     `json:"redis"`
	RabbitMQ    RabbitMQConfig `json:"rabbitmq"`
}

// RedisQueue 描述 Redis 队列参数。
type RedisQueue struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// Web3Config 包含链注册表与 RPC 调用策略。
type Web3Config struct {
	ChainConfig    string  `json:"chain_config"`
	DefaultNetwork string  `json:"default_network"`
	RetryAttempts  int     `json:"retry_attempts"`
	RetryInitialMS int     `json:"retry_initial_ms"`
	RateLimit      float64 `json:"rate_limit"`
	RateBurst      int     `json:"rate_burst"`
}

// CustodyConfig 描述托管密钥服务的访问方式。
type CustodyConfig struct {
	// Driver 为 memory（开发环境）或 http。
	Driver          string `json:"driver"`
	BaseURL         string `json:"base_url"`
	APIKeyID        string `json:"api_key_id"`
	APIKeySecret    string `json:"api_key_secret"`
	APIKeySecretEnv string `json:"api_key_secret_env"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// AuthorizationConfig 描述所有者授权服务（key quorum 与委托钱包）。
type AuthorizationConfig struct {
	Driver         string   `json:"driver"`
	BaseURL        string   `json:"base_url"`
	AppID          string   `json:"app_id"`
	AppSecret      string   `json:"app_secret"`
	AppSecretEnv   string   `json:"app_secret_env"`
	PublicKeys     []string `json:"authorization_public_keys"`
	OwnerIDPrefix  string   `json:"owner_id_prefix"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// SafeConfig 控制 Safe 部署确认的轮询策略。
type SafeConfig struct {
	DeployPollAttempts  int    `json:"deploy_poll_attempts"`
	DeployPollInitialMS int    `json:"deploy_poll_initial_ms"`
	DeployPollMaxMS     int    `json:"deploy_poll_max_ms"`
	SaltNonce           uint64 `json:"salt_nonce"`
	ExecGasLimit        uint64 `json:"exec_gas_limit"`
}

// NativeConfig 描述本地密钥钱包的加密参数。
type NativeConfig struct {
	PassphraseEnv string `json:"passphrase_env"`
	LightScrypt   bool   `json:"light_scrypt"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9464"
	}

	if c.Storage.WalletStore.Driver == "" {
		c.Storage.WalletStore.Driver = "memory"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "intentwallet"
	}
	if c.Storage.Redis.DecimalsTTLSeconds <= 0 {
		c.Storage.Redis.DecimalsTTLSeconds = 24 * 60 * 60
	}
	if c.Storage.Redis.LockTTLSeconds <= 0 {
		c.Storage.Redis.LockTTLSeconds = 300
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Worker <= 0 {
		c.Queue.Worker = 4
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 5
	}

	if c.Web3.DefaultNetwork == "" {
		c.Web3.DefaultNetwork = "base-mainnet"
	}
	if c.Web3.RetryAttempts <= 0 {
		c.Web3.RetryAttempts = 5
	}
	if c.Web3.RetryInitialMS <= 0 {
		c.Web3.RetryInitialMS = 250
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Custody.Driver == "" {
		c.Custody.Driver = "memory"
	}
	if c.Authorization.Driver == "" {
		c.Authorization.Driver = "memory"
	}
	if c.Custody.TimeoutSeconds <= 0 {
		c.Custody.TimeoutSeconds = 30
	}
	if c.Authorization.BaseURL == "" {
		c.Authorization.BaseURL = "https://api.privy.io/v1"
	}
	if c.Authorization.OwnerIDPrefix == "" {
		c.Authorization.OwnerIDPrefix = "did:privy:"
	}
	if c.Authorization.TimeoutSeconds <= 0 {
		c.Authorization.TimeoutSeconds = 30
	}

	if c.Safe.DeployPollAttempts <= 0 {
		c.Safe.DeployPollAttempts = 10
	}
	if c.Safe.DeployPollInitialMS <= 0 {
		c.Safe.DeployPollInitialMS = 2000
	}
	if c.Safe.DeployPollMaxMS <= 0 {
		c.Safe.DeployPollMaxMS = 30000
	}

	if c.Native.PassphraseEnv == "" {
		c.Native.PassphraseEnv = "WALLETD_NATIVE_PASSPHRASE"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, c.Logging.Audit.Path)
	}
}

// Validate 检查相互依赖的配置项。
func (c *Config) Validate() error {
	switch c.Storage.WalletStore.Driver {
	case "memory":
	case "mysql":
		if c.Storage.WalletStore.ResolveDSN() == "" {
			return errors.New("mysql 存储需要配置 dsn 或 dsn_env")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.WalletStore.Driver)
	}

	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Queue.Redis.Address) == "" {
			return errors.New("redis 队列需要配置 address")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Queue.RabbitMQ.URL) == "" {
			return errors.New("rabbitmq 队列需要配置 url")
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}

	switch c.Custody.Driver {
	case "memory":
	case "http":
		if strings.TrimSpace(c.Custody.BaseURL) == "" || c.Custody.ResolveSecret() == "" {
			return errors.New("http 托管服务需要配置 base_url 与 api_key_secret")
		}
	default:
		return fmt.Errorf("未知的托管驱动: %s", c.Custody.Driver)
	}

	switch c.Authorization.Driver {
	case "memory":
	case "http":
		if strings.TrimSpace(c.Authorization.AppID) == "" || c.Authorization.ResolveSecret() == "" {
			return errors.New("http 授权服务需要配置 app_id 与 app_secret")
		}
	default:
		return fmt.Errorf("未知的授权驱动: %s", c.Authorization.Driver)
	}

	if c.Storage.Redis.LockEnabled && strings.TrimSpace(c.Storage.Redis.Address) == "" {
		return errors.New("启用跨进程锁时必须配置 storage.redis.address")
	}
	if c.Safe.DeployPollMaxMS < c.Safe.DeployPollInitialMS {
		return errors.New("safe.deploy_poll_max_ms 不能小于 deploy_poll_initial_ms")
	}
	return nil
}

// ResolveDSN 优先读取显式配置，其次读取环境变量。
func (c WalletStoreConfig) ResolveDSN() string {
	return resolveSecret(c.DSN, c.DSNEnv)
}

// ResolvePassword 返回 Redis 密码。
func (c RedisConfig) ResolvePassword() string {
	return resolveSecret(c.Password, c.PasswordEnv)
}

// DecimalsTTL 返回精度缓存的过期时间。
func (c RedisConfig) DecimalsTTL() time.Duration {
	return time.Duration(c.DecimalsTTLSeconds) * time.Second
}

// LockTTL 返回跨进程锁的租约时长。
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ResolveSecret 返回托管服务的 API 密钥。
func (c CustodyConfig) ResolveSecret() string {
	return resolveSecret(c.APIKeySecret, c.APIKeySecretEnv)
}

// Timeout 返回托管服务请求超时。
func (c CustodyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveSecret 返回授权服务的应用密钥。
func (c AuthorizationConfig) ResolveSecret() string {
	return resolveSecret(c.AppSecret, c.AppSecretEnv)
}

// Timeout 返回授权服务请求超时。
func (c AuthorizationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryInitial 返回 RPC 重试的初始间隔。
func (c Web3Config) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

// PollInitial 返回部署确认轮询的初始间隔。
func (c SafeConfig) PollInitial() time.Duration {
	return time.Duration(c.DeployPollInitialMS) * time.Millisecond
}

// PollMax 返回部署确认轮询的最大间隔。
func (c SafeConfig) PollMax() time.Duration {
	return time.Duration(c.DeployPollMaxMS) * time.Millisecond
}

// Passphrase 读取本地钱包的加密口令。
func (c NativeConfig) Passphrase() string {
	return strings.TrimSpace(os.Getenv(c.PassphraseEnv))
}

func resolveSecret(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
