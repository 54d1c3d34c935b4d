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

	"gopkg.in/yaml.v3"

	"ProofMesh/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "PROOFMESH_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件路径。
var DefaultPath = filepath.Join("configs", "proofmesh.yaml")

// Config 描述了 ProofMesh 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Web3     Web3Config     `json:"web3" yaml:"web3"`
	Anchor   AnchorConfig   `json:"anchor" yaml:"anchor"`
	Signer   SignerConfig   `json:"signer" yaml:"signer"`
	Logging  logger.Config  `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address" yaml:"address"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	MaxBodyBytes        int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// StorageConfig 描述回执库与任务库的后端。
type StorageConfig struct {
	Receipts DatabaseConfig `json:"receipts" yaml:"receipts"`
	Jobs     JobStoreConfig `json:"jobs" yaml:"jobs"`
}

// DatabaseConfig 描述一个 memory 或 mysql 后端的连接信息。
type DatabaseConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// ConnMaxLifetime 返回连接最长存活时间。
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSeconds) * time.Second
}

// ConnMaxIdleTime 返回连接最长空闲时间。
func (d DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(d.ConnMaxIdleTimeSeconds) * time.Second
}

// JobStoreConfig 描述异步证明任务的存储及重试次数。
type JobStoreConfig struct {
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
	Retries int    `json:"retries" yaml:"retries"`
}

// QueueConfig 选择任务队列驱动。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address          string `json:"address" yaml:"address"`
	Password         string `json:"password" yaml:"password"`
	DB               int    `json:"db" yaml:"db"`
	Queue            string `json:"queue" yaml:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// Web3Config 包含访问区块链节点以及锚定交易所需的信息。
type Web3Config struct {
	ChainConfig        string `json:"chain_config" yaml:"chain_config"`
	DefaultChain       string `json:"default_chain" yaml:"default_chain"`
	RPCURL             string `json:"rpc_url" yaml:"rpc_url"`
	AnchorKey          string `json:"anchor_key" yaml:"anchor_key"`
	AnchorKeyEnv       string `json:"anchor_key_env" yaml:"anchor_key_env"`
	GasLimit           uint64 `json:"gas_limit" yaml:"gas_limit"`
	PollIntervalMillis int    `json:"poll_interval_millis" yaml:"poll_interval_millis"`
}

// PollInterval 返回等待交易回执的轮询间隔。
func (w Web3Config) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMillis) * time.Millisecond
}

// ResolveAnchorKey 返回锚定私钥，优先使用显式配置，其次读取环境变量。
func (w Web3Config) ResolveAnchorKey() string {
	if key := strings.TrimSpace(w.AnchorKey); key != "" {
		return key
	}
	if w.AnchorKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(w.AnchorKeyEnv))
	}
	return ""
}

// AnchorConfig 选择锚定方式。
type AnchorConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	// Fallback 为 true 时链上锚定失败会退回模拟锚定。
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// Timeout 返回单个锚定提供方的超时时间。
func (a AnchorConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// SignerConfig 选择回执签名算法。mock 仅用于演示，不具备任何不可否认性。
type SignerConfig struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	KeyHex    string `json:"key_hex" yaml:"key_hex"`
	KeyEnv    string `json:"key_env" yaml:"key_env"`
}

// ResolveKey 返回签名私钥。
func (s SignerConfig) ResolveKey() string {
	if key := strings.TrimSpace(s.KeyHex); key != "" {
		return key
	}
	if s.KeyEnv != "" {
		return strings.TrimSpace(os.Getenv(s.KeyEnv))
	}
	return ""
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// AlertingConfig 描述告警通知渠道。
type AlertingConfig struct {
	Log            bool   `json:"log" yaml:"log"`
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// PathFromEnv 返回环境变量指定的配置路径，未设置时返回默认路径。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 或 YAML 配置文件。
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

	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 解析配置内容，ext 为 .yaml/.yml 时按 YAML 解析，否则按 JSON 解析。
// 返回的配置尚未填充默认值。
func Parse(content []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	return &cfg, nil
}

// Default 返回仅包含默认值的配置，适用于没有配置文件的本地运行。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Storage.Receipts.Driver == "" {
		c.Storage.Receipts.Driver = "memory"
	}
	if c.Storage.Jobs.Driver == "" {
		c.Storage.Jobs.Driver = "memory"
	}
	if c.Storage.Jobs.DSN == "" {
		c.Storage.Jobs.DSN = c.Storage.Receipts.DSN
	}
	if c.Storage.Jobs.Retries <= 0 {
		c.Storage.Jobs.Retries = 3
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 1024
	}
	if c.Queue.Redis.Queue == "" {
		c.Queue.Redis.Queue = "proofmesh:jobs"
	}
	if c.Queue.Redis.BlockWaitSeconds <= 0 {
		c.Queue.Redis.BlockWaitSeconds = 5
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "proofmesh.jobs"
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
	if c.Web3.GasLimit == 0 {
		c.Web3.GasLimit = 60_000
	}
	if c.Web3.PollIntervalMillis <= 0 {
		c.Web3.PollIntervalMillis = 500
	}

	if c.Anchor.Provider == "" {
		c.Anchor.Provider = "simulated"
	}
	if c.Anchor.TimeoutSeconds <= 0 {
		c.Anchor.TimeoutSeconds = 30
	}

	if c.Signer.Algorithm == "" {
		c.Signer.Algorithm = "mock"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
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

// Validate 检查驱动名称等枚举字段。
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s 不支持取值 %q，可选值: %s", field, value, strings.Join(allowed, ", ")))
	}
	check("storage.receipts.driver", c.Storage.Receipts.Driver, "memory", "mysql")
	check("storage.jobs.driver", c.Storage.Jobs.Driver, "memory", "mysql")
	check("queue.driver", c.Queue.Driver, "memory", "redis", "rabbitmq")
	check("anchor.provider", c.Anchor.Provider, "simulated", "chain")
	check("signer.algorithm", c.Signer.Algorithm, "mock", "ed25519", "secp256k1")

	if c.Storage.Receipts.Driver == "mysql" && strings.TrimSpace(c.Storage.Receipts.DSN) == "" {
		errs = append(errs, errors.New("storage.receipts.dsn 不能为空"))
	}
	if c.Storage.Jobs.Driver == "mysql" && strings.TrimSpace(c.Storage.Jobs.DSN) == "" {
		errs = append(errs, errors.New("storage.jobs.dsn 不能为空"))
	}
	if c.Signer.Algorithm != "mock" && c.Signer.ResolveKey() == "" {
		errs = append(errs, fmt.Errorf("签名算法 %s 需要配置 key_hex 或 key_env", c.Signer.Algorithm))
	}
	return errors.Join(errs...)
}
