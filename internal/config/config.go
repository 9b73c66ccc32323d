package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/types"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// EngineConfig 引擎配置
type EngineConfig struct {
	ProgramID      string `yaml:"program_id"`        // 压缩 token 程序地址，资金池 PDA 由它推导
	MaxPools       uint8  `yaml:"max_pools"`         // 每个 mint 的资金池数量上限
	MintCacheTTLMs int    `yaml:"mint_cache_ttl_ms"` // mint 元数据缓存时间，0 表示使用默认值
}

// TreeConfig 启动时确保存在的 Merkle 树
type TreeConfig struct {
	ID          string `yaml:"id"`
	Queue       string `yaml:"queue"`
	Version     uint8  `yaml:"version"`      // 1: v1 稀疏树；2: v2 批量树
	Height      uint32 `yaml:"height"`       // 为 0 时使用默认高度 26
	RootHistory uint32 `yaml:"root_history"` // 为 0 时按版本取默认值
}

// MintConfig 启动时注册的 mint
type MintConfig struct {
	Mint            string `yaml:"mint"`
	MintAuthority   string `yaml:"mint_authority"`   // 可为空
	FreezeAuthority string `yaml:"freeze_authority"` // 可为空
	Decimals        uint8  `yaml:"decimals"`
	Pools           uint8  `yaml:"pools"` // 启动时保证存在的资金池数量，默认 1
}

// LedgerConfig 参考 Ledger 配置
type LedgerConfig struct {
	Backend   string       `yaml:"backend"`    // memory / redis
	KeyPrefix string       `yaml:"key_prefix"` // redis key 前缀
	Trees     []TreeConfig `yaml:"trees"`
	Mints     []MintConfig `yaml:"mints"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`     // Redis 地址，例如 127.0.0.1:6379
	Password string `yaml:"password"` // 可为空
	DB       int    `yaml:"db"`
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置，brokers 为空时不发送事件
type KafkaProducerConfig struct {
	Brokers   string `yaml:"brokers"`    // Kafka broker 地址，多个用英文逗号分隔
	BatchSize int    `yaml:"batch_size"` // 批处理大小（单位字节）
	LingerMs  int    `yaml:"linger_ms"`  // 批处理最大延迟（毫秒）

	Topics struct {
		Balance    string `yaml:"balance"`    // 原生侧余额变动的 Kafka topic
		Transition string `yaml:"transition"` // 状态转换事件的 Kafka topic
	} `yaml:"topics"`

	Partitions struct {
		Balance    int `yaml:"balance"`    // balance topic 的分区数
		Transition int `yaml:"transition"` // transition topic 的分区数
	} `yaml:"partitions"`
}

func (c *KafkaProducerConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

// KafkaConsumerConfig 表示请求消费者配置，brokers 为空时不启动消费者
type KafkaConsumerConfig struct {
	Brokers       string `yaml:"brokers"`
	GroupID       string `yaml:"group_id"`
	Topic         string `yaml:"topic"`           // 转换请求 topic（JSON）
	PollTimeoutMs int    `yaml:"poll_timeout_ms"` // 单次拉取等待时间
}

func (c *KafkaConsumerConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Addr            string `yaml:"addr"` // 监听地址，为空时不启动
	Path            string `yaml:"path"`
	StatsIntervalMs int    `yaml:"stats_interval_ms"` // Ledger 状态采集间隔
}

// TimeConfig 表示各种超时配置（单位：毫秒）
type TimeConfig struct {
	CommitTimeoutMs    int `yaml:"commit_timeout_ms"`     // 单次转换（含 Ledger 提交）的最大耗时
	EventSendTimeoutMs int `yaml:"event_send_timeout_ms"` // 单条事件发送到 Kafka 并等待 ack 的超时时间
}

// Config 是主配置结构体
type Config struct {
	LogConf           LogConfig           `yaml:"logger"`
	EngineConf        EngineConfig        `yaml:"engine"`
	LedgerConf        LedgerConfig        `yaml:"ledger"`
	RedisConf         RedisConfig         `yaml:"redis"`
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"`
	KafkaConsumerConf KafkaConsumerConfig `yaml:"kafka_consumer"`
	MetricsConf       MetricsConfig       `yaml:"metrics"`
	TimeConf          TimeConfig          `yaml:"time_conf"`
}

// Load 读取 YAML 配置，未知字段报错，缺省值补齐后校验
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) ApplyDefaults() {
	if c.LogConf.Level == "" {
		c.LogConf.Level = "info"
	}
	if c.LogConf.Format == "" {
		c.LogConf.Format = "console"
	}
	if c.EngineConf.ProgramID == "" {
		c.EngineConf.ProgramID = consts.CompressedTokenProgramStr
	}
	if c.EngineConf.MaxPools == 0 {
		c.EngineConf.MaxPools = consts.NumMaxPoolAccounts
	}
	if c.EngineConf.MintCacheTTLMs <= 0 {
		c.EngineConf.MintCacheTTLMs = 30000
	}
	if c.LedgerConf.Backend == "" {
		c.LedgerConf.Backend = "memory"
	}
	if c.LedgerConf.KeyPrefix == "" {
		c.LedgerConf.KeyPrefix = "ctoken"
	}
	for i := range c.LedgerConf.Trees {
		t := &c.LedgerConf.Trees[i]
		if t.Version == 0 {
			t.Version = 1
		}
		if t.Height == 0 {
			t.Height = consts.DefaultTreeHeight
		}
		if t.RootHistory == 0 {
			t.RootHistory = consts.DefaultRootHistoryV1
			if t.Version == 2 {
				t.RootHistory = consts.DefaultRootHistoryV2
			}
		}
	}
	for i := range c.LedgerConf.Mints {
		if c.LedgerConf.Mints[i].Pools == 0 {
			c.LedgerConf.Mints[i].Pools = 1
		}
	}
	if c.KafkaProducerConf.Partitions.Balance <= 0 {
		c.KafkaProducerConf.Partitions.Balance = 1
	}
	if c.KafkaProducerConf.Partitions.Transition <= 0 {
		c.KafkaProducerConf.Partitions.Transition = 1
	}
	if c.KafkaConsumerConf.PollTimeoutMs <= 0 {
		c.KafkaConsumerConf.PollTimeoutMs = 100
	}
	if c.MetricsConf.Path == "" {
		c.MetricsConf.Path = "/metrics"
	}
	if c.MetricsConf.StatsIntervalMs <= 0 {
		c.MetricsConf.StatsIntervalMs = 5000
	}
	if c.TimeConf.CommitTimeoutMs <= 0 {
		c.TimeConf.CommitTimeoutMs = 3000
	}
	if c.TimeConf.EventSendTimeoutMs <= 0 {
		c.TimeConf.EventSendTimeoutMs = 2000
	}
}

// Validate 检查配置是否可用，返回所有问题
func (c *Config) Validate() error {
	var errs []error

	switch c.LedgerConf.Backend {
	case "memory":
	case "redis":
		if c.RedisConf.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis ledger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q: want memory or redis", c.LedgerConf.Backend))
	}

	if _, err := types.TryPubkeyFromBase58(c.EngineConf.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("engine.program_id: %w", err))
	}
	if c.EngineConf.MaxPools > consts.NumMaxPoolAccounts {
		errs = append(errs, fmt.Errorf("engine.max_pools %d exceeds %d", c.EngineConf.MaxPools, consts.NumMaxPoolAccounts))
	}

	for i, t := range c.LedgerConf.Trees {
		if t.ID == "" || t.Queue == "" {
			errs = append(errs, fmt.Errorf("ledger.trees[%d]: id and queue are required", i))
		} else {
			errs = append(errs, checkPubkeys(fmt.Sprintf("ledger.trees[%d]", i), t.ID, t.Queue)...)
		}
		if t.Version != 1 && t.Version != 2 {
			errs = append(errs, fmt.Errorf("ledger.trees[%d]: version %d", i, t.Version))
		}
	}
	for i, m := range c.LedgerConf.Mints {
		if m.Mint == "" {
			errs = append(errs, fmt.Errorf("ledger.mints[%d]: mint is required", i))
			continue
		}
		errs = append(errs, checkPubkeys(fmt.Sprintf("ledger.mints[%d]", i), m.Mint, m.MintAuthority, m.FreezeAuthority)...)
		if m.Pools > consts.NumMaxPoolAccounts {
			errs = append(errs, fmt.Errorf("ledger.mints[%d]: pools %d exceeds %d", i, m.Pools, consts.NumMaxPoolAccounts))
		}
	}

	if c.KafkaProducerConf.Enabled() && (c.KafkaProducerConf.Topics.Transition == "" || c.KafkaProducerConf.Topics.Balance == "") {
		errs = append(errs, errors.New("kafka_producer.topics.transition and topics.balance are required"))
	}
	if c.KafkaConsumerConf.Enabled() && (c.KafkaConsumerConf.Topic == "" || c.KafkaConsumerConf.GroupID == "") {
		errs = append(errs, errors.New("kafka_consumer.topic and group_id are required"))
	}

	return errors.Join(errs...)
}

// checkPubkeys 校验非空字段是否为合法的 base58 公钥
func checkPubkeys(field string, values ...string) []error {
	var errs []error
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := types.TryPubkeyFromBase58(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q: %w", field, v, err))
		}
	}
	return errs
}
