package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctoken-engine-sol/internal/cache"
	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/logic/extension"
	"ctoken-engine-sol/internal/logic/pool"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/mq"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/service"
	"ctoken-engine-sol/internal/types"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
)

// ServiceContext 包含服务运行所需的全部资源
type ServiceContext struct {
	Config      *config.Config
	Ledger      *ledger.Ledger
	MintCache   *cache.MintCache
	Engine      *engine.Engine
	Metrics     *metrics.Metrics
	Producer    *kafka.Producer // 未配置 brokers 时为 nil
	Transitions *service.TransitionService
	TreeIDs     []types.Pubkey
}

// NewServiceContext 按配置初始化 Ledger、引擎与 Kafka 生产者
func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	// 1. 初始化 Ledger 存储
	store, err := newStore(c)
	if err != nil {
		return nil, err
	}
	// 引擎与 Ledger 共用同一个扩展注册表
	registry := extension.NewRegistry()
	l := ledger.New(store, ledger.WithCodec(codec.New(registry)))

	sc := &ServiceContext{
		Config:  c,
		Ledger:  l,
		Metrics: metrics.New(),
	}

	// 2. 确保配置中的树与 mint 存在
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sc.ensureTrees(ctx); err != nil {
		sc.Close()
		return nil, err
	}
	if err := sc.ensureMints(ctx); err != nil {
		sc.Close()
		return nil, err
	}

	// 3. 引擎
	programID, err := types.TryPubkeyFromBase58(c.EngineConf.ProgramID)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("engine.program_id: %w", err)
	}
	sc.MintCache = cache.NewMintCache(l, time.Duration(c.EngineConf.MintCacheTTLMs)*time.Millisecond)
	sc.Engine = engine.New(engine.Deps{
		Ledger:   l,
		Mints:    sc.MintCache,
		Accounts: l,
		Pools:    pool.NewResolver(programID, c.EngineConf.MaxPools),
		Registry: registry,
	})

	// 4. Kafka 生产者（可选）
	opts := []service.TransitionServiceOption{service.WithMetrics(sc.Metrics)}
	if c.KafkaProducerConf.Enabled() {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf)
		if err != nil {
			logger.Errorf("Kafka producer 初始化失败: %v", err)
			sc.Close()
			return nil, err
		}
		sc.Producer = producer
		publisher := service.NewKafkaPublisher(producer, time.Duration(c.TimeConf.EventSendTimeoutMs)*time.Millisecond, sc.Metrics)
		opts = append(opts, service.WithPublisher(publisher, c.KafkaProducerConf))
	}

	sc.Transitions = service.NewTransitionService(sc.Engine, time.Duration(c.TimeConf.CommitTimeoutMs)*time.Millisecond, opts...)

	logger.Infof("服务上下文初始化完成: backend=%s trees=%d mints=%d kafka=%v",
		c.LedgerConf.Backend, len(sc.TreeIDs), len(c.LedgerConf.Mints), sc.Producer != nil)
	return sc, nil
}

func newStore(c *config.Config) (ledger.Store, error) {
	switch c.LedgerConf.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisConf.Addr,
			Password: c.RedisConf.Password,
			DB:       c.RedisConf.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s 连接失败: %w", c.RedisConf.Addr, err)
		}
		return ledger.NewRedisStore(rdb, c.LedgerConf.KeyPrefix), nil
	default:
		return ledger.NewMemoryStore(), nil
	}
}

// ensureTrees 创建配置中的树，已存在的保持原状
func (sc *ServiceContext) ensureTrees(ctx context.Context) error {
	sc.TreeIDs = sc.TreeIDs[:0]
	for _, t := range sc.Config.LedgerConf.Trees {
		id, err := types.TryPubkeyFromBase58(t.ID)
		if err != nil {
			return fmt.Errorf("tree id: %w", err)
		}
		queue, err := types.TryPubkeyFromBase58(t.Queue)
		if err != nil {
			return fmt.Errorf("tree queue: %w", err)
		}
		_, err = sc.Ledger.CreateTree(ctx, ledger.TreeConfig{
			ID:          id,
			Queue:       queue,
			Version:     core.TreeVersion(t.Version),
			Height:      t.Height,
			RootHistory: t.RootHistory,
		})
		if err != nil && !errors.Is(err, ledger.ErrTreeExists) {
			return fmt.Errorf("create tree %s: %w", t.ID, err)
		}
		sc.TreeIDs = append(sc.TreeIDs, id)
	}
	return nil
}

// ensureMints 注册配置中的 mint 并补齐资金池，已注册的 mint 不覆盖（保留供应量）
func (sc *ServiceContext) ensureMints(ctx context.Context) error {
	for _, m := range sc.Config.LedgerConf.Mints {
		info, err := MintInfoFromConfig(m)
		if err != nil {
			return err
		}
		_, err = sc.Ledger.MintInfo(ctx, info.Mint)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrAccountDiscriminatorMismatch):
			if err := sc.Ledger.RegisterMint(ctx, *info); err != nil {
				return fmt.Errorf("register mint %s: %w", m.Mint, err)
			}
		default:
			return err
		}
		if err := sc.Ledger.EnsurePools(ctx, info.Mint, m.Pools); err != nil {
			return fmt.Errorf("pools of mint %s: %w", m.Mint, err)
		}
	}
	return nil
}

// MintInfoFromConfig 把配置转换为 mint 元数据，authority 为空表示没有
func MintInfoFromConfig(m config.MintConfig) (*core.MintInfo, error) {
	parse := func(s string) (*types.Pubkey, error) {
		if s == "" {
			return nil, nil
		}
		p, err := types.TryPubkeyFromBase58(s)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}

	mint, err := types.TryPubkeyFromBase58(m.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	mintAuth, err := parse(m.MintAuthority)
	if err != nil {
		return nil, fmt.Errorf("mint %s authority: %w", m.Mint, err)
	}
	freezeAuth, err := parse(m.FreezeAuthority)
	if err != nil {
		return nil, fmt.Errorf("mint %s freeze authority: %w", m.Mint, err)
	}
	return &core.MintInfo{
		Mint:            mint,
		MintAuthority:   mintAuth,
		FreezeAuthority: freezeAuth,
		Decimals:        m.Decimals,
	}, nil
}

// Close 关闭服务上下文中的资源
func (sc *ServiceContext) Close() {
	if sc.Producer != nil {
		sc.Producer.Flush(3000)
		sc.Producer.Close()
	}
	if sc.Ledger != nil {
		if err := sc.Ledger.Close(); err != nil {
			logger.Warnf("ledger close: %v", err)
		}
	}
}
