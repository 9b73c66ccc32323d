package ledger

import (
	"context"
	"errors"
	"fmt"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ctoken"

// RedisStore 基于 Redis 的存储，使用 WATCH + MULTI 乐观事务
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储，prefix 为空时使用 "ctoken"
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

type redisTxn struct {
	ctx      context.Context
	store    *RedisStore
	tx       *redis.Tx
	writes   *overlay
	readOnly bool
}

// Get 读取前先 WATCH，提交时任何被读取的 key 发生变化都会使事务失败
func (t *redisTxn) Get(key string) ([]byte, bool, error) {
	if t.writes != nil {
		if v, ok := t.writes.get(key); ok {
			return v, true, nil
		}
	}
	full := t.store.key(key)
	if !t.readOnly {
		if err := t.tx.Watch(t.ctx, full).Err(); err != nil {
			return nil, false, fmt.Errorf("redis watch error: %w", err)
		}
	}

	var cmd *redis.StringCmd
	if t.tx != nil {
		cmd = t.tx.Get(t.ctx, full)
	} else {
		cmd = t.store.rdb.Get(t.ctx, full)
	}
	val, err := cmd.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get error: %w", err)
	default:
		return val, true, nil
	}
}

func (t *redisTxn) Set(key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes.set(key, value)
	return nil
}

func (s *RedisStore) Update(ctx context.Context, fn func(kv KV) error) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		txn := &redisTxn{ctx: ctx, store: s, tx: tx, writes: newOverlay()}
		if err := fn(txn); err != nil {
			return err
		}
		if len(txn.writes.order) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range txn.writes.order {
				pipe.Set(ctx, s.key(k), txn.writes.writes[k], 0)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		logger.Warnf("[Ledger::Redis] optimistic transaction conflict")
		return fmt.Errorf("%w: concurrent ledger update", core.ErrStaleLedgerState)
	}
	return err
}

func (s *RedisStore) View(ctx context.Context, fn func(kv KV) error) error {
	return fn(&redisTxn{ctx: ctx, store: s, readOnly: true})
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
