package ledger

import (
	"context"
	"errors"
)

// KV 事务内的键值读写。Set 只在事务提交时生效，事务内后续 Get 能读到
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Store Ledger 状态存储。Update 内 fn 返回错误时不写入任何内容；
// 并发冲突返回 core.ErrStaleLedgerState
type Store interface {
	Update(ctx context.Context, fn func(kv KV) error) error
	View(ctx context.Context, fn func(kv KV) error) error
	Close() error
}

var errReadOnly = errors.New("ledger store: write in read-only view")

// overlay 事务内写缓冲
type overlay struct {
	writes map[string][]byte
	order  []string
}

func newOverlay() *overlay {
	return &overlay{writes: make(map[string][]byte)}
}

func (o *overlay) get(key string) ([]byte, bool) {
	v, ok := o.writes[key]
	return v, ok
}

func (o *overlay) set(key string, value []byte) {
	if _, ok := o.writes[key]; !ok {
		o.order = append(o.order, key)
	}
	o.writes[key] = append([]byte(nil), value...)
}
