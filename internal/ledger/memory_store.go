package ledger

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储，Update 之间串行
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

type memoryTxn struct {
	base     map[string][]byte
	writes   *overlay
	readOnly bool
}

func (t *memoryTxn) Get(key string) ([]byte, bool, error) {
	if t.writes != nil {
		if v, ok := t.writes.get(key); ok {
			return v, true, nil
		}
	}
	v, ok := t.base[key]
	return v, ok, nil
}

func (t *memoryTxn) Set(key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes.set(key, value)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(kv KV) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &memoryTxn{base: s.data, writes: newOverlay()}
	if err := fn(txn); err != nil {
		return err
	}
	for _, key := range txn.writes.order {
		s.data[key] = txn.writes.writes[key]
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(kv KV) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTxn{base: s.data, readOnly: true})
}

func (s *MemoryStore) Close() error {
	return nil
}
