package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/zeromicro/go-zero/core/syncx"
)

type mintEntry struct {
	info      core.MintInfo
	fetchedAt time.Time
}

// MintCache 缓存 mint 元数据，只用于授权判断（mint / freeze authority）。
// 供应量以 Ledger 为准，缓存中的 Supply 可能滞后。
type MintCache struct {
	mu      sync.RWMutex
	entries map[types.Pubkey]mintEntry
	ttl     time.Duration
	source  core.MintMetadataProvider
	flight  syncx.SingleFlight
	now     func() time.Time
}

const (
	maxCapacity = 4096
	retainCount = 3072
)

var _ core.MintMetadataProvider = (*MintCache)(nil)

func NewMintCache(source core.MintMetadataProvider, ttl time.Duration) *MintCache {
	return &MintCache{
		entries: make(map[types.Pubkey]mintEntry),
		ttl:     ttl,
		source:  source,
		flight:  syncx.NewSingleFlight(),
		now:     time.Now,
	}
}

func (mc *MintCache) MintInfo(ctx context.Context, mint types.Pubkey) (*core.MintInfo, error) {
	if info, ok := mc.lookup(mint); ok {
		return info, nil
	}

	// 同一 mint 的并发未命中只回源一次
	v, err := mc.flight.Do(mint.String(), func() (any, error) {
		info, err := mc.source.MintInfo(ctx, mint)
		if err != nil {
			return nil, err
		}
		mc.Insert(*info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*core.MintInfo)
	return &out, nil
}

func (mc *MintCache) lookup(mint types.Pubkey) (*core.MintInfo, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	e, ok := mc.entries[mint]
	if !ok {
		return nil, false
	}
	if mc.ttl > 0 && mc.now().Sub(e.fetchedAt) >= mc.ttl {
		return nil, false
	}
	info := e.info
	return &info, true
}

// Insert 写入或覆盖一条记录，超过容量时淘汰最早获取的部分
func (mc *MintCache) Insert(info core.MintInfo) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.entries[info.Mint]; !exists && len(mc.entries) >= maxCapacity {
		mc.evictOldestUnsafe(len(mc.entries) - retainCount + 1)
	}
	mc.entries[info.Mint] = mintEntry{info: info, fetchedAt: mc.now()}
}

func (mc *MintCache) Invalidate(mint types.Pubkey) {
	mc.mu.Lock()
	delete(mc.entries, mint)
	mc.mu.Unlock()
}

func (mc *MintCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

func (mc *MintCache) evictOldestUnsafe(n int) {
	keys := make([]types.Pubkey, 0, len(mc.entries))
	for k := range mc.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return mc.entries[keys[i]].fetchedAt.Before(mc.entries[keys[j]].fetchedAt)
	})
	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(mc.entries, k)
	}
}
