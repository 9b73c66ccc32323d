package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	mints map[types.Pubkey]core.MintInfo
	delay time.Duration
}

func (s *countingSource) MintInfo(_ context.Context, mint types.Pubkey) (*core.MintInfo, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	info, ok := s.mints[mint]
	if !ok {
		return nil, core.ErrAccountDiscriminatorMismatch
	}
	return &info, nil
}

func pk(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	return p
}

func TestMintCache_HitAndExpire(t *testing.T) {
	src := &countingSource{mints: map[types.Pubkey]core.MintInfo{pk(1): {Mint: pk(1), Decimals: 6}}}
	mc := NewMintCache(src, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		info, err := mc.MintInfo(context.Background(), pk(1))
		require.NoError(t, err)
		assert.Equal(t, uint8(6), info.Decimals)
	}
	assert.Equal(t, int32(1), src.calls.Load(), "命中缓存不回源")

	// 返回副本，修改不影响缓存
	info, _ := mc.MintInfo(context.Background(), pk(1))
	info.Decimals = 99
	info, _ = mc.MintInfo(context.Background(), pk(1))
	assert.Equal(t, uint8(6), info.Decimals)

	now = now.Add(time.Minute)
	_, err := mc.MintInfo(context.Background(), pk(1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "过期后重新回源")

	mc.Invalidate(pk(1))
	_, _ = mc.MintInfo(context.Background(), pk(1))
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestMintCache_ErrorNotCached(t *testing.T) {
	src := &countingSource{mints: map[types.Pubkey]core.MintInfo{}}
	mc := NewMintCache(src, time.Minute)

	_, err := mc.MintInfo(context.Background(), pk(2))
	assert.True(t, errors.Is(err, core.ErrAccountDiscriminatorMismatch))
	_, err = mc.MintInfo(context.Background(), pk(2))
	assert.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Zero(t, mc.Len())
}

func TestMintCache_ConcurrentMissLoadsOnce(t *testing.T) {
	src := &countingSource{
		mints: map[types.Pubkey]core.MintInfo{pk(3): {Mint: pk(3)}},
		delay: 50 * time.Millisecond,
	}
	mc := NewMintCache(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mc.MintInfo(context.Background(), pk(3))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestMintCache_Evict(t *testing.T) {
	mc := NewMintCache(&countingSource{}, 0)
	base := time.Unix(0, 0)
	i := 0
	mc.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }

	for i = 0; i < maxCapacity; i++ {
		var m types.Pubkey
		m[0], m[1] = byte(i), byte(i>>8)
		mc.Insert(core.MintInfo{Mint: m})
	}
	assert.Equal(t, maxCapacity, mc.Len())

	extra := types.Pubkey{0, 0, 1}
	mc.Insert(core.MintInfo{Mint: extra})
	assert.Equal(t, retainCount, mc.Len())
	_, ok := mc.lookup(extra)
	assert.True(t, ok, "新写入的保留")
	var first types.Pubkey
	_, ok = mc.lookup(first)
	assert.False(t, ok, "最早写入的被淘汰")
}
