package utils

import (
	"testing"

	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestPartitionHashBytes(t *testing.T) {
	b := make([]byte, 32)
	b[27] = 0x0b

	assert.Equal(t, uint32(0), PartitionHashBytes(b[:20], 8), "长度不足时固定为 0")
	assert.Equal(t, uint32(0), PartitionHashBytes(b, 1))
	assert.Equal(t, uint32(3), PartitionHashBytes(b, 4), "2 的幂走掩码路径")
	assert.Equal(t, uint32(0x0b%3), PartitionHashBytes(b, 3))

	b[7] = 1
	want := (uint32(1)<<24 | uint32(0x0b)) % 10
	assert.Equal(t, want, PartitionHashBytes(b, 10))
}

func TestPartitionOf(t *testing.T) {
	var key types.Pubkey
	for i := range key {
		key[i] = byte(i * 7)
	}
	assert.Equal(t, int32(0), PartitionOf(key, 0))
	assert.Equal(t, int32(0), PartitionOf(key, 1))

	for _, n := range []int{2, 3, 5, 8, 12} {
		p := PartitionOf(key, n)
		assert.GreaterOrEqual(t, p, int32(0))
		assert.Less(t, p, int32(n))
		assert.Equal(t, p, PartitionOf(key, n), "同一 key 分区稳定")
	}
}

func TestCalcCapPerPartition(t *testing.T) {
	assert.Equal(t, 100, CalcCapPerPartition(100, 1, 8))
	assert.Equal(t, 50, CalcCapPerPartition(100, 4, 8))
	assert.Equal(t, 30, CalcCapPerPartition(100, 10, 8))
	assert.Equal(t, 8, CalcCapPerPartition(2, 10, 8), "不低于 minCap")
}
