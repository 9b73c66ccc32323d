package pool

import (
	"testing"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mintA = types.PubkeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	mintB = types.PubkeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

func TestDerive_Deterministic(t *testing.T) {
	r := NewDefaultResolver()
	for i := uint8(0); i < consts.NumMaxPoolAccounts; i++ {
		a1, err := r.Derive(mintA, i)
		require.NoError(t, err)
		a2, err := r.Derive(mintA, i)
		require.NoError(t, err)
		assert.Equal(t, a1, a2, "同一 (mint, index) 推导结果必须一致")
	}
}

func TestDerive_DistinctByIndexAndMint(t *testing.T) {
	r := NewDefaultResolver()
	seen := make(map[types.Pubkey]string)
	for _, mint := range []types.Pubkey{mintA, mintB} {
		for i := uint8(0); i < consts.NumMaxPoolAccounts; i++ {
			a, err := r.Derive(mint, i)
			require.NoError(t, err)
			_, dup := seen[a.Address]
			assert.False(t, dup, "资金池地址重复: mint=%s index=%d", mint, i)
			seen[a.Address] = mint.String()
		}
	}
	assert.Len(t, seen, 2*int(consts.NumMaxPoolAccounts))
}

func TestValidate(t *testing.T) {
	r := NewDefaultResolver()
	a0, err := r.Derive(mintA, 0)
	require.NoError(t, err)
	a1, err := r.Derive(mintA, 1)
	require.NoError(t, err)
	b0, err := r.Derive(mintB, 0)
	require.NoError(t, err)

	assert.NoError(t, r.Validate(mintA, 0, a0.Address))
	assert.NoError(t, r.Validate(mintA, 1, a1.Address))

	// 声明 index 与地址不符
	assert.ErrorIs(t, r.Validate(mintA, 1, a0.Address), core.ErrInvalidTokenPoolPda)
	// 其他 mint 的资金池
	assert.ErrorIs(t, r.Validate(mintA, 0, b0.Address), core.ErrInvalidTokenPoolPda)
	// 超出范围
	assert.ErrorIs(t, r.Validate(mintA, consts.NumMaxPoolAccounts, a0.Address), core.ErrInvalidTokenPoolBump)
}

func TestValidateIndexInRange(t *testing.T) {
	r := NewDefaultResolver()
	for i := uint8(0); i < consts.NumMaxPoolAccounts; i++ {
		assert.NoError(t, r.ValidateIndexInRange(i))
	}
	assert.ErrorIs(t, r.ValidateIndexInRange(5), core.ErrInvalidTokenPoolBump)
	assert.ErrorIs(t, r.ValidateIndexInRange(255), core.ErrInvalidTokenPoolBump)

	small := NewResolver(consts.CompressedTokenProgram, 2)
	assert.ErrorIs(t, small.ValidateIndexInRange(2), core.ErrInvalidTokenPoolBump)
}

func TestFindIndex(t *testing.T) {
	r := NewDefaultResolver()
	pools, err := r.All(mintA)
	require.NoError(t, err)
	for _, p := range pools {
		idx, err := r.FindIndex(mintA, p.Address)
		require.NoError(t, err)
		assert.Equal(t, p.Index, idx)
		assert.True(t, r.IsPool(mintA, p.Address))
		assert.False(t, r.IsPool(mintB, p.Address))
	}

	_, err = r.FindIndex(mintA, mintB)
	assert.ErrorIs(t, err, core.ErrInvalidTokenPoolPda)
}
