package commitment

import (
	"testing"

	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCodec = codec.New(nil)

func TestRecordHash_Deterministic(t *testing.T) {
	r := core.TokenRecord{Mint: types.Pubkey{1}, Owner: types.Pubkey{2}, Amount: 7, State: core.StateInitialized}
	h1, d1, err := RecordHash(testCodec, &r)
	require.NoError(t, err)
	h2, d2, err := RecordHash(testCodec, &r)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, d1, d2)
	assert.False(t, h1.IsZero())
}

// 任何字段变化都会改变承诺（mint、state 参与哈希）
func TestRecordHash_FieldSensitivity(t *testing.T) {
	base := core.TokenRecord{Mint: types.Pubkey{1}, Owner: types.Pubkey{2}, Amount: 7, State: core.StateInitialized}
	h0, _, err := RecordHash(testCodec, &base)
	require.NoError(t, err)

	variants := []func(r *core.TokenRecord){
		func(r *core.TokenRecord) { r.Mint[31] = 9 },
		func(r *core.TokenRecord) { r.Owner[0] = 9 },
		func(r *core.TokenRecord) { r.Amount = 8 },
		func(r *core.TokenRecord) { r.State = core.StateFrozen },
		func(r *core.TokenRecord) { d := types.Pubkey{3}; r.Delegate = &d },
		func(r *core.TokenRecord) { r.Extensions = []core.ExtensionEntry{} },
	}
	for i, mutate := range variants {
		r := base.Clone()
		mutate(&r)
		h, _, err := RecordHash(testCodec, &r)
		require.NoError(t, err)
		assert.NotEqual(t, h0, h, "variant %d 应改变承诺", i)
	}
}

func TestNodeHash_Order(t *testing.T) {
	a := LeafHash([]byte("a"))
	b := LeafHash([]byte("b"))
	assert.NotEqual(t, NodeHash(a, b), NodeHash(b, a))
	assert.Equal(t, NodeHash(a, b), NodeHash(a, b))
}

func TestNullifierHash_Position(t *testing.T) {
	leaf := LeafHash([]byte("leaf"))
	tree := types.Pubkey{7}
	assert.NotEqual(t, NullifierHash(leaf, tree, 0), NullifierHash(leaf, tree, 1))
	assert.NotEqual(t, NullifierHash(leaf, tree, 0), NullifierHash(leaf, types.Pubkey{8}, 0))
}

func TestZeroHashes(t *testing.T) {
	zero := ZeroHashes(4)
	require.Len(t, zero, 5)
	assert.True(t, zero[0].IsZero())
	for i := 1; i < len(zero); i++ {
		assert.Equal(t, NodeHash(zero[i-1], zero[i-1]), zero[i])
	}
}
