package utils

import (
	"testing"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCodec(t *testing.T) {
	in := core.BalanceEvents{
		Version: core.EventVersion,
		ChainID: 100000,
		Events: []core.BalanceEvent{
			{RequestID: "r1", Sequence: 3, Mint: types.Pubkey{1}, Account: types.Pubkey{2}, Credit: 40},
			{RequestID: "r1", Sequence: 3, Mint: types.Pubkey{1}, Account: types.Pubkey{3}, Debit: 40},
		},
	}

	data, err := EncodeEvent(core.EventTypeBalance, in)
	require.NoError(t, err)

	typ, err := PeekEventType(data)
	require.NoError(t, err)
	assert.Equal(t, core.EventTypeBalance, typ)

	var out core.BalanceEvents
	require.NoError(t, DecodeEvent(data, core.EventTypeBalance, &out))
	assert.Equal(t, in, out)

	var wrong core.TransitionEvents
	assert.Error(t, DecodeEvent(data, core.EventTypeTransition, &wrong), "类型前缀不符")
}

func TestDecodeEvent_Truncated(t *testing.T) {
	_, err := PeekEventType([]byte{1, 0})
	assert.Error(t, err)

	data, err := EncodeEvent(core.EventTypeBalance, core.BalanceEvents{Events: []core.BalanceEvent{{RequestID: "x"}}})
	require.NoError(t, err)

	var out core.BalanceEvents
	assert.Error(t, DecodeEvent(data[:len(data)-10], core.EventTypeBalance, &out), "截断数据不能 panic")
}

// 指针消息会多出 Option 标记，编码时直接拒绝
func TestEncodeEvent_RejectsPointer(t *testing.T) {
	_, err := EncodeEvent(core.EventTypeTransition, &core.TransitionEvents{Version: core.EventVersion})
	assert.Error(t, err)
}
