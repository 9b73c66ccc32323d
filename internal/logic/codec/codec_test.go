package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/extension"
	"ctoken-engine-sol/internal/types"

	sdktoken "github.com/blocto/solana-go-sdk/program/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pk(b byte) types.Pubkey {
	var p types.Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

var testCodec = New(nil)

func baseRecord() core.TokenRecord {
	return core.TokenRecord{
		Mint:   pk(1),
		Owner:  pk(2),
		Amount: 10_000,
		State:  core.StateInitialized,
	}
}

// 所有可选字段组合 × 状态 × 扩展列表（nil / 空 / 非空）
func TestRoundTrip_AllCombinations(t *testing.T) {
	extensionsCases := map[string][]core.ExtensionEntry{
		"nil":   nil,
		"empty": {},
		"two": {
			{Type: extension.TypeMetadataPointer, Payload: []byte{1, 2, 3}},
			{Type: extension.TypeCompressedOnly, Payload: []byte{9}},
		},
		"empty-payload": {
			{Type: extension.TypeOpaque, Payload: []byte{}},
		},
	}

	for mask := 0; mask < 8; mask++ {
		for _, state := range []core.AccountState{core.StateInitialized, core.StateFrozen} {
			for extName, exts := range extensionsCases {
				name := fmt.Sprintf("mask=%d/state=%s/ext=%s", mask, state, extName)
				t.Run(name, func(t *testing.T) {
					r := baseRecord()
					r.State = state
					r.Extensions = exts
					if mask&1 != 0 {
						d := pk(3)
						r.Delegate = &d
						r.DelegatedAmount = 500
					}
					if mask&2 != 0 {
						n := uint64(2_039_280)
						r.IsNative = &n
					}
					if mask&4 != 0 {
						c := pk(4)
						r.CloseAuthority = &c
					}

					data, err := testCodec.Encode(&r)
					require.NoError(t, err)
					if exts == nil {
						assert.Len(t, data, FixedSize, "无扩展时长度应为 165")
					}

					got, err := testCodec.Decode(data)
					require.NoError(t, err)
					assert.Equal(t, r, *got)
				})
			}
		}
	}
}

func TestEncode_Layout(t *testing.T) {
	r := baseRecord()
	d := pk(7)
	r.Delegate = &d
	r.DelegatedAmount = 42

	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	assert.Equal(t, r.Mint[:], data[0:32])
	assert.Equal(t, r.Owner[:], data[32:64])
	assert.Equal(t, uint64(10_000), binary.LittleEndian.Uint64(data[64:72]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[72:76]))
	assert.Equal(t, d[:], data[76:108])
	assert.Equal(t, byte(core.StateInitialized), data[108])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[109:113]))
	assert.Equal(t, make([]byte, 8), data[113:121], "None 的占位值应为全 0")
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[121:129]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[129:133]))
}

func TestDecode_ShortRead(t *testing.T) {
	r := baseRecord()
	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 64, 108, 164} {
		_, err := testCodec.Decode(data[:n])
		assert.True(t, errors.Is(err, core.ErrMalformedRecord), "len=%d 应返回 MalformedRecord", n)
	}
}

func TestDecode_InvalidState(t *testing.T) {
	r := baseRecord()
	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	for _, b := range []byte{0, 3, 255} {
		bad := append([]byte(nil), data...)
		bad[108] = b
		_, err := testCodec.Decode(bad)
		assert.ErrorIs(t, err, core.ErrInvalidState)
	}
}

func TestDecode_InvalidOptionTag(t *testing.T) {
	r := baseRecord()
	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	bad := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(bad[72:], 2)
	_, err = testCodec.Decode(bad)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestDecode_TrailingWithoutMarker(t *testing.T) {
	r := baseRecord()
	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	// 没有 marker：忽略尾部
	got, err := testCodec.Decode(append(append([]byte(nil), data...), 0x00, 0x01))
	require.NoError(t, err)
	assert.Nil(t, got.Extensions)

	// 只有 marker 没有数据
	got, err = testCodec.Decode(append(append([]byte(nil), data...), ExtensionMarker))
	require.NoError(t, err)
	assert.Nil(t, got.Extensions)
}

func TestDecode_BadExtensionBlock(t *testing.T) {
	r := baseRecord()
	data, err := testCodec.Encode(&r)
	require.NoError(t, err)

	// 未注册的扩展类型
	bad := append(append([]byte(nil), data...), ExtensionMarker, 1, 0, 0, 0, 0x42, 0, 0, 0, 0)
	_, err = testCodec.Decode(bad)
	assert.ErrorIs(t, err, core.ErrInvalidExtensionType)

	// 长度前缀声明 3 个条目但数据不足
	bad = append(append([]byte(nil), data...), ExtensionMarker, 3, 0, 0, 0, 1)
	_, err = testCodec.Decode(bad)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestEncode_RejectsInvalidRecord(t *testing.T) {
	r := baseRecord()
	r.State = core.StateUninitialized
	_, err := testCodec.Encode(&r)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	r = baseRecord()
	r.Extensions = []core.ExtensionEntry{
		{Type: extension.TypeTokenMetadata, Payload: []byte{1}},
		{Type: extension.TypeTokenMetadata, Payload: []byte{2}},
	}
	_, err = testCodec.Encode(&r)
	assert.ErrorIs(t, err, core.ErrDuplicateExtension)
}

// 压缩记录的定长部分可以直接按 SPL token 账户解析
func TestNativeAccountInterop(t *testing.T) {
	r := baseRecord()
	d := pk(5)
	r.Delegate = &d
	r.DelegatedAmount = 100
	r.State = core.StateFrozen

	account, err := testCodec.ToNativeAccount(&r)
	require.NoError(t, err)
	assert.Equal(t, r.Mint.ToPublicKey(), account.Mint)
	assert.Equal(t, r.Owner.ToPublicKey(), account.Owner)
	assert.Equal(t, uint64(10_000), account.Amount)
	assert.Equal(t, sdktoken.TokenAccountFrozen, account.State)
	require.NotNil(t, account.Delegate)
	assert.Equal(t, d.ToPublicKey(), *account.Delegate)
	assert.Nil(t, account.CloseAuthority)

	back, err := FromNativeAccount(account)
	require.NoError(t, err)
	assert.Equal(t, r, *back)
}

// 运行时注册的扩展类型只对持有该注册表的编解码器有效
func TestCodec_InjectedRegistry(t *testing.T) {
	registry := extension.NewRegistry()
	require.NoError(t, registry.Register(42, "custom"))
	custom := New(registry)

	r := baseRecord()
	r.Extensions = []core.ExtensionEntry{{Type: 42, Payload: []byte{7}}}

	data, err := custom.Encode(&r)
	require.NoError(t, err)
	got, err := custom.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, r, *got)

	_, err = New(nil).Decode(data)
	assert.ErrorIs(t, err, core.ErrInvalidExtensionType, "默认注册表不认识 42")
	assert.False(t, New(nil).Registry().Known(42), "注册不能泄漏到其他注册表")
}
