package extension

import (
	"testing"

	"ctoken-engine-sol/internal/logic/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry()

	assert.NoError(t, r.Validate(nil))
	assert.NoError(t, r.Validate([]core.ExtensionEntry{
		{Type: TypeOpaque, Payload: []byte{1}},
		{Type: TypeOpaque, Payload: []byte{2}},
	}), "Opaque 可以重复")

	err := r.Validate([]core.ExtensionEntry{{Type: 77}})
	assert.ErrorIs(t, err, core.ErrInvalidExtensionType)

	err = r.Validate([]core.ExtensionEntry{{Type: TypePausableAccount}, {Type: TypePausableAccount}})
	assert.ErrorIs(t, err, core.ErrDuplicateExtension)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(0, "reserved"), core.ErrInvalidExtensionType)
	assert.Error(t, r.Register(TypeTokenMetadata, "again"), "内置类型不能重复注册")

	require.NoError(t, r.Register(77, "custom"))
	assert.True(t, r.Known(77))
	assert.Equal(t, "custom", r.Name(77))
	assert.False(t, NewRegistry().Known(77), "注册表之间互不影响")
}

// 空内容解码为 []byte{}，编码再解码与原值一致
func TestRegistry_EmptyPayloadRoundTrip(t *testing.T) {
	r := NewRegistry()
	in := []core.ExtensionEntry{
		{Type: TypeCompressedOnly, Payload: []byte{}},
		{Type: TypeOpaque, Payload: []byte{0xff}},
	}
	data, err := r.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, EncodedLen(in), len(data))

	out, err := r.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.NotNil(t, out[0].Payload)
}

func TestRegistry_DecodeMalformed(t *testing.T) {
	r := NewRegistry()
	data, err := r.Encode([]core.ExtensionEntry{{Type: TypeOpaque, Payload: []byte{1, 2}}})
	require.NoError(t, err)

	_, err = r.Decode(append(data, 0))
	assert.ErrorIs(t, err, core.ErrMalformedRecord, "尾部多余字节")

	_, err = r.Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, core.ErrMalformedRecord, "截断")
}

func TestFind(t *testing.T) {
	entries := []core.ExtensionEntry{{Type: TypeOpaque, Payload: []byte{1}}, {Type: TypeOpaque, Payload: []byte{2}}}
	e, ok := Find(entries, TypeOpaque)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, e.Payload)

	_, ok = Find(entries, TypeTokenMetadata)
	assert.False(t, ok)
}
