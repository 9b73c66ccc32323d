package codec

import (
	"encoding/binary"
	"fmt"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/extension"
	"ctoken-engine-sol/internal/types"
)

// 定长部分偏移，与 SPL token 账户布局一致
const (
	offsetMint            = 0
	offsetOwner           = 32
	offsetAmount          = 64
	offsetDelegateTag     = 72
	offsetDelegate        = 76
	offsetState           = 108
	offsetIsNativeTag     = 109
	offsetIsNative        = 113
	offsetDelegatedAmount = 121
	offsetCloseTag        = 129
	offsetClose           = 133

	FixedSize = consts.TokenAccountSize

	// ExtensionMarker 扩展块标记字节
	ExtensionMarker byte = 2
)

// COption 标签
const (
	tagNone uint32 = 0
	tagSome uint32 = 1
)

// Codec 记录编解码器，扩展列表交给 Registry 处理
type Codec struct {
	registry *extension.Registry
}

// New registry 为 nil 时使用只含内置类型的新注册表
func New(registry *extension.Registry) *Codec {
	if registry == nil {
		registry = extension.NewRegistry()
	}
	return &Codec{registry: registry}
}

func (c *Codec) Registry() *extension.Registry {
	return c.registry
}

// Encode 编码记录：165 字节定长部分 + 可选的扩展块（marker + borsh 列表）
func (c *Codec) Encode(r *core.TokenRecord) ([]byte, error) {
	if r.State != core.StateInitialized && r.State != core.StateFrozen {
		return nil, fmt.Errorf("%w: state=%d", core.ErrInvalidState, r.State)
	}

	var ext []byte
	if r.Extensions != nil {
		var err error
		if ext, err = c.registry.Encode(r.Extensions); err != nil {
			return nil, err
		}
	}

	size := FixedSize
	if ext != nil {
		size += 1 + len(ext)
	}
	buf := make([]byte, FixedSize, size)

	copy(buf[offsetMint:], r.Mint[:])
	copy(buf[offsetOwner:], r.Owner[:])
	binary.LittleEndian.PutUint64(buf[offsetAmount:], r.Amount)
	putOptionPubkey(buf[offsetDelegateTag:], r.Delegate)
	buf[offsetState] = byte(r.State)
	if r.IsNative != nil {
		binary.LittleEndian.PutUint32(buf[offsetIsNativeTag:], tagSome)
		binary.LittleEndian.PutUint64(buf[offsetIsNative:], *r.IsNative)
	}
	binary.LittleEndian.PutUint64(buf[offsetDelegatedAmount:], r.DelegatedAmount)
	putOptionPubkey(buf[offsetCloseTag:], r.CloseAuthority)

	if ext != nil {
		buf = append(buf, ExtensionMarker)
		buf = append(buf, ext...)
	}
	return buf, nil
}

// Decode 解码记录。定长部分不足返回 MalformedRecord，状态未知返回 InvalidState；
// 尾部没有 marker 或 marker 后没有数据时 Extensions 为 nil。
func (c *Codec) Decode(data []byte) (*core.TokenRecord, error) {
	if len(data) < FixedSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", core.ErrMalformedRecord, len(data), FixedSize)
	}

	r := &core.TokenRecord{
		Mint:            types.PubkeyFromBytes(data[offsetMint : offsetMint+32]),
		Owner:           types.PubkeyFromBytes(data[offsetOwner : offsetOwner+32]),
		Amount:          binary.LittleEndian.Uint64(data[offsetAmount:]),
		DelegatedAmount: binary.LittleEndian.Uint64(data[offsetDelegatedAmount:]),
	}

	var err error
	if r.Delegate, err = readOptionPubkey(data[offsetDelegateTag:], "delegate"); err != nil {
		return nil, err
	}
	if r.CloseAuthority, err = readOptionPubkey(data[offsetCloseTag:], "close_authority"); err != nil {
		return nil, err
	}

	switch tag := binary.LittleEndian.Uint32(data[offsetIsNativeTag:]); tag {
	case tagNone:
	case tagSome:
		v := binary.LittleEndian.Uint64(data[offsetIsNative:])
		r.IsNative = &v
	default:
		return nil, fmt.Errorf("%w: is_native tag %d", core.ErrMalformedRecord, tag)
	}

	switch state := core.AccountState(data[offsetState]); state {
	case core.StateInitialized, core.StateFrozen:
		r.State = state
	default:
		return nil, fmt.Errorf("%w: state byte %d", core.ErrInvalidState, state)
	}

	rest := data[FixedSize:]
	if len(rest) > 1 && rest[0] == ExtensionMarker {
		if r.Extensions, err = c.registry.Decode(rest[1:]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func putOptionPubkey(dst []byte, v *types.Pubkey) {
	if v == nil {
		// None：标签 0，值区保持全 0
		return
	}
	binary.LittleEndian.PutUint32(dst, tagSome)
	copy(dst[4:36], v[:])
}

func readOptionPubkey(src []byte, field string) (*types.Pubkey, error) {
	switch tag := binary.LittleEndian.Uint32(src); tag {
	case tagNone:
		return nil, nil
	case tagSome:
		v := types.PubkeyFromBytes(src[4:36])
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: %s tag %d", core.ErrMalformedRecord, field, tag)
	}
}
