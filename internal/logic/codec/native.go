package codec

import (
	"fmt"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
	sdktoken "github.com/blocto/solana-go-sdk/program/token"
)

// ToNativeAccount 将压缩记录的定长部分按 SPL token 账户解析（解压时原样复用字节）
func (c *Codec) ToNativeAccount(r *core.TokenRecord) (sdktoken.TokenAccount, error) {
	data, err := c.Encode(r)
	if err != nil {
		return sdktoken.TokenAccount{}, err
	}
	account, err := sdktoken.TokenAccountFromData(data[:FixedSize])
	if err != nil {
		return sdktoken.TokenAccount{}, fmt.Errorf("%w: native layout: %v", core.ErrMalformedRecord, err)
	}
	return account, nil
}

// FromNativeAccount 将 SPL token 账户转换为压缩记录（不带扩展）
func FromNativeAccount(a sdktoken.TokenAccount) (*core.TokenRecord, error) {
	r := &core.TokenRecord{
		Mint:            types.PubkeyFromPublicKey(a.Mint),
		Owner:           types.PubkeyFromPublicKey(a.Owner),
		Amount:          a.Amount,
		DelegatedAmount: a.DelegatedAmount,
		Delegate:        optionalPubkey(a.Delegate),
		CloseAuthority:  optionalPubkey(a.CloseAuthority),
	}
	switch a.State {
	case sdktoken.TokenAccountStateInitialized:
		r.State = core.StateInitialized
	case sdktoken.TokenAccountFrozen:
		r.State = core.StateFrozen
	default:
		return nil, fmt.Errorf("%w: native state %d", core.ErrInvalidState, a.State)
	}
	if a.IsNative != nil {
		v := *a.IsNative
		r.IsNative = &v
	}
	return r, nil
}

func optionalPubkey(pk *common.PublicKey) *types.Pubkey {
	if pk == nil {
		return nil
	}
	v := types.PubkeyFromPublicKey(*pk)
	return &v
}
