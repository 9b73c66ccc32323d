package types

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/mr-tron/base58"
)

const PubkeySize = 32

type Pubkey [PubkeySize]byte

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Equals(other Pubkey) bool {
	return p == other
}

// IsZero 判断是否为全 0 地址（编码中 None 的占位值）
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// ToPublicKey 转换为 solana-go-sdk 的 PublicKey，用于 PDA 推导
func (p Pubkey) ToPublicKey() common.PublicKey {
	return common.PublicKeyFromBytes(p[:])
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	v, err := TryPubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// PubkeyFromPublicKey 从 solana-go-sdk 的 PublicKey 转换
func PubkeyFromPublicKey(pk common.PublicKey) Pubkey {
	var p Pubkey
	copy(p[:], pk.Bytes())
	return p
}

// PubkeyFromBytes 长度不足 32 时左对齐补 0，超出部分截断
func PubkeyFromBytes(b []byte) Pubkey {
	var p Pubkey
	copy(p[:], b)
	return p
}

// TryPubkeyFromBase58 解析 base58 字符串为 Pubkey，失败时返回 error（用于不信任输入路径）
func TryPubkeyFromBase58(s string) (Pubkey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode base58 pubkey %q: %w", s, err)
	}
	if len(data) != PubkeySize {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want 32, input=%q", len(data), s)
	}
	var p Pubkey
	copy(p[:], data)
	return p, nil
}

func PubkeyFromBase58(s string) Pubkey {
	p, err := TryPubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}
