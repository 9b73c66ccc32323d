package types

import (
	"encoding/hex"

	"github.com/mr-tron/base58"
)

// Hash 表示 32 字节的叶子承诺 / Merkle 根 / nullifier
type Hash [32]byte

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Equals(other Hash) bool {
	return h == other
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}
