package consts

import (
	"ctoken-engine-sol/internal/types"
)

// 公钥形式的地址常量（types.Pubkey），用于 PDA 推导
var (
	CompressedTokenProgram types.Pubkey
)

// init 自动将 base58 字符串地址转换为 types.Pubkey
func init() {
	CompressedTokenProgram = types.PubkeyFromBase58(CompressedTokenProgramStr)
}
