package consts

const (
	ChainIDSolana uint32 = 100000
)

// 资金池（token pool）相关常量
const (
	NumMaxPoolAccounts uint8  = 5      // 每个 mint 最多 5 个资金池
	PoolSeed           string = "pool" // 资金池 PDA 种子前缀
)

// Merkle 树默认参数
const (
	DefaultTreeHeight    = 26
	DefaultRootHistoryV1 = 2400
	DefaultRootHistoryV2 = 200
)

// TokenAccountSize SPL token 账户（无扩展）字节数，与压缩记录的定长部分一致
const TokenAccountSize = 165
