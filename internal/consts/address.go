package consts

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	CompressedTokenProgramStr = "cTokenmWW8bLPjZEBAUgYy3zKxQZW6VKi7bqNFEVv3m"
)
