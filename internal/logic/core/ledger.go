package core

import (
	"context"

	"ctoken-engine-sol/internal/types"
)

// NullifiedInput 待作废的输入叶子
type NullifiedInput struct {
	Context   MerkleContext
	LeafHash  types.Hash // 引擎按请求重新计算的叶子承诺
	RootIndex *uint16    // nil 表示按 index 证明
}

// NewLeaf 待插入的新叶子
type NewLeaf struct {
	Tree   TreeInfo
	Hash   types.Hash
	Data   []byte // 编码后的记录，Ledger 作为叶子原像保存
	Record TokenRecord
}

// NativeDelta 原生 token 账户余额变动，同一账户可以同时出现 Credit 与 Debit
type NativeDelta struct {
	Account       types.Pubkey
	Credit        uint64
	Debit         uint64
	DelegateDebit bool // 由 delegate 签名扣款，Ledger 同时扣减授权额度
}

// CommitRequest 一次原子提交：作废输入 + 插入输出 + 原生侧余额变动
type CommitRequest struct {
	RequestID    string
	Mint         types.Pubkey
	Inputs       []NullifiedInput
	Proof        []byte
	NewLeaves    []NewLeaf
	NativeDeltas []NativeDelta
	SupplyDelta  int64 // 原生 mint 供应量变化（mint_to 为正，burn 为负）
}

// CommitReceipt 提交结果
type CommitReceipt struct {
	Sequence           uint64          // Ledger 内单调递增的提交序号
	NullifiedPositions []MerkleContext // 与 CommitRequest.Inputs 顺序一致
	NewPositions       []MerkleContext // 与 CommitRequest.NewLeaves 顺序一致
	Roots              []types.Hash    // 每棵被修改的树提交后的根
}

// LedgerService 持有 Merkle 树、nullifier 队列并负责证明校验
type LedgerService interface {
	VerifyAndCommit(ctx context.Context, req *CommitRequest) (*CommitReceipt, error)
}

// MintInfo mint 元数据（只读）
type MintInfo struct {
	Mint            types.Pubkey
	MintAuthority   *types.Pubkey
	FreezeAuthority *types.Pubkey
	Decimals        uint8
	Supply          uint64
}

// MintMetadataProvider 提供 mint 元数据
type MintMetadataProvider interface {
	MintInfo(ctx context.Context, mint types.Pubkey) (*MintInfo, error)
}

// NativeAccount 原生 token 账户的权限信息
type NativeAccount struct {
	Owner           types.Pubkey
	Delegate        *types.Pubkey
	DelegatedAmount uint64
}

// AccountReader 读取原生 token 账户（资金池 / 来源账户）与资金池登记
type AccountReader interface {
	TokenBalance(ctx context.Context, account types.Pubkey) (uint64, error)
	// TokenAccount 账户没有登记 owner 时返回 nil
	TokenAccount(ctx context.Context, account types.Pubkey) (*NativeAccount, error)
	// PoolCount 已创建的资金池数量，index 从 0 连续分配
	PoolCount(ctx context.Context, mint types.Pubkey) (uint8, error)
}
