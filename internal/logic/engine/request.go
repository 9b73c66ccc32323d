package engine

import (
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"
)

// InputRecord 调用方声明的输入：编码后的记录 + 在树中的位置
type InputRecord struct {
	Data    []byte
	Context core.MerkleContext
}

// OutputSpec 调用方指定的输出（transfer / compress / decompress）
type OutputSpec struct {
	Owner      types.Pubkey
	Amount     uint64
	Tree       *core.TreeInfo // nil 时使用 TransitionRequest.OutputTree
	Extensions []core.ExtensionEntry
}

// PoolRef 资金池账户及其声明的 index
type PoolRef struct {
	Address types.Pubkey
	Index   uint8
}

// NativeLeg 原生侧参数
type NativeLeg struct {
	Amount          uint64       // compress / decompress 金额
	Pool            PoolRef      // 主资金池
	ExtraPools      []PoolRef    // 解压 / 销毁时按顺序继续扣减的资金池
	Account         types.Pubkey // compress: 来源 token 账户；decompress: 接收 token 账户
	RemainingAmount *uint64      // compress_account: 来源账户保留的余额
}

// TransitionRequest 状态转换请求
type TransitionRequest struct {
	ID         string
	Kind       core.TransitionKind
	Mint       types.Pubkey
	Signer     types.Pubkey
	Inputs     []InputRecord
	Outputs    []OutputSpec
	Proof      core.ValidityProof
	OutputTree core.TreeInfo

	// 委托路径
	IsDelegate          bool
	DelegateChangeIndex *uint8 // 保留 delegate 的输出下标（transfer）；委托 burn 必填

	Native *NativeLeg

	// approve
	Delegate        types.Pubkey
	DelegatedAmount uint64

	// burn
	BurnAmount uint64

	// mint_to / batch_compress
	Recipients []types.Pubkey
	Amounts    []uint64
	Amount     *uint64 // batch_compress：所有接收方使用同一金额
}

// TransitionResult 转换结果
type TransitionResult struct {
	RequestID          string
	Kind               core.TransitionKind
	NewRecords         []core.TokenRecord
	NullifiedPositions []core.MerkleContext
	NewPositions       []core.MerkleContext
	NativeDeltas       []core.NativeDelta
	SupplyDelta        int64
	Receipt            *core.CommitReceipt
}
