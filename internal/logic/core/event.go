package core

import (
	"ctoken-engine-sol/internal/types"
)

// 事件类型，写在 Kafka 消息的前 4 字节
const (
	EventTypeTransition uint32 = 1
	EventTypeBalance    uint32 = 2
)

const EventVersion uint8 = 1

// LeafPosition 被作废的叶子
type LeafPosition struct {
	Tree      types.Pubkey
	LeafIndex uint32
}

// CreatedLeaf 新写入的叶子及其关键字段
type CreatedLeaf struct {
	Tree            types.Pubkey
	LeafIndex       uint32
	Owner           types.Pubkey
	Amount          uint64
	HasDelegate     bool
	Delegate        types.Pubkey
	DelegatedAmount uint64
	Frozen          bool
}

// TransitionEvent 一次已提交的状态转换
type TransitionEvent struct {
	RequestID   string
	Kind        uint8
	Mint        types.Pubkey
	Signer      types.Pubkey
	Sequence    uint64 // Ledger 提交序号
	Nullified   []LeafPosition
	Created     []CreatedLeaf
	Roots       []types.Hash
	SupplyDelta int64
	Timestamp   int64 // Unix 毫秒
}

// BalanceEvent 原生 token 账户余额变动（资金池、来源 / 接收账户）
type BalanceEvent struct {
	RequestID string
	Sequence  uint64
	Mint      types.Pubkey
	Account   types.Pubkey
	Credit    uint64
	Debit     uint64
}

// TransitionEvents 同一分区内的一批转换事件
type TransitionEvents struct {
	Version uint8
	ChainID uint32
	Events  []TransitionEvent
}

// BalanceEvents 同一分区内的一批余额事件
type BalanceEvents struct {
	Version uint8
	ChainID uint32
	Events  []BalanceEvent
}
