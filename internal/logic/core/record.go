package core

import (
	"ctoken-engine-sol/internal/types"
)

// AccountState 账户状态，取值与 SPL Token 账户布局一致
type AccountState uint8

const (
	StateUninitialized AccountState = 0 // 仅出现在未初始化的原生账户，压缩记录不允许
	StateInitialized   AccountState = 1
	StateFrozen        AccountState = 2
)

func (s AccountState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateFrozen:
		return "frozen"
	default:
		return "uninitialized"
	}
}

// ExtensionType 扩展类型标签
type ExtensionType uint8

// ExtensionEntry 记录上携带的单个扩展，Payload 对引擎不透明
type ExtensionEntry struct {
	Type    ExtensionType
	Payload []byte
}

// TokenRecord 压缩 token 记录，作为 Merkle 叶子的原像
type TokenRecord struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        *types.Pubkey
	DelegatedAmount uint64
	State           AccountState
	IsNative        *uint64
	CloseAuthority  *types.Pubkey
	Extensions      []ExtensionEntry // nil 表示没有扩展块
}

func (r *TokenRecord) IsFrozen() bool {
	return r.State == StateFrozen
}

func (r *TokenRecord) HasDelegate() bool {
	return r.Delegate != nil
}

// Clone 深拷贝，避免输出记录与输入共享指针字段
func (r *TokenRecord) Clone() TokenRecord {
	out := *r
	if r.Delegate != nil {
		d := *r.Delegate
		out.Delegate = &d
	}
	if r.IsNative != nil {
		n := *r.IsNative
		out.IsNative = &n
	}
	if r.CloseAuthority != nil {
		c := *r.CloseAuthority
		out.CloseAuthority = &c
	}
	if r.Extensions != nil {
		out.Extensions = make([]ExtensionEntry, len(r.Extensions))
		for i, e := range r.Extensions {
			out.Extensions[i] = ExtensionEntry{Type: e.Type, Payload: append([]byte(nil), e.Payload...)}
		}
	}
	return out
}

// TreeVersion Merkle 树版本
type TreeVersion uint8

const (
	TreeVersionV1 TreeVersion = 1 // 并发稀疏树，必须携带 root index
	TreeVersionV2 TreeVersion = 2 // 批量树，允许 prove_by_index
)

func (v TreeVersion) String() string {
	switch v {
	case TreeVersionV1:
		return "v1"
	case TreeVersionV2:
		return "v2"
	default:
		return "unknown"
	}
}

// MerkleContext 输入记录在树中的位置，由 Ledger Service 解释
type MerkleContext struct {
	TreeID       types.Pubkey
	QueueID      types.Pubkey
	LeafIndex    uint32
	ProveByIndex bool
	TreeVersion  TreeVersion
}

// ValidityProof 有效性证明，RootIndices 与输入一一对应，nil 表示按 index 证明
type ValidityProof struct {
	Proof       []byte
	RootIndices []*uint16
}

// TreeInfo 输出叶子写入的目标树
type TreeInfo struct {
	TreeID  types.Pubkey
	QueueID types.Pubkey
}
