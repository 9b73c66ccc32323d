package dispatcher

import (
	"time"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/types"
	"ctoken-engine-sol/internal/utils"
)

// BuildTransitionEvent 将已提交的转换结果转为事件
func BuildTransitionEvent(req *engine.TransitionRequest, res *engine.TransitionResult, now time.Time) core.TransitionEvent {
	evt := core.TransitionEvent{
		RequestID:   res.RequestID,
		Kind:        uint8(res.Kind),
		Mint:        req.Mint,
		Signer:      req.Signer,
		Nullified:   make([]core.LeafPosition, 0, len(res.NullifiedPositions)),
		Created:     make([]core.CreatedLeaf, 0, len(res.NewRecords)),
		SupplyDelta: res.SupplyDelta,
		Timestamp:   now.UnixMilli(),
	}
	if res.Receipt != nil {
		evt.Sequence = res.Receipt.Sequence
		evt.Roots = res.Receipt.Roots
	}
	for _, pos := range res.NullifiedPositions {
		evt.Nullified = append(evt.Nullified, core.LeafPosition{Tree: pos.TreeID, LeafIndex: pos.LeafIndex})
	}
	for i, r := range res.NewRecords {
		leaf := core.CreatedLeaf{
			Owner:           r.Owner,
			Amount:          r.Amount,
			DelegatedAmount: r.DelegatedAmount,
			Frozen:          r.IsFrozen(),
		}
		if i < len(res.NewPositions) {
			leaf.Tree = res.NewPositions[i].TreeID
			leaf.LeafIndex = res.NewPositions[i].LeafIndex
		}
		if r.Delegate != nil {
			leaf.HasDelegate = true
			leaf.Delegate = *r.Delegate
		}
		evt.Created = append(evt.Created, leaf)
	}
	return evt
}

// BuildBalanceEvents 原生侧每个账户一条余额事件
func BuildBalanceEvents(req *engine.TransitionRequest, res *engine.TransitionResult) []core.BalanceEvent {
	if len(res.NativeDeltas) == 0 {
		return nil
	}
	var seq uint64
	if res.Receipt != nil {
		seq = res.Receipt.Sequence
	}
	out := make([]core.BalanceEvent, 0, len(res.NativeDeltas))
	for _, d := range res.NativeDeltas {
		out = append(out, core.BalanceEvent{
			RequestID: res.RequestID,
			Sequence:  seq,
			Mint:      req.Mint,
			Account:   d.Account,
			Credit:    d.Credit,
			Debit:     d.Debit,
		})
	}
	return out
}

// bucketize 按 key 分配到各分区
func bucketize[T any](items []T, partitions int, keyOf func(*T) types.Pubkey) [][]T {
	if partitions <= 0 {
		partitions = 1
	}
	capacity := utils.CalcCapPerPartition(len(items), partitions, 4)
	buckets := make([][]T, partitions)
	for i := range buckets {
		buckets[i] = make([]T, 0, capacity)
	}
	for i := range items {
		pid := utils.PartitionOf(keyOf(&items[i]), partitions)
		buckets[pid] = append(buckets[pid], items[i])
	}
	return buckets
}
