package engine

import (
	"bytes"
	"context"
	"fmt"

	"ctoken-engine-sol/internal/logic/conservation"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"
)

// buildPlan 按类型组装输出记录，并给出守恒校验所需的原生侧金额
func (e *Engine) buildPlan(ctx context.Context, req *TransitionRequest, inputs []core.TokenRecord) (*plan, error) {
	p := &plan{}

	switch req.Kind {
	case core.KindTransfer, core.KindCompress, core.KindDecompress:
		p.outputs, p.callerAmounts = callerOutputs(req)
		switch req.Kind {
		case core.KindCompress:
			p.isCompress = true
			p.compress = req.Native.Amount
		case core.KindDecompress:
			p.decompress = req.Native.Amount
		}

	case core.KindMintTo, core.KindBatchCompress:
		amounts := req.Amounts
		if len(amounts) == 0 {
			// batch_compress 单一金额
			amounts = make([]uint64, len(req.Recipients))
			for i := range amounts {
				amounts[i] = *req.Amount
			}
		}
		total, err := conservation.MintTotal(amounts)
		if err != nil {
			return nil, err
		}
		for i, recipient := range req.Recipients {
			p.outputs = append(p.outputs, outputRecord{
				record: newRecord(req.Mint, recipient, amounts[i]),
				tree:   req.OutputTree,
			})
		}
		p.callerAmounts = amounts
		p.isCompress = true
		p.compress = total

	case core.KindBurn:
		remainder, err := conservation.BurnRemainder(inputs, req.BurnAmount)
		if err != nil {
			return nil, err
		}
		owner, err := commonOwner(inputs)
		if err != nil {
			return nil, err
		}
		if remainder > 0 {
			change := newRecord(req.Mint, owner, remainder)
			change.Extensions = carryExtensions(inputs)
			if req.IsDelegate {
				d := req.Signer
				change.Delegate = &d
				change.DelegatedAmount = remainder
			}
			p.outputs = append(p.outputs, outputRecord{record: change, tree: req.OutputTree})
		}
		p.decompress = req.BurnAmount

	case core.KindApprove:
		sum, err := conservation.SumAmounts(inputs)
		if err != nil {
			return nil, err
		}
		// 已有授权被新的授权覆盖
		approved := newRecord(req.Mint, req.Signer, req.DelegatedAmount)
		d := req.Delegate
		approved.Delegate = &d
		approved.DelegatedAmount = req.DelegatedAmount
		approved.Extensions = carryExtensions(inputs)
		p.outputs = append(p.outputs, outputRecord{record: approved, tree: req.OutputTree})

		if change := sum - req.DelegatedAmount; change > 0 {
			rec := newRecord(req.Mint, req.Signer, change)
			rec.Extensions = carryExtensions(inputs)
			p.outputs = append(p.outputs, outputRecord{record: rec, tree: req.OutputTree})
		}

	case core.KindRevoke:
		sum, err := conservation.SumAmounts(inputs)
		if err != nil {
			return nil, err
		}
		merged := newRecord(req.Mint, req.Signer, sum)
		merged.Extensions = carryExtensions(inputs)
		p.outputs = append(p.outputs, outputRecord{record: merged, tree: req.OutputTree})

	case core.KindFreeze, core.KindThaw:
		target := core.StateFrozen
		if req.Kind == core.KindThaw {
			target = core.StateInitialized
		}
		for i := range inputs {
			rec := inputs[i].Clone()
			rec.State = target
			p.outputs = append(p.outputs, outputRecord{record: rec, tree: req.OutputTree})
		}

	case core.KindCompressAccount:
		balance, err := e.accounts.TokenBalance(ctx, req.Native.Account)
		if err != nil {
			return nil, fmt.Errorf("read token account %s: %w", req.Native.Account, err)
		}
		var remaining uint64
		if req.Native.RemainingAmount != nil {
			remaining = *req.Native.RemainingAmount
		}
		if remaining > balance {
			return nil, fmt.Errorf("%w: remaining %d > balance %d", core.ErrInsufficientTokenAccountBalance, remaining, balance)
		}
		amount := balance - remaining
		p.outputs = append(p.outputs, outputRecord{
			record: newRecord(req.Mint, req.Recipients[0], amount),
			tree:   req.OutputTree,
		})
		p.callerAmounts = []uint64{amount}
		p.isCompress = true
		p.compress = amount

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTransition, req.Kind)
	}

	return p, nil
}

func newRecord(mint, owner types.Pubkey, amount uint64) core.TokenRecord {
	return core.TokenRecord{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  core.StateInitialized,
	}
}

// callerOutputs 调用方指定的输出；委托转账时 DelegateChangeIndex 指向的输出保留 delegate
func callerOutputs(req *TransitionRequest) ([]outputRecord, []uint64) {
	outputs := make([]outputRecord, 0, len(req.Outputs))
	amounts := make([]uint64, 0, len(req.Outputs))
	for i, o := range req.Outputs {
		rec := newRecord(req.Mint, o.Owner, o.Amount)
		rec.Extensions = o.Extensions
		if req.IsDelegate && req.DelegateChangeIndex != nil && int(*req.DelegateChangeIndex) == i {
			d := req.Signer
			rec.Delegate = &d
			rec.DelegatedAmount = o.Amount
		}
		tree := req.OutputTree
		if o.Tree != nil {
			tree = *o.Tree
		}
		outputs = append(outputs, outputRecord{record: rec, tree: tree})
		amounts = append(amounts, o.Amount)
	}
	return outputs, amounts
}

// commonOwner 找零输出的 owner，所有输入必须属于同一 owner
func commonOwner(inputs []core.TokenRecord) (types.Pubkey, error) {
	owner := inputs[0].Owner
	for i := 1; i < len(inputs); i++ {
		if inputs[i].Owner != owner {
			return types.Pubkey{}, fmt.Errorf("%w: inputs belong to different owners", core.ErrInvalidRequest)
		}
	}
	return owner, nil
}

// carryExtensions 所有输入扩展完全一致时沿用，否则丢弃
func carryExtensions(inputs []core.TokenRecord) []core.ExtensionEntry {
	if len(inputs) == 0 || inputs[0].Extensions == nil {
		return nil
	}
	first := inputs[0].Extensions
	for i := 1; i < len(inputs); i++ {
		if !sameExtensions(first, inputs[i].Extensions) {
			return nil
		}
	}
	out := make([]core.ExtensionEntry, len(first))
	for i, e := range first {
		out[i] = core.ExtensionEntry{Type: e.Type, Payload: append([]byte(nil), e.Payload...)}
	}
	return out
}

func sameExtensions(a, b []core.ExtensionEntry) bool {
	if len(a) != len(b) || (a == nil) != (b == nil) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || !bytes.Equal(a[i].Payload, b[i].Payload) {
			return false
		}
	}
	return true
}
