package engine

import (
	"context"
	"fmt"

	"ctoken-engine-sol/internal/logic/authorization"
	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/commitment"
	"ctoken-engine-sol/internal/logic/conservation"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/extension"
	"ctoken-engine-sol/internal/logic/pool"
	"ctoken-engine-sol/internal/pkg/logger"
)

// Deps 引擎依赖，Pools / Registry 为 nil 时使用默认值
type Deps struct {
	Ledger   core.LedgerService
	Mints    core.MintMetadataProvider
	Accounts core.AccountReader
	Pools    *pool.Resolver
	Registry *extension.Registry
}

// Engine 压缩 token 状态转换引擎。
// 在唯一一次 Ledger 提交之前不产生任何副作用，可以安全重试。
type Engine struct {
	codec    *codec.Codec
	pools    *pool.Resolver
	ledger   core.LedgerService
	mints    core.MintMetadataProvider
	accounts core.AccountReader
}

func New(d Deps) *Engine {
	pools := d.Pools
	if pools == nil {
		pools = pool.NewDefaultResolver()
	}
	return &Engine{
		codec:    codec.New(d.Registry),
		pools:    pools,
		ledger:   d.Ledger,
		mints:    d.Mints,
		accounts: d.Accounts,
	}
}

func (e *Engine) Pools() *pool.Resolver {
	return e.pools
}

// Registry 引擎使用的扩展注册表
func (e *Engine) Registry() *extension.Registry {
	return e.codec.Registry()
}

// outputRecord 待写入的输出记录及目标树
type outputRecord struct {
	record core.TokenRecord
	tree   core.TreeInfo
}

// plan 校验通过后待提交的内容
type plan struct {
	outputs       []outputRecord
	callerAmounts []uint64 // 调用方指定的输出金额，参与 0 金额检查
	compress      uint64
	decompress    uint64
	isCompress    bool
	deltas        []core.NativeDelta
	supplyDelta   int64
}

func (p *plan) records() []core.TokenRecord {
	out := make([]core.TokenRecord, len(p.outputs))
	for i := range p.outputs {
		out[i] = p.outputs[i].record
	}
	return out
}

// Execute 执行一次状态转换：
// 解码输入 → 授权 → 守恒 → 资金池校验 → 编码输出 → 一次 Ledger 提交
func (e *Engine) Execute(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", core.ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownTransition, req.Kind)
	}

	// 1. 请求结构（batch_compress 的长度不一致必须先于守恒校验报出）
	if err := checkShape(req); err != nil {
		return nil, err
	}

	// 2. 解码输入
	inputs, err := e.decodeInputs(req)
	if err != nil {
		return nil, err
	}

	// 3. 授权
	params := authorization.Params{
		IsDelegate:      req.IsDelegate,
		DelegatedAmount: req.DelegatedAmount,
	}
	if needsMintInfo(req.Kind) {
		info, err := e.mints.MintInfo(ctx, req.Mint)
		if err != nil {
			return nil, fmt.Errorf("load mint %s: %w", req.Mint, err)
		}
		params.Mint = info
	}
	if err := authorization.Check(req.Kind, req.Signer, inputs, params); err != nil {
		return nil, err
	}

	// 4. 组装输出
	p, err := e.buildPlan(ctx, req, inputs)
	if err != nil {
		return nil, err
	}

	// 5. 守恒
	if err := conservation.RejectZeroOutputs(req.Kind, p.callerAmounts); err != nil {
		return nil, err
	}
	if err := conservation.Check(inputs, p.records(), p.compress, p.decompress, p.isCompress); err != nil {
		return nil, err
	}

	// 6. 原生侧：资金池校验与余额变动
	if req.Kind.TouchesNative() {
		if err := e.planNative(ctx, req, p); err != nil {
			return nil, err
		}
	}

	// 7. 编码并提交
	commit, err := e.buildCommit(req, inputs, p)
	if err != nil {
		return nil, err
	}
	receipt, err := e.ledger.VerifyAndCommit(ctx, commit)
	if err != nil {
		logger.Debugf("[Engine::%s] req=%s: ledger rejected: %v", req.Kind, req.ID, err)
		return nil, err
	}

	logger.Debugf("[Engine::%s] req=%s: committed seq=%d inputs=%d outputs=%d",
		req.Kind, req.ID, receipt.Sequence, len(inputs), len(p.outputs))

	return &TransitionResult{
		RequestID:          req.ID,
		Kind:               req.Kind,
		NewRecords:         p.records(),
		NullifiedPositions: receipt.NullifiedPositions,
		NewPositions:       receipt.NewPositions,
		NativeDeltas:       p.deltas,
		SupplyDelta:        p.supplyDelta,
		Receipt:            receipt,
	}, nil
}

func needsMintInfo(kind core.TransitionKind) bool {
	switch kind {
	case core.KindFreeze, core.KindThaw, core.KindMintTo:
		return true
	default:
		return false
	}
}

// checkShape 校验请求结构，不读取任何状态
func checkShape(req *TransitionRequest) error {
	switch req.Kind {
	case core.KindTransfer:
		if req.Native != nil {
			return fmt.Errorf("%w: transfer does not take a native leg", core.ErrInvalidRequest)
		}
		if len(req.Inputs) == 0 {
			return core.ErrNoInputTokenAccountsProvided
		}

	case core.KindCompress:
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}

	case core.KindDecompress:
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}
		if len(req.Inputs) == 0 {
			return core.ErrNoInputTokenAccountsProvided
		}

	case core.KindMintTo:
		if len(req.Inputs) > 0 || req.Amount != nil {
			return fmt.Errorf("%w: mint_to takes only recipients and amounts", core.ErrInvalidRequest)
		}
		if len(req.Recipients) == 0 {
			return core.ErrNoInputsProvided
		}
		if len(req.Amounts) != len(req.Recipients) {
			return fmt.Errorf("%w: %d recipients, %d amounts", core.ErrPublicKeyAmountMissmatch, len(req.Recipients), len(req.Amounts))
		}
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}

	case core.KindBatchCompress:
		if len(req.Inputs) > 0 {
			return fmt.Errorf("%w: batch_compress takes no compressed inputs", core.ErrInvalidRequest)
		}
		if len(req.Recipients) == 0 {
			return core.ErrNoInputsProvided
		}
		if len(req.Amounts) > 0 && req.Amount != nil {
			return core.ErrAmountsAndAmountProvided
		}
		if len(req.Amounts) == 0 && req.Amount == nil {
			return core.ErrNoAmount
		}
		if len(req.Amounts) > 0 && len(req.Amounts) != len(req.Recipients) {
			return fmt.Errorf("%w: %d recipients, %d amounts", core.ErrPublicKeyAmountMissmatch, len(req.Recipients), len(req.Amounts))
		}
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}

	case core.KindBurn:
		if len(req.Inputs) == 0 {
			return core.ErrNoInputTokenAccountsProvided
		}
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}
		if req.IsDelegate && req.DelegateChangeIndex == nil {
			return fmt.Errorf("%w: delegated burn requires a change index", core.ErrInvalidDelegateIndex)
		}

	case core.KindApprove, core.KindRevoke, core.KindFreeze, core.KindThaw:
		if len(req.Inputs) == 0 {
			return core.ErrNoInputTokenAccountsProvided
		}
		if req.Native != nil || req.IsDelegate {
			return fmt.Errorf("%w: %s takes neither a native leg nor the delegate path", core.ErrInvalidRequest, req.Kind)
		}

	case core.KindCompressAccount:
		if len(req.Inputs) > 0 {
			return fmt.Errorf("%w: compress_account takes no compressed inputs", core.ErrInvalidRequest)
		}
		if len(req.Recipients) != 1 {
			return fmt.Errorf("%w: compress_account takes exactly one owner", core.ErrInvalidRequest)
		}
		if req.Native == nil {
			return core.ErrTokenPoolPdaUndefined
		}
	}

	if req.IsDelegate && req.DelegateChangeIndex != nil && req.Kind != core.KindBurn &&
		int(*req.DelegateChangeIndex) >= len(req.Outputs) {
		return fmt.Errorf("%w: %d >= %d outputs", core.ErrInvalidDelegateIndex, *req.DelegateChangeIndex, len(req.Outputs))
	}
	return nil
}

// decodeInputs 解码输入。mint 取请求中的 mint、state 取该类型期望的状态，
// 与已提交叶子不一致的声明会在 Ledger 校验叶子承诺时失败。
func (e *Engine) decodeInputs(req *TransitionRequest) ([]core.TokenRecord, error) {
	if n := len(req.Proof.RootIndices); n != 0 && n != len(req.Inputs) {
		return nil, fmt.Errorf("%w: %d root indices for %d inputs", core.ErrInvalidRequest, n, len(req.Inputs))
	}
	expected := req.Kind.ExpectedInputState()
	out := make([]core.TokenRecord, 0, len(req.Inputs))
	for i, in := range req.Inputs {
		r, err := e.codec.Decode(in.Data)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		r.Mint = req.Mint
		r.State = expected
		out = append(out, *r)
	}
	return out, nil
}

// buildCommit 计算输入 / 输出叶子承诺，组装 Ledger 提交请求
func (e *Engine) buildCommit(req *TransitionRequest, inputs []core.TokenRecord, p *plan) (*core.CommitRequest, error) {
	commit := &core.CommitRequest{
		RequestID:    req.ID,
		Mint:         req.Mint,
		Inputs:       make([]core.NullifiedInput, 0, len(inputs)),
		Proof:        req.Proof.Proof,
		NewLeaves:    make([]core.NewLeaf, 0, len(p.outputs)),
		NativeDeltas: p.deltas,
		SupplyDelta:  p.supplyDelta,
	}

	for i := range inputs {
		data, err := e.codec.Encode(&inputs[i])
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		var rootIndex *uint16
		if len(req.Proof.RootIndices) > 0 {
			rootIndex = req.Proof.RootIndices[i]
		}
		commit.Inputs = append(commit.Inputs, core.NullifiedInput{
			Context:   req.Inputs[i].Context,
			LeafHash:  commitment.LeafHash(data),
			RootIndex: rootIndex,
		})
	}

	for i := range p.outputs {
		out := &p.outputs[i]
		if out.record.Delegate == nil && out.record.DelegatedAmount != 0 {
			return nil, fmt.Errorf("%w: output %d has delegated amount without delegate", core.ErrInvalidRequest, i)
		}
		data, err := e.codec.Encode(&out.record)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		commit.NewLeaves = append(commit.NewLeaves, core.NewLeaf{
			Tree:   out.tree,
			Hash:   commitment.LeafHash(data),
			Data:   data,
			Record: out.record,
		})
	}
	return commit, nil
}
