package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/commitment"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/types"
)

var ErrTreeExists = errors.New("tree already exists")

// Ledger 参考实现：Merkle 树 + nullifier 集合 + 原生余额 + mint 元数据。
// 证明字节不做密码学校验，只对声明做结构校验。
type Ledger struct {
	store Store
	codec *codec.Codec
}

type Option func(*Ledger)

// WithCodec 指定叶子原像的编解码器，应与引擎共用同一个扩展注册表
func WithCodec(c *codec.Codec) Option {
	return func(l *Ledger) {
		l.codec = c
	}
}

var (
	_ core.LedgerService        = (*Ledger)(nil)
	_ core.MintMetadataProvider = (*Ledger)(nil)
	_ core.AccountReader        = (*Ledger)(nil)
)

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	if l.codec == nil {
		l.codec = codec.New(nil)
	}
	return l
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

// CreateTree 初始化一棵空树
func (l *Ledger) CreateTree(ctx context.Context, cfg TreeConfig) (*TreeState, error) {
	t, err := newTreeState(cfg)
	if err != nil {
		return nil, err
	}
	err = l.store.Update(ctx, func(kv KV) error {
		_, exists, err := kv.Get(treeKey(cfg.ID))
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrTreeExists, cfg.ID)
		}
		return saveTree(kv, t)
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("[Ledger] tree created: id=%s queue=%s version=%d height=%d history=%d",
		cfg.ID, cfg.Queue, cfg.Version, cfg.Height, cfg.RootHistory)
	return t, nil
}

// RegisterMint 写入 mint 元数据，已存在时覆盖
func (l *Ledger) RegisterMint(ctx context.Context, info core.MintInfo) error {
	return l.store.Update(ctx, func(kv KV) error {
		return saveMint(kv, &info)
	})
}

// SetBalance 设置原生 token 账户余额，不改变 owner 登记
func (l *Ledger) SetBalance(ctx context.Context, account types.Pubkey, amount uint64) error {
	return l.store.Update(ctx, func(kv KV) error {
		return setUint(kv, balanceKey(account), amount)
	})
}

// SetTokenAccount 登记原生 token 账户的 owner / delegate 并设置余额
func (l *Ledger) SetTokenAccount(ctx context.Context, account types.Pubkey, info core.NativeAccount, amount uint64) error {
	return l.store.Update(ctx, func(kv KV) error {
		if err := saveAccount(kv, account, &info); err != nil {
			return err
		}
		return setUint(kv, balanceKey(account), amount)
	})
}

func (l *Ledger) TokenAccount(ctx context.Context, account types.Pubkey) (*core.NativeAccount, error) {
	var info *core.NativeAccount
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		info, err = loadAccount(kv, account)
		return err
	})
	return info, err
}

// AddTokenPool 为 mint 创建下一个资金池并返回其 index；mint 必须已注册
func (l *Ledger) AddTokenPool(ctx context.Context, mint types.Pubkey) (uint8, error) {
	var index uint8
	err := l.store.Update(ctx, func(kv KV) error {
		if _, err := loadMint(kv, mint); err != nil {
			return err
		}
		count, err := getUint(kv, poolCountKey(mint))
		if err != nil {
			return err
		}
		if count >= uint64(consts.NumMaxPoolAccounts) {
			return fmt.Errorf("%w: mint %s already has %d pools", core.ErrInvalidTokenPoolBump, mint, count)
		}
		index = uint8(count)
		return setUint(kv, poolCountKey(mint), count+1)
	})
	if err != nil {
		return 0, err
	}
	logger.Infof("[Ledger] token pool created: mint=%s index=%d", mint, index)
	return index, nil
}

// EnsurePools 补齐资金池直到数量不少于 n
func (l *Ledger) EnsurePools(ctx context.Context, mint types.Pubkey, n uint8) error {
	count, err := l.PoolCount(ctx, mint)
	if err != nil {
		return err
	}
	for ; count < n; count++ {
		if _, err := l.AddTokenPool(ctx, mint); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) PoolCount(ctx context.Context, mint types.Pubkey) (uint8, error) {
	var count uint64
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		count, err = getUint(kv, poolCountKey(mint))
		return err
	})
	return uint8(count), err
}

func (l *Ledger) MintInfo(ctx context.Context, mint types.Pubkey) (*core.MintInfo, error) {
	var info *core.MintInfo
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		info, err = loadMint(kv, mint)
		return err
	})
	return info, err
}

// TokenBalance 未出现过的账户余额为 0
func (l *Ledger) TokenBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	var balance uint64
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		balance, err = getUint(kv, balanceKey(account))
		return err
	})
	return balance, err
}

func (l *Ledger) Tree(ctx context.Context, id types.Pubkey) (*TreeState, error) {
	var t *TreeState
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		t, err = loadTree(kv, id)
		return err
	})
	return t, err
}

// Sequence 最近一次提交的序号
func (l *Ledger) Sequence(ctx context.Context) (uint64, error) {
	var seq uint64
	err := l.store.View(ctx, func(kv KV) error {
		var err error
		seq, err = getUint(kv, seqKey)
		return err
	})
	return seq, err
}

// Spendable 已提交且未作废的叶子，可直接作为下一次转换的输入
type Spendable struct {
	Context   core.MerkleContext
	RootIndex *uint16 // v2 树按 index 证明时为 nil
	Data      []byte
	Record    *core.TokenRecord
}

// Spendable 读取叶子并生成证明所需的位置声明
func (l *Ledger) Spendable(ctx context.Context, tree types.Pubkey, leafIndex uint32) (*Spendable, error) {
	var out *Spendable
	err := l.store.View(ctx, func(kv KV) error {
		t, err := loadTree(kv, tree)
		if err != nil {
			return err
		}
		leaf, ok, err := loadLeaf(kv, tree, uint64(leafIndex))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: leaf %d not in tree %s", core.ErrProofVerificationFailed, leafIndex, tree)
		}
		_, spent, err := kv.Get(nullifierKey(tree, commitment.NullifierHash(leaf.Hash, tree, leafIndex)))
		if err != nil {
			return err
		}
		if spent {
			return fmt.Errorf("%w: leaf %d in tree %s", core.ErrNullifierAlreadyExists, leafIndex, tree)
		}
		record, err := l.codec.Decode(leaf.Data)
		if err != nil {
			return err
		}
		out = &Spendable{
			Context: core.MerkleContext{
				TreeID:      tree,
				QueueID:     t.Queue,
				LeafIndex:   leafIndex,
				TreeVersion: t.TreeVersion(),
			},
			Data:   leaf.Data,
			Record: record,
		}
		if t.TreeVersion() == core.TreeVersionV2 {
			out.Context.ProveByIndex = true
		} else {
			idx := t.RootIndex()
			out.RootIndex = &idx
		}
		return nil
	})
	return out, err
}

// commitTxn 一次提交内被修改的树，按首次访问顺序保存
type commitTxn struct {
	kv    KV
	trees map[types.Pubkey]*TreeState
	order []types.Pubkey
}

func (c *commitTxn) tree(id types.Pubkey) (*TreeState, error) {
	if t, ok := c.trees[id]; ok {
		return t, nil
	}
	t, err := loadTree(c.kv, id)
	if err != nil {
		return nil, err
	}
	c.trees[id] = t
	c.order = append(c.order, id)
	return t, nil
}

// VerifyAndCommit 校验每个输入声明、写入 nullifier、追加新叶子、应用原生余额变动。
// 任一步失败时整个提交不生效。
func (l *Ledger) VerifyAndCommit(ctx context.Context, req *core.CommitRequest) (*core.CommitReceipt, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil commit", core.ErrInvalidRequest)
	}
	var receipt *core.CommitReceipt
	err := l.store.Update(ctx, func(kv KV) error {
		txn := &commitTxn{kv: kv, trees: make(map[types.Pubkey]*TreeState)}
		r := &core.CommitReceipt{
			NullifiedPositions: make([]core.MerkleContext, 0, len(req.Inputs)),
			NewPositions:       make([]core.MerkleContext, 0, len(req.NewLeaves)),
		}

		if err := l.nullifyInputs(txn, req); err != nil {
			return err
		}
		for _, in := range req.Inputs {
			r.NullifiedPositions = append(r.NullifiedPositions, in.Context)
		}

		for i := range req.NewLeaves {
			pos, err := l.appendLeaf(txn, &req.NewLeaves[i])
			if err != nil {
				return fmt.Errorf("new leaf %d: %w", i, err)
			}
			r.NewPositions = append(r.NewPositions, pos)
		}

		if err := applyDeltas(kv, req.NativeDeltas); err != nil {
			return err
		}
		if err := applySupply(kv, req.Mint, req.SupplyDelta); err != nil {
			return err
		}

		for _, id := range txn.order {
			t := txn.trees[id]
			if err := saveTree(kv, t); err != nil {
				return err
			}
			r.Roots = append(r.Roots, t.Root())
		}

		seq, err := getUint(kv, seqKey)
		if err != nil {
			return err
		}
		r.Sequence = seq + 1
		if err := setUint(kv, seqKey, r.Sequence); err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debugf("[Ledger] req=%s: seq=%d nullified=%d appended=%d",
		req.RequestID, receipt.Sequence, len(receipt.NullifiedPositions), len(receipt.NewPositions))
	return receipt, nil
}

func (l *Ledger) nullifyInputs(txn *commitTxn, req *core.CommitRequest) error {
	seen := make(map[types.Hash]struct{}, len(req.Inputs))
	for i, in := range req.Inputs {
		mc := in.Context
		t, err := txn.tree(mc.TreeID)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if t.TreeVersion() != mc.TreeVersion {
			return fmt.Errorf("%w: input %d claims version %d, tree %s is %d",
				core.ErrStateMerkleTreeAccountDiscriminatorMismatch, i, mc.TreeVersion, mc.TreeID, t.Version)
		}
		if !mc.QueueID.Equals(t.Queue) {
			return fmt.Errorf("%w: input %d queue %s, tree %s uses %s",
				core.ErrAccountDiscriminatorMismatch, i, mc.QueueID, mc.TreeID, t.Queue)
		}

		leaf, ok, err := loadLeaf(txn.kv, mc.TreeID, uint64(mc.LeafIndex))
		if err != nil {
			return err
		}
		if !ok || !leaf.Hash.Equals(in.LeafHash) {
			return fmt.Errorf("%w: input %d does not match leaf %d of tree %s",
				core.ErrProofVerificationFailed, i, mc.LeafIndex, mc.TreeID)
		}

		if mc.ProveByIndex {
			if t.TreeVersion() != core.TreeVersionV2 {
				return fmt.Errorf("%w: input %d proves by index on a v1 tree", core.ErrProofVerificationFailed, i)
			}
		} else {
			if in.RootIndex == nil {
				return fmt.Errorf("%w: input %d has no root index", core.ErrProofVerificationFailed, i)
			}
			if err := t.CheckRootIndex(*in.RootIndex, mc.LeafIndex); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		}

		nullifier := commitment.NullifierHash(leaf.Hash, mc.TreeID, mc.LeafIndex)
		if _, dup := seen[nullifier]; dup {
			return fmt.Errorf("%w: input %d repeats leaf %d", core.ErrNullifierAlreadyExists, i, mc.LeafIndex)
		}
		seen[nullifier] = struct{}{}

		key := nullifierKey(mc.TreeID, nullifier)
		_, spent, err := txn.kv.Get(key)
		if err != nil {
			return err
		}
		if spent {
			return fmt.Errorf("%w: leaf %d of tree %s", core.ErrNullifierAlreadyExists, mc.LeafIndex, mc.TreeID)
		}
		if err := txn.kv.Set(key, []byte(req.RequestID)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) appendLeaf(txn *commitTxn, leaf *core.NewLeaf) (core.MerkleContext, error) {
	t, err := txn.tree(leaf.Tree.TreeID)
	if err != nil {
		return core.MerkleContext{}, err
	}
	if !leaf.Tree.QueueID.Equals(t.Queue) {
		return core.MerkleContext{}, fmt.Errorf("%w: queue %s, tree %s uses %s",
			core.ErrAccountDiscriminatorMismatch, leaf.Tree.QueueID, t.ID, t.Queue)
	}
	if !commitment.LeafHash(leaf.Data).Equals(leaf.Hash) {
		return core.MerkleContext{}, fmt.Errorf("%w: commitment does not match pre-image", core.ErrProofVerificationFailed)
	}
	index, err := t.Append(leaf.Hash)
	if err != nil {
		return core.MerkleContext{}, err
	}
	if err := saveLeaf(txn.kv, t.ID, index, &LeafEntry{Hash: leaf.Hash, Data: leaf.Data}); err != nil {
		return core.MerkleContext{}, err
	}
	return core.MerkleContext{
		TreeID:       t.ID,
		QueueID:      t.Queue,
		LeafIndex:    uint32(index),
		ProveByIndex: t.TreeVersion() == core.TreeVersionV2,
		TreeVersion:  t.TreeVersion(),
	}, nil
}

// applyDeltas 余额或授权额度不足说明引擎读到的状态已过期
func applyDeltas(kv KV, deltas []core.NativeDelta) error {
	for _, d := range deltas {
		if d.DelegateDebit {
			if err := spendAllowance(kv, d.Account, d.Debit); err != nil {
				return err
			}
		}
		key := balanceKey(d.Account)
		balance, err := getUint(kv, key)
		if err != nil {
			return err
		}
		balance, carry := bits.Add64(balance, d.Credit, 0)
		if carry != 0 {
			return fmt.Errorf("%w: balance overflow on %s", core.ErrStaleLedgerState, d.Account)
		}
		if balance < d.Debit {
			return fmt.Errorf("%w: %s holds %d, debit %d", core.ErrStaleLedgerState, d.Account, balance, d.Debit)
		}
		if err := setUint(kv, key, balance-d.Debit); err != nil {
			return err
		}
	}
	return nil
}

// spendAllowance 扣减 delegate 额度，额度用尽时清除 delegate
func spendAllowance(kv KV, account types.Pubkey, amount uint64) error {
	info, err := loadAccount(kv, account)
	if err != nil {
		return err
	}
	if info == nil || info.Delegate == nil || info.DelegatedAmount < amount {
		return fmt.Errorf("%w: delegate allowance on %s below %d", core.ErrStaleLedgerState, account, amount)
	}
	info.DelegatedAmount -= amount
	if info.DelegatedAmount == 0 {
		info.Delegate = nil
	}
	return saveAccount(kv, account, info)
}

func applySupply(kv KV, mint types.Pubkey, delta int64) error {
	if delta == 0 {
		return nil
	}
	info, err := loadMint(kv, mint)
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		if info.Supply > math.MaxUint64-uint64(delta) {
			return fmt.Errorf("%w: supply %d + %d", core.ErrMintTooLarge, info.Supply, delta)
		}
		info.Supply += uint64(delta)
	default:
		burn := uint64(-delta)
		if info.Supply < burn {
			return fmt.Errorf("%w: supply %d < burn %d", core.ErrStaleLedgerState, info.Supply, burn)
		}
		info.Supply -= burn
	}
	return saveMint(kv, info)
}
