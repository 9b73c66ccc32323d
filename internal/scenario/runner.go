package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/logic/pool"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/service"
	"ctoken-engine-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
)

// Runner 在给定的 Ledger 上执行场景
type Runner struct {
	transitions *service.TransitionService
	ledger      *ledger.Ledger
	pools       *pool.Resolver
	defaultTree types.Pubkey
}

func NewRunner(ts *service.TransitionService, l *ledger.Ledger, pools *pool.Resolver, defaultTree types.Pubkey) *Runner {
	return &Runner{transitions: ts, ledger: l, pools: pools, defaultTree: defaultTree}
}

type mintRef struct {
	name     string
	key      types.Pubkey
	decimals uint8
}

// liveLeaf 场景中尚未花费的输出
type liveLeaf struct {
	tree      types.Pubkey
	leafIndex uint32
	record    core.TokenRecord
	mint      *mintRef
}

type runState struct {
	sc       *Scenario
	output   core.TreeInfo
	accounts map[string]types.Pubkey
	names    map[types.Pubkey]string
	mints    map[string]*mintRef
	leaves   map[string]*liveLeaf
	labels   []string                  // 创建顺序
	natives  map[types.Pubkey]*mintRef // 出现过的原生账户
}

// AccountKey 场景账户名对应的地址：以固定 base 按名字派生，同名恒定
func AccountKey(name string) types.Pubkey {
	return types.PubkeyFromPublicKey(common.CreateWithSeed(common.SystemProgramID, name, common.SystemProgramID))
}

// MintKey 场景 mint 名对应的地址
func MintKey(name string) types.Pubkey {
	return types.PubkeyFromPublicKey(common.CreateWithSeed(common.SystemProgramID, "mint:"+name, common.TokenProgramID))
}

func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	st := &runState{
		sc:       sc,
		accounts: make(map[string]types.Pubkey),
		names:    make(map[types.Pubkey]string),
		mints:    make(map[string]*mintRef),
		leaves:   make(map[string]*liveLeaf),
		natives:  make(map[types.Pubkey]*mintRef),
	}
	report := &Report{Name: sc.Name}

	if err := r.setup(ctx, st); err != nil {
		return report, err
	}

	for i := range sc.Steps {
		step := &sc.Steps[i]
		name := step.StepName(i)
		sr, err := r.runStep(ctx, st, i, step)
		report.Steps = append(report.Steps, sr)

		if step.ExpectError != "" {
			if err == nil {
				return report, fmt.Errorf("%s: expected %s, but the transition succeeded", name, step.ExpectError)
			}
			if got := core.ErrorNameOf(err); got != step.ExpectError {
				return report, fmt.Errorf("%s: expected %s, got %s: %w", name, step.ExpectError, got, err)
			}
			logger.Infof("[Scenario] %s: rejected as expected: %s", name, step.ExpectError)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("%s: %w", name, err)
		}
	}

	if err := r.collect(ctx, st, report); err != nil {
		return report, err
	}
	if sc.Expect != nil {
		if err := r.check(ctx, st, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// setup 确定输出树，注册 mint，写入初始余额
func (r *Runner) setup(ctx context.Context, st *runState) error {
	treeID := r.defaultTree
	if st.sc.Tree != "" {
		id, err := types.TryPubkeyFromBase58(st.sc.Tree)
		if err != nil {
			return fmt.Errorf("scenario tree: %w", err)
		}
		treeID = id
	}
	tree, err := r.ledger.Tree(ctx, treeID)
	if err != nil {
		return fmt.Errorf("output tree %s: %w", treeID, err)
	}
	st.output = core.TreeInfo{TreeID: tree.ID, QueueID: tree.Queue}

	names := make([]string, 0, len(st.sc.Mints))
	for name := range st.sc.Mints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ms := st.sc.Mints[name]
		ref := &mintRef{name: name, key: MintKey(name), decimals: ms.Decimals}
		st.mints[name] = ref
		st.names[ref.key] = name

		if err := r.registerMint(ctx, st, ref, ms); err != nil {
			return fmt.Errorf("register mint %s: %w", name, err)
		}
		pools := ms.Pools
		if pools == 0 {
			pools = 1
		}
		if err := r.ledger.EnsurePools(ctx, ref.key, pools); err != nil {
			return fmt.Errorf("pools of mint %s: %w", name, err)
		}
	}

	for _, b := range st.sc.Balances {
		m, err := st.mint(b.Mint)
		if err != nil {
			return err
		}
		account, err := r.nativeAccount(st, b.Account)
		if err != nil {
			return err
		}
		amount, err := ParseUIAmount(b.Amount, m.decimals)
		if err != nil {
			return fmt.Errorf("balance %s: %w", b.Account, err)
		}
		if b.Owner == "" {
			err = r.ledger.SetBalance(ctx, account, amount)
		} else {
			info := core.NativeAccount{Owner: st.account(b.Owner)}
			if b.Delegate != "" {
				d := st.account(b.Delegate)
				info.Delegate = &d
				if info.DelegatedAmount, err = ParseUIAmount(b.DelegatedAmount, m.decimals); err != nil {
					return fmt.Errorf("balance %s delegated amount: %w", b.Account, err)
				}
			}
			err = r.ledger.SetTokenAccount(ctx, account, info, amount)
		}
		if err != nil {
			return err
		}
		st.natives[account] = m
	}
	return nil
}

// registerMint 已注册的 mint 保持原状（保留供应量）
func (r *Runner) registerMint(ctx context.Context, st *runState, ref *mintRef, ms MintSpec) error {
	if _, err := r.ledger.MintInfo(ctx, ref.key); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrAccountDiscriminatorMismatch) {
		return err
	}
	info := core.MintInfo{Mint: ref.key, Decimals: ms.Decimals}
	if ms.MintAuthority != "" {
		k := st.account(ms.MintAuthority)
		info.MintAuthority = &k
	}
	if ms.FreezeAuthority != "" {
		k := st.account(ms.FreezeAuthority)
		info.FreezeAuthority = &k
	}
	return r.ledger.RegisterMint(ctx, info)
}

func (r *Runner) runStep(ctx context.Context, st *runState, i int, step *Step) (StepReport, error) {
	sr := StepReport{Name: step.StepName(i), Kind: step.Kind}

	req, consumed, err := r.buildRequest(ctx, st, step)
	if err != nil {
		sr.Error = core.ErrorNameOf(err)
		return sr, err
	}
	res, err := r.transitions.Submit(ctx, req)
	sr.RequestID = req.ID
	if err != nil {
		sr.Error = core.ErrorNameOf(err)
		return sr, err
	}
	sr.Sequence = res.Receipt.Sequence

	for _, label := range consumed {
		delete(st.leaves, label)
	}
	m, _ := st.mint(step.Mint)
	for j, pos := range res.NewPositions {
		label := fmt.Sprintf("%s#%d", sr.Name, j)
		if j < len(step.Save) {
			label = step.Save[j]
		}
		st.leaves[label] = &liveLeaf{tree: pos.TreeID, leafIndex: pos.LeafIndex, record: res.NewRecords[j], mint: m}
		st.labels = append(st.labels, label)
		sr.Outputs = append(sr.Outputs, fmt.Sprintf("%s=%s:%s", label, st.name(res.NewRecords[j].Owner), FormatUIAmount(res.NewRecords[j].Amount, m.decimals)))
	}
	return sr, nil
}

// buildRequest 把场景步骤转换为引擎请求，返回被花费的标签
func (r *Runner) buildRequest(ctx context.Context, st *runState, step *Step) (*engine.TransitionRequest, []string, error) {
	kind, err := core.ParseTransitionKind(step.Kind)
	if err != nil {
		return nil, nil, err
	}
	m, err := st.mint(step.Mint)
	if err != nil {
		return nil, nil, err
	}
	amount := func(s string) (uint64, error) { return ParseUIAmount(s, m.decimals) }

	req := &engine.TransitionRequest{
		Kind:                kind,
		Mint:                m.key,
		Signer:              st.account(step.Signer),
		OutputTree:          st.output,
		IsDelegate:          step.IsDelegate,
		DelegateChangeIndex: step.DelegateChangeIndex,
	}

	for _, label := range step.Inputs {
		leaf, ok := st.leaves[label]
		if !ok {
			return nil, nil, fmt.Errorf("%w: input %q was already spent", core.ErrInvalidRequest, label)
		}
		s, err := r.ledger.Spendable(ctx, leaf.tree, leaf.leafIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("input %q: %w", label, err)
		}
		req.Inputs = append(req.Inputs, engine.InputRecord{Data: s.Data, Context: s.Context})
		req.Proof.RootIndices = append(req.Proof.RootIndices, s.RootIndex)
	}

	for _, out := range step.Outputs {
		v, err := amount(out.Amount)
		if err != nil {
			return nil, nil, err
		}
		req.Outputs = append(req.Outputs, engine.OutputSpec{Owner: st.account(out.Owner), Amount: v})
	}

	if step.Delegate != "" {
		req.Delegate = st.account(step.Delegate)
	}
	if step.DelegatedAmount != "" {
		if req.DelegatedAmount, err = amount(step.DelegatedAmount); err != nil {
			return nil, nil, err
		}
	}
	if step.BurnAmount != "" {
		if req.BurnAmount, err = amount(step.BurnAmount); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range step.Recipients {
		req.Recipients = append(req.Recipients, st.account(name))
	}
	for _, s := range step.Amounts {
		v, err := amount(s)
		if err != nil {
			return nil, nil, err
		}
		req.Amounts = append(req.Amounts, v)
	}
	if step.Amount != "" {
		v, err := amount(step.Amount)
		if err != nil {
			return nil, nil, err
		}
		req.Amount = &v
	}

	if step.Native != nil {
		leg, err := r.nativeLeg(st, m, step.Native)
		if err != nil {
			return nil, nil, err
		}
		req.Native = leg
	}
	return req, step.Inputs, nil
}

func (r *Runner) nativeLeg(st *runState, m *mintRef, ms *NativeSpec) (*engine.NativeLeg, error) {
	leg := &engine.NativeLeg{}
	var err error
	if ms.Amount != "" {
		if leg.Amount, err = ParseUIAmount(ms.Amount, m.decimals); err != nil {
			return nil, err
		}
	}

	p, err := r.pools.Derive(m.key, ms.Pool)
	if err != nil {
		return nil, err
	}
	leg.Pool = engine.PoolRef{Address: p.Address, Index: ms.Pool}
	if ms.DeclaredIndex != nil {
		leg.Pool.Index = *ms.DeclaredIndex
	}
	st.trackPool(m, p)

	for _, idx := range ms.ExtraPools {
		extra, err := r.pools.Derive(m.key, idx)
		if err != nil {
			return nil, err
		}
		leg.ExtraPools = append(leg.ExtraPools, engine.PoolRef{Address: extra.Address, Index: idx})
		st.trackPool(m, extra)
	}

	if ms.Account != "" {
		if leg.Account, err = r.nativeAccount(st, ms.Account); err != nil {
			return nil, err
		}
		st.natives[leg.Account] = m
	}
	if ms.RemainingAmount != "" {
		v, err := ParseUIAmount(ms.RemainingAmount, m.decimals)
		if err != nil {
			return nil, err
		}
		leg.RemainingAmount = &v
	}
	return leg, nil
}

// nativeAccount 解析原生账户引用，pool:<mint>:<index> 表示资金池
func (r *Runner) nativeAccount(st *runState, ref string) (types.Pubkey, error) {
	if !strings.HasPrefix(ref, "pool:") {
		return st.account(ref), nil
	}
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return types.Pubkey{}, fmt.Errorf("pool reference %q: want pool:<mint>:<index>", ref)
	}
	m, err := st.mint(parts[1])
	if err != nil {
		return types.Pubkey{}, err
	}
	idx, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("pool reference %q: %w", ref, err)
	}
	p, err := r.pools.Derive(m.key, uint8(idx))
	if err != nil {
		return types.Pubkey{}, err
	}
	st.names[p.Address] = poolName(m, p.Index)
	return p.Address, nil
}

func poolName(m *mintRef, index uint8) string {
	return fmt.Sprintf("pool:%s:%d", m.name, index)
}

func (st *runState) trackPool(m *mintRef, p pool.Address) {
	st.names[p.Address] = poolName(m, p.Index)
	st.natives[p.Address] = m
}

func (st *runState) account(name string) types.Pubkey {
	if k, ok := st.accounts[name]; ok {
		return k
	}
	k := AccountKey(name)
	st.accounts[name] = k
	st.names[k] = name
	return k
}

func (st *runState) name(k types.Pubkey) string {
	if n, ok := st.names[k]; ok {
		return n
	}
	return k.String()
}

func (st *runState) mint(name string) (*mintRef, error) {
	if name == "" {
		if len(st.mints) == 1 {
			for _, m := range st.mints {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%w: mint is required", core.ErrInvalidRequest)
	}
	m, ok := st.mints[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mint %q", core.ErrInvalidRequest, name)
	}
	return m, nil
}
