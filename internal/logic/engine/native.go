package engine

import (
	"context"
	"fmt"
	"math"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"
)

// planNative 校验原生侧涉及的每个资金池，并计算余额变动
func (e *Engine) planNative(ctx context.Context, req *TransitionRequest, p *plan) error {
	leg := req.Native

	switch req.Kind {
	case core.KindCompress, core.KindBatchCompress, core.KindCompressAccount:
		if err := e.validateSinglePool(ctx, req); err != nil {
			return err
		}
		if e.pools.IsPool(req.Mint, leg.Account) {
			return fmt.Errorf("%w: source %s", core.ErrIsTokenPoolPda, leg.Account)
		}
		delegated, err := e.checkSourceAuthority(ctx, req, p.compress)
		if err != nil {
			return err
		}
		if req.Kind != core.KindCompressAccount {
			balance, err := e.accounts.TokenBalance(ctx, leg.Account)
			if err != nil {
				return fmt.Errorf("read token account %s: %w", leg.Account, err)
			}
			if balance < p.compress {
				return fmt.Errorf("%w: balance %d < %d", core.ErrInsufficientTokenAccountBalance, balance, p.compress)
			}
		}
		p.deltas = append(p.deltas,
			core.NativeDelta{Account: leg.Account, Debit: p.compress, DelegateDebit: delegated},
			core.NativeDelta{Account: leg.Pool.Address, Credit: p.compress},
		)

	case core.KindMintTo:
		if err := e.validateSinglePool(ctx, req); err != nil {
			return err
		}
		if p.compress > math.MaxInt64 {
			return fmt.Errorf("%w: %d", core.ErrMintTooLarge, p.compress)
		}
		p.deltas = append(p.deltas, core.NativeDelta{Account: leg.Pool.Address, Credit: p.compress})
		p.supplyDelta = int64(p.compress)

	case core.KindDecompress:
		if e.pools.IsPool(req.Mint, leg.Account) {
			return fmt.Errorf("%w: recipient %s", core.ErrIsTokenPoolPda, leg.Account)
		}
		draws, err := e.drawFromPools(ctx, req, p.decompress, core.ErrFailedToDecompress)
		if err != nil {
			return err
		}
		p.deltas = append(draws, core.NativeDelta{Account: leg.Account, Credit: p.decompress})

	case core.KindBurn:
		if p.decompress > math.MaxInt64 {
			return fmt.Errorf("%w: burn amount %d", core.ErrArithmeticUnderflow, p.decompress)
		}
		draws, err := e.drawFromPools(ctx, req, p.decompress, core.ErrFailedToBurnSplTokensFromTokenPool)
		if err != nil {
			return err
		}
		p.deltas = draws
		p.supplyDelta = -int64(p.decompress)
	}
	return nil
}

// checkSourceAuthority 签名者必须是来源账户的 owner，或额度足够的 delegate。
// 返回 true 表示走 delegate 额度。
func (e *Engine) checkSourceAuthority(ctx context.Context, req *TransitionRequest, amount uint64) (bool, error) {
	source := req.Native.Account
	account, err := e.accounts.TokenAccount(ctx, source)
	if err != nil {
		return false, fmt.Errorf("read token account %s: %w", source, err)
	}
	if account == nil {
		return false, fmt.Errorf("%w: token account %s has no owner", core.ErrInvalidAuthority, source)
	}
	if account.Owner == req.Signer {
		return false, nil
	}
	if account.Delegate == nil || *account.Delegate != req.Signer {
		return false, fmt.Errorf("%w: signer %s is neither owner nor delegate of %s", core.ErrInvalidAuthority, req.Signer, source)
	}
	if account.DelegatedAmount < amount {
		return false, fmt.Errorf("%w: delegated %d < %d on %s", core.ErrInsufficientTokenAccountBalance, account.DelegatedAmount, amount, source)
	}
	return true, nil
}

// validateSinglePool 注入资金的方向只允许一个资金池，多余的资金池账户一律拒绝
func (e *Engine) validateSinglePool(ctx context.Context, req *TransitionRequest) error {
	leg := req.Native
	if err := e.pools.Validate(req.Mint, leg.Pool.Index, leg.Pool.Address); err != nil {
		return err
	}
	if len(leg.ExtraPools) > 0 {
		return fmt.Errorf("%w: %d extra pool accounts on %s", core.ErrInvalidTokenPoolPda, len(leg.ExtraPools), req.Kind)
	}
	count, err := e.poolCount(ctx, req)
	if err != nil {
		return err
	}
	return requireCreated(req, leg.Pool, count)
}

func (e *Engine) poolCount(ctx context.Context, req *TransitionRequest) (uint8, error) {
	count, err := e.accounts.PoolCount(ctx, req.Mint)
	if err != nil {
		return 0, fmt.Errorf("read pools of %s: %w", req.Mint, err)
	}
	return count, nil
}

// requireCreated PDA 正确但尚未创建的资金池不能使用
func requireCreated(req *TransitionRequest, ref PoolRef, count uint8) error {
	if ref.Index >= count {
		return fmt.Errorf("%w: pool %d of %s not created (%d pools)", core.ErrTokenPoolPdaUndefined, ref.Index, req.Mint, count)
	}
	return nil
}

// drawFromPools 按顺序从资金池扣减，每个池扣 min(余额, 剩余)。
// 所有池都必须通过 PDA 校验；剩余为 0 后仍有未使用的池，或扣完所有池仍有剩余，返回 failErr。
func (e *Engine) drawFromPools(ctx context.Context, req *TransitionRequest, amount uint64, failErr error) ([]core.NativeDelta, error) {
	leg := req.Native
	refs := make([]PoolRef, 0, 1+len(leg.ExtraPools))
	refs = append(refs, leg.Pool)
	refs = append(refs, leg.ExtraPools...)

	count, err := e.poolCount(ctx, req)
	if err != nil {
		return nil, err
	}
	seen := make(map[types.Pubkey]struct{}, len(refs))
	for _, ref := range refs {
		if err := e.pools.Validate(req.Mint, ref.Index, ref.Address); err != nil {
			return nil, err
		}
		if err := requireCreated(req, ref, count); err != nil {
			return nil, err
		}
		if _, dup := seen[ref.Address]; dup {
			return nil, fmt.Errorf("%w: pool %s listed twice", core.ErrInvalidTokenPoolPda, ref.Address)
		}
		seen[ref.Address] = struct{}{}
	}

	remaining := amount
	deltas := make([]core.NativeDelta, 0, len(refs))
	for i, ref := range refs {
		if remaining == 0 && i > 0 {
			return nil, fmt.Errorf("%w: pool %d (%s) not used", failErr, ref.Index, ref.Address)
		}
		balance, err := e.accounts.TokenBalance(ctx, ref.Address)
		if err != nil {
			return nil, fmt.Errorf("read pool %s: %w", ref.Address, err)
		}
		take := min(balance, remaining)
		if take > 0 {
			deltas = append(deltas, core.NativeDelta{Account: ref.Address, Debit: take})
			remaining -= take
		}
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d not covered by %d pools", failErr, remaining, len(refs))
	}
	return deltas, nil
}
