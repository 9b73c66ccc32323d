package authorization

import (
	"fmt"

	"ctoken-engine-sol/internal/logic/conservation"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"
)

// Params 与类型相关的授权参数
type Params struct {
	IsDelegate      bool           // transfer / burn / decompress 走委托路径
	DelegatedAmount uint64         // approve 授权额度
	Mint            *core.MintInfo // freeze / thaw / mint_to 需要
}

// Check 按转换类型校验签名者权限，不读取外部状态
func Check(kind core.TransitionKind, signer types.Pubkey, inputs []core.TokenRecord, p Params) error {
	switch kind {
	case core.KindTransfer, core.KindBurn, core.KindDecompress, core.KindCompress:
		if p.IsDelegate {
			return checkDelegate(signer, inputs)
		}
		return checkOwner(signer, inputs)

	case core.KindApprove:
		if err := checkOwner(signer, inputs); err != nil {
			return err
		}
		sum, err := conservation.SumAmounts(inputs)
		if err != nil {
			return err
		}
		if p.DelegatedAmount > sum {
			return fmt.Errorf("%w: delegated %d exceeds input sum %d", core.ErrArithmeticUnderflow, p.DelegatedAmount, sum)
		}
		return nil

	case core.KindRevoke:
		return checkOwner(signer, inputs)

	case core.KindFreeze, core.KindThaw:
		return checkFreezeAuthority(signer, p.Mint)

	case core.KindMintTo:
		return checkMintAuthority(signer, p.Mint)

	case core.KindBatchCompress, core.KindCompressAccount:
		// 没有压缩输入，来源账户的 owner / delegate 由引擎在原生侧校验
		return nil

	default:
		return fmt.Errorf("%w: %s", core.ErrUnknownTransition, kind)
	}
}

// checkOwner 签名者必须是每个输入的 owner
func checkOwner(signer types.Pubkey, inputs []core.TokenRecord) error {
	for i := range inputs {
		if inputs[i].Owner != signer {
			return fmt.Errorf("%w: input %d owner %s, signer %s", core.ErrInvalidAuthority, i, inputs[i].Owner, signer)
		}
	}
	return nil
}

// checkDelegate 每个输入都必须有 delegate 且等于签名者
func checkDelegate(signer types.Pubkey, inputs []core.TokenRecord) error {
	for i := range inputs {
		d := inputs[i].Delegate
		if d == nil {
			return fmt.Errorf("%w: input %d has no delegate", core.ErrDelegateSignerCheckFailed, i)
		}
		if *d != signer {
			return fmt.Errorf("%w: input %d delegate %s, signer %s", core.ErrDelegateSignerCheckFailed, i, *d, signer)
		}
	}
	return nil
}

func checkFreezeAuthority(signer types.Pubkey, mint *core.MintInfo) error {
	if mint == nil || mint.FreezeAuthority == nil {
		return core.ErrMintHasNoFreezeAuthority
	}
	if *mint.FreezeAuthority != signer {
		return fmt.Errorf("%w: signer %s", core.ErrInvalidFreezeAuthority, signer)
	}
	return nil
}

func checkMintAuthority(signer types.Pubkey, mint *core.MintInfo) error {
	if mint == nil || mint.MintAuthority == nil || *mint.MintAuthority != signer {
		return fmt.Errorf("%w: signer %s", core.ErrInvalidAuthorityMint, signer)
	}
	return nil
}
