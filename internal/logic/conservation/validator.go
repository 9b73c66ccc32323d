package conservation

import (
	"fmt"
	"math/bits"

	"ctoken-engine-sol/internal/logic/core"
)

// Check 守恒校验：Σin + compress == Σout（压缩）或 Σin == Σout + decompress（解压）。
// 累加全部使用溢出检查，出错时返回最具体的错误码。
func Check(inputs, outputs []core.TokenRecord, compressAmount, decompressAmount uint64, isCompress bool) error {
	return SumCheck(amountsOf(inputs), amountsOf(outputs), compressAmount, decompressAmount, isCompress)
}

// SumCheck 与 Check 相同，但直接接受金额列表
func SumCheck(inputs, outputs []uint64, compressAmount, decompressAmount uint64, isCompress bool) error {
	if isCompress && decompressAmount != 0 {
		return fmt.Errorf("%w: compress leg carries decompress amount %d", core.ErrInvalidRequest, decompressAmount)
	}
	if !isCompress && compressAmount != 0 {
		return fmt.Errorf("%w: decompress leg carries compress amount %d", core.ErrInvalidRequest, compressAmount)
	}

	// 1. 输入求和
	sum, err := sumChecked(inputs, core.ErrComputeInputSumFailed)
	if err != nil {
		return err
	}

	// 2. 原生侧金额
	if isCompress {
		var carry uint64
		sum, carry = bits.Add64(sum, compressAmount, 0)
		if carry != 0 {
			return fmt.Errorf("%w: input sum overflows with compress amount %d", core.ErrComputeCompressSumFailed, compressAmount)
		}
	} else if decompressAmount != 0 {
		if decompressAmount > sum {
			return fmt.Errorf("%w: decompress %d exceeds input sum %d", core.ErrComputeDecompressSumFailed, decompressAmount, sum)
		}
		sum -= decompressAmount
	}

	// 3. 逐个扣减输出
	for i, out := range outputs {
		if out > sum {
			return fmt.Errorf("%w: output %d amount %d exceeds remaining %d", core.ErrComputeOutputSumFailed, i, out, sum)
		}
		sum -= out
	}

	// 4. 必须恰好为 0
	if sum != 0 {
		return fmt.Errorf("%w: %d unaccounted", core.ErrSumCheckFailed, sum)
	}
	return nil
}

// SumAmounts 输入金额求和，溢出返回 ComputeInputSumFailed
func SumAmounts(records []core.TokenRecord) (uint64, error) {
	return sumChecked(amountsOf(records), core.ErrComputeInputSumFailed)
}

// MintTotal mint_to / batch_compress 的总金额，溢出返回 MintTooLarge
func MintTotal(amounts []uint64) (uint64, error) {
	return sumChecked(amounts, core.ErrMintTooLarge)
}

// BurnRemainder 销毁后的找零金额，销毁金额超过输入返回 ArithmeticUnderflow
func BurnRemainder(inputs []core.TokenRecord, burnAmount uint64) (uint64, error) {
	sum, err := SumAmounts(inputs)
	if err != nil {
		return 0, err
	}
	if burnAmount > sum {
		return 0, fmt.Errorf("%w: burn %d exceeds input sum %d", core.ErrArithmeticUnderflow, burnAmount, sum)
	}
	return sum - burnAmount, nil
}

// ZeroOutputsAllowed 调用方指定的输出中是否允许 0 金额，仅 batch_compress 允许
func ZeroOutputsAllowed(kind core.TransitionKind) bool {
	return kind == core.KindBatchCompress
}

// RejectZeroOutputs 校验调用方指定的输出金额。引擎自行生成的输出（找零、冻结副本）不经过此检查。
func RejectZeroOutputs(kind core.TransitionKind, amounts []uint64) error {
	if ZeroOutputsAllowed(kind) {
		return nil
	}
	for i, a := range amounts {
		if a == 0 {
			return fmt.Errorf("%w: %s output %d", core.ErrZeroAmountOutput, kind, i)
		}
	}
	return nil
}

func sumChecked(amounts []uint64, overflowErr error) (uint64, error) {
	var sum, carry uint64
	for i, a := range amounts {
		sum, carry = bits.Add64(sum, a, 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: overflow at term %d", overflowErr, i)
		}
	}
	return sum, nil
}

func amountsOf(records []core.TokenRecord) []uint64 {
	out := make([]uint64, len(records))
	for i := range records {
		out[i] = records[i].Amount
	}
	return out
}
