package scenario

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUIAmount 把带小数的展示金额转换为最小单位，例如 decimals=6 时 "1.5" → 1500000
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	raw := d.Shift(int32(decimals))
	if !raw.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	bi := raw.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q overflows u64", s)
	}
	return bi.Uint64(), nil
}

// FormatUIAmount 按 decimals 格式化最小单位金额
func FormatUIAmount(raw uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals)).StringFixed(int32(decimals))
}
