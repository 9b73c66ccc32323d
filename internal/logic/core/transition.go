package core

import (
	"fmt"
	"strings"
)

// TransitionKind 状态转换类型，集合固定，由引擎 switch 分发
type TransitionKind uint8

const (
	KindTransfer        TransitionKind = 1
	KindMintTo          TransitionKind = 2
	KindBurn            TransitionKind = 3
	KindApprove         TransitionKind = 4
	KindRevoke          TransitionKind = 5
	KindFreeze          TransitionKind = 6
	KindThaw            TransitionKind = 7
	KindCompress        TransitionKind = 8
	KindDecompress      TransitionKind = 9
	KindBatchCompress   TransitionKind = 10
	KindCompressAccount TransitionKind = 11 // 压缩整个原生 token 账户（保留 remaining_amount）
)

var transitionKindNames = map[TransitionKind]string{
	KindTransfer:        "transfer",
	KindMintTo:          "mint_to",
	KindBurn:            "burn",
	KindApprove:         "approve",
	KindRevoke:          "revoke",
	KindFreeze:          "freeze",
	KindThaw:            "thaw",
	KindCompress:        "compress",
	KindDecompress:      "decompress",
	KindBatchCompress:   "batch_compress",
	KindCompressAccount: "compress_account",
}

func (k TransitionKind) String() string {
	if name, ok := transitionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k TransitionKind) Valid() bool {
	_, ok := transitionKindNames[k]
	return ok
}

// TouchesNative 是否跨越原生 / 压缩边界（需要校验资金池）
func (k TransitionKind) TouchesNative() bool {
	switch k {
	case KindMintTo, KindBurn, KindCompress, KindDecompress, KindBatchCompress, KindCompressAccount:
		return true
	default:
		return false
	}
}

// ExpectedInputState 该类型要求的输入状态，输入按此状态重新计算叶子承诺
func (k TransitionKind) ExpectedInputState() AccountState {
	if k == KindThaw {
		return StateFrozen
	}
	return StateInitialized
}

func (k TransitionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown transition kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *TransitionKind) UnmarshalText(text []byte) error {
	v, err := ParseTransitionKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseTransitionKind 解析配置 / 场景文件中的类型名
func ParseTransitionKind(s string) (TransitionKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range transitionKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTransition, s)
}
