package pool

import (
	"fmt"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
)

// Address 资金池地址及其 bump
type Address struct {
	Mint    types.Pubkey
	Index   uint8
	Address types.Pubkey
	Bump    uint8
}

// Resolver 推导并校验 (mint, index) 对应的资金池 PDA
type Resolver struct {
	programID common.PublicKey
	maxPools  uint8
}

// NewResolver programID 为 compressed-token 程序，maxPools 为 0 时使用默认值 5
func NewResolver(programID types.Pubkey, maxPools uint8) *Resolver {
	if maxPools == 0 {
		maxPools = consts.NumMaxPoolAccounts
	}
	return &Resolver{
		programID: programID.ToPublicKey(),
		maxPools:  maxPools,
	}
}

// NewDefaultResolver 使用主网 compressed-token 程序 ID
func NewDefaultResolver() *Resolver {
	return NewResolver(consts.CompressedTokenProgram, consts.NumMaxPoolAccounts)
}

func (r *Resolver) MaxPools() uint8 {
	return r.maxPools
}

// seeds index 0 为 ["pool", mint]，其余为 ["pool", mint, [index]]
func seeds(mint types.Pubkey, index uint8) [][]byte {
	s := [][]byte{[]byte(consts.PoolSeed), mint[:]}
	if index > 0 {
		s = append(s, []byte{index})
	}
	return s
}

// Derive 推导资金池地址，同一 (mint, index) 结果恒定
func (r *Resolver) Derive(mint types.Pubkey, index uint8) (Address, error) {
	if err := r.ValidateIndexInRange(index); err != nil {
		return Address{}, err
	}
	pda, bump, err := common.FindProgramAddress(seeds(mint, index), r.programID)
	if err != nil {
		return Address{}, fmt.Errorf("derive pool pda mint=%s index=%d: %w", mint, index, err)
	}
	return Address{
		Mint:    mint,
		Index:   index,
		Address: types.PubkeyFromPublicKey(pda),
		Bump:    bump,
	}, nil
}

// ValidateIndexInRange index 必须小于资金池上限
func (r *Resolver) ValidateIndexInRange(index uint8) error {
	if index >= r.maxPools {
		return fmt.Errorf("%w: index %d >= %d", core.ErrInvalidTokenPoolBump, index, r.maxPools)
	}
	return nil
}

// Validate 候选地址必须与 (mint, index) 推导结果完全一致
func (r *Resolver) Validate(mint types.Pubkey, index uint8, candidate types.Pubkey) error {
	derived, err := r.Derive(mint, index)
	if err != nil {
		return err
	}
	if derived.Address != candidate {
		return fmt.Errorf("%w: mint=%s index=%d got %s want %s",
			core.ErrInvalidTokenPoolPda, mint, index, candidate, derived.Address)
	}
	return nil
}

// FindIndex 反查候选地址属于该 mint 的哪个资金池
func (r *Resolver) FindIndex(mint types.Pubkey, candidate types.Pubkey) (uint8, error) {
	for i := uint8(0); i < r.maxPools; i++ {
		derived, err := r.Derive(mint, i)
		if err != nil {
			return 0, err
		}
		if derived.Address == candidate {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s is not a pool of mint %s", core.ErrInvalidTokenPoolPda, candidate, mint)
}

// IsPool 判断地址是否为该 mint 的任一资金池
func (r *Resolver) IsPool(mint types.Pubkey, candidate types.Pubkey) bool {
	_, err := r.FindIndex(mint, candidate)
	return err == nil
}

// All 返回该 mint 的全部资金池
func (r *Resolver) All(mint types.Pubkey) ([]Address, error) {
	out := make([]Address, 0, r.maxPools)
	for i := uint8(0); i < r.maxPools; i++ {
		a, err := r.Derive(mint, i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
