package service

import (
	"encoding/hex"
	"fmt"
	"strings"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/types"

	"github.com/zeromicro/go-zero/core/jsonx"
)

// HexBytes JSON 中以十六进制字符串表示的字节，允许 0x 前缀
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

func (h *HexBytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(text)), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*h = b
	return nil
}

type TreeDTO struct {
	Tree  types.Pubkey `json:"tree"`
	Queue types.Pubkey `json:"queue"`
}

type InputDTO struct {
	Data         HexBytes         `json:"data"`
	Tree         types.Pubkey     `json:"tree"`
	Queue        types.Pubkey     `json:"queue"`
	LeafIndex    uint32           `json:"leaf_index"`
	ProveByIndex bool             `json:"prove_by_index,omitempty"`
	TreeVersion  core.TreeVersion `json:"tree_version"`
	RootIndex    *uint16          `json:"root_index,omitempty"`
}

type ExtensionDTO struct {
	Type    uint8    `json:"type"`
	Payload HexBytes `json:"payload"`
}

type OutputDTO struct {
	Owner      types.Pubkey   `json:"owner"`
	Amount     uint64         `json:"amount"`
	Tree       *TreeDTO       `json:"tree,omitempty"`
	Extensions []ExtensionDTO `json:"extensions,omitempty"`
}

type PoolDTO struct {
	Address types.Pubkey `json:"address"`
	Index   uint8        `json:"index"`
}

type NativeDTO struct {
	Amount          uint64       `json:"amount"`
	Pool            PoolDTO      `json:"pool"`
	ExtraPools      []PoolDTO    `json:"extra_pools,omitempty"`
	Account         types.Pubkey `json:"account"`
	RemainingAmount *uint64      `json:"remaining_amount,omitempty"`
}

// RequestDTO Kafka 请求 topic 上的 JSON 报文，公钥为 base58，字节为 hex
type RequestDTO struct {
	ID                  string              `json:"id"`
	Kind                core.TransitionKind `json:"kind"`
	Mint                types.Pubkey        `json:"mint"`
	Signer              types.Pubkey        `json:"signer"`
	Inputs              []InputDTO          `json:"inputs,omitempty"`
	Outputs             []OutputDTO         `json:"outputs,omitempty"`
	Proof               HexBytes            `json:"proof,omitempty"`
	OutputTree          TreeDTO             `json:"output_tree"`
	IsDelegate          bool                `json:"is_delegate,omitempty"`
	DelegateChangeIndex *uint8              `json:"delegate_change_index,omitempty"`
	Native              *NativeDTO          `json:"native,omitempty"`
	Delegate            types.Pubkey        `json:"delegate,omitempty"`
	DelegatedAmount     uint64              `json:"delegated_amount,omitempty"`
	BurnAmount          uint64              `json:"burn_amount,omitempty"`
	Recipients          []types.Pubkey      `json:"recipients,omitempty"`
	Amounts             []uint64            `json:"amounts,omitempty"`
	Amount              *uint64             `json:"amount,omitempty"`
}

// DecodeRequest 解析一条 JSON 请求
func DecodeRequest(raw []byte) (*engine.TransitionRequest, error) {
	var dto RequestDTO
	if err := jsonx.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	return dto.ToRequest()
}

func (d *RequestDTO) ToRequest() (*engine.TransitionRequest, error) {
	if !d.Kind.Valid() {
		return nil, fmt.Errorf("%w: missing kind", core.ErrUnknownTransition)
	}

	req := &engine.TransitionRequest{
		ID:                  d.ID,
		Kind:                d.Kind,
		Mint:                d.Mint,
		Signer:              d.Signer,
		OutputTree:          core.TreeInfo{TreeID: d.OutputTree.Tree, QueueID: d.OutputTree.Queue},
		IsDelegate:          d.IsDelegate,
		DelegateChangeIndex: d.DelegateChangeIndex,
		Delegate:            d.Delegate,
		DelegatedAmount:     d.DelegatedAmount,
		BurnAmount:          d.BurnAmount,
		Recipients:          d.Recipients,
		Amounts:             d.Amounts,
		Amount:              d.Amount,
	}
	req.Proof.Proof = d.Proof

	// root index 要么全部缺省（按 index 证明），要么逐个给出
	withRoot := 0
	for i := range d.Inputs {
		if d.Inputs[i].RootIndex != nil {
			withRoot++
		}
	}
	if withRoot > 0 {
		req.Proof.RootIndices = make([]*uint16, len(d.Inputs))
	}
	for i, in := range d.Inputs {
		req.Inputs = append(req.Inputs, engine.InputRecord{
			Data: in.Data,
			Context: core.MerkleContext{
				TreeID:       in.Tree,
				QueueID:      in.Queue,
				LeafIndex:    in.LeafIndex,
				ProveByIndex: in.ProveByIndex,
				TreeVersion:  in.TreeVersion,
			},
		})
		if withRoot > 0 {
			req.Proof.RootIndices[i] = in.RootIndex
		}
	}

	for _, out := range d.Outputs {
		spec := engine.OutputSpec{Owner: out.Owner, Amount: out.Amount}
		if out.Tree != nil {
			spec.Tree = &core.TreeInfo{TreeID: out.Tree.Tree, QueueID: out.Tree.Queue}
		}
		for _, ext := range out.Extensions {
			spec.Extensions = append(spec.Extensions, core.ExtensionEntry{Type: core.ExtensionType(ext.Type), Payload: ext.Payload})
		}
		req.Outputs = append(req.Outputs, spec)
	}

	if d.Native != nil {
		leg := &engine.NativeLeg{
			Amount:          d.Native.Amount,
			Pool:            engine.PoolRef{Address: d.Native.Pool.Address, Index: d.Native.Pool.Index},
			Account:         d.Native.Account,
			RemainingAmount: d.Native.RemainingAmount,
		}
		for _, p := range d.Native.ExtraPools {
			leg.ExtraPools = append(leg.ExtraPools, engine.PoolRef{Address: p.Address, Index: p.Index})
		}
		req.Native = leg
	}
	return req, nil
}
