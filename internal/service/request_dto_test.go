package service

import (
	"fmt"
	"testing"

	"ctoken-engine-sol/internal/logic/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest_Full(t *testing.T) {
	raw := fmt.Sprintf(`{
		"id": "r-1",
		"kind": "decompress",
		"mint": %q,
		"signer": %q,
		"inputs": [
			{"data": "0xabcd", "tree": %q, "queue": %q, "leaf_index": 3, "tree_version": 1, "root_index": 7},
			{"data": "ef", "tree": %q, "queue": %q, "leaf_index": 4, "tree_version": 1, "root_index": 8}
		],
		"outputs": [
			{"owner": %q, "amount": 5, "extensions": [{"type": 1, "payload": "0102"}]}
		],
		"proof": "00ff",
		"output_tree": {"tree": %q, "queue": %q},
		"native": {"amount": 10, "pool": {"address": %q, "index": 1}, "extra_pools": [{"address": %q, "index": 2}], "account": %q}
	}`, mint, alice, tree, queue, tree, queue, bob, tree, queue, key(30), key(31), key(32))

	req, err := DecodeRequest([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "r-1", req.ID)
	assert.Equal(t, core.KindDecompress, req.Kind)
	assert.Equal(t, mint, req.Mint)
	require.Len(t, req.Inputs, 2)
	assert.Equal(t, []byte{0xab, 0xcd}, req.Inputs[0].Data)
	assert.Equal(t, uint32(4), req.Inputs[1].Context.LeafIndex)
	assert.Equal(t, core.TreeVersionV1, req.Inputs[1].Context.TreeVersion)
	require.Len(t, req.Proof.RootIndices, 2)
	assert.Equal(t, uint16(8), *req.Proof.RootIndices[1])
	assert.Equal(t, []byte{0x00, 0xff}, req.Proof.Proof)
	require.Len(t, req.Outputs, 1)
	assert.Nil(t, req.Outputs[0].Tree, "未指定树时由引擎使用 output_tree")
	assert.Equal(t, core.ExtensionType(1), req.Outputs[0].Extensions[0].Type)
	require.NotNil(t, req.Native)
	assert.Equal(t, uint8(1), req.Native.Pool.Index)
	assert.Equal(t, key(31), req.Native.ExtraPools[0].Address)
	assert.Equal(t, key(32), req.Native.Account)
}

func TestDecodeRequest_ProveByIndexLeavesNoRootIndices(t *testing.T) {
	raw := fmt.Sprintf(`{"kind":"revoke","mint":%q,"signer":%q,
		"inputs":[{"data":"00","tree":%q,"queue":%q,"leaf_index":0,"prove_by_index":true,"tree_version":2}]}`,
		mint, alice, tree, queue)
	req, err := DecodeRequest([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, req.Proof.RootIndices)
	assert.True(t, req.Inputs[0].Context.ProveByIndex)
}

func TestDecodeRequest_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"未知类型", `{"kind":"teleport"}`, core.ErrInvalidRequest},
		{"缺少类型", `{"id":"x"}`, core.ErrUnknownTransition},
		{"非法公钥", `{"kind":"transfer","mint":"0OIl"}`, core.ErrInvalidRequest},
		{"非法 hex", fmt.Sprintf(`{"kind":"transfer","mint":%q,"proof":"zz"}`, mint), core.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tc.raw))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
