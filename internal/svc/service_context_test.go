package svc

import (
	"context"
	"fmt"
	"testing"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/commitment"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	p[31] = b
	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	raw := fmt.Sprintf(`
logger:
  level: debug
ledger:
  backend: memory
  trees:
    - id: %s
      queue: %s
      height: 8
    - id: %s
      queue: %s
      version: 2
      height: 8
  mints:
    - mint: %s
      mint_authority: %s
      decimals: 6
      pools: 2
`, key(1), key(2), key(3), key(4), key(5), key(6))
	c, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return c
}

func TestNewServiceContext_Memory(t *testing.T) {
	sc, err := NewServiceContext(testConfig(t))
	require.NoError(t, err)
	defer sc.Close()

	assert.Nil(t, sc.Producer, "未配置 brokers 时不创建生产者")
	assert.Equal(t, []types.Pubkey{key(1), key(3)}, sc.TreeIDs)

	ctx := context.Background()
	tree, err := sc.Ledger.Tree(ctx, key(3))
	require.NoError(t, err)
	assert.Equal(t, core.TreeVersionV2, tree.TreeVersion())
	assert.Equal(t, uint64(256), tree.Capacity())

	info, err := sc.MintCache.MintInfo(ctx, key(5))
	require.NoError(t, err)
	require.NotNil(t, info.MintAuthority)
	assert.Equal(t, key(6), *info.MintAuthority)
	assert.Nil(t, info.FreezeAuthority)

	pools, err := sc.Ledger.PoolCount(ctx, key(5))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pools)
}

func TestEnsure_Idempotent(t *testing.T) {
	sc, err := NewServiceContext(testConfig(t))
	require.NoError(t, err)
	defer sc.Close()
	ctx := context.Background()

	_, err = sc.Ledger.VerifyAndCommit(ctx, &core.CommitRequest{Mint: key(5), SupplyDelta: 77})
	require.NoError(t, err)

	require.NoError(t, sc.ensureTrees(ctx), "已存在的树不报错")
	require.NoError(t, sc.ensureMints(ctx))
	assert.Len(t, sc.TreeIDs, 2)

	info, err := sc.Ledger.MintInfo(ctx, key(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), info.Supply, "重新启动不覆盖供应量")

	pools, err := sc.Ledger.PoolCount(ctx, key(5))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pools, "已有资金池不重复创建")
}

// 引擎运行时注册的扩展类型，Ledger 读取叶子时同样认识
func TestServiceContext_SharedExtensionRegistry(t *testing.T) {
	sc, err := NewServiceContext(testConfig(t))
	require.NoError(t, err)
	defer sc.Close()
	ctx := context.Background()

	require.NoError(t, sc.Engine.Registry().Register(200, "custom"))

	record := core.TokenRecord{
		Mint: key(5), Owner: key(7), Amount: 1, State: core.StateInitialized,
		Extensions: []core.ExtensionEntry{{Type: 200, Payload: []byte{1}}},
	}
	hash, data, err := commitment.RecordHash(codec.New(sc.Engine.Registry()), &record)
	require.NoError(t, err)
	receipt, err := sc.Ledger.VerifyAndCommit(ctx, &core.CommitRequest{
		Mint:      key(5),
		NewLeaves: []core.NewLeaf{{Tree: core.TreeInfo{TreeID: key(1), QueueID: key(2)}, Hash: hash, Data: data, Record: record}},
	})
	require.NoError(t, err)

	s, err := sc.Ledger.Spendable(ctx, key(1), receipt.NewPositions[0].LeafIndex)
	require.NoError(t, err)
	assert.Equal(t, record.Extensions, s.Record.Extensions)
}

func TestMintInfoFromConfig(t *testing.T) {
	info, err := MintInfoFromConfig(config.MintConfig{Mint: key(1).String(), FreezeAuthority: key(2).String(), Decimals: 9})
	require.NoError(t, err)
	assert.Nil(t, info.MintAuthority)
	require.NotNil(t, info.FreezeAuthority)
	assert.Equal(t, key(2), *info.FreezeAuthority)

	_, err = MintInfoFromConfig(config.MintConfig{Mint: "bad"})
	assert.Error(t, err)
}
