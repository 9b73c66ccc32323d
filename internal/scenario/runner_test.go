package scenario

import (
	"bytes"
	"context"
	"testing"

	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/logic/pool"
	"ctoken-engine-sol/internal/service"
	"ctoken-engine-sol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, *ledger.Ledger) {
	t.Helper()
	var tree, queue types.Pubkey
	tree[0], queue[0] = 1, 2

	l := ledger.New(ledger.NewMemoryStore())
	_, err := l.CreateTree(context.Background(), ledger.TreeConfig{ID: tree, Queue: queue, Version: core.TreeVersionV1, Height: 10, RootHistory: 64})
	require.NoError(t, err)

	pools := pool.NewDefaultResolver()
	e := engine.New(engine.Deps{Ledger: l, Mints: l, Accounts: l, Pools: pools})
	return NewRunner(service.NewTransitionService(e, 0), l, pools, tree), l
}

func runFile(t *testing.T, path string) *Report {
	t.Helper()
	sc, err := Load(path)
	require.NoError(t, err)
	r, _ := newTestRunner(t)
	report, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	return report
}

func TestRun_MintTransfer(t *testing.T) {
	report := runFile(t, "testdata/mint_transfer.yaml")
	require.Len(t, report.Steps, 5)
	assert.Equal(t, "ComputeOutputSumFailed", report.Steps[1].Error, "输出多 1 在求和阶段失败")
	assert.Equal(t, "SumCheckFailed", report.Steps[2].Error, "输出少 1 在守恒比较阶段失败")
	assert.Equal(t, "InvalidAuthority", report.Steps[3].Error)
	assert.Equal(t, uint64(2), report.Steps[4].Sequence, "失败的步骤不占用序号")

	h, ok := report.Holding("bob", "usdc")
	require.True(t, ok)
	assert.Equal(t, uint64(400_000_000), h.Amount)
	assert.Equal(t, 1, h.Records)

	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "600.000000")
	assert.Contains(t, buf.String(), "pool:usdc:0")
}

func TestRun_Delegate(t *testing.T) {
	report := runFile(t, "testdata/delegate.yaml")
	h, ok := report.Holding("alice", "usdc")
	require.True(t, ok)
	assert.Equal(t, uint64(9100), h.Amount)
	assert.Equal(t, 2, h.Records, "找零 + 撤销授权后的记录")
}

func TestRun_NativeRoundTrip(t *testing.T) {
	report := runFile(t, "testdata/native_roundtrip.yaml")
	require.Len(t, report.Supplies, 1)
	assert.Zero(t, report.Supplies[0].Amount)

	names := make([]string, 0, len(report.Balances))
	for _, b := range report.Balances {
		names = append(names, b.Account)
	}
	assert.ElementsMatch(t, []string{"wallet", "pool:usdc:0", "pool:usdc:1"}, names)
	assert.Equal(t, "InvalidAuthority", report.Steps[1].Error, "bob 不能压缩 alice 的原生账户")
}

// delegate 在额度内压缩 owner 的原生余额，资金池按声明数量创建
func TestRun_NativeDelegate(t *testing.T) {
	sc, err := Parse([]byte(`
name: native-delegate
mints:
  usdc: {mint_authority: issuer, decimals: 0, pools: 3}
balances:
  - {account: wallet, mint: usdc, amount: "100", owner: alice, delegate: spender, delegated_amount: "30"}
steps:
  - name: over-allowance
    kind: compress
    signer: spender
    native: {amount: "31", pool: 2, account: wallet}
    outputs:
      - {owner: spender, amount: "31"}
    expect_error: InsufficientTokenAccountBalance
  - kind: compress
    signer: spender
    native: {amount: "30", pool: 2, account: wallet}
    outputs:
      - {owner: spender, amount: "30"}
expect:
  holdings:
    - {owner: spender, mint: usdc, amount: "30"}
  balances:
    - {account: wallet, mint: usdc, amount: "70"}
    - {account: "pool:usdc:2", mint: usdc, amount: "30"}
`))
	require.NoError(t, err)
	r, l := newTestRunner(t)
	_, err = r.Run(context.Background(), sc)
	require.NoError(t, err)

	count, err := l.PoolCount(context.Background(), MintKey("usdc"))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), count)
}

func TestParse_InvalidNativeSetup(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
mints:
  usdc: {decimals: 0, pools: 6}
balances:
  - {account: wallet, mint: usdc, amount: "1", delegate: spender}
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "pools 6 exceeds 5")
	assert.ErrorContains(t, err, "delegate requires an owner")
}

func TestRun_ExpectedErrorNotRaised(t *testing.T) {
	sc, err := Parse([]byte(`
name: wrong-expectation
mints:
  usdc: {mint_authority: issuer, decimals: 0}
steps:
  - kind: mint_to
    signer: issuer
    recipients: [alice]
    amounts: ["1"]
    native: {pool: 0}
    expect_error: SumCheckFailed
`))
	require.NoError(t, err)
	r, _ := newTestRunner(t)
	_, err = r.Run(context.Background(), sc)
	assert.ErrorContains(t, err, "expected SumCheckFailed")
}

func TestRun_UnexpectedErrorStops(t *testing.T) {
	sc, err := Parse([]byte(`
name: stops
mints:
  usdc: {mint_authority: issuer, decimals: 0}
steps:
  - kind: mint_to
    signer: mallory
    recipients: [alice]
    amounts: ["1"]
    native: {pool: 0}
  - kind: mint_to
    signer: issuer
    recipients: [alice]
    amounts: ["1"]
    native: {pool: 0}
`))
	require.NoError(t, err)
	r, _ := newTestRunner(t)
	report, err := r.Run(context.Background(), sc)
	assert.ErrorIs(t, err, core.ErrInvalidAuthorityMint)
	assert.Len(t, report.Steps, 1, "失败后不再执行后续步骤")
}

func TestRun_ExpectationMismatch(t *testing.T) {
	sc, err := Parse([]byte(`
name: mismatch
mints:
  usdc: {mint_authority: issuer, decimals: 2}
steps:
  - kind: mint_to
    signer: issuer
    recipients: [alice]
    amounts: ["1.5"]
    native: {pool: 0}
expect:
  holdings:
    - {owner: alice, mint: usdc, amount: "2"}
  supply:
    usdc: "1.5"
`))
	require.NoError(t, err)
	r, _ := newTestRunner(t)
	_, err = r.Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holding alice/usdc: want 2.00, got 1.50")
	assert.NotContains(t, err.Error(), "supply")
}

func TestParse_Validate(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		msg  string
	}{
		{"没有 mint", "name: x\nsteps: []\n", "no mints"},
		{"未知类型", "mints: {usdc: {}}\nsteps: [{kind: teleport}]\n", "UnknownTransition"},
		{"未保存的输入", "mints: {usdc: {}}\nsteps: [{kind: transfer, inputs: [nope]}]\n", `input "nope"`},
		{"重复标签", "mints: {usdc: {}}\nsteps: [{kind: mint_to, save: [a]}, {kind: mint_to, save: [a]}]\n", `label "a" already saved`},
		{"多个 mint 未指定", "mints: {usdc: {}, usdt: {}}\nsteps: [{kind: mint_to}]\n", "mint is required"},
		{"未知字段", "mints: {usdc: {}}\nbogus: 1\n", "bogus"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestAccountKeyDeterministic(t *testing.T) {
	assert.Equal(t, AccountKey("alice"), AccountKey("alice"))
	assert.NotEqual(t, AccountKey("alice"), AccountKey("bob"))
	assert.NotEqual(t, AccountKey("usdc"), MintKey("usdc"))
}
