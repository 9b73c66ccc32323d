package ledger

import (
	"fmt"
	"reflect"
	"strconv"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/near/borsh-go"
)

// 存储 key（RedisStore 会再加前缀）
func treeKey(tree types.Pubkey) string {
	return "tree:" + tree.String()
}

func leafKey(tree types.Pubkey, index uint64) string {
	return "leaf:" + tree.String() + ":" + strconv.FormatUint(index, 10)
}

func nullifierKey(tree types.Pubkey, nullifier types.Hash) string {
	return "nullifier:" + tree.String() + ":" + nullifier.Hex()
}

func balanceKey(account types.Pubkey) string {
	return "balance:" + account.String()
}

func mintKey(mint types.Pubkey) string {
	return "mint:" + mint.String()
}

func accountKey(account types.Pubkey) string {
	return "account:" + account.String()
}

func poolCountKey(mint types.Pubkey) string {
	return "pools:" + mint.String()
}

const seqKey = "seq"

// LeafEntry 叶子承诺及其原像（编码后的 TokenRecord）
type LeafEntry struct {
	Hash types.Hash
	Data []byte
}

// mintWire mint 元数据的存储格式，可选字段用 Has* 标记
type mintWire struct {
	Mint               types.Pubkey
	HasMintAuthority   bool
	MintAuthority      types.Pubkey
	HasFreezeAuthority bool
	FreezeAuthority    types.Pubkey
	Decimals           uint8
	Supply             uint64
}

// accountWire 原生账户 owner / delegate 的存储格式
type accountWire struct {
	Owner           types.Pubkey
	HasDelegate     bool
	Delegate        types.Pubkey
	DelegatedAmount uint64
}

func toAccountWire(a *core.NativeAccount) accountWire {
	w := accountWire{Owner: a.Owner, DelegatedAmount: a.DelegatedAmount}
	if a.Delegate != nil {
		w.HasDelegate = true
		w.Delegate = *a.Delegate
	}
	return w
}

func (w *accountWire) toNativeAccount() *core.NativeAccount {
	a := &core.NativeAccount{Owner: w.Owner, DelegatedAmount: w.DelegatedAmount}
	if w.HasDelegate {
		d := w.Delegate
		a.Delegate = &d
	}
	return a
}

func toMintWire(m *core.MintInfo) mintWire {
	w := mintWire{Mint: m.Mint, Decimals: m.Decimals, Supply: m.Supply}
	if m.MintAuthority != nil {
		w.HasMintAuthority = true
		w.MintAuthority = *m.MintAuthority
	}
	if m.FreezeAuthority != nil {
		w.HasFreezeAuthority = true
		w.FreezeAuthority = *m.FreezeAuthority
	}
	return w
}

func (w *mintWire) toMintInfo() *core.MintInfo {
	m := &core.MintInfo{Mint: w.Mint, Decimals: w.Decimals, Supply: w.Supply}
	if w.HasMintAuthority {
		a := w.MintAuthority
		m.MintAuthority = &a
	}
	if w.HasFreezeAuthority {
		a := w.FreezeAuthority
		m.FreezeAuthority = &a
	}
	return m
}

// getBorsh 读取并反序列化，key 不存在返回 false
func getBorsh(kv KV, key string, out any) (found bool, err error) {
	raw, ok, err := kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			found, err = false, fmt.Errorf("decode %s: panic: %v", key, r)
		}
	}()
	if err := borsh.Deserialize(out, raw); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// setBorsh v 必须是值类型：borsh 会给指针多写一个 Option 标记，getBorsh 读不回来
func setBorsh(kv KV, key string, v any) error {
	if reflect.ValueOf(v).Kind() == reflect.Pointer {
		return fmt.Errorf("encode %s: pointer value %T", key, v)
	}
	raw, err := borsh.Serialize(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(key, raw)
}

func loadTree(kv KV, id types.Pubkey) (*TreeState, error) {
	var t TreeState
	ok, err := getBorsh(kv, treeKey(id), &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: tree %s not found", core.ErrStateMerkleTreeAccountDiscriminatorMismatch, id)
	}
	return &t, nil
}

func saveTree(kv KV, t *TreeState) error {
	return setBorsh(kv, treeKey(t.ID), *t)
}

func loadLeaf(kv KV, tree types.Pubkey, index uint64) (*LeafEntry, bool, error) {
	var l LeafEntry
	ok, err := getBorsh(kv, leafKey(tree, index), &l)
	if err != nil || !ok {
		return nil, false, err
	}
	return &l, true, nil
}

func saveLeaf(kv KV, tree types.Pubkey, index uint64, l *LeafEntry) error {
	return setBorsh(kv, leafKey(tree, index), *l)
}

func loadMint(kv KV, mint types.Pubkey) (*core.MintInfo, error) {
	var w mintWire
	ok, err := getBorsh(kv, mintKey(mint), &w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: mint %s not registered", core.ErrAccountDiscriminatorMismatch, mint)
	}
	return w.toMintInfo(), nil
}

func saveMint(kv KV, m *core.MintInfo) error {
	w := toMintWire(m)
	return setBorsh(kv, mintKey(m.Mint), w)
}

func loadAccount(kv KV, account types.Pubkey) (*core.NativeAccount, error) {
	var w accountWire
	ok, err := getBorsh(kv, accountKey(account), &w)
	if err != nil || !ok {
		return nil, err
	}
	return w.toNativeAccount(), nil
}

func saveAccount(kv KV, account types.Pubkey, a *core.NativeAccount) error {
	return setBorsh(kv, accountKey(account), toAccountWire(a))
}

func getUint(kv KV, key string) (uint64, error) {
	raw, ok, err := kv.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func setUint(kv KV, key string, v uint64) error {
	return kv.Set(key, []byte(strconv.FormatUint(v, 10)))
}
