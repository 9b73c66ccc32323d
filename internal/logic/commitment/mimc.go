package commitment

import (
	"encoding/binary"
	"hash"

	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// chunkSize 每个域元素承载 31 字节原像，保证小于 BN254 标量域模数
const chunkSize = 31

// 域分隔标签
const (
	domainLeaf uint64 = 1
	domainNode uint64 = 2
)

func writeElement(h hash.Hash, e *fr.Element) {
	b := e.Marshal()
	// 已是规范域元素，Write 不会失败
	_, _ = h.Write(b)
}

func writeUint(h hash.Hash, v uint64) {
	var e fr.Element
	e.SetUint64(v)
	writeElement(h, &e)
}

func writeBytes(h hash.Hash, b []byte) {
	var e fr.Element
	e.SetBytes(b)
	writeElement(h, &e)
}

func sum(h hash.Hash) types.Hash {
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// LeafHash 对编码后的记录求叶子承诺：MiMC(domain, len, chunk0, chunk1, ...)
func LeafHash(data []byte) types.Hash {
	h := mimc.NewMiMC()
	writeUint(h, domainLeaf)
	writeUint(h, uint64(len(data)))
	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		writeBytes(h, data[start:end])
	}
	return sum(h)
}

// RecordHash 用给定的编解码器编码记录，返回叶子承诺和原像
func RecordHash(c *codec.Codec, r *core.TokenRecord) (types.Hash, []byte, error) {
	data, err := c.Encode(r)
	if err != nil {
		return types.Hash{}, nil, err
	}
	return LeafHash(data), data, nil
}

// NodeHash Merkle 内部节点
func NodeHash(left, right types.Hash) types.Hash {
	h := mimc.NewMiMC()
	writeUint(h, domainNode)
	writeBytes(h, left[:])
	writeBytes(h, right[:])
	return sum(h)
}

// NullifierHash nullifier = MiMC(leaf, tree, leaf_index)，同一叶子在同一位置只能作废一次
func NullifierHash(leaf types.Hash, tree types.Pubkey, leafIndex uint32) types.Hash {
	h := mimc.NewMiMC()
	writeBytes(h, leaf[:])
	// pubkey 拆成两半，避免规约后碰撞
	writeBytes(h, tree[:16])
	writeBytes(h, tree[16:])
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(leafIndex))
	writeBytes(h, idx[:])
	return sum(h)
}

// ZeroHashes 各层空子树的根，zero[0] 为空叶子
func ZeroHashes(height int) []types.Hash {
	zero := make([]types.Hash, height+1)
	for i := 1; i <= height; i++ {
		zero[i] = NodeHash(zero[i-1], zero[i-1])
	}
	return zero
}
