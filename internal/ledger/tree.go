package ledger

import (
	"fmt"
	"sync"

	"ctoken-engine-sol/internal/logic/commitment"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/types"
)

// TreeState 增量 Merkle 树状态（只保存每层最右侧已填充节点 + 根历史）
type TreeState struct {
	ID          types.Pubkey
	Queue       types.Pubkey
	Version     uint8
	Height      uint32
	NextIndex   uint64
	Filled      []types.Hash
	Roots       []types.Hash // 环形缓冲
	RootLeaves  []uint64     // 对应根生成时的叶子数量
	RootCursor  uint32       // 当前根在 Roots 中的位置
	RootHistory uint32
}

// TreeConfig 建树参数
type TreeConfig struct {
	ID          types.Pubkey
	Queue       types.Pubkey
	Version     core.TreeVersion
	Height      uint32
	RootHistory uint32
}

var (
	zeroMu    sync.Mutex
	zeroCache = make(map[uint32][]types.Hash)
)

// zeroHashes 按高度缓存空子树哈希
func zeroHashes(height uint32) []types.Hash {
	zeroMu.Lock()
	defer zeroMu.Unlock()
	if z, ok := zeroCache[height]; ok {
		return z
	}
	z := commitment.ZeroHashes(int(height))
	zeroCache[height] = z
	return z
}

func newTreeState(cfg TreeConfig) (*TreeState, error) {
	if cfg.Height == 0 || cfg.Height > 40 {
		return nil, fmt.Errorf("invalid tree height %d", cfg.Height)
	}
	if cfg.RootHistory == 0 {
		return nil, fmt.Errorf("root history must be positive")
	}
	if cfg.Version != core.TreeVersionV1 && cfg.Version != core.TreeVersionV2 {
		return nil, fmt.Errorf("invalid tree version %d", cfg.Version)
	}
	zero := zeroHashes(cfg.Height)
	t := &TreeState{
		ID:          cfg.ID,
		Queue:       cfg.Queue,
		Version:     uint8(cfg.Version),
		Height:      cfg.Height,
		Filled:      make([]types.Hash, cfg.Height),
		Roots:       []types.Hash{zero[cfg.Height]},
		RootLeaves:  []uint64{0},
		RootHistory: cfg.RootHistory,
	}
	return t, nil
}

func (t *TreeState) TreeVersion() core.TreeVersion {
	return core.TreeVersion(t.Version)
}

func (t *TreeState) Capacity() uint64 {
	return uint64(1) << t.Height
}

// Root 当前根
func (t *TreeState) Root() types.Hash {
	return t.Roots[t.RootCursor]
}

// RootIndex 当前根在历史中的位置，客户端据此构造证明
func (t *TreeState) RootIndex() uint16 {
	return uint16(t.RootCursor)
}

// Append 追加叶子，返回叶子下标
func (t *TreeState) Append(leaf types.Hash) (uint64, error) {
	if t.NextIndex >= t.Capacity() {
		return 0, fmt.Errorf("%w: tree %s", core.ErrMerkleTreeFull, t.ID)
	}
	zero := zeroHashes(t.Height)
	index := t.NextIndex
	cur := leaf
	pos := index
	for level := uint32(0); level < t.Height; level++ {
		if pos%2 == 0 {
			t.Filled[level] = cur
			cur = commitment.NodeHash(cur, zero[level])
		} else {
			cur = commitment.NodeHash(t.Filled[level], cur)
		}
		pos /= 2
	}
	t.NextIndex++
	t.pushRoot(cur)
	return index, nil
}

func (t *TreeState) pushRoot(root types.Hash) {
	if uint32(len(t.Roots)) < t.RootHistory {
		t.Roots = append(t.Roots, root)
		t.RootLeaves = append(t.RootLeaves, t.NextIndex)
		t.RootCursor = uint32(len(t.Roots) - 1)
		return
	}
	t.RootCursor = (t.RootCursor + 1) % t.RootHistory
	t.Roots[t.RootCursor] = root
	t.RootLeaves[t.RootCursor] = t.NextIndex
}

// CheckRootIndex 根必须仍在历史中，且生成时已包含该叶子
func (t *TreeState) CheckRootIndex(rootIndex uint16, leafIndex uint32) error {
	if int(rootIndex) >= len(t.Roots) {
		return fmt.Errorf("%w: root index %d out of history (%d)", core.ErrProofVerificationFailed, rootIndex, len(t.Roots))
	}
	if uint64(leafIndex) >= t.RootLeaves[rootIndex] {
		return fmt.Errorf("%w: root %d predates leaf %d", core.ErrProofVerificationFailed, rootIndex, leafIndex)
	}
	return nil
}
