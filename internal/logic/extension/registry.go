package extension

import (
	"fmt"
	"sync"

	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/pkg/logger"

	"github.com/near/borsh-go"
)

// 已知扩展类型
const (
	TypeMetadataPointer          core.ExtensionType = 1
	TypeTokenMetadata            core.ExtensionType = 2
	TypeCompressedOnly           core.ExtensionType = 3
	TypeTransferFeeAccount       core.ExtensionType = 4
	TypeTransferHookAccount      core.ExtensionType = 5
	TypePausableAccount          core.ExtensionType = 6
	TypePermanentDelegateAccount core.ExtensionType = 7
	TypeOpaque                   core.ExtensionType = 255 // 不解释内容、允许重复
)

// Registry 扩展类型注册表，记录允许出现在记录上的扩展
type Registry struct {
	mu    sync.RWMutex
	names map[core.ExtensionType]string
}

// NewRegistry 创建包含全部内置类型的注册表
func NewRegistry() *Registry {
	return &Registry{
		names: map[core.ExtensionType]string{
			TypeMetadataPointer:          "metadata_pointer",
			TypeTokenMetadata:            "token_metadata",
			TypeCompressedOnly:           "compressed_only",
			TypeTransferFeeAccount:       "transfer_fee_account",
			TypeTransferHookAccount:      "transfer_hook_account",
			TypePausableAccount:          "pausable_account",
			TypePermanentDelegateAccount: "permanent_delegate_account",
			TypeOpaque:                   "opaque",
		},
	}
}

// Register 注册额外的扩展类型，类型 0 保留
func (r *Registry) Register(t core.ExtensionType, name string) error {
	if t == 0 {
		return fmt.Errorf("%w: type 0 is reserved", core.ErrInvalidExtensionType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.names[t]; ok {
		return fmt.Errorf("extension type %d already registered as %s", t, old)
	}
	r.names[t] = name
	return nil
}

func (r *Registry) Known(t core.ExtensionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[t]
	return ok
}

func (r *Registry) Name(t core.ExtensionType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", t)
}

// Validate 校验扩展列表：类型必须已注册，除 Opaque 外同一类型只能出现一次
func (r *Registry) Validate(entries []core.ExtensionEntry) error {
	seen := make(map[core.ExtensionType]struct{}, len(entries))
	for i, e := range entries {
		if !r.Known(e.Type) {
			return fmt.Errorf("%w: entry %d type %d", core.ErrInvalidExtensionType, i, e.Type)
		}
		if e.Type == TypeOpaque {
			continue
		}
		if _, dup := seen[e.Type]; dup {
			return fmt.Errorf("%w: %s", core.ErrDuplicateExtension, r.Name(e.Type))
		}
		seen[e.Type] = struct{}{}
	}
	return nil
}

// wireEntry 扩展的 borsh 线上格式：u8 类型 + Vec<u8> 内容
type wireEntry struct {
	Type    uint8
	Payload []byte
}

type wireList struct {
	Entries []wireEntry
}

// Encode 将扩展列表编码为 borsh 字节（u32 长度前缀 + 条目）
func (r *Registry) Encode(entries []core.ExtensionEntry) ([]byte, error) {
	if err := r.Validate(entries); err != nil {
		return nil, err
	}
	list := wireList{Entries: make([]wireEntry, 0, len(entries))}
	for _, e := range entries {
		list.Entries = append(list.Entries, wireEntry{Type: uint8(e.Type), Payload: e.Payload})
	}
	data, err := borsh.Serialize(list)
	if err != nil {
		return nil, fmt.Errorf("serialize extensions: %w", err)
	}
	return data, nil
}

// Decode 解码 borsh 扩展列表，data 必须恰好是一个完整列表。
// 解码出的 Payload 总是非 nil，空内容为 []byte{}。
// 输入来自不可信的叶子原像，borsh 反射解码出现 panic 时转换为 MalformedRecord。
func (r *Registry) Decode(data []byte) (entries []core.ExtensionEntry, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warnf("[Extension::Decode] panic recovered: %v", rec)
			entries = nil
			err = fmt.Errorf("%w: extension list: %v", core.ErrMalformedRecord, rec)
		}
	}()

	var list wireList
	if err := borsh.Deserialize(&list, data); err != nil {
		return nil, fmt.Errorf("%w: extension list: %v", core.ErrMalformedRecord, err)
	}

	entries = make([]core.ExtensionEntry, 0, len(list.Entries))
	for _, w := range list.Entries {
		payload := w.Payload
		if payload == nil {
			payload = []byte{}
		}
		entries = append(entries, core.ExtensionEntry{Type: core.ExtensionType(w.Type), Payload: payload})
	}
	// borsh-go 不检查尾部多余字节，这里用编码长度比对
	if EncodedLen(entries) != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes after extension list", core.ErrMalformedRecord)
	}
	if err := r.Validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EncodedLen 扩展列表的 borsh 编码长度
func EncodedLen(entries []core.ExtensionEntry) int {
	n := 4
	for _, e := range entries {
		n += 1 + 4 + len(e.Payload)
	}
	return n
}

// Find 按类型查找第一个扩展
func Find(entries []core.ExtensionEntry, t core.ExtensionType) (core.ExtensionEntry, bool) {
	for _, e := range entries {
		if e.Type == t {
			return e, true
		}
	}
	return core.ExtensionEntry{}, false
}
