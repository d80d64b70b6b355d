// internal/storage/lookup.go
//
// LookupMap 在 Backend 之上提供「命名空間 + 字串序列」的視圖。
// 實際鍵為 prefix + ":" + key，不同命名空間共用同一個後端也不會互相干擾。
//
// 序列編碼（緊湊二進位）：
//
//	uvarint(元素數) { uvarint(位元組長度) 原始位元組 }...
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
)

// LookupMap 為帶命名空間的字串序列映射。
type LookupMap struct {
	backend Backend
	prefix  string
}

// NewLookupMap 以 prefix 為命名空間建立映射。
func NewLookupMap(b Backend, prefix string) *LookupMap {
	return &LookupMap{backend: b, prefix: prefix}
}

// Get 讀取並解碼 key 對應的序列。
func (m *LookupMap) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, found, err := m.backend.Get(ctx, m.storageKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s get: %w", m.prefix, err)
	}
	if !found {
		return nil, false, nil
	}
	seq, err := DecodeStrings(raw)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s get %q: %w", m.prefix, key, err)
	}
	return seq, true, nil
}

// Insert 以新序列覆寫 key。
func (m *LookupMap) Insert(ctx context.Context, key string, seq []string) error {
	if err := m.backend.Put(ctx, m.storageKey(key), EncodeStrings(seq)); err != nil {
		return fmt.Errorf("lookup %s insert: %w", m.prefix, err)
	}
	return nil
}

func (m *LookupMap) storageKey(key string) string {
	return m.prefix + ":" + key
}

// EncodeStrings 將字串序列編碼為緊湊二進位格式。
func EncodeStrings(seq []string) []byte {
	size := binary.MaxVarintLen64
	for _, s := range seq {
		size += binary.MaxVarintLen64 + len(s)
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(seq)))
	for _, s := range seq {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// DecodeStrings 解碼 EncodeStrings 的輸出。
// 長度不足、長度欄位越界或尾端有多餘位元組，皆回傳 ErrCorrupt。
func DecodeStrings(data []byte) ([]string, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, fmt.Errorf("%w: bad element count", ErrCorrupt)
	}
	data = data[k:]
	// 每個元素至少佔一個長度位元組
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: element count %d exceeds payload", ErrCorrupt, n)
	}

	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		l, k := binary.Uvarint(data)
		if k <= 0 {
			return nil, fmt.Errorf("%w: bad length of element %d", ErrCorrupt, i)
		}
		data = data[k:]
		if l > uint64(len(data)) {
			return nil, fmt.Errorf("%w: element %d truncated", ErrCorrupt, i)
		}
		out = append(out, string(data[:l]))
		data = data[l:]
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data))
	}
	return out, nil
}
