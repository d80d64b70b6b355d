// internal/storage/backend.go

// Package storage 提供不透明的鍵值持久化：
// 記憶體版 MemoryBackend、檔案快照版 FileBackend，
// 以及在其上加入命名空間與序列編碼的 LookupMap。
package storage

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed 代表後端已關閉，不再接受讀寫。
	ErrClosed = errors.New("storage backend closed")

	// ErrCorrupt 代表儲存的位元組無法解碼為預期格式。
	ErrCorrupt = errors.New("corrupt stored value")
)

// Backend 是最窄的儲存能力介面：只有 get 與 put。
// 實作必須對併發呼叫安全，且不得保留呼叫端傳入切片的參照。
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// MemoryBackend 為純記憶體實作，程式結束即遺失。
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryBackend 建立空的記憶體後端。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

// Get 回傳值的拷貝；鍵不存在時 found 為 false。
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

// Put 以拷貝覆寫指定鍵。
func (m *MemoryBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cloneBytes(value)
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
