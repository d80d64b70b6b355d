// internal/storage/filestore.go
//
// FileBackend：記憶體索引 + 檔案快照的鍵值後端。
// 每次 Put 都會同步寫出整份快照（write-through），
// 寫檔失敗時還原記憶體中的該筆資料，使 Put 成為「全有或全無」。
//
// 快照格式：gob 編碼後以 zstd 壓縮。
// 寫入沿用「暫存檔 + rename」的原子替換流程，避免寫到一半的檔案覆蓋舊檔。
package storage

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const fileStorageKind = "gob_zstd_snapshot"

// FileBackend 為檔案持久化的 Backend 實作。
type FileBackend struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]byte
	closed  bool
}

// OpenFile 開啟（或建立）指定路徑的檔案後端。
// 檔案不存在時以空資料啟動；檔案存在但無法解碼則回傳錯誤。
func OpenFile(path string) (*FileBackend, error) {
	fb := &FileBackend{path: path, entries: make(map[string][]byte)}

	snap, err := LoadSnapshot(path)
	switch {
	case err == nil:
		if snap.Entries != nil {
			fb.entries = snap.Entries
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open file backend %s: %w", path, err)
	}
	return fb, nil
}

// Get 回傳值的拷貝。
func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	v, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

// Put 寫入一筆資料並立即落盤。
func (f *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	prev, had := f.entries[key]
	f.entries[key] = cloneBytes(value)
	if err := f.saveLocked(); err != nil {
		// 還原，確保失敗的 Put 不留下任何痕跡
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return fmt.Errorf("file backend put %q: %w", key, err)
	}
	return nil
}

// Flush 重新寫出整份快照。
func (f *FileBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.saveLocked()
}

// Close 寫出最後一次快照並拒絕後續操作。可重複呼叫。
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.saveLocked()
}

func (f *FileBackend) saveLocked() error {
	return SaveSnapshot(f.path, Snapshot{
		Meta:    Meta{Version: SnapshotVersion},
		Entries: f.entries,
	})
}

// LoadSnapshot 讀取並解碼指定路徑的快照。
// 檔案不存在時回傳的錯誤滿足 errors.Is(err, os.ErrNotExist)。
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	file, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return snap, fmt.Errorf("new zstd reader: %w", err)
	}
	defer dec.Close()

	if err := gob.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Meta.Version > SnapshotVersion {
		return snap, fmt.Errorf("snapshot version %d newer than supported %d", snap.Meta.Version, SnapshotVersion)
	}
	return snap, nil
}

// SaveSnapshot 以原子方式寫出快照：
//  1. 補上 Meta.Storage 與時間戳。
//  2. 寫入 path+".tmp" 並 fsync。
//  3. rename 取代正式檔案；任何一步失敗都會刪除暫存檔。
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta.Storage = fileStorageKind
	snap.Meta.Timestamp = time.Now().UTC()
	if snap.Entries == nil {
		snap.Entries = make(map[string][]byte)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("new zstd writer: %w", err)
	}
	if err := gob.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	// 原子替換
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
