// internal/storage/model.go
//
// 定義持久化層的快照結構。
// 儲存層只認得「字串鍵 → 位元組值」，不理解值的內容；
// 值的編碼（例如備忘錄序列）由上層的 LookupMap 或各模組自行負責。
package storage

import "time"

// SnapshotVersion 為目前快照格式版本。
const SnapshotVersion = 1

// Meta 為所有持久化快照的中繼資料 (metadata)。
type Meta struct {
	Storage   string    `json:"storage"`        // 儲存類型，例如 "gob_zstd_snapshot"
	Version   int       `json:"version"`        // 結構版本號
	Timestamp time.Time `json:"timestamp"`      // 快照建立時間
	Note      string    `json:"note,omitempty"` // 備註欄
}

// Snapshot 為整個鍵值空間的完整快照。
// Entries 的鍵已包含命名空間前綴（例如 "memo:alice"）。
type Snapshot struct {
	Meta    Meta
	Entries map[string][]byte
}
