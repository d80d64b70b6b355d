// internal/ledger/snapshot.go
//
// 帳本狀態的匯出與還原。
// 快照以 JSON 編碼後存進 storage.Backend 的單一鍵，
// 與備忘錄共用同一個後端但位於不同鍵空間。

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"memoledger/internal/storage"
)

// SnapshotKey 為帳本快照在後端中的預設鍵。
const SnapshotKey = "ledger:state"

// PersistAccount 為帳戶在儲存層的序列化格式。
type PersistAccount struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
	Logs    []Log           `json:"logs"`
}

// Snapshot 為帳本的完整快照。
type Snapshot struct {
	Meta     storage.Meta     `json:"_meta"`
	Accounts []PersistAccount `json:"accounts"`
}

// Snapshot 匯出目前狀態，帳戶依識別排序。
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		Meta: storage.Meta{
			Storage:   "json_snapshot",
			Version:   1,
			Timestamp: l.now().UTC(),
		},
	}
	for _, a := range l.accts {
		logs := make([]Log, len(a.Logs))
		copy(logs, a.Logs)
		s.Accounts = append(s.Accounts, PersistAccount{ID: a.ID, Balance: a.Balance, Logs: logs})
	}
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].ID < s.Accounts[j].ID })
	return s
}

// Restore 以快照取代目前全部狀態。
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accts = make(map[string]*Account, len(s.Accounts))
	for _, pa := range s.Accounts {
		logs := make([]Log, len(pa.Logs))
		copy(logs, pa.Logs)
		l.accts[pa.ID] = &Account{ID: pa.ID, Balance: pa.Balance, Logs: logs}
	}
}

// Save 將快照寫入後端。
// 多個 Save 依序執行，每次都在取得 saveMu 之後才取快照。
func (l *Ledger) Save(ctx context.Context, b storage.Backend, key string) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	data, err := json.Marshal(l.Snapshot())
	if err != nil {
		return fmt.Errorf("ledger save: encode: %w", err)
	}
	if err := b.Put(ctx, key, data); err != nil {
		return fmt.Errorf("ledger save: %w", err)
	}
	return nil
}

// Load 從後端讀回快照並還原；鍵不存在時回傳 false 且不改變帳本。
func (l *Ledger) Load(ctx context.Context, b storage.Backend, key string) (bool, error) {
	data, found, err := b.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger load: %w", err)
	}
	if !found {
		return false, nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return false, fmt.Errorf("ledger load: decode: %w", err)
	}
	l.Restore(s)
	return true, nil
}
