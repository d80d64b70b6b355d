// internal/ledger/ledger.go

// Package ledger 是外部「價值轉移能力」的行程內實作：開戶、存款、轉帳與轉帳日誌。
// 採用單一互斥鎖 (sync.Mutex) 保障所有狀態變更「原子且序列化」，
// 任一檢核失敗都不會改變任何帳戶。
// 金額以 decimal.Decimal 儲存，避免浮點誤差。
package ledger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger 為聚合根：管理所有帳戶。
// - mu：序列化所有讀寫，確保轉帳的雙邊更新原子完成。
// - accts：帳戶索引表（帳戶識別 → *Account），指標只在臨界區內修改。
// - saveMu：序列化 Save 的「取快照 → 寫入後端」，較舊的快照不會覆蓋較新的。
type Ledger struct {
	mu     sync.Mutex
	saveMu sync.Mutex
	accts  map[string]*Account
	now    func() time.Time
}

// New 建立空白帳本。
func New() *Ledger {
	return &Ledger{
		accts: make(map[string]*Account),
		now:   time.Now,
	}
}

// Open 以初始餘額開立帳戶；初始餘額不得為負，帳戶識別不得重複。
func (l *Ledger) Open(id string, balance decimal.Decimal) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	if balance.IsNegative() {
		return nil, ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accts[id]; ok {
		return nil, ErrExists
	}
	a := &Account{ID: id, Balance: balance}
	l.accts[id] = a
	return copyAccount(a), nil
}

// Get 依帳戶識別取得目前快照；不存在回傳 ErrNotFound。
func (l *Ledger) Get(id string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

// List 回傳所有帳戶快照，依帳戶識別排序。
func (l *Ledger) List() []*Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Account, 0, len(l.accts))
	for _, a := range l.accts {
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deposit 存款：金額需 > 0。於臨界區內同時更新餘額與日誌。
func (l *Ledger) Deposit(id string, amt decimal.Decimal) (*Account, error) {
	if !amt.IsPositive() {
		return nil, ErrBadAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Balance = a.Balance.Add(amt)
	a.Logs = append(a.Logs, Log{ID: uuid.New(), Time: l.now(), Amount: amt, Direction: DirectionIn, Note: "deposit"})
	return copyAccount(a), nil
}

// Transfer 為單一臨界區內的原子操作：
// 1) 檢核金額與帳戶 → 2) 檢查餘額 → 3) 扣款與入帳 → 4) 雙邊日誌。
// 回傳轉出方的日誌。
func (l *Ledger) Transfer(fromID, toID string, amt decimal.Decimal) (Log, error) {
	if !amt.IsPositive() {
		return Log{}, ErrBadAmount
	}
	if fromID == toID {
		return Log{}, ErrSameAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok1 := l.accts[fromID]
	to, ok2 := l.accts[toID]
	if !ok1 || !ok2 {
		return Log{}, ErrNotFound
	}
	if from.Balance.LessThan(amt) {
		return Log{}, ErrInsufficient
	}

	from.Balance = from.Balance.Sub(amt)
	to.Balance = to.Balance.Add(amt)

	now := l.now()
	out := Log{ID: uuid.New(), Time: now, Amount: amt, Direction: DirectionOut, CounterID: toID, Note: "transfer"}
	from.Logs = append(from.Logs, out)
	to.Logs = append(to.Logs, Log{ID: uuid.New(), Time: now, Amount: amt, Direction: DirectionIn, CounterID: fromID, Note: "transfer"})
	return out, nil
}

// Logs 回傳指定帳戶的日誌拷貝。
func (l *Ledger) Logs(id string) ([]Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Log, len(a.Logs))
	copy(out, a.Logs)
	return out, nil
}

// Total 回傳所有帳戶餘額總和。
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := decimal.Zero
	for _, a := range l.accts {
		sum = sum.Add(a.Balance)
	}
	return sum
}

func copyAccount(a *Account) *Account {
	cp := *a
	cp.Logs = nil
	return &cp
}
