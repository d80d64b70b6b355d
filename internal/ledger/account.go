// Package ledger 定義帳本的領域模型與業務規則。
// 本檔定義 Account 與轉帳 Log 結構，不含任何 HTTP 或儲存細節。

package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction 標示一筆 Log 是轉入或轉出。
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Account represents a ledger account keyed by account identity.
type Account struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
	Logs    []Log           `json:"-"`
}

// Log represents one leg of a value movement.
type Log struct {
	ID        uuid.UUID       `json:"id"`
	Time      time.Time       `json:"time"`
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction"`
	CounterID string          `json:"counter_account,omitempty"`
	Note      string          `json:"note"`
}
