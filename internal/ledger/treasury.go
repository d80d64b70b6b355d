// internal/ledger/treasury.go

package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"memoledger/internal/transfer"
)

var _ transfer.Capability = (*Treasury)(nil)

// Treasury 將帳本包裝成 transfer.Capability：
// 所有轉帳都從固定的來源帳戶（服務自身帳戶）扣款。
type Treasury struct {
	ledger *Ledger
	source string
}

// NewTreasury 以 source 作為轉出帳戶。
func NewTreasury(l *Ledger, source string) *Treasury {
	return &Treasury{ledger: l, source: source}
}

// Source 回傳轉出帳戶識別。
func (t *Treasury) Source() string {
	return t.source
}

// Transfer 實作 transfer.Capability；錯誤為帳本的哨兵錯誤本身。
func (t *Treasury) Transfer(ctx context.Context, destination string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.ledger.Transfer(t.source, destination, amount)
	return err
}
