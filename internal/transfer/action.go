// internal/transfer/action.go

// Package transfer 提供轉帳動作 (TransferAction)。
// 動作本身不保存狀態、不檢核參數，只把請求交給注入的 Capability，
// 並原樣回報 Capability 的結果。
package transfer

import (
	"context"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Capability 將 amount 的價值轉給 destination。
// 檢核、原子性與錯誤回報皆由實作負責。
type Capability interface {
	Transfer(ctx context.Context, destination string, amount decimal.Decimal) error
}

// CapabilityFunc 讓一般函式可當作 Capability 使用。
type CapabilityFunc func(ctx context.Context, destination string, amount decimal.Decimal) error

// Transfer 呼叫 f。
func (f CapabilityFunc) Transfer(ctx context.Context, destination string, amount decimal.Decimal) error {
	return f(ctx, destination, amount)
}

// Option 設定 Action。
type Option func(*Action)

// WithLogger 指定記錄轉帳結果的 logger；nil 則忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(a *Action) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Action 為傳輸層呼叫的轉帳入口。
type Action struct {
	capability Capability
	logger     *slog.Logger
}

// NewAction 建立委派給 c 的 Action。
func NewAction(c Capability, opts ...Option) *Action {
	a := &Action{
		capability: c,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Transfer 委派給 Capability。
// 回傳的錯誤就是 Capability 的錯誤值本身，不另外包裝。
func (a *Action) Transfer(ctx context.Context, destination string, amount decimal.Decimal) error {
	err := a.capability.Transfer(ctx, destination, amount)
	if err != nil {
		a.logger.WarnContext(ctx, "transfer failed",
			"destination", destination,
			"amount", amount.String(),
			"error", err,
		)
		return err
	}

	a.logger.InfoContext(ctx, "transfer completed",
		"destination", destination,
		"amount", amount.String(),
	)
	return nil
}
