// internal/memo/book.go

package memo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Store 是 Book 需要的最窄儲存能力：依鍵讀出序列、以鍵寫回序列。
// storage.LookupMap 即為其實作。
type Store interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Insert(ctx context.Context, key string, seq []string) error
}

// Option 設定 Book。
type Option func(*Book)

// WithLogger 指定 Book 使用的 logger；nil 則忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(b *Book) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Book 為備忘錄簿：Append 寫入、Get 讀取。
// 同一帳戶的 Append 以鍵鎖序列化「讀取 → 追加 → 寫回」，
// 確保兩次先後發生的 Append 一定看得到彼此；不同帳戶互不阻塞。
type Book struct {
	store  Store
	locks  *keyLocks
	logger *slog.Logger
}

// NewBook 建立以 store 為後端的備忘錄簿。
func NewBook(store Store, opts ...Option) *Book {
	b := &Book{
		store:  store,
		locks:  newKeyLocks(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append 為 callerID 追加一筆 FormatEntry(text, price)。
// 帳戶尚無序列時建立只含該筆的新序列。
// 本身沒有錯誤情境；只會回傳儲存層或 context 的錯誤。
func (b *Book) Append(ctx context.Context, callerID, text, price string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memo append: %w", err)
	}
	entry := FormatEntry(text, price)

	unlock := b.locks.lock(callerID)
	defer unlock()

	seq, found, err := b.store.Get(ctx, callerID)
	if err != nil {
		return fmt.Errorf("memo append: %w", err)
	}

	var next []string
	if found {
		next = make([]string, 0, len(seq)+1)
		next = append(next, seq...)
		next = append(next, entry)
	} else {
		next = []string{entry}
	}

	if err := b.store.Insert(ctx, callerID, next); err != nil {
		return fmt.Errorf("memo append: %w", err)
	}

	b.logger.DebugContext(ctx, "memo appended",
		"caller_id", callerID,
		"memos", len(next),
		"created", !found,
	)
	return nil
}

// Get 回傳 accountID 的備忘錄序列拷貝。
// 帳戶不存在時回傳空序列（非 nil），不是錯誤。
func (b *Book) Get(ctx context.Context, accountID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memo get: %w", err)
	}
	seq, found, err := b.store.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("memo get: %w", err)
	}
	if !found {
		return []string{}, nil
	}
	out := make([]string, len(seq))
	copy(out, seq)
	return out, nil
}
