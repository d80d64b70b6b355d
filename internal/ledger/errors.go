// internal/ledger/errors.go
//
// 本檔集中定義帳本的領域錯誤。
// 帳本扮演外部轉帳能力，這些錯誤會原封不動地經由 transfer.Action 往上傳，
// 最後由 HTTP handler 轉換成對應的狀態碼。

package ledger

import "errors"

var (
	// ErrNotFound 代表帳戶不存在。對應 404。
	ErrNotFound = errors.New("account not found")

	// ErrExists 代表帳戶已開立。對應 409。
	ErrExists = errors.New("account already exists")

	// ErrBadAmount 代表金額非法（轉帳、存款 <= 0，或開戶餘額為負）。對應 400。
	ErrBadAmount = errors.New("amount must be > 0")

	// ErrInsufficient 代表餘額不足。對應 409。
	ErrInsufficient = errors.New("insufficient balance")

	// ErrSameAccount 代表轉出與轉入帳戶相同。對應 400。
	ErrSameAccount = errors.New("from and to are same")

	// ErrEmptyID 代表帳戶識別為空字串。對應 400。
	ErrEmptyID = errors.New("account id is empty")
)
