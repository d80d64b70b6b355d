// internal/memo/entry.go

// Package memo 定義每個帳戶的備忘錄日誌 (MemoStore)：
// 以帳戶識別為鍵，保存一串依寫入順序排列的備忘錄字串。
// 序列在第一次寫入時建立，之後只會往尾端追加，永不刪除或截斷。
package memo

const (
	// Separator 為描述與價格之間的固定分隔字串。
	Separator = " || "

	// Unit 為價格後綴的固定單位。
	Unit = "NEAR"
)

// FormatEntry 組出一筆備忘錄：text + " || " + price + "NEAR"。
// 不做 trim，也不跳脫 text 中出現的分隔字串。
func FormatEntry(text, price string) string {
	return text + Separator + price + Unit
}
