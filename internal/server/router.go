// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層組裝。
//   - handler.go 定義「如何處理請求」
//   - router.go 定義「請求如何被導向」
//   - cmd/server/main.go 組裝整體應用
package server

import "net/http"

// Router 建立並回傳整個 HTTP 處理鏈。
// 外層依序為：身分標頭 → 存取日誌 → 路由。
func (s *Server) Router() http.Handler {
	v1 := http.NewServeMux()

	// 健康檢查
	v1.HandleFunc("/health", s.health)

	// 備忘錄：
	//   - POST /memos                    → 為呼叫者追加
	//   - GET  /accounts/{id}/memos      → 查詢
	v1.HandleFunc("/memos", s.memos)

	// 帳本帳戶列表與子路徑：memos、balance、transfers、deposit
	v1.HandleFunc("/accounts", s.accounts)
	v1.HandleFunc("/accounts/", s.accountSubroutes)

	// 轉帳：
	//   - POST /transfer
	v1.HandleFunc("/transfer", s.transfer)

	// 所有端點掛在 /api/v1/ 下，同時保留根路徑。
	root := http.NewServeMux()
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", v1))
	root.Handle("/", v1)

	return s.identity(s.logRequests(root))
}
