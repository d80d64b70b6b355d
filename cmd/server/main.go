// cmd/server/main.go

// 本服務提供每個帳戶的備忘錄日誌與轉帳 API。
// 此檔案負責載入設定、初始化各模組（storage, memo, ledger, transfer, server），
// 並啟動 HTTP 伺服器；收到 SIGINT/SIGTERM 時優雅關機並保存狀態。
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := run(); err != nil {
		slog.Error("memo server exited with error", "error", err)
		os.Exit(1)
	}
}
