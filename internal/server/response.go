// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式與錯誤碼映射。
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"memoledger/internal/ledger"
)

// writeJSON 統一輸出成功回應。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr 統一輸出錯誤回應（純文字）。
func writeErr(w http.ResponseWriter, err error, code int) {
	http.Error(w, err.Error(), code)
}

// statusFor 將轉帳能力回報的錯誤映射為 HTTP 狀態碼：
//
//	ErrBadAmount / ErrSameAccount / ErrEmptyID → 400
//	ErrNotFound                                → 404
//	ErrInsufficient                            → 409
//	其他（儲存層故障等）                        → 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrBadAmount),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrEmptyID):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficient):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
