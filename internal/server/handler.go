// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP 介面，作為 memo 與 transfer 的傳輸層。
// 每個 handler 僅負責：
//  1. 接收與驗證 HTTP 請求（呼叫者身分取自可信任標頭，不取自 body）
//  2. 呼叫 memo.Book 或 transfer.Action
//  3. 回傳 JSON 回應
//  4. 轉帳成功後呼叫 s.persist()
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"memoledger/internal/ledger"
	"memoledger/internal/memo"
	"memoledger/internal/transfer"
)

const maxBodyBytes = 1 << 20

// Ledger 為帳本端點需要的能力：查詢餘額與日誌、列出帳戶、存款。
type Ledger interface {
	Get(id string) (*ledger.Account, error)
	Logs(id string) ([]ledger.Log, error)
	List() []*ledger.Account
	Total() decimal.Decimal
	Deposit(id string, amt decimal.Decimal) (*ledger.Account, error)
}

// Option 設定 Server。
type Option func(*Server)

// WithLedger 啟用 /accounts 與 /accounts/{id}/{balance,transfers,deposit}。
func WithLedger(r Ledger) Option {
	return func(s *Server) { s.ledger = r }
}

// WithPersist 注入持久化鉤子，於每次成功轉帳或存款後觸發。
func WithPersist(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.persist = fn }
}

// WithLogger 指定 logger；nil 則忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdentityHeader 指定由前置閘道寫入的呼叫者身分標頭。
func WithIdentityHeader(name string) Option {
	return func(s *Server) {
		if strings.TrimSpace(name) != "" {
			s.identityHeader = http.CanonicalHeaderKey(strings.TrimSpace(name))
		}
	}
}

// Server 為 HTTP 層核心結構。
type Server struct {
	Memos     *memo.Book
	Transfers *transfer.Action

	ledger         Ledger
	persist        func(ctx context.Context) error
	logger         *slog.Logger
	identityHeader string
}

// NewServer 建立 HTTP 伺服器。
func NewServer(book *memo.Book, action *transfer.Action, opts ...Option) *Server {
	s := &Server{
		Memos:          book,
		Transfers:      action,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		identityHeader: DefaultIdentityHeader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// memos 處理 POST /memos：為目前呼叫者追加一筆備忘錄。
func (s *Server) memos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeErr(w, errNoCaller, http.StatusUnauthorized)
		return
	}

	var req struct {
		MemoText string `json:"memo_text"`
		Price    string `json:"price"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}

	if err := s.Memos.Append(r.Context(), caller, req.MemoText, req.Price); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"account_id": caller,
		"entry":      memo.FormatEntry(req.MemoText, req.Price),
	})
}

// accounts 處理 GET /accounts：列出帳本帳戶與餘額總和。
func (s *Server) accounts(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": s.ledger.List(),
		"total":    s.ledger.Total(),
	})
}

// accountSubroutes 處理子路徑：
//
//	GET  /accounts/{id}/memos      → 備忘錄序列（不存在回傳 []）
//	GET  /accounts/{id}/balance    → 帳本餘額
//	GET  /accounts/{id}/transfers  → 帳本轉帳日誌
//	POST /accounts/{id}/deposit    → 帳本存款
//
// 帳戶識別可含 "/"，須以 %2F 編碼；因此以未解碼的路徑切割。
func (s *Server) accountSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/accounts/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil || id == "" {
		http.NotFound(w, r)
		return
	}
	sub := parts[1]

	want := http.MethodGet
	switch sub {
	case "memos", "balance", "transfers":
	case "deposit":
		want = http.MethodPost
	default:
		http.NotFound(w, r)
		return
	}
	if r.Method != want {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sub == "memos" {
		memos, err := s.Memos.Get(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, memos)
		return
	}

	if s.ledger == nil {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "balance":
		a, err := s.ledger.Get(id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)

	case "transfers":
		logs, err := s.ledger.Logs(id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)

	case "deposit":
		s.deposit(w, r, id)
	}
}

// deposit 處理 POST /accounts/{id}/deposit，body 為 {amount}。
// 用於為金庫等帳戶注資；需要呼叫者身分，成功後觸發 persist。
func (s *Server) deposit(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeErr(w, errNoCaller, http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}

	a, err := s.ledger.Deposit(id, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "deposit completed",
		"account_id", id,
		"amount", req.Amount.String(),
		"caller_id", caller,
	)
	s.runPersist(r.Context(), "deposit")
	writeJSON(w, http.StatusOK, a)
}

// transfer 處理 POST /transfer，body 為 {destination, amount}。
// 金額不在本地檢核，直接交給轉帳能力判斷。
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeErr(w, errNoCaller, http.StatusUnauthorized)
		return
	}

	var req struct {
		Destination string          `json:"destination"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}

	if err := s.Transfers.Transfer(r.Context(), req.Destination, req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}

	s.runPersist(r.Context(), "transfer")

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "transfer success",
		"requested_by": caller,
		"destination":  req.Destination,
		"amount":       req.Amount,
	})
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runPersist 於帳本變更成功後寫入快照；失敗只記錄，變更本身已完成。
func (s *Server) runPersist(ctx context.Context, op string) {
	if s.persist == nil {
		return
	}
	if err := s.persist(ctx); err != nil {
		s.logger.ErrorContext(ctx, "persist after "+op+" failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeErr(w, err, code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
