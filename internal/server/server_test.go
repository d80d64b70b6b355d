// internal/server/server_test.go
//
// 本檔為 server 層的整合測試。
// 以 httptest.Server 模擬完整 HTTP 請求流程，驗證：
//  1. 備忘錄追加與查詢（含空帳戶回傳 []）。
//  2. 轉帳委派給帳本、錯誤碼映射、且不影響備忘錄。
//  3. 呼叫者身分只取自可信任標頭。
//  4. 成功轉帳後觸發 persist 鉤子。
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoledger/internal/ledger"
	"memoledger/internal/memo"
	"memoledger/internal/storage"
	"memoledger/internal/transfer"
)

type fixture struct {
	ts       *httptest.Server
	ledger   *ledger.Ledger
	book     *memo.Book
	persists *int32
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	l := ledger.New()
	_, err := l.Open("treasury", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = l.Open("carol", decimal.Zero)
	require.NoError(t, err)

	var persists int32
	book := memo.NewBook(storage.NewLookupMap(storage.NewMemoryBackend(), "memo"))
	action := transfer.NewAction(ledger.NewTreasury(l, "treasury"))

	base := []Option{
		WithLedger(l),
		WithPersist(func(context.Context) error {
			atomic.AddInt32(&persists, 1)
			return nil
		}),
	}
	s := NewServer(book, action, append(base, opts...)...)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	return &fixture{ts: ts, ledger: l, book: book, persists: &persists}
}

// doJSON 封裝 HTTP JSON 請求並驗證狀態碼；caller 非空時帶上身分標頭。
func doJSON(t *testing.T, c *http.Client, method, url, caller string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(DefaultIdentityHeader, caller)
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantCode, resp.StatusCode, "body: %s", raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func TestHTTPFlowAndPersistHook(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()
	base := f.ts.URL

	// 1. 追加兩筆備忘錄
	var created map[string]string
	doJSON(t, cli, "POST", base+"/memos", "alice", map[string]any{"memo_text": "lunch", "price": "5"}, 201, &created)
	assert.Equal(t, "alice", created["account_id"])
	assert.Equal(t, "lunch || 5NEAR", created["entry"])
	doJSON(t, cli, "POST", base+"/memos", "alice", map[string]any{"memo_text": "coffee", "price": "2"}, 201, nil)

	var memos []string
	doJSON(t, cli, "GET", base+"/accounts/alice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"lunch || 5NEAR", "coffee || 2NEAR"}, memos)

	// 2. 沒有任何備忘錄的帳戶回傳 []，不是 null
	resp, err := cli.Get(base + "/accounts/bob/memos")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))

	// 3. 轉帳
	var tr struct {
		Message     string          `json:"message"`
		RequestedBy string          `json:"requested_by"`
		Destination string          `json:"destination"`
		Amount      decimal.Decimal `json:"amount"`
	}
	doJSON(t, cli, "POST", base+"/transfer", "alice", map[string]any{"destination": "carol", "amount": 10}, 200, &tr)
	assert.Equal(t, "carol", tr.Destination)
	assert.Equal(t, "alice", tr.RequestedBy)
	assert.True(t, tr.Amount.Equal(decimal.NewFromInt(10)))

	var carol ledger.Account
	doJSON(t, cli, "GET", base+"/accounts/carol/balance", "", nil, 200, &carol)
	assert.True(t, carol.Balance.Equal(decimal.NewFromInt(10)))

	var logs []ledger.Log
	doJSON(t, cli, "GET", base+"/accounts/carol/transfers", "", nil, 200, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "treasury", logs[0].CounterID)

	// 轉帳不影響備忘錄
	doJSON(t, cli, "GET", base+"/accounts/alice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"lunch || 5NEAR", "coffee || 2NEAR"}, memos)
	doJSON(t, cli, "GET", base+"/accounts/carol/memos", "", nil, 200, &memos)
	assert.Empty(t, memos)

	// 4. 錯誤情境
	doJSON(t, cli, "POST", base+"/transfer", "alice", map[string]any{"destination": "carol", "amount": 999999}, 409, nil)
	doJSON(t, cli, "POST", base+"/transfer", "alice", map[string]any{"destination": "nobody", "amount": 1}, 404, nil)
	doJSON(t, cli, "POST", base+"/transfer", "alice", map[string]any{"destination": "carol", "amount": "0"}, 400, nil)
	doJSON(t, cli, "POST", base+"/transfer", "alice", map[string]any{"destination": "treasury", "amount": 1}, 400, nil)
	doJSON(t, cli, "GET", base+"/transfer", "alice", nil, 405, nil)
	doJSON(t, cli, "GET", base+"/accounts/nobody/balance", "", nil, 404, nil)

	req, _ := http.NewRequest("POST", base+"/memos", bytes.NewBufferString("{bad json}"))
	req.Header.Set(DefaultIdentityHeader, "alice")
	resp, err = cli.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// 失敗的轉帳同樣不碰備忘錄
	doJSON(t, cli, "GET", base+"/accounts/alice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"lunch || 5NEAR", "coffee || 2NEAR"}, memos)
	doJSON(t, cli, "GET", base+"/accounts/nobody/memos", "", nil, 200, &memos)
	assert.Empty(t, memos)

	// 5. 只有成功的轉帳觸發 persist
	assert.Equal(t, int32(1), atomic.LoadInt32(f.persists))
	treasury, err := f.ledger.Get("treasury")
	require.NoError(t, err)
	assert.True(t, treasury.Balance.Equal(decimal.NewFromInt(90)))
}

func TestMutationsRequireCaller(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	doJSON(t, cli, "POST", f.ts.URL+"/memos", "", map[string]any{"memo_text": "x", "price": "1"}, 401, nil)
	doJSON(t, cli, "POST", f.ts.URL+"/transfer", "", map[string]any{"destination": "carol", "amount": 1}, 401, nil)
	doJSON(t, cli, "POST", f.ts.URL+"/memos", "   ", map[string]any{"memo_text": "x", "price": "1"}, 401, nil)

	assert.Equal(t, int32(0), atomic.LoadInt32(f.persists))
	carol, _ := f.ledger.Get("carol")
	assert.True(t, carol.Balance.IsZero())
}

func TestCallerIsNeverTakenFromBody(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	body := map[string]any{"memo_text": "x", "price": "1", "caller_id": "mallory", "account_id": "mallory"}
	doJSON(t, cli, "POST", f.ts.URL+"/memos", "alice", body, 201, nil)

	var memos []string
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/alice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"x || 1NEAR"}, memos)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/mallory/memos", "", nil, 200, &memos)
	assert.Empty(t, memos)
}

func TestCustomIdentityHeader(t *testing.T) {
	f := newFixture(t, WithIdentityHeader("x-account"))
	cli := f.ts.Client()

	// 預設標頭不再被採信
	doJSON(t, cli, "POST", f.ts.URL+"/memos", "alice", map[string]any{"memo_text": "x", "price": "1"}, 401, nil)

	req, _ := http.NewRequest("POST", f.ts.URL+"/api/v1/memos", bytes.NewBufferString(`{"memo_text":"y","price":"2"}`))
	req.Header.Set("X-Account", "alice")
	resp, err := cli.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	memos, err := f.book.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"y || 2NEAR"}, memos)
}

func TestAPIv1PrefixAndRequestID(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	resp, err := cli.Get(f.ts.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, _ := http.NewRequest("GET", f.ts.URL+"/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err = cli.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
}

func TestRoutingErrors(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	doJSON(t, cli, "POST", f.ts.URL+"/accounts/alice/memos", "alice", nil, 405, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/memos", "alice", nil, 405, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/alice", "", nil, 404, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/alice/unknown", "", nil, 404, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts//memos", "", nil, 404, nil)
}

func TestLedgerRoutesDisabledWithoutLedger(t *testing.T) {
	book := memo.NewBook(storage.NewLookupMap(storage.NewMemoryBackend(), "memo"))
	action := transfer.NewAction(transfer.CapabilityFunc(func(context.Context, string, decimal.Decimal) error { return nil }))
	ts := httptest.NewServer(NewServer(book, action).Router())
	defer ts.Close()

	doJSON(t, ts.Client(), "GET", ts.URL+"/accounts/alice/balance", "", nil, 404, nil)
	doJSON(t, ts.Client(), "GET", ts.URL+"/accounts/alice/transfers", "", nil, 404, nil)
	doJSON(t, ts.Client(), "GET", ts.URL+"/accounts", "", nil, 404, nil)
	doJSON(t, ts.Client(), "POST", ts.URL+"/accounts/alice/deposit", "alice", map[string]any{"amount": 1}, 404, nil)
	// 沒有 persist 鉤子也能轉帳
	doJSON(t, ts.Client(), "POST", ts.URL+"/transfer", "alice", map[string]any{"destination": "carol", "amount": 1}, 200, nil)
}

func TestAccountIDWithSlash(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	doJSON(t, cli, "POST", f.ts.URL+"/memos", "team/alice", map[string]any{"memo_text": "x", "price": "1"}, 201, nil)

	var memos []string
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/team%2Falice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"x || 1NEAR"}, memos)
	doJSON(t, cli, "GET", f.ts.URL+"/api/v1/accounts/team%2Falice/memos", "", nil, 200, &memos)
	assert.Equal(t, []string{"x || 1NEAR"}, memos)

	// 未編碼的 "/" 仍是路徑分隔
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/team/alice/memos", "", nil, 404, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/team/memos", "", nil, 200, &memos)
	assert.Empty(t, memos)
}

func TestDepositAndAccountList(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	doJSON(t, cli, "POST", f.ts.URL+"/accounts/treasury/deposit", "", map[string]any{"amount": 50}, 401, nil)
	doJSON(t, cli, "POST", f.ts.URL+"/accounts/treasury/deposit", "ops", map[string]any{"amount": 0}, 400, nil)
	doJSON(t, cli, "POST", f.ts.URL+"/accounts/nobody/deposit", "ops", map[string]any{"amount": 1}, 404, nil)
	doJSON(t, cli, "GET", f.ts.URL+"/accounts/treasury/deposit", "ops", nil, 405, nil)
	assert.Equal(t, int32(0), atomic.LoadInt32(f.persists))

	var treasury ledger.Account
	doJSON(t, cli, "POST", f.ts.URL+"/accounts/treasury/deposit", "ops", map[string]any{"amount": "50.5"}, 200, &treasury)
	assert.Equal(t, "150.5", treasury.Balance.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(f.persists))

	var list struct {
		Accounts []ledger.Account `json:"accounts"`
		Total    decimal.Decimal  `json:"total"`
	}
	doJSON(t, cli, "GET", f.ts.URL+"/accounts", "", nil, 200, &list)
	require.Len(t, list.Accounts, 2)
	assert.Equal(t, "carol", list.Accounts[0].ID)
	assert.Equal(t, "treasury", list.Accounts[1].ID)
	assert.Equal(t, "150.5", list.Total.String())
	doJSON(t, cli, "POST", f.ts.URL+"/accounts", "ops", nil, 405, nil)

	// 存款後金庫可轉出更多
	doJSON(t, cli, "POST", f.ts.URL+"/transfer", "alice", map[string]any{"destination": "carol", "amount": 120}, 200, nil)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func (brokenStore) Insert(context.Context, string, []string) error {
	return errors.New("store unavailable")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	action := transfer.NewAction(transfer.CapabilityFunc(func(context.Context, string, decimal.Decimal) error { return nil }))
	ts := httptest.NewServer(NewServer(memo.NewBook(brokenStore{}), action).Router())
	defer ts.Close()

	doJSON(t, ts.Client(), "POST", ts.URL+"/memos", "alice", map[string]any{"memo_text": "x", "price": "1"}, 500, nil)
	doJSON(t, ts.Client(), "GET", ts.URL+"/accounts/alice/memos", "", nil, 500, nil)
}

func TestPersistFailureDoesNotFailTransfer(t *testing.T) {
	f := newFixture(t, WithPersist(func(context.Context) error { return errors.New("disk full") }))

	doJSON(t, f.ts.Client(), "POST", f.ts.URL+"/transfer", "alice", map[string]any{"destination": "carol", "amount": "2.5"}, 200, nil)
	carol, err := f.ledger.Get("carol")
	require.NoError(t, err)
	assert.Equal(t, "2.5", carol.Balance.String())
}

func TestConcurrentMemoPosts(t *testing.T) {
	f := newFixture(t)
	cli := f.ts.Client()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"memo_text":"m%d","price":"1"}`, i)
			req, _ := http.NewRequest("POST", f.ts.URL+"/memos", bytes.NewBufferString(body))
			req.Header.Set(DefaultIdentityHeader, "alice")
			resp, err := cli.Do(req)
			if err != nil {
				t.Errorf("post: %v", err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("code=%d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	memos, err := f.book.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, memos, n)
}
