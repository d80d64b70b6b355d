// internal/server/identity.go
//
// 呼叫者身分由前置閘道（反向代理、API gateway）驗證後寫入可信任標頭，
// 本服務只負責把標頭值放進 request context。
// 變更類端點一律從 context 取身分，body 欄位不會被當成身分使用。
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// DefaultIdentityHeader 為預設的身分標頭名稱。
const DefaultIdentityHeader = "X-Caller-Id"

var errNoCaller = errors.New("caller identity required")

type callerKey struct{}

// WithCaller 回傳帶有呼叫者身分的 context。
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerKey{}, callerID)
}

// CallerFromContext 取出呼叫者身分；未設定或為空字串時 ok 為 false。
func CallerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// identity 將身分標頭寫入 context。
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(s.identityHeader)); id != "" {
			r = r.WithContext(WithCaller(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
