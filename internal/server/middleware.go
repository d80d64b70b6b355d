// internal/server/middleware.go

package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader 為請求追蹤編號標頭。
const RequestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests 為每個請求補上 request id，並在結束時記錄一筆存取日誌。
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		}
		if caller, ok := CallerFromContext(r.Context()); ok {
			attrs = append(attrs, "caller_id", caller)
		}
		s.logger.InfoContext(r.Context(), "http request", attrs...)
	})
}
