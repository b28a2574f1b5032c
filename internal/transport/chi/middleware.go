package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	logpkg "github.com/kailas-cloud/docdex/internal/logger"
)

const headerRequestID = "X-Request-ID"

// requestScope gives every request a logger tagged with its request id
// and writes one access line when the handler returns. Token headers set
// by the rules handlers are copied into the line.
func requestScope(base *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := chiMiddleware.GetReqID(r.Context())
			if id != "" {
				w.Header().Set(headerRequestID, id)
			}
			log := base.With(zap.String("request_id", id))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logpkg.Into(r.Context(), log)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", chi.RouteContext(r.Context()).RoutePattern()),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
				zap.String("ip", r.RemoteAddr),
			}
			for _, h := range []string{headerEmbeddingTokens, headerCompletionTokens} {
				if v := ww.Header().Get(h); v != "" {
					fields = append(fields, zap.String(h, v))
				}
			}

			level := zapcore.InfoLevel
			if status >= http.StatusInternalServerError {
				level = zapcore.WarnLevel
			}
			log.Log(level, "http_request", fields...)
		})
	}
}

// recoverJSON answers a handler panic with a JSON 500. Aborted handlers
// re-panic so net/http drops the connection.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rvr)
			}
			logpkg.From(r.Context()).Error("Handler panicked",
				zap.Any("panic", rvr),
				zap.Stack("stacktrace"),
			)
			writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
