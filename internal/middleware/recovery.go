package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicを500のAPIエラーに変換する。
// ログにはアクセスログと同じリクエスト属性（ルート、ポッドキャスト、ユーザー）を付ける。
// http.ErrAbortHandlerはnet/httpに処理させるため再送出する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, info := withRequestInfo(r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				attrs := append(requestAttrs(r, info),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
