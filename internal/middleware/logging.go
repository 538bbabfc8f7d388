package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// StatusRecorder はHTTPステータスコードをメトリクスに記録するインターフェース。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// requestInfo は下流のミドルウェアが解決した情報をアクセスログへ戻すための入れ物。
// LoadUserはグループ内で後から適用されるため、コンテキストの値だけでは外側から見えない。
type requestInfo struct {
	userID string
}

type requestInfoKey struct{}

// withRequestInfo はリクエストにrequestInfoを持たせる。既にあればそれを使う。
func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)), info
}

// noteUserID はアクセスログ用にログイン中のユーザーIDを記録する。
func noteUserID(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = userID
	}
}

// responseRecorder はステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.written {
		rr.statusCode = code
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.written {
		rr.statusCode = http.StatusOK
		rr.written = true
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// requestAttrs はアクセスログとpanicログで共通の属性を組み立てる。
// routeはchiのルートパターン（例: /api/podcasts/{id}/episodes/{number}/chat）で、
// URLパラメータからpodcast_idとepisode_numberを取り出す。
func requestAttrs(r *http.Request, info *requestInfo) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}

	userID := info.userID
	if userID == "" {
		userID, _ = UserIDFromContext(r.Context())
	}
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return attrs
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		attrs = append(attrs, slog.String("route", pattern))
	}
	if podcastID := rctx.URLParam("id"); podcastID != "" {
		attrs = append(attrs, slog.String("podcast_id", podcastID))
	}
	if n, err := strconv.Atoi(rctx.URLParam("number")); err == nil {
		attrs = append(attrs, slog.Int("episode_number", n))
	}
	return attrs
}

// NewLoggingMiddleware はリクエストごとに1行のアクセスログを出力するミドルウェアを返す。
// 4xxはWarn、5xxはErrorで出力する。metricsがnilでない場合はステータスコードも記録する。
func NewLoggingMiddleware(logger *slog.Logger, metrics StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, info := withRequestInfo(r)
			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			if metrics != nil {
				metrics.RecordHTTPStatus(rec.statusCode)
			}

			attrs := append(requestAttrs(r, info),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			)

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}
