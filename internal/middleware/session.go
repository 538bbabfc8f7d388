// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/hitoshi/podscribe/internal/model"
)

const sessionCookieName = "podscribe_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// sessionState はCookieに保存するセッションの内容。
type sessionState struct {
	UserID   string
	IssuedAt int64
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	HashKey  []byte // HMAC署名用の鍵（必須）
	BlockKey []byte // 暗号化用の鍵。空の場合は署名のみ
	Secure   bool
	MaxAge   time.Duration
}

// SessionManager は署名付きCookieでログイン状態を管理する。
// サーバー側にセッションを保存しないため、ログアウトはCookieの削除で行う。
type SessionManager struct {
	codec  *securecookie.SecureCookie
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if len(cfg.HashKey) < 32 {
		return nil, fmt.Errorf("セッションのハッシュキーは32バイト以上必要です")
	}
	var blockKey []byte
	if len(cfg.BlockKey) > 0 {
		switch len(cfg.BlockKey) {
		case 16, 24, 32:
			blockKey = cfg.BlockKey
		default:
			return nil, fmt.Errorf("セッションのブロックキーは16、24、32バイトのいずれかにしてください")
		}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	codec := securecookie.New(cfg.HashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))

	return &SessionManager{
		codec:  codec,
		secure: cfg.Secure,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// Issue はユーザーIDを格納したセッションCookieを発行する。
func (m *SessionManager) Issue(w http.ResponseWriter, userID string) error {
	encoded, err := m.codec.Encode(sessionCookieName, sessionState{
		UserID:   userID,
		IssuedAt: m.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("セッションCookieのエンコードに失敗しました: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear はセッションCookieを削除する。
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// userID はリクエストのCookieからユーザーIDを取り出す。
// Cookieがない、または署名が不正な場合は空文字を返す。
func (m *SessionManager) userID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return ""
	}
	if err != nil {
		slog.Warn("セッションCookieの読み取りに失敗しました", slog.String("error", err.Error()))
		return ""
	}

	var state sessionState
	if err := m.codec.Decode(sessionCookieName, cookie.Value, &state); err != nil {
		slog.Warn("セッションCookieの検証に失敗しました", slog.String("error", err.Error()))
		return ""
	}
	return state.UserID
}

// LoadUser はセッションCookieが有効な場合にユーザーIDをコンテキストに注入する。
// 未ログインのリクエストもそのまま通す。
func (m *SessionManager) LoadUser() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := m.userID(r); userID != "" {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser はログイン済みでないリクエストに401を返すミドルウェア。
// LoadUserの後に配置する。
func RequireUser() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := UserIDFromContext(r.Context()); err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	noteUserID(ctx, userID)
	return context.WithValue(ctx, userIDContextKey, userID)
}
