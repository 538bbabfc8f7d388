package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// SessionIssuer はセッションCookieの発行と削除のインターフェース。
type SessionIssuer interface {
	Issue(w http.ResponseWriter, userID string) error
	Clear(w http.ResponseWriter)
}

// AuthHandler はユーザー登録とログインのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionIssuer
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register はユーザーを登録し、そのままログイン状態にする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if err := h.sessions.Issue(w, user.ID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はメールアドレスとパスワードで認証し、セッションCookieを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if err := h.sessions.Issue(w, user.ID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はセッションCookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me はログイン中のユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
