package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/model"
)

// FollowServiceInterface はフォロー管理ハンドラーが必要とするサービスインターフェース。
type FollowServiceInterface interface {
	Follow(ctx context.Context, userID, podcastID string) error
	Unfollow(ctx context.Context, userID, podcastID string) error
	// Followed はフォロー中のポッドキャストをタイトル順で返す。
	Followed(ctx context.Context, userID string) ([]*model.Podcast, error)
}

// UserHandler はユーザーごとのフォロー管理のHTTPハンドラー。
type UserHandler struct {
	service FollowServiceInterface
	logger  *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service FollowServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// Follow はポッドキャストをフォローする。
// POST /api/podcasts/{id}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Follow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow はフォローを解除する。
// DELETE /api/podcasts/{id}/follow
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Unfollow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Followed はフォロー中のポッドキャスト一覧を返す。
// GET /api/followed
func (h *UserHandler) Followed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	podcasts, err := h.service.Followed(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponses(podcasts))
}
