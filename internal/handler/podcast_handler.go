package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// maxEpisodeLimit はエピソード一覧で指定できる件数の上限。
const maxEpisodeLimit = 500

// PodcastServiceInterface はポッドキャストハンドラーが必要とするサービスインターフェース。
type PodcastServiceInterface interface {
	// AddPodcast はURLからフィードを検出してポッドキャストを登録する。
	AddPodcast(ctx context.Context, rawURL string) (*model.Podcast, error)
	List(ctx context.Context) ([]*model.Podcast, error)
	Get(ctx context.Context, podcastID string) (*model.Podcast, error)
	Episodes(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error)
	Delete(ctx context.Context, podcastID string) error
	// Image はカバー画像を返す。画像がない場合は (nil, nil)。
	Image(ctx context.Context, podcastID string) (*model.PodcastImage, error)
}

// PodcastHandler はポッドキャスト管理のHTTPハンドラー。
type PodcastHandler struct {
	service PodcastServiceInterface
	logger  *slog.Logger
}

// NewPodcastHandler はPodcastHandlerを生成する。
func NewPodcastHandler(service PodcastServiceInterface, logger *slog.Logger) *PodcastHandler {
	return &PodcastHandler{service: service, logger: logger}
}

// addPodcastRequest はポッドキャスト登録リクエストのボディ。
type addPodcastRequest struct {
	URL string `json:"url"`
}

// AddPodcast はポッドキャストを登録する。
// POST /api/podcasts
func (h *PodcastHandler) AddPodcast(w http.ResponseWriter, r *http.Request) {
	var req addPodcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	p, err := h.service.AddPodcast(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPodcastResponse(p))
}

// ListPodcasts は登録済みポッドキャストの一覧を返す。
// GET /api/podcasts
func (h *PodcastHandler) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	podcasts, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponses(podcasts))
}

// GetPodcast はポッドキャストの詳細を返す。
// GET /api/podcasts/{id}
func (h *PodcastHandler) GetPodcast(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponse(p))
}

// DeletePodcast はポッドキャストと関連データを削除する。
// DELETE /api/podcasts/{id}
func (h *PodcastHandler) DeletePodcast(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEpisodes はポッドキャストのエピソードを新しい順に返す。
// GET /api/podcasts/{id}/episodes?limit=N
func (h *PodcastHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEpisodeLimit {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは1から500の整数で指定してください"))
			return
		}
		limit = n
	}

	episodes, err := h.service.Episodes(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEpisodeResponses(episodes))
}

// GetImage はポッドキャストのカバー画像を返す。
// GET /api/podcasts/{id}/image
func (h *PodcastHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")
	img, err := h.service.Image(r.Context(), podcastID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if img == nil || len(img.Content) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Content)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Content)
}
