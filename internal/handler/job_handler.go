package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// JobServiceInterface はジョブハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	Create(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
}

// JobHandler はバックグラウンドジョブのHTTPハンドラー。
type JobHandler struct {
	service JobServiceInterface
	logger  *slog.Logger
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobServiceInterface, logger *slog.Logger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// createJobRequest はジョブ作成リクエストのボディ。
type createJobRequest struct {
	Action        string `json:"action"`
	PodcastID     string `json:"podcast_id"`
	EpisodeNumber *int   `json:"episode_number"`
}

// CreateJob はジョブを作成する。処理はワーカーが非同期に行う。
// POST /api/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PodcastID) == "" || req.EpisodeNumber == nil || *req.EpisodeNumber < 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("podcast_idとepisode_numberは必須です"))
		return
	}

	j, err := h.service.Create(r.Context(), model.JobAction(req.Action), req.PodcastID, *req.EpisodeNumber)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if j.IsFinished {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/jobs/"+j.ID)
	writeJSON(w, status, toJobResponse(j))
}

// GetJob はジョブの状態を返す。
// GET /api/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}
