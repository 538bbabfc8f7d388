package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// AIServiceInterface はAIハンドラーが必要とするサービスインターフェース。
type AIServiceInterface interface {
	// Transcript は保存済みの文字起こしを返す。ない場合はnil。
	Transcript(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
	AskChat(ctx context.Context, podcastID string, episodeNumber int, email, question string) (*model.ChatQA, error)
}

// CurrentUserFinder はログイン中のユーザーを取得するインターフェース。
type CurrentUserFinder interface {
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AIHandler は文字起こし、要約、チャットのHTTPハンドラー。
type AIHandler struct {
	service AIServiceInterface
	users   CurrentUserFinder
	logger  *slog.Logger
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(service AIServiceInterface, users CurrentUserFinder, logger *slog.Logger) *AIHandler {
	return &AIHandler{service: service, users: users, logger: logger}
}

// GetTranscript は文字起こしを文単位で返す。
// GET /api/podcasts/{id}/episodes/{number}/transcript
func (h *AIHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	podcastID, n, ok := requireEpisodeParams(w, r)
	if !ok {
		return
	}
	t, err := h.service.Transcript(r.Context(), podcastID, n)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if t == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTranscriptNotFoundError(podcastID, n))
		return
	}
	writeJSON(w, http.StatusOK, toTranscriptResponse(t))
}

// GetSummary はTLDRと箇条書きの要約を返す。
// GET /api/podcasts/{id}/episodes/{number}/summary
func (h *AIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	podcastID, n, ok := requireEpisodeParams(w, r)
	if !ok {
		return
	}
	t, err := h.service.Transcript(r.Context(), podcastID, n)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if t == nil || !t.HasSummary() {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewSummaryNotFoundError(podcastID, n))
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		PodcastID:     podcastID,
		EpisodeNumber: n,
		TLDR:          t.SummaryTLDR,
		Bullets:       t.SummaryBullets,
	})
}

// chatRequest はチャットリクエストのボディ。
type chatRequest struct {
	Question string `json:"question"`
}

// Chat はエピソードの内容について質問し、回答を返す。
// 同じ質問の回答は保存済みのものを再利用する。
// POST /api/podcasts/{id}/episodes/{number}/chat
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	podcastID, n, ok := requireEpisodeParams(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	qa, err := h.service.AskChat(r.Context(), podcastID, n, user.Email, req.Question)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		PodcastID:     qa.PodcastID,
		EpisodeNumber: qa.EpisodeNumber,
		Question:      qa.Question,
		Answer:        qa.Answer,
		CreatedAt:     qa.CreatedAt,
	})
}
