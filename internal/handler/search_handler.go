package handler

import (
	"context"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// maxQueryLength は検索文字列の最大文字数。
const maxQueryLength = 200

// SearcherInterface は検索ハンドラーが必要とするインターフェース。
type SearcherInterface interface {
	Search(ctx context.Context, text string) (*model.SearchResult, error)
}

// SearchHandler はキーワード検索のHTTPハンドラー。
type SearchHandler struct {
	searcher SearcherInterface
	logger   *slog.Logger
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(searcher SearcherInterface, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

type searchResponse struct {
	Query    string            `json:"query"`
	Podcasts []podcastResponse `json:"podcasts"`
	Episodes []episodeResponse `json:"episodes"`
}

// Search は全キーワードを含むエピソードとそのポッドキャストを返す。
// GET /api/search?q=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if utf8.RuneCountInString(q) > maxQueryLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("検索文字列が長すぎます"))
		return
	}

	result, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:    q,
		Podcasts: toPodcastResponses(result.Podcasts),
		Episodes: toEpisodeResponses(result.Episodes),
	})
}
