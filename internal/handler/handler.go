// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/podscribe/internal/ai"
	"github.com/hitoshi/podscribe/internal/job"
	"github.com/hitoshi/podscribe/internal/middleware"
	"github.com/hitoshi/podscribe/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 失敗時はINVALID_REQUESTのレスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// センチネルエラーは対応するAPIErrorに置き換える。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		err = model.NewJobNotFoundError(chi.URLParam(r, "id"))
	case errors.Is(err, ai.ErrTranscriptRequired):
		podcastID, n, _ := episodeParams(r)
		err = model.NewTranscriptNotFoundError(podcastID, n)
	}
	middleware.WriteError(w, r, logger, err)
}

// requireUserID はコンテキストからユーザーIDを取り出す。
// 未ログインの場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// episodeParams はURLパスからポッドキャストIDとエピソード番号を取り出す。
func episodeParams(r *http.Request) (string, int, bool) {
	podcastID := chi.URLParam(r, "id")
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 0 {
		return podcastID, 0, false
	}
	return podcastID, n, true
}

// requireEpisodeParams はepisodeParamsの結果を検証し、不正な場合は400を書き込む。
func requireEpisodeParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	podcastID, n, ok := episodeParams(r)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("エピソード番号は0以上の整数で指定してください"))
		return "", 0, false
	}
	return podcastID, n, true
}
