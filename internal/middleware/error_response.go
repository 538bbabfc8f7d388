package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/podscribe/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteError はサービス層のエラーをHTTPレスポンスに変換する。
// *model.APIErrorはコードに応じたステータスで返し、それ以外は内部エラーとしてログに記録する。
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusCode(apiErr), apiErr)
		return
	}

	logger.ErrorContext(r.Context(), "リクエストの処理に失敗しました",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// StatusCode はAPIErrorのコードに対応するHTTPステータスコードを返す。
func StatusCode(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL,
		model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidJobAction,
		model.ErrCodeEmptyQuestion,
		model.ErrCodeSSRFBlocked:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodePodcastNotFound,
		model.ErrCodeEpisodeNotFound,
		model.ErrCodeJobNotFound,
		model.ErrCodeTranscriptNotFound,
		model.ErrCodeSummaryNotFound,
		model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyTaken:
		return http.StatusConflict
	case model.ErrCodeFeedNotDetected, model.ErrCodeParseFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
