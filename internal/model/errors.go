package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, ai, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFeedNotDetected    = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodePodcastNotFound    = "PODCAST_NOT_FOUND"
	ErrCodeEpisodeNotFound    = "EPISODE_NOT_FOUND"
	ErrCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrCodeInvalidJobAction   = "INVALID_JOB_ACTION"
	ErrCodeTranscriptNotFound = "TRANSCRIPT_NOT_FOUND"
	ErrCodeSummaryNotFound    = "SUMMARY_NOT_FOUND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyTaken  = "EMAIL_ALREADY_TAKEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeEmptyQuestion      = "EMPTY_QUESTION"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
)

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからポッドキャストのRSSフィードを検出できませんでした: %s", url),
		Category: "feed",
		Action:   "RSSフィードのURLを直接入力するか、ポッドキャストのWebサイトのURLを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "feed",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。タイトルまたはエピソードがありません。",
		Category: "feed",
		Action:   "有効なポッドキャストのRSSフィードかどうか確認してください。",
	}
}

// NewPodcastNotFoundError はポッドキャスト未検出エラーを生成する。
func NewPodcastNotFoundError(podcastID string) *APIError {
	return &APIError{
		Code:     ErrCodePodcastNotFound,
		Message:  fmt.Sprintf("指定されたポッドキャストが見つかりません: %s", podcastID),
		Category: "feed",
		Action:   "ポッドキャストIDを確認してください。",
	}
}

// NewEpisodeNotFoundError はエピソード未検出エラーを生成する。
func NewEpisodeNotFoundError(podcastID string, episodeNumber int) *APIError {
	return &APIError{
		Code:     ErrCodeEpisodeNotFound,
		Message:  fmt.Sprintf("指定されたエピソードが見つかりません: %s #%d", podcastID, episodeNumber),
		Category: "feed",
		Action:   "エピソード番号を確認してください。",
	}
}

// NewJobNotFoundError はジョブ未検出エラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定されたジョブが見つかりません: %s", jobID),
		Category: "ai",
		Action:   "ジョブIDを確認してください。ジョブは7日後に削除されます。",
	}
}

// NewInvalidJobActionError は未対応のジョブ種別エラーを生成する。
func NewInvalidJobActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJobAction,
		Message:  fmt.Sprintf("未対応のジョブ種別です: %s", action),
		Category: "validation",
		Action:   "transcribe、summarize、chat のいずれかを指定してください。",
	}
}

// NewTranscriptNotFoundError は文字起こし未作成エラーを生成する。
func NewTranscriptNotFoundError(podcastID string, episodeNumber int) *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptNotFound,
		Message:  fmt.Sprintf("文字起こしがまだありません: %s #%d", podcastID, episodeNumber),
		Category: "ai",
		Action:   "先に文字起こしジョブを実行してください。",
	}
}

// NewSummaryNotFoundError は要約未作成エラーを生成する。
func NewSummaryNotFoundError(podcastID string, episodeNumber int) *APIError {
	return &APIError{
		Code:     ErrCodeSummaryNotFound,
		Message:  fmt.Sprintf("要約がまだありません: %s #%d", podcastID, episodeNumber),
		Category: "ai",
		Action:   "先に要約ジョブを実行してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailAlreadyTakenError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewEmptyQuestionError は質問未入力エラーを生成する。
func NewEmptyQuestionError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyQuestion,
		Message:  "質問が入力されていません。",
		Category: "validation",
		Action:   "エピソードについての質問を入力してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
