// Package assemblyai はAssemblyAIの文字起こしREST APIのクライアントを提供する。
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com"
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 2 * time.Hour
	maxResponseSize     = 64 << 20
)

// 文字起こしの状態。
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

var (
	// ErrTranscriptionFailed は文字起こしがcompleted以外の状態で終了した場合のエラー。
	ErrTranscriptionFailed = errors.New("文字起こしに失敗しました")
	// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
	ErrNotConfigured = errors.New("AssemblyAIのAPIキーが設定されていません")
)

// Config はクライアントの設定。
type Config struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Word は文字起こし結果の1単語。Startはミリ秒。
type Word struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript はAPIが返す文字起こし結果。RawはレスポンスJSONそのもの。
type Transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Words  []Word `json:"words"`
	Raw    []byte `json:"-"`
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	Punctuate     bool   `json:"punctuate"`
	FormatText    bool   `json:"format_text"`
	SpeakerLabels bool   `json:"speaker_labels"`
	Disfluencies  bool   `json:"disfluencies"`
}

// Client はAssemblyAIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{httpClient: httpClient, logger: logger, cfg: cfg}
}

// Transcribe は音声URLの文字起こしを依頼し、完了するまでポーリングする。
// completed以外で終了した場合は結果とともにErrTranscriptionFailedを返す。
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*Transcript, error) {
	submitted, err := c.Submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	backoff := retry.WithMaxDuration(c.cfg.Timeout, retry.NewConstant(c.cfg.PollInterval))

	var result *Transcript
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.Get(ctx, submitted.ID)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code < http.StatusInternalServerError {
				return err
			}
			return retry.RetryableError(err)
		}
		if t.Status == StatusQueued || t.Status == StatusProcessing {
			return retry.RetryableError(fmt.Errorf("文字起こしが未完了です: %s", t.Status))
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("文字起こし結果の取得に失敗しました: %w", err)
	}

	c.logger.Info("文字起こしが終了しました",
		slog.String("transcript_id", result.ID),
		slog.String("status", result.Status),
		slog.Int("word_count", len(result.Words)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if result.Status != StatusCompleted {
		return result, fmt.Errorf("%w: %s %s", ErrTranscriptionFailed, result.Status, result.Error)
	}
	return result, nil
}

// Submit は文字起こしを依頼する。
func (c *Client) Submit(ctx context.Context, audioURL string) (*Transcript, error) {
	body, err := json.Marshal(submitRequest{
		AudioURL:   audioURL,
		Punctuate:  true,
		FormatText: true,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	t, err := c.do(ctx, http.MethodPost, "/v2/transcript", body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("文字起こしを依頼しました",
		slog.String("transcript_id", t.ID),
		slog.String("audio_url", audioURL),
	)
	return t, nil
}

// Get は文字起こしの現在の状態を取得する。
func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	return c.do(ctx, http.MethodGet, "/v2/transcript/"+id, nil)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("AssemblyAI APIがステータス %d を返しました: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Transcript, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("AssemblyAI APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("AssemblyAI APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	t.Raw = raw
	return &t, nil
}
