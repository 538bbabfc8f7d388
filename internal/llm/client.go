// Package llm はAnthropic Messages APIを使ったテキスト生成クライアントを提供する。
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Tier は用途に応じたモデルの区分。
type Tier string

const (
	// TierBasic は要約など軽量な処理に使うモデル。
	TierBasic Tier = "basic"
	// TierDefault はチャットの回答など高品質な応答が必要な処理に使うモデル。
	TierDefault Tier = "default"
)

const defaultMaxTokens = 2000

// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("AnthropicのAPIキーが設定されていません")

// ErrEmptyResponse は応答にテキストが含まれない場合のエラー。
var ErrEmptyResponse = errors.New("LLMの応答が空です")

// Config はクライアントの設定。モデル名が空の場合は既定のモデルを使う。
type Config struct {
	APIKey       string
	BasicModel   string
	DefaultModel string
}

// Request はテキスト生成の依頼内容。
// Instructionはシステムプロンプト、Inputは対象テキスト（文字起こし本文など）。
type Request struct {
	Tier        Tier
	Instruction string
	Input       string
	MaxTokens   int64
	Temperature float64
}

// Client はAnthropic APIのクライアント。
type Client struct {
	client     *anthropic.Client
	models     map[Tier]anthropic.Model
	configured bool
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// optsはテストでのエンドポイント差し替えなどに使う。
func NewClient(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *Client {
	basic := anthropic.ModelClaudeHaiku4_5
	if cfg.BasicModel != "" {
		basic = anthropic.Model(cfg.BasicModel)
	}
	def := anthropic.Model("claude-sonnet-4-5")
	if cfg.DefaultModel != "" {
		def = anthropic.Model(cfg.DefaultModel)
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	return &Client{
		client:     &client,
		models:     map[Tier]anthropic.Model{TierBasic: basic, TierDefault: def},
		configured: cfg.APIKey != "",
		logger:     logger,
	}
}

// Complete は依頼内容をモデルに送り、応答テキストを前後の空白を除いて返す。
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	model, ok := c.models[req.Tier]
	if !ok {
		model = c.models[TierBasic]
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.Instruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("Anthropic APIがエラーを返しました",
				slog.Int("http_status", apiErr.StatusCode),
				slog.String("model", string(model)),
			)
		}
		return "", fmt.Errorf("LLMの呼び出しに失敗しました: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		out.WriteString(block.Text)
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Info("LLMの応答を受信しました",
		slog.String("model", string(model)),
		slog.Int("input_tokens", int(resp.Usage.InputTokens)),
		slog.Int("output_tokens", int(resp.Usage.OutputTokens)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return text, nil
}
