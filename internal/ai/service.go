// Package ai はエピソードの文字起こし、要約、チャットの処理を提供する。
//
// 処理はすべて冪等で、既に結果が保存されている場合は外部APIを呼ばずに保存済みの結果を返す。
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/podscribe/internal/assemblyai"
	"github.com/hitoshi/podscribe/internal/llm"
	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// ErrTranscriptRequired は文字起こしがない状態でチャットを要求した場合のエラー。
var ErrTranscriptRequired = errors.New("チャットには文字起こしが必要です")

// Transcriber は音声URLの文字起こしを行うインターフェース。
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*assemblyai.Transcript, error)
}

// Completer はLLMによるテキスト生成のインターフェース。
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// URLValidator は外部サービスに渡すURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// IndexTrigger は検索インデックスの再構築を要求する。
type IndexTrigger interface {
	Trigger()
}

// Service はAI処理のサービス層。
type Service struct {
	podcasts    repository.PodcastRepository
	episodes    repository.EpisodeRepository
	transcripts repository.TranscriptRepository
	chats       repository.ChatRepository
	transcriber Transcriber
	llm         Completer
	guard       URLValidator
	indexer     IndexTrigger
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。indexerはnilでもよい。
func NewService(
	podcasts repository.PodcastRepository,
	episodes repository.EpisodeRepository,
	transcripts repository.TranscriptRepository,
	chats repository.ChatRepository,
	transcriber Transcriber,
	completer Completer,
	guard URLValidator,
	indexer IndexTrigger,
	logger *slog.Logger,
) *Service {
	return &Service{
		podcasts:    podcasts,
		episodes:    episodes,
		transcripts: transcripts,
		chats:       chats,
		transcriber: transcriber,
		llm:         completer,
		guard:       guard,
		indexer:     indexer,
		logger:      logger,
		now:         time.Now,
	}
}

// Transcribe はエピソードの音声を文字起こしして保存する。
// 保存済みの文字起こしがある場合はそれを返す。
// 文字起こしがcompleted以外で終わった場合は何も保存せずエラーを返す。
func (s *Service) Transcribe(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	existing, err := s.transcripts.FindByEpisode(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}
	if existing != nil {
		s.logger.Info("文字起こしは作成済みのためスキップします",
			slog.String("podcast_id", podcastID),
			slog.Int("episode_number", episodeNumber),
		)
		return existing, nil
	}

	_, ep, err := s.load(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, err
	}
	if ep.EnclosureURL == "" {
		return nil, fmt.Errorf("エピソードに音声ファイルがありません: %s #%d", podcastID, episodeNumber)
	}
	if err := s.guard.ValidateURL(ep.EnclosureURL); err != nil {
		return nil, fmt.Errorf("音声ファイルのURLが不正です: %w", err)
	}

	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, ep.EnclosureURL)
	if err != nil {
		return nil, fmt.Errorf("文字起こしの実行に失敗しました: %w", err)
	}

	now := s.now()
	t := &model.Transcript{
		PodcastID:     podcastID,
		EpisodeNumber: episodeNumber,
		Words:         make([]model.TranscriptWord, 0, len(result.Words)),
		Successful:    true,
		Status:        result.Status,
		ProviderID:    result.ID,
		RawPayload:    result.Raw,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, w := range result.Words {
		t.Words = append(t.Words, model.TranscriptWord{
			Text:         w.Text,
			StartSeconds: float64(w.Start) / 1000.0,
			Confidence:   w.Confidence,
		})
	}

	if err := s.transcripts.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("文字起こしの保存に失敗しました: %w", err)
	}

	s.logger.Info("文字起こしを保存しました",
		slog.String("podcast_id", podcastID),
		slog.Int("episode_number", episodeNumber),
		slog.Int("word_count", len(t.Words)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	s.triggerIndex()
	return t, nil
}

// EnableChat はチャットの準備として文字起こしを行う。
func (s *Service) EnableChat(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	return s.Transcribe(ctx, podcastID, episodeNumber)
}

// Summarize はTLDRと箇条書きの2種類の要約を生成して保存する。
// TLDRが保存済みの場合は何もしない。文字起こしがなければ先に文字起こしを行う。
func (s *Service) Summarize(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	t, err := s.transcripts.FindByEpisode(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}
	if t != nil && t.HasSummary() {
		return t, nil
	}
	if t == nil {
		s.logger.Info("文字起こしがないため先に作成します",
			slog.String("podcast_id", podcastID),
			slog.Int("episode_number", episodeNumber),
		)
		if t, err = s.Transcribe(ctx, podcastID, episodeNumber); err != nil {
			return nil, err
		}
	}

	p, ep, err := s.load(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, err
	}

	text := t.Text()
	tldr, err := s.llm.Complete(ctx, llm.Request{
		Tier:        llm.TierBasic,
		Instruction: TLDRPrompt(p, ep),
		Input:       text,
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("TLDR要約の生成に失敗しました: %w", err)
	}

	bullets, err := s.llm.Complete(ctx, llm.Request{
		Tier:        llm.TierBasic,
		Instruction: BulletsPrompt(p, ep),
		Input:       text,
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("箇条書き要約の生成に失敗しました: %w", err)
	}

	t.SummaryTLDR = CleanTLDR(tldr)
	t.SummaryBullets = CleanBullets(bullets)
	t.UpdatedAt = s.now()
	if err := s.transcripts.UpdateSummary(ctx, podcastID, episodeNumber, t.SummaryTLDR, t.SummaryBullets, t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("要約の保存に失敗しました: %w", err)
	}

	s.logger.Info("要約を保存しました",
		slog.String("podcast_id", podcastID),
		slog.Int("episode_number", episodeNumber),
	)
	s.triggerIndex()
	return t, nil
}

// AskChat はエピソードへの質問に回答する。
// 同じユーザーの同じ質問は保存済みの回答を返し、他のユーザーの回答済みの同じ質問があればその回答を複製する。
// どちらもない場合のみLLMを呼び出す。
func (s *Service) AskChat(ctx context.Context, podcastID string, episodeNumber int, email, question string) (*model.ChatQA, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, model.NewEmptyQuestionError()
	}

	t, err := s.transcripts.FindByEpisode(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, ErrTranscriptRequired
	}

	p, err := s.podcasts.FindByID(ctx, podcastID)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPodcastNotFoundError(podcastID)
	}
	prompt := ChatPrompt(p, question)

	chat, err := s.chatRecord(ctx, podcastID, episodeNumber, prompt, question, email)
	if err != nil {
		return nil, err
	}
	if chat.Answer != "" {
		return chat, nil
	}

	// 質問への回答は文字起こし全体を読んで答えるため上位のモデルを使う。
	answer, err := s.llm.Complete(ctx, llm.Request{
		Tier:        llm.TierDefault,
		Instruction: prompt,
		Input:       t.Text(),
		Temperature: summaryTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("回答の生成に失敗しました: %w", err)
	}

	chat.Answer = CleanAnswer(answer)
	if err := s.chats.Save(ctx, chat); err != nil {
		return nil, fmt.Errorf("回答の保存に失敗しました: %w", err)
	}

	s.logger.Info("チャットに回答しました",
		slog.String("podcast_id", podcastID),
		slog.Int("episode_number", episodeNumber),
		slog.String("chat_id", chat.ID),
	)
	return chat, nil
}

// chatRecord はユーザー自身の記録を返す。ない場合は他ユーザーの回答を複製した新しい記録を保存して返す。
func (s *Service) chatRecord(ctx context.Context, podcastID string, episodeNumber int, prompt, question, email string) (*model.ChatQA, error) {
	own, err := s.chats.FindForUser(ctx, podcastID, episodeNumber, prompt, question, email)
	if err != nil {
		return nil, fmt.Errorf("チャット履歴の取得に失敗しました: %w", err)
	}
	if own != nil {
		return own, nil
	}

	chat := &model.ChatQA{
		ID:            uuid.New().String(),
		PodcastID:     podcastID,
		EpisodeNumber: episodeNumber,
		Email:         email,
		Prompt:        prompt,
		Question:      question,
		CreatedAt:     s.now(),
	}

	answered, err := s.chats.FindAnswered(ctx, podcastID, episodeNumber, prompt, question)
	if err != nil {
		return nil, fmt.Errorf("回答済みチャットの取得に失敗しました: %w", err)
	}
	if answered != nil {
		chat.Answer = answered.Answer
	}

	if err := s.chats.Save(ctx, chat); err != nil {
		return nil, fmt.Errorf("チャットの保存に失敗しました: %w", err)
	}
	return chat, nil
}

// Transcript は保存済みの文字起こしを返す。ない場合はnil。
func (s *Service) Transcript(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	t, err := s.transcripts.FindByEpisode(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}
	return t, nil
}

// AlreadyDone はジョブの処理結果が既に保存されているかを判定する。
func (s *Service) AlreadyDone(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (bool, error) {
	t, err := s.transcripts.FindByEpisode(ctx, podcastID, episodeNumber)
	if err != nil {
		return false, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}
	if t == nil {
		return false, nil
	}
	if action == model.JobActionSummarize {
		return t.HasSummary(), nil
	}
	return true, nil
}

func (s *Service) load(ctx context.Context, podcastID string, episodeNumber int) (*model.Podcast, *model.Episode, error) {
	p, err := s.podcasts.FindByID(ctx, podcastID)
	if err != nil {
		return nil, nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, nil, model.NewPodcastNotFoundError(podcastID)
	}
	ep, err := s.episodes.FindByNumber(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("エピソードの取得に失敗しました: %w", err)
	}
	if ep == nil {
		return nil, nil, model.NewEpisodeNotFoundError(podcastID, episodeNumber)
	}
	return p, ep, nil
}

func (s *Service) triggerIndex() {
	if s.indexer != nil {
		s.indexer.Trigger()
	}
}
