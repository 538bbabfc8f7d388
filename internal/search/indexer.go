package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// TextExtractor はHTMLからプレーンテキストを取り出す。
type TextExtractor interface {
	PlainText(rawHTML string) string
}

// IndexMetrics は索引構築のメトリクス記録インターフェース。
type IndexMetrics interface {
	RecordIndexBuild(duration time.Duration, episodes int)
}

// Indexer はポッドキャストとエピソード、文字起こしからキーワード索引を構築する。
// 構築は直列化され、Triggerによる手動構築と定期構築が同時に走ることはない。
type Indexer struct {
	podcasts    repository.PodcastRepository
	episodes    repository.EpisodeRepository
	transcripts repository.TranscriptRepository
	records     repository.SearchRecordRepository
	tokenizer   *Tokenizer
	text        TextExtractor
	metrics     IndexMetrics
	logger      *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewIndexer はIndexerの新しいインスタンスを生成する。metricsはnilでもよい。
func NewIndexer(
	podcasts repository.PodcastRepository,
	episodes repository.EpisodeRepository,
	transcripts repository.TranscriptRepository,
	records repository.SearchRecordRepository,
	tokenizer *Tokenizer,
	text TextExtractor,
	metrics IndexMetrics,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		podcasts:    podcasts,
		episodes:    episodes,
		transcripts: transcripts,
		records:     records,
		tokenizer:   tokenizer,
		text:        text,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Start は初回遅延の後、interval間隔で索引を構築し続ける。
// Tokenizerが無効な場合はログを1回出力して即座に戻る。
func (ix *Indexer) Start(ctx context.Context, startDelay, interval time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startDelay):
	}

	if ix.tokenizer.Disabled() {
		ix.logger.Warn("語幹抽出器を読み込めないため検索を無効化します",
			slog.String("language", ix.tokenizer.Language()),
		)
		return
	}

	ix.logger.Info("検索インデクサを開始しました", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ix.BuildAll(ctx); err != nil {
			ix.logger.Error("検索インデックスの構築に失敗しました", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			ix.logger.Info("検索インデクサを停止しました")
			return
		case <-ticker.C:
		}
	}
}

// Trigger は索引構築をバックグラウンドで開始して即座に戻る。エラーはログ出力のみ。
func (ix *Indexer) Trigger() {
	if ix.tokenizer.Disabled() {
		return
	}
	go func() {
		if err := ix.BuildAll(context.Background()); err != nil {
			ix.logger.Error("手動の検索インデックス構築に失敗しました", slog.String("error", err.Error()))
		}
	}()
}

// BuildAll は全ポッドキャストの索引を構築する。
// 1件のポッドキャストの失敗は記録して次に進み、最後のエラーを返す。
func (ix *Indexer) BuildAll(ctx context.Context) error {
	if ix.tokenizer.Disabled() {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	podcasts, err := ix.podcasts.ListAll(ctx, 0)
	if err != nil {
		return fmt.Errorf("ポッドキャスト一覧の取得に失敗しました: %w", err)
	}

	var lastErr error
	total := 0
	for _, p := range podcasts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := ix.buildForPodcast(ctx, p)
		total += n
		if err != nil {
			ix.logger.Error("ポッドキャストの索引構築に失敗しました",
				slog.String("podcast_id", p.ID),
				slog.String("error", err.Error()),
			)
			lastErr = err
		}
	}

	duration := time.Since(start)
	if ix.metrics != nil {
		ix.metrics.RecordIndexBuild(duration, total)
	}
	ix.logger.Info("検索インデックスの構築が完了しました",
		slog.Int("podcast_count", len(podcasts)),
		slog.Int("indexed_episodes", total),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return lastErr
}

// BuildForPodcast は1件のポッドキャストの変更があったエピソードだけを再構築し、再構築した件数を返す。
func (ix *Indexer) BuildForPodcast(ctx context.Context, podcast *model.Podcast) (int, error) {
	if ix.tokenizer.Disabled() {
		return 0, nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.buildForPodcast(ctx, podcast)
}

func (ix *Indexer) buildForPodcast(ctx context.Context, podcast *model.Podcast) (int, error) {
	// 構築日時は読み取り前に確定させる。構築中に保存された文字起こしは次回の構築で拾われる。
	buildStart := ix.now()

	builtAt, err := ix.records.BuildDates(ctx, podcast.ID)
	if err != nil {
		return 0, fmt.Errorf("索引構築日時の取得に失敗しました: %w", err)
	}

	episodes, err := ix.episodes.ListByPodcast(ctx, podcast.ID, 0)
	if err != nil {
		return 0, fmt.Errorf("エピソード一覧の取得に失敗しました: %w", err)
	}

	base := ix.podcastText(podcast)
	built := 0
	for _, ep := range episodes {
		changed, err := ix.hasChanged(ctx, builtAt, ep)
		if err != nil {
			return built, err
		}
		if !changed {
			continue
		}

		transcript, err := ix.transcripts.FindByEpisode(ctx, ep.PodcastID, ep.EpisodeNumber)
		if err != nil {
			return built, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
		}

		record := &model.SearchRecord{
			PodcastID:     ep.PodcastID,
			EpisodeNumber: ep.EpisodeNumber,
			Keywords:      ix.tokenizer.SortedKeywords(ix.episodeText(ep, base, transcript)),
			CreatedAt:     laterOf(buildStart, ep.PublishedAt),
			EpisodeDate:   ep.PublishedAt,
		}
		if err := ix.records.Save(ctx, record); err != nil {
			return built, fmt.Errorf("検索レコードの保存に失敗しました: %w", err)
		}
		built++

		ix.logger.Debug("エピソードを索引しました",
			slog.String("podcast_id", ep.PodcastID),
			slog.Int("episode_number", ep.EpisodeNumber),
			slog.Int("keyword_count", len(record.Keywords)),
		)
	}
	return built, nil
}

// hasChanged は索引レコードがないか、公開日時と文字起こし更新日時の新しい方が構築日時より後ならtrueを返す。
func (ix *Indexer) hasChanged(ctx context.Context, builtAt map[int]time.Time, ep *model.Episode) (bool, error) {
	recordDate, ok := builtAt[ep.EpisodeNumber]
	if !ok {
		return true, nil
	}

	changed := ep.PublishedAt
	updated, err := ix.transcripts.UpdatedAt(ctx, ep.PodcastID, ep.EpisodeNumber)
	if err != nil {
		return false, fmt.Errorf("文字起こし更新日時の取得に失敗しました: %w", err)
	}
	if updated != nil {
		changed = laterOf(changed, *updated)
	}
	return changed.After(recordDate), nil
}

func (ix *Indexer) podcastText(p *model.Podcast) string {
	return strings.Join([]string{
		ix.text.PlainText(p.Title),
		ix.text.PlainText(p.Description),
		p.WebsiteURL,
		ix.text.PlainText(p.Subtitle),
		p.Category,
	}, " ")
}

func (ix *Indexer) episodeText(ep *model.Episode, base string, t *model.Transcript) string {
	parts := []string{
		ep.Title,
		ix.text.PlainText(ep.Description),
		strings.Join(ep.Tags, " "),
		base,
	}
	if t != nil {
		parts = append(parts, t.SummaryBullets, t.SummaryTLDR, t.Text())
	}
	return strings.Join(parts, " ")
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
