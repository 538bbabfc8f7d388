// Package fetch は登録済みポッドキャストのフィードを定期的に再取得するバックグラウンド処理を提供する。
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// PodcastLister は同期対象のポッドキャスト一覧を返すインターフェース。
type PodcastLister interface {
	ListAll(ctx context.Context, limit int) ([]*model.Podcast, error)
}

// PodcastSyncer はフィードの再取得と新規エピソードの追加を行うインターフェース。
// feed.PodcastServiceが実装する。
type PodcastSyncer interface {
	Sync(ctx context.Context, podcast *model.Podcast) (int, error)
}

// SyncMetrics はフィード同期のメトリクス記録インターフェース。
type SyncMetrics interface {
	RecordSyncSuccess(podcastID string, added int)
	RecordSyncFailure(podcastID string, reason string)
	RecordSyncLatency(duration time.Duration)
}

// Scheduler はフィード同期のスケジューリングと並列制御を行う。
// 指定間隔のティッカーで全ポッドキャストを取得し、
// semaphoreパターンで最大並列数を制御しながら同期を実行する。
type Scheduler struct {
	podcasts       PodcastLister
	syncer         PodcastSyncer
	metrics        SyncMetrics
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。metricsはnilでもよい。
func NewScheduler(
	podcasts PodcastLister,
	syncer PodcastSyncer,
	metrics SyncMetrics,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		podcasts:       podcasts,
		syncer:         syncer,
		metrics:        metrics,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後には実行せず、最初のティックから同期を始める。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("フィード同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("フィード同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("フィード同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全ポッドキャストを1回ずつ同期する。
// 個々の同期失敗はログとメトリクスに記録し、RunOnceのエラーにはしない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	podcasts, err := s.podcasts.ListAll(ctx, 0)
	if err != nil {
		return err
	}

	if len(podcasts) == 0 {
		s.logger.Info("同期対象のポッドキャストはありません")
		return nil
	}

	s.logger.Info("フィード同期サイクルを開始します",
		slog.Int("podcast_count", len(podcasts)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0

	for _, podcast := range podcasts {
		wg.Add(1)
		sem <- struct{}{}

		go func(p *model.Podcast) {
			defer wg.Done()
			defer func() { <-sem }()

			n := s.syncOne(ctx, p)
			mu.Lock()
			added += n
			mu.Unlock()
		}(podcast)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("フィード同期サイクルが完了しました",
		slog.Int("podcast_count", len(podcasts)),
		slog.Int("episodes_added", added),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (s *Scheduler) syncOne(ctx context.Context, p *model.Podcast) int {
	start := time.Now()
	n, err := s.syncer.Sync(ctx, p)
	if s.metrics != nil {
		s.metrics.RecordSyncLatency(time.Since(start))
	}
	if err != nil {
		s.logger.Error("フィード同期に失敗しました",
			slog.String("podcast_id", p.ID),
			slog.String("rss_url", p.RSSURL),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordSyncFailure(p.ID, failureReason(err))
		}
		return n
	}
	if s.metrics != nil {
		s.metrics.RecordSyncSuccess(p.ID, n)
	}
	return n
}

// failureReason はメトリクスのラベルに使う失敗理由を返す。
func failureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	return "error"
}
