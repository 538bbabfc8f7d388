package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// FeedResolver はフィード解決のインターフェース。
// テスタビリティのためResolverを抽象化する。
type FeedResolver interface {
	Resolve(ctx context.Context, rawURL string) (*Resolution, error)
	Fetch(ctx context.Context, u, etag, modified string) (*FetchResult, error)
	Normalize(body []byte, sourceURL, etag string) (*NormalizedFeed, error)
}

// ImageCache はカバー画像キャッシュのインターフェース。
type ImageCache interface {
	Get(ctx context.Context, podcast *model.Podcast) (*model.PodcastImage, error)
	Refresh(ctx context.Context, podcast *model.Podcast) (*model.PodcastImage, error)
	Forget(podcastID string)
}

// IndexTrigger は検索インデックスの非同期再構築を要求するインターフェース。
type IndexTrigger interface {
	Trigger()
}

// PodcastService はポッドキャスト登録・同期・参照のサービス層。
// 解決 → ポッドキャスト保存 → 新規エピソード挿入 → 画像取得 → インデックス再構築要求のフローを統括する。
type PodcastService struct {
	podcasts repository.PodcastRepository
	episodes repository.EpisodeRepository
	resolver FeedResolver
	images   ImageCache
	indexer  IndexTrigger
	logger   *slog.Logger
}

// NewPodcastService はPodcastServiceの新しいインスタンスを生成する。
// imagesとindexerはnilでもよい。
func NewPodcastService(
	podcasts repository.PodcastRepository,
	episodes repository.EpisodeRepository,
	resolver FeedResolver,
	images ImageCache,
	indexer IndexTrigger,
	logger *slog.Logger,
) *PodcastService {
	return &PodcastService{
		podcasts: podcasts,
		episodes: episodes,
		resolver: resolver,
		images:   images,
		indexer:  indexer,
		logger:   logger,
	}
}

// AddPodcast はURLからポッドキャストを解決して登録する。
// 登録済みのURLまたは同じタイトルのポッドキャストがある場合はそれを返す。
func (s *PodcastService) AddPodcast(ctx context.Context, rawURL string) (*model.Podcast, error) {
	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, model.NewFeedNotDetectedError(rawURL)
	}
	if res.Known {
		return res.Podcast, nil
	}

	existing, err := s.podcasts.FindByID(ctx, res.Podcast.ID)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの検索に失敗しました: %w", err)
	}
	if existing != nil {
		s.logger.Info("同じタイトルのポッドキャストが登録済みです",
			slog.String("podcast_id", existing.ID),
			slog.String("url", rawURL),
		)
		return existing, nil
	}

	podcast := res.Podcast
	if err := s.podcasts.Upsert(ctx, podcast); err != nil {
		return nil, err
	}

	added, err := s.insertNew(ctx, podcast.ID, res.Episodes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ポッドキャストを登録しました",
		slog.String("podcast_id", podcast.ID),
		slog.String("rss_url", podcast.RSSURL),
		slog.Int("episodes", added),
	)

	if s.images != nil {
		if _, err := s.images.Refresh(ctx, podcast); err != nil {
			s.logger.Warn("カバー画像の保存に失敗しました",
				slog.String("podcast_id", podcast.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.triggerIndex()

	return podcast, nil
}

// Sync は登録済みポッドキャストのフィードを条件付きGETで再取得し、新規エピソードを追加する。
// 追加したエピソード数を返す。
func (s *PodcastService) Sync(ctx context.Context, podcast *model.Podcast) (int, error) {
	res, err := s.resolver.Fetch(ctx, podcast.RSSURL, podcast.LatestRSSETag, podcast.LatestRSSModified)
	if err != nil {
		return 0, err
	}
	if res.NotModified {
		s.logger.Debug("フィードは未変更です（304）", slog.String("podcast_id", podcast.ID))
		return 0, nil
	}
	if res.StatusCode != 200 {
		return 0, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", res.StatusCode))
	}

	nf, err := s.resolver.Normalize(res.Body, podcast.RSSURL, res.ETag)
	if err != nil {
		return 0, fmt.Errorf("フィードの正規化に失敗しました: %w", err)
	}

	if res.LastModified != "" {
		nf.Podcast.LatestRSSModified = res.LastModified
	}

	// タイトル変更でIDが変わってもエピソードは既存のポッドキャストに紐付ける
	for _, ep := range nf.Episodes {
		ep.PodcastID = podcast.ID
	}

	added, err := s.insertNew(ctx, podcast.ID, nf.Episodes)
	if err != nil {
		return 0, err
	}

	if err := s.podcasts.UpdateFeedMarkers(ctx, podcast.ID, nf.Podcast.LatestRSSETag, nf.Podcast.LatestRSSModified); err != nil {
		return added, err
	}
	podcast.LatestRSSETag = nf.Podcast.LatestRSSETag
	podcast.LatestRSSModified = nf.Podcast.LatestRSSModified

	if added > 0 {
		s.logger.Info("新しいエピソードを追加しました",
			slog.String("podcast_id", podcast.ID),
			slog.Int("episodes", added),
		)
		s.triggerIndex()
	}
	return added, nil
}

// insertNew は登録済みでないエピソードのみを一括挿入する。
func (s *PodcastService) insertNew(ctx context.Context, podcastID string, episodes []*model.Episode) (int, error) {
	guids, numbers, err := s.episodes.ExistingKeys(ctx, podcastID)
	if err != nil {
		return 0, err
	}
	fresh := FilterNew(episodes, guids, numbers)
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := s.episodes.InsertBatch(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// List は登録済みポッドキャストを返す。
func (s *PodcastService) List(ctx context.Context) ([]*model.Podcast, error) {
	return s.podcasts.ListAll(ctx, 0)
}

// Get はポッドキャストを取得する。見つからない場合は*model.APIErrorを返す。
func (s *PodcastService) Get(ctx context.Context, podcastID string) (*model.Podcast, error) {
	p, err := s.podcasts.FindByID(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewPodcastNotFoundError(podcastID)
	}
	return p, nil
}

// Episodes はポッドキャストのエピソードを公開日時の降順で返す。
func (s *PodcastService) Episodes(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error) {
	if _, err := s.Get(ctx, podcastID); err != nil {
		return nil, err
	}
	return s.episodes.ListByPodcast(ctx, podcastID, limit)
}

// Episode はエピソードを取得する。見つからない場合は*model.APIErrorを返す。
func (s *PodcastService) Episode(ctx context.Context, podcastID string, episodeNumber int) (*model.Episode, error) {
	ep, err := s.episodes.FindByNumber(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, model.NewEpisodeNotFoundError(podcastID, episodeNumber)
	}
	return ep, nil
}

// Delete はポッドキャストを削除する。エピソード、文字起こし、検索レコードもCASCADE削除される。
func (s *PodcastService) Delete(ctx context.Context, podcastID string) error {
	if _, err := s.Get(ctx, podcastID); err != nil {
		return err
	}
	if err := s.podcasts.Delete(ctx, podcastID); err != nil {
		return err
	}
	if s.images != nil {
		s.images.Forget(podcastID)
	}
	s.logger.Info("ポッドキャストを削除しました", slog.String("podcast_id", podcastID))
	return nil
}

// Image はポッドキャストのカバー画像を返す。画像がない場合は (nil, nil) を返す。
func (s *PodcastService) Image(ctx context.Context, podcastID string) (*model.PodcastImage, error) {
	p, err := s.Get(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, nil
	}
	return s.images.Get(ctx, p)
}

func (s *PodcastService) triggerIndex() {
	if s.indexer != nil {
		s.indexer.Trigger()
	}
}

// SeedStarterFeeds は初期ポッドキャスト一覧を順に登録する。
// 個々の失敗はログ出力して続行し、登録できた件数を返す。
func (s *PodcastService) SeedStarterFeeds(ctx context.Context, urls []string) int {
	added := 0
	for _, u := range urls {
		start := time.Now()
		p, err := s.AddPodcast(ctx, u)
		if err != nil {
			s.logger.Warn("初期ポッドキャストの登録に失敗しました",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		added++
		s.logger.Info("初期ポッドキャストを登録しました",
			slog.String("url", u),
			slog.String("podcast_id", p.ID),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return added
}
