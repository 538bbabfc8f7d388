package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// maxImageSize はカバー画像の最大サイズ（5MB）。
const maxImageSize = 5 * 1024 * 1024

// imageTimeout はカバー画像取得のタイムアウト。
const imageTimeout = 10 * time.Second

// DefaultImageMaxAge はキャッシュした画像の有効期間。
const DefaultImageMaxAge = 7 * 24 * time.Hour

// ImageStore はポッドキャストのカバー画像をキャッシュする。
// メモリ上のLRU、PostgreSQL、元URLの順に参照し、有効期限切れの画像は取り直す。
type ImageStore struct {
	repo      repository.ImageRepository
	cache     *lru.Cache[string, *model.PodcastImage]
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	maxAge    time.Duration
	now       func() time.Time
}

// NewImageStore はImageStoreの新しいインスタンスを生成する。
func NewImageStore(repo repository.ImageRepository, ssrfGuard SSRFValidator, logger *slog.Logger, cacheSize int, maxAge time.Duration) (*ImageStore, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if maxAge <= 0 {
		maxAge = DefaultImageMaxAge
	}
	cache, err := lru.New[string, *model.PodcastImage](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("画像キャッシュの生成に失敗しました: %w", err)
	}
	return &ImageStore{
		repo:      repo,
		cache:     cache,
		ssrfGuard: ssrfGuard,
		logger:    logger,
		maxAge:    maxAge,
		now:       time.Now,
	}, nil
}

// Get はポッドキャストのカバー画像を返す。
// 画像URLがない場合や取得できなかった場合は (nil, nil) を返す。
func (s *ImageStore) Get(ctx context.Context, podcast *model.Podcast) (*model.PodcastImage, error) {
	if img, ok := s.cache.Get(podcast.ID); ok && s.fresh(img) {
		return img, nil
	}

	img, err := s.repo.FindByPodcastID(ctx, podcast.ID)
	if err != nil {
		return nil, err
	}
	if img != nil && s.fresh(img) && img.ImageURL == podcast.ImageURL {
		s.cache.Add(podcast.ID, img)
		return img, nil
	}

	return s.Refresh(ctx, podcast)
}

// Refresh は元URLから画像を取得して保存する。
// 取得に失敗した場合はログ出力のみで (nil, nil) を返す。
func (s *ImageStore) Refresh(ctx context.Context, podcast *model.Podcast) (*model.PodcastImage, error) {
	if podcast.ImageURL == "" {
		return nil, nil
	}

	data, mimeType := s.fetch(ctx, podcast.ImageURL)
	if data == nil {
		return nil, nil
	}

	img := &model.PodcastImage{
		PodcastID: podcast.ID,
		ImageURL:  podcast.ImageURL,
		Content:   data,
		MimeType:  mimeType,
		CreatedAt: s.now(),
	}
	if err := s.repo.Save(ctx, img); err != nil {
		return nil, err
	}
	s.cache.Add(podcast.ID, img)

	s.logger.Info("カバー画像を保存しました",
		slog.String("podcast_id", podcast.ID),
		slog.String("mime_type", mimeType),
		slog.Int("size", len(data)),
	)
	return img, nil
}

// Forget はメモリ上のキャッシュから画像を取り除く。
func (s *ImageStore) Forget(podcastID string) {
	s.cache.Remove(podcastID)
}

// Purge はメモリ上のキャッシュを空にする。
func (s *ImageStore) Purge() {
	s.cache.Purge()
}

func (s *ImageStore) fresh(img *model.PodcastImage) bool {
	return s.now().Sub(img.CreatedAt) < s.maxAge
}

// fetch は画像を取得する。失敗時はnilデータと空MIMEを返す。
func (s *ImageStore) fetch(ctx context.Context, imageURL string) ([]byte, string) {
	if s.ssrfGuard != nil {
		if err := s.ssrfGuard.ValidateURL(imageURL); err != nil {
			s.logger.Warn("画像取得: SSRFブロック", slog.String("url", imageURL), slog.String("error", err.Error()))
			return nil, ""
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		s.logger.Warn("画像取得: リクエスト作成失敗", slog.String("url", imageURL), slog.String("error", err.Error()))
		return nil, ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		s.logger.Warn("画像取得: HTTPリクエスト失敗", slog.String("url", imageURL), slog.String("error", err.Error()))
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("画像取得: HTTPステータス異常", slog.String("url", imageURL), slog.Int("http_status", resp.StatusCode))
		return nil, ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		s.logger.Warn("画像取得: レスポンス読み取り失敗", slog.String("url", imageURL), slog.String("error", err.Error()))
		return nil, ""
	}
	if int64(len(body)) > maxImageSize {
		s.logger.Warn("画像取得: サイズ超過", slog.String("url", imageURL), slog.Int("size", len(body)))
		return nil, ""
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(body)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		s.logger.Warn("画像取得: 画像以外のContent-Type", slog.String("url", imageURL), slog.String("content_type", mimeType))
		return nil, ""
	}

	return body, mimeType
}

func (s *ImageStore) httpClient() *http.Client {
	if s.ssrfGuard != nil {
		return s.ssrfGuard.NewSafeClient(imageTimeout, maxImageSize)
	}
	return &http.Client{Timeout: imageTimeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}
