package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

const (
	userAgent     = "Podscribe/1.0 Podcast Indexer"
	acceptHeader  = "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*"
	defaultDepth  = 5
	defaultMaxLen = 20 * 1024 * 1024
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// PodcastFinder は登録済みポッドキャストをURLで検索するインターフェース。
type PodcastFinder interface {
	FindByURL(ctx context.Context, url string) (*model.Podcast, error)
}

// ResolverConfig はResolverの設定。
type ResolverConfig struct {
	Timeout     time.Duration
	MaxBodySize int64
	// MaxDepth はHTMLからフィードリンクを辿る再帰の上限。
	MaxDepth int
}

// Resolution はURL解決の結果。
// Knownがtrueの場合は登録済みのポッドキャストに一致しており、Episodesは空。
type Resolution struct {
	Podcast  *model.Podcast
	Episodes []*model.Episode
	Known    bool
}

// FetchResult はフィードURLへのHTTP GETの結果。
type FetchResult struct {
	StatusCode   int
	NotModified  bool
	ContentType  string
	ETag         string
	// LastModified はサーバーが返したLast-Modifiedヘッダー。
	LastModified string
	Body         []byte
	FinalURL     string
}

// Resolver はURLからポッドキャストフィードを解決する。
// HTMLページの場合は rel="alternate" のフィードリンクを辿る。
type Resolver struct {
	finder     PodcastFinder
	ssrfGuard  SSRFValidator
	normalizer *Normalizer
	logger     *slog.Logger
	cfg        ResolverConfig
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(finder PodcastFinder, ssrfGuard SSRFValidator, normalizer *Normalizer, logger *slog.Logger, cfg ResolverConfig) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultDepth
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxLen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Resolver{
		finder:     finder,
		ssrfGuard:  ssrfGuard,
		normalizer: normalizer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Resolve はURLをポッドキャストフィードに解決する。
// フィードが見つからない場合は (nil, nil) を返す。
// URLが不正またはSSRF検証に失敗した場合、通信に失敗した場合は*model.APIErrorを返す。
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	u := NormalizeInputURL(rawURL)
	if u == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}
	return r.resolve(ctx, u, 0)
}

func (r *Resolver) resolve(ctx context.Context, u string, depth int) (*Resolution, error) {
	if depth > r.cfg.MaxDepth {
		r.logger.Warn("フィードリンクの再帰が上限に達しました",
			slog.String("url", u),
			slog.Int("max_depth", r.cfg.MaxDepth),
		)
		return nil, nil
	}

	if r.finder != nil {
		known, err := r.finder.FindByURL(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("登録済みポッドキャストの検索に失敗しました: %w", err)
		}
		if known != nil {
			r.logger.Info("登録済みのポッドキャストに一致しました",
				slog.String("url", u),
				slog.String("podcast_id", known.ID),
			)
			return &Resolution{Podcast: known, Known: true}, nil
		}
	}

	res, err := r.Fetch(ctx, u, "", "")
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		r.logger.Warn("フィード取得のHTTPステータスが200ではありません",
			slog.String("url", u),
			slog.Int("http_status", res.StatusCode),
		)
		return nil, nil
	}

	if IsHTML(res.ContentType) {
		link := SelectFeedLink(FindFeedLinks(res.Body, res.FinalURL))
		if link == nil {
			r.logger.Info("HTMLにフィードリンクがありません", slog.String("url", u))
			return nil, nil
		}
		r.logger.Info("HTMLからフィードリンクを検出しました",
			slog.String("url", u),
			slog.String("feed_url", link.URL),
			slog.String("feed_type", string(link.FeedType)),
		)
		return r.resolve(ctx, link.URL, depth+1)
	}

	nf, err := r.normalizer.Normalize(res.Body, u, res.ETag)
	if err != nil {
		r.logger.Warn("フィードの正規化に失敗しました",
			slog.String("url", u),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if res.LastModified != "" {
		nf.Podcast.LatestRSSModified = res.LastModified
	}
	return &Resolution{Podcast: nf.Podcast, Episodes: nf.Episodes}, nil
}

// Fetch はURLにGETリクエストを送信する。リダイレクトは追従する。
// etagまたはmodifiedが指定された場合は条件付きGETを行い、304の場合はNotModifiedを設定する。
func (r *Resolver) Fetch(ctx context.Context, u, etag, modified string) (*FetchResult, error) {
	if r.ssrfGuard != nil {
		if err := r.ssrfGuard.ValidateURL(u); err != nil {
			r.logger.Warn("SSRF検証に失敗しました",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSSRFBlockedError()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if modified != "" {
		req.Header.Set("If-Modified-Since", modified)
	}

	start := time.Now()
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	result := &FetchResult{
		StatusCode:   resp.StatusCode,
		NotModified:  resp.StatusCode == http.StatusNotModified,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     u,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBodySize))
		if err != nil {
			return nil, model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
		}
		result.Body = body
	}

	r.logger.Debug("URLを取得しました",
		slog.String("url", u),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("body_size", len(result.Body)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

// Normalize は取得済みのフィード本文を正規化する。
func (r *Resolver) Normalize(body []byte, sourceURL, etag string) (*NormalizedFeed, error) {
	return r.normalizer.Normalize(body, sourceURL, etag)
}

func (r *Resolver) httpClient() *http.Client {
	if r.ssrfGuard != nil {
		return r.ssrfGuard.NewSafeClient(r.cfg.Timeout, r.cfg.MaxBodySize)
	}
	return &http.Client{Timeout: r.cfg.Timeout}
}
