package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// MaxResults は1回の検索で展開する検索レコードの上限。
const MaxResults = 100

// Searcher はキーワード索引を検索し、ポッドキャストとエピソードに展開する。
type Searcher struct {
	records   repository.SearchRecordRepository
	podcasts  repository.PodcastRepository
	episodes  repository.EpisodeRepository
	tokenizer *Tokenizer
	logger    *slog.Logger
}

// NewSearcher はSearcherの新しいインスタンスを生成する。
func NewSearcher(
	records repository.SearchRecordRepository,
	podcasts repository.PodcastRepository,
	episodes repository.EpisodeRepository,
	tokenizer *Tokenizer,
	logger *slog.Logger,
) *Searcher {
	return &Searcher{
		records:   records,
		podcasts:  podcasts,
		episodes:  episodes,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Search はテキストの全キーワードを含むエピソードを返す。
// 検索が無効な場合とキーワードが空の場合は空の結果を返す。
func (s *Searcher) Search(ctx context.Context, text string) (*model.SearchResult, error) {
	result := &model.SearchResult{Podcasts: []*model.Podcast{}, Episodes: []*model.Episode{}}

	if s.tokenizer.Disabled() {
		s.logger.Debug("検索が無効なため空の結果を返します")
		return result, nil
	}

	keywords := s.tokenizer.SortedKeywords(text)
	if len(keywords) == 0 {
		return result, nil
	}

	records, err := s.records.FindContainingAll(ctx, keywords, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("検索レコードの取得に失敗しました: %w", err)
	}
	if len(records) == 0 {
		return result, nil
	}

	// レコードの並び順でポッドキャストごとのエピソード番号をまとめる
	numbers := make(map[string][]int)
	var podcastIDs []string
	for _, r := range records {
		if _, seen := numbers[r.PodcastID]; !seen {
			podcastIDs = append(podcastIDs, r.PodcastID)
		}
		numbers[r.PodcastID] = append(numbers[r.PodcastID], r.EpisodeNumber)
	}

	podcasts, err := s.podcasts.FindByIDs(ctx, podcastIDs)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	result.Podcasts = podcasts

	for _, p := range podcasts {
		eps, err := s.episodes.FindByNumbers(ctx, p.ID, numbers[p.ID])
		if err != nil {
			return nil, fmt.Errorf("エピソードの取得に失敗しました: %w", err)
		}
		result.Episodes = append(result.Episodes, eps...)
	}

	sort.SliceStable(result.Episodes, func(i, j int) bool {
		return result.Episodes[i].PublishedAt.After(result.Episodes[j].PublishedAt)
	})

	s.logger.Info("検索を実行しました",
		slog.Int("keyword_count", len(keywords)),
		slog.Int("record_count", len(records)),
		slog.Int("episode_count", len(result.Episodes)),
	)
	return result, nil
}
