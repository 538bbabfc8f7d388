package search

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

func newTestSearcher(t *testing.T, language string) (*Searcher, *mockRecordRepo) {
	t.Helper()
	podcasts := &mockPodcastRepo{podcasts: []*model.Podcast{
		{ID: "talk-python-to-me", Title: "Talk Python To Me"},
		{ID: "python-bytes", Title: "Python Bytes"},
	}}
	episodes := &mockEpisodeRepo{episodes: []*model.Episode{
		{PodcastID: "talk-python-to-me", EpisodeNumber: 1, Title: "Async", PublishedAt: baseTime.Add(-72 * time.Hour)},
		{PodcastID: "talk-python-to-me", EpisodeNumber: 2, Title: "Flask", PublishedAt: baseTime.Add(-24 * time.Hour)},
		{PodcastID: "python-bytes", EpisodeNumber: 10, Title: "Pytest", PublishedAt: baseTime.Add(-48 * time.Hour)},
	}}

	records := newMockRecordRepo()
	for _, r := range []*model.SearchRecord{
		{PodcastID: "talk-python-to-me", EpisodeNumber: 1, Keywords: []string{"async", "python"}, EpisodeDate: baseTime.Add(-72 * time.Hour)},
		{PodcastID: "talk-python-to-me", EpisodeNumber: 2, Keywords: []string{"flask", "python", "web"}, EpisodeDate: baseTime.Add(-24 * time.Hour)},
		{PodcastID: "python-bytes", EpisodeNumber: 10, Keywords: []string{"pytest", "python", "web"}, EpisodeDate: baseTime.Add(-48 * time.Hour)},
	} {
		records.Save(context.Background(), r)
	}

	var buf bytes.Buffer
	s := NewSearcher(records, podcasts, episodes, NewTokenizer(language), slog.New(slog.NewJSONHandler(&buf, nil)))
	return s, records
}

func episodeNumbers(eps []*model.Episode) []int {
	out := make([]int, 0, len(eps))
	for _, e := range eps {
		out = append(out, e.EpisodeNumber)
	}
	return out
}

func TestSearch_SortsEpisodesAcrossPodcasts(t *testing.T) {
	s, _ := newTestSearcher(t, DefaultLanguage)

	res, err := s.Search(context.Background(), "Python")
	if err != nil {
		t.Fatalf("Search() がエラーを返した: %v", err)
	}
	if len(res.Podcasts) != 2 {
		t.Errorf("ポッドキャスト数 = %d, want 2", len(res.Podcasts))
	}
	got := episodeNumbers(res.Episodes)
	want := []int{2, 10, 1}
	if len(got) != len(want) {
		t.Fatalf("エピソード = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("エピソード = %v, want %v (公開日時の降順)", got, want)
		}
	}
}

func TestSearch_AllKeywordsMustMatch(t *testing.T) {
	s, _ := newTestSearcher(t, DefaultLanguage)

	res, err := s.Search(context.Background(), "the python web")
	if err != nil {
		t.Fatal(err)
	}
	got := episodeNumbers(res.Episodes)
	if len(got) != 2 || got[0] != 2 || got[1] != 10 {
		t.Errorf("エピソード = %v, want [2 10]", got)
	}

	res, err = s.Search(context.Background(), "python flask pytest")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Episodes) != 0 || len(res.Podcasts) != 0 {
		t.Errorf("全キーワードを含むエピソードはないはず: %+v", res)
	}
}

func TestSearch_EmptyKeywordSet(t *testing.T) {
	s, _ := newTestSearcher(t, DefaultLanguage)

	for _, q := range []string{"", "   ", "the and or", "?!"} {
		res, err := s.Search(context.Background(), q)
		if err != nil {
			t.Fatalf("Search(%q) がエラーを返した: %v", q, err)
		}
		if res == nil || len(res.Episodes) != 0 || len(res.Podcasts) != 0 {
			t.Errorf("Search(%q) = %+v, want 空の結果", q, res)
		}
	}
}

func TestSearch_DisabledReturnsEmpty(t *testing.T) {
	s, _ := newTestSearcher(t, "klingon")
	var logs bytes.Buffer
	s.logger = slog.New(slog.NewJSONHandler(&logs, nil))

	for i := 0; i < 3; i++ {
		res, err := s.Search(context.Background(), "python")
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Episodes) != 0 {
			t.Errorf("検索が無効な場合は空の結果を返すべき: %v", episodeNumbers(res.Episodes))
		}
	}
	// 無効化の警告は起動時のIndexer.Startで1回だけ出す
	if logs.Len() != 0 {
		t.Errorf("検索のたびに警告を出してはいけない: %s", logs.String())
	}
}

func TestSearch_RequestsAtMostMaxResults(t *testing.T) {
	s, records := newTestSearcher(t, DefaultLanguage)

	if _, err := s.Search(context.Background(), "python"); err != nil {
		t.Fatal(err)
	}
	if records.lastLimit != MaxResults {
		t.Errorf("limit = %d, want %d", records.lastLimit, MaxResults)
	}
}
