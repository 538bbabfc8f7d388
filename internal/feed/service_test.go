package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// --- PodcastService テスト用モック ---

type mockPodcastRepo struct {
	podcasts     map[string]*model.Podcast
	upsertCalls  int
	markerCalls  int
	deletedIDs   []string
	lastMarkerET string
	lastMarkerLM string
}

func newMockPodcastRepo() *mockPodcastRepo {
	return &mockPodcastRepo{podcasts: make(map[string]*model.Podcast)}
}

func (m *mockPodcastRepo) FindByID(_ context.Context, id string) (*model.Podcast, error) {
	return m.podcasts[id], nil
}

func (m *mockPodcastRepo) FindByIDs(_ context.Context, ids []string) ([]*model.Podcast, error) {
	var out []*model.Podcast
	for _, id := range ids {
		if p, ok := m.podcasts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPodcastRepo) FindByURL(_ context.Context, url string) (*model.Podcast, error) {
	for _, p := range m.podcasts {
		if p.WebsiteURL == url || p.RSSURL == url {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPodcastRepo) ListAll(_ context.Context, _ int) ([]*model.Podcast, error) {
	var out []*model.Podcast
	for _, p := range m.podcasts {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPodcastRepo) Upsert(_ context.Context, p *model.Podcast) error {
	m.upsertCalls++
	m.podcasts[p.ID] = p
	return nil
}

func (m *mockPodcastRepo) UpdateFeedMarkers(_ context.Context, id, etag, modified string) error {
	m.markerCalls++
	m.lastMarkerET = etag
	m.lastMarkerLM = modified
	return nil
}

func (m *mockPodcastRepo) Delete(_ context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	delete(m.podcasts, id)
	return nil
}

type mockEpisodeRepo struct {
	episodes    []*model.Episode
	insertCalls int
	insertErr   error
}

func (m *mockEpisodeRepo) FindByNumber(_ context.Context, podcastID string, n int) (*model.Episode, error) {
	for _, e := range m.episodes {
		if e.PodcastID == podcastID && e.EpisodeNumber == n {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEpisodeRepo) FindByGUID(_ context.Context, podcastID, guid string) (*model.Episode, error) {
	for _, e := range m.episodes {
		if e.PodcastID == podcastID && e.GUID == guid {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEpisodeRepo) FindByNumbers(_ context.Context, podcastID string, numbers []int) ([]*model.Episode, error) {
	var out []*model.Episode
	for _, n := range numbers {
		if e, _ := m.FindByNumber(context.Background(), podcastID, n); e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEpisodeRepo) ListByPodcast(_ context.Context, podcastID string, _ int) ([]*model.Episode, error) {
	var out []*model.Episode
	for _, e := range m.episodes {
		if e.PodcastID == podcastID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEpisodeRepo) ExistingKeys(_ context.Context, podcastID string) (map[string]struct{}, map[int]struct{}, error) {
	guids := make(map[string]struct{})
	numbers := make(map[int]struct{})
	for _, e := range m.episodes {
		if e.PodcastID == podcastID {
			guids[e.GUID] = struct{}{}
			numbers[e.EpisodeNumber] = struct{}{}
		}
	}
	return guids, numbers, nil
}

func (m *mockEpisodeRepo) InsertBatch(_ context.Context, episodes []*model.Episode) error {
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.episodes = append(m.episodes, episodes...)
	return nil
}

type mockIndexTrigger struct {
	calls int
}

func (m *mockIndexTrigger) Trigger() { m.calls++ }

var (
	_ repository.PodcastRepository = (*mockPodcastRepo)(nil)
	_ repository.EpisodeRepository = (*mockEpisodeRepo)(nil)
)

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, talkPythonRSS)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(podcasts *mockPodcastRepo, episodes *mockEpisodeRepo, indexer IndexTrigger, buf *bytes.Buffer) *PodcastService {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	resolver := NewResolver(podcasts, &mockSSRFGuard{}, NewNormalizer(logger), logger, ResolverConfig{})
	return NewPodcastService(podcasts, episodes, resolver, nil, indexer, logger)
}

func TestAddPodcast_NewFeed(t *testing.T) {
	server := newFeedServer(t)
	podcasts := newMockPodcastRepo()
	episodes := &mockEpisodeRepo{}
	indexer := &mockIndexTrigger{}

	var buf bytes.Buffer
	svc := newTestService(podcasts, episodes, indexer, &buf)

	p, err := svc.AddPodcast(context.Background(), server.URL+"/rss")
	if err != nil {
		t.Fatalf("AddPodcast() がエラーを返した: %v", err)
	}
	if p.ID != "talk-python-to-me" {
		t.Errorf("ID = %q", p.ID)
	}
	if podcasts.upsertCalls != 1 {
		t.Errorf("Upsert回数 = %d, want 1", podcasts.upsertCalls)
	}
	if len(episodes.episodes) != 2 {
		t.Errorf("挿入エピソード数 = %d, want 2", len(episodes.episodes))
	}
	if indexer.calls != 1 {
		t.Errorf("インデックス再構築要求 = %d, want 1", indexer.calls)
	}
	// Last-Modifiedがない場合も同期日時をHTTP日付形式で保存する
	if _, err := http.ParseTime(podcasts.lastMarkerLM); err != nil {
		t.Errorf("Last-ModifiedマーカーがHTTP日付形式ではない: %q", podcasts.lastMarkerLM)
	}
}

func TestSync_UsesServerLastModified(t *testing.T) {
	const lastModified = "Wed, 21 Oct 2015 07:28:00 GMT"
	var gotIfModifiedSince []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfModifiedSince = append(gotIfModifiedSince, r.Header.Get("If-Modified-Since"))
		if r.Header.Get("If-Modified-Since") == lastModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("Last-Modified", lastModified)
		fmt.Fprint(w, talkPythonRSS)
	}))
	t.Cleanup(server.Close)

	podcasts := newMockPodcastRepo()
	var buf bytes.Buffer
	svc := newTestService(podcasts, &mockEpisodeRepo{}, &mockIndexTrigger{}, &buf)
	p := &model.Podcast{ID: "talk-python-to-me", RSSURL: server.URL + "/rss"}

	if _, err := svc.Sync(context.Background(), p); err != nil {
		t.Fatalf("Sync() がエラーを返した: %v", err)
	}
	if podcasts.lastMarkerLM != lastModified || p.LatestRSSModified != lastModified {
		t.Fatalf("サーバーのLast-Modifiedが保存されていない: %q", podcasts.lastMarkerLM)
	}

	added, err := svc.Sync(context.Background(), p)
	if err != nil || added != 0 {
		t.Errorf("2回目のSync() = %d, %v; want 0, nil", added, err)
	}
	if len(gotIfModifiedSince) != 2 || gotIfModifiedSince[1] != lastModified {
		t.Errorf("If-Modified-Since = %v", gotIfModifiedSince)
	}
	if podcasts.markerCalls != 1 {
		t.Errorf("304の場合はマーカーを更新しないべき: %d", podcasts.markerCalls)
	}
}

// TestAddPodcast_ReingestDoesNotDuplicate は同じフィードを再登録しても重複しないことをテストする。
func TestAddPodcast_ReingestDoesNotDuplicate(t *testing.T) {
	server := newFeedServer(t)
	podcasts := newMockPodcastRepo()
	episodes := &mockEpisodeRepo{}

	var buf bytes.Buffer
	svc := newTestService(podcasts, episodes, nil, &buf)

	if _, err := svc.AddPodcast(context.Background(), server.URL+"/rss"); err != nil {
		t.Fatalf("1回目のAddPodcast() がエラーを返した: %v", err)
	}
	// 2回目はRSS URL一致で登録済みとして扱われる
	if _, err := svc.AddPodcast(context.Background(), server.URL+"/rss"); err != nil {
		t.Fatalf("2回目のAddPodcast() がエラーを返した: %v", err)
	}
	// Syncでも重複は挿入されない
	p := podcasts.podcasts["talk-python-to-me"]
	p.LatestRSSETag = ""
	added, err := svc.Sync(context.Background(), p)
	if err != nil {
		t.Fatalf("Sync() がエラーを返した: %v", err)
	}
	if added != 0 {
		t.Errorf("Sync() の追加数 = %d, want 0", added)
	}
	if len(episodes.episodes) != 2 {
		t.Errorf("エピソード数 = %d, want 2", len(episodes.episodes))
	}
	if episodes.insertCalls != 1 {
		t.Errorf("InsertBatch回数 = %d, want 1", episodes.insertCalls)
	}
}

func TestAddPodcast_SameTitleReturnsExisting(t *testing.T) {
	server := newFeedServer(t)
	podcasts := newMockPodcastRepo()
	existing := &model.Podcast{ID: "talk-python-to-me", Title: "Talk Python To Me", RSSURL: "https://other.example/rss"}
	podcasts.podcasts[existing.ID] = existing

	var buf bytes.Buffer
	svc := newTestService(podcasts, &mockEpisodeRepo{}, nil, &buf)

	p, err := svc.AddPodcast(context.Background(), server.URL+"/rss")
	if err != nil {
		t.Fatalf("AddPodcast() がエラーを返した: %v", err)
	}
	if p != existing || podcasts.upsertCalls != 0 {
		t.Errorf("同じタイトルの既存ポッドキャストを返すべき: %+v (upsert=%d)", p, podcasts.upsertCalls)
	}
}

func TestAddPodcast_NotDetected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>no feed</title></head></html>`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	svc := newTestService(newMockPodcastRepo(), &mockEpisodeRepo{}, nil, &buf)

	_, err := svc.AddPodcast(context.Background(), server.URL)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFeedNotDetected {
		t.Errorf("err = %v, want FEED_NOT_DETECTED", err)
	}
}

func TestAddPodcast_InsertFailureIsSingleError(t *testing.T) {
	server := newFeedServer(t)
	episodes := &mockEpisodeRepo{insertErr: errors.New("duplicate key")}

	var buf bytes.Buffer
	svc := newTestService(newMockPodcastRepo(), episodes, nil, &buf)

	if _, err := svc.AddPodcast(context.Background(), server.URL+"/rss"); err == nil {
		t.Fatal("InsertBatchの失敗はエラーとして返るべき")
	}
}

func TestSync_NotModified(t *testing.T) {
	server := newFeedServer(t)
	podcasts := newMockPodcastRepo()
	indexer := &mockIndexTrigger{}

	var buf bytes.Buffer
	svc := newTestService(podcasts, &mockEpisodeRepo{}, indexer, &buf)

	p := &model.Podcast{ID: "talk-python-to-me", RSSURL: server.URL + "/rss", LatestRSSETag: `"v1"`}
	added, err := svc.Sync(context.Background(), p)
	if err != nil || added != 0 {
		t.Errorf("Sync() = %d, %v; want 0, nil", added, err)
	}
	if podcasts.markerCalls != 0 || indexer.calls != 0 {
		t.Error("304の場合はマーカー更新もインデックス再構築も行わないべき")
	}
}

func TestSync_AddsNewEpisodes(t *testing.T) {
	server := newFeedServer(t)
	podcasts := newMockPodcastRepo()
	episodes := &mockEpisodeRepo{episodes: []*model.Episode{
		{PodcastID: "renamed", EpisodeNumber: 1, GUID: "g-1"},
	}}
	indexer := &mockIndexTrigger{}

	var buf bytes.Buffer
	svc := newTestService(podcasts, episodes, indexer, &buf)

	p := &model.Podcast{ID: "renamed", RSSURL: server.URL + "/rss"}
	added, err := svc.Sync(context.Background(), p)
	if err != nil {
		t.Fatalf("Sync() がエラーを返した: %v", err)
	}
	if added != 1 {
		t.Errorf("追加数 = %d, want 1", added)
	}
	if episodes.episodes[1].PodcastID != "renamed" {
		t.Errorf("PodcastID = %q, 既存のIDに紐付けられるべき", episodes.episodes[1].PodcastID)
	}
	if podcasts.lastMarkerET != `"v1"` || p.LatestRSSETag != `"v1"` {
		t.Errorf("ETagマーカーが更新されていない: %q", podcasts.lastMarkerET)
	}
	if indexer.calls != 1 {
		t.Errorf("インデックス再構築要求 = %d, want 1", indexer.calls)
	}
}

func TestGetAndDelete_NotFound(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(newMockPodcastRepo(), &mockEpisodeRepo{}, nil, &buf)

	_, err := svc.Get(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePodcastNotFound {
		t.Errorf("Get() err = %v, want PODCAST_NOT_FOUND", err)
	}
	if err := svc.Delete(context.Background(), "missing"); !errors.As(err, &apiErr) {
		t.Errorf("Delete() err = %v, want APIError", err)
	}

	_, err = svc.Episode(context.Background(), "missing", 1)
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEpisodeNotFound {
		t.Errorf("Episode() err = %v, want EPISODE_NOT_FOUND", err)
	}
}

func TestDelete_RemovesPodcast(t *testing.T) {
	podcasts := newMockPodcastRepo()
	podcasts.podcasts["p"] = &model.Podcast{ID: "p"}

	var buf bytes.Buffer
	svc := newTestService(podcasts, &mockEpisodeRepo{}, nil, &buf)

	if err := svc.Delete(context.Background(), "p"); err != nil {
		t.Fatalf("Delete() がエラーを返した: %v", err)
	}
	if len(podcasts.deletedIDs) != 1 || podcasts.deletedIDs[0] != "p" {
		t.Errorf("deletedIDs = %v", podcasts.deletedIDs)
	}
}

func TestSeedStarterFeeds_ContinuesOnFailure(t *testing.T) {
	server := newFeedServer(t)

	var buf bytes.Buffer
	svc := newTestService(newMockPodcastRepo(), &mockEpisodeRepo{}, nil, &buf)

	added := svc.SeedStarterFeeds(context.Background(), []string{"   ", server.URL + "/rss"})
	if added != 1 {
		t.Errorf("SeedStarterFeeds() = %d, want 1", added)
	}
}
