package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

type mockPodcastRepo struct {
	podcasts []*model.Podcast
}

func (m *mockPodcastRepo) FindByID(_ context.Context, id string) (*model.Podcast, error) {
	for _, p := range m.podcasts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPodcastRepo) FindByIDs(_ context.Context, ids []string) ([]*model.Podcast, error) {
	var out []*model.Podcast
	for _, p := range m.podcasts {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *mockPodcastRepo) FindByURL(context.Context, string) (*model.Podcast, error) {
	return nil, nil
}

func (m *mockPodcastRepo) ListAll(context.Context, int) ([]*model.Podcast, error) {
	return m.podcasts, nil
}

func (m *mockPodcastRepo) Upsert(context.Context, *model.Podcast) error { return nil }

func (m *mockPodcastRepo) UpdateFeedMarkers(context.Context, string, string, string) error {
	return nil
}

func (m *mockPodcastRepo) Delete(context.Context, string) error { return nil }

type mockEpisodeRepo struct {
	episodes []*model.Episode
}

func (m *mockEpisodeRepo) FindByNumber(_ context.Context, podcastID string, n int) (*model.Episode, error) {
	for _, e := range m.episodes {
		if e.PodcastID == podcastID && e.EpisodeNumber == n {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEpisodeRepo) FindByGUID(context.Context, string, string) (*model.Episode, error) {
	return nil, nil
}

func (m *mockEpisodeRepo) FindByNumbers(_ context.Context, podcastID string, numbers []int) ([]*model.Episode, error) {
	var out []*model.Episode
	for _, e := range m.episodes {
		if e.PodcastID != podcastID {
			continue
		}
		for _, n := range numbers {
			if e.EpisodeNumber == n {
				out = append(out, e)
			}
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

func (m *mockEpisodeRepo) ExistingKeys(context.Context, string) (map[string]struct{}, map[int]struct{}, error) {
	return nil, nil, nil
}

func (m *mockEpisodeRepo) InsertBatch(context.Context, []*model.Episode) error { return nil }

type mockTranscriptRepo struct {
	transcripts map[int]*model.Transcript
	// afterFindFn は読み取り直後に呼ばれ、構築中の並行書き込みを再現する。
	afterFindFn func(n int)
}

func (m *mockTranscriptRepo) FindByEpisode(_ context.Context, _ string, n int) (*model.Transcript, error) {
	t := m.transcripts[n]
	if m.afterFindFn != nil {
		m.afterFindFn(n)
	}
	return t, nil
}

func (m *mockTranscriptRepo) UpdatedAt(_ context.Context, _ string, n int) (*time.Time, error) {
	t, ok := m.transcripts[n]
	if !ok {
		return nil, nil
	}
	at := t.UpdatedAt
	return &at, nil
}

func (m *mockTranscriptRepo) Create(context.Context, *model.Transcript) error { return nil }

func (m *mockTranscriptRepo) UpdateSummary(context.Context, string, int, string, string, time.Time) error {
	return nil
}

type recordKey struct {
	podcastID string
	number    int
}

type mockRecordRepo struct {
	mu        sync.Mutex
	records   map[recordKey]*model.SearchRecord
	saveCalls int
	lastLimit int
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[recordKey]*model.SearchRecord)}
}

func (m *mockRecordRepo) BuildDates(_ context.Context, podcastID string) (map[int]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates := make(map[int]time.Time)
	for k, r := range m.records {
		if k.podcastID == podcastID {
			dates[k.number] = r.CreatedAt
		}
	}
	return dates, nil
}

func (m *mockRecordRepo) Find(_ context.Context, podcastID string, n int) (*model.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recordKey{podcastID, n}], nil
}

func (m *mockRecordRepo) Save(_ context.Context, r *model.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	m.records[recordKey{r.PodcastID, r.EpisodeNumber}] = r
	return nil
}

func (m *mockRecordRepo) FindContainingAll(_ context.Context, keywords []string, limit int) ([]*model.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []*model.SearchRecord
	for _, r := range m.records {
		if containsAll(r.Keywords, keywords) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpisodeDate.After(out[j].EpisodeDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
